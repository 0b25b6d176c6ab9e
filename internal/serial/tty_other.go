//go:build !linux

package serial

import (
	"fmt"
	"os"
)

// configureTTY is unimplemented outside Linux; the showrunner daemon
// targets the Raspberry-Pi-class hosts the teacher's SPI/I2C drivers target
// (lepton/bus.go), so non-Linux builds fail fast at port discovery instead
// of silently skipping configuration.
func configureTTY(f *os.File, baud int) error {
	return fmt.Errorf("serial: tty configuration not implemented on this platform")
}
