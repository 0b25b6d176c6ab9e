//go:build linux

package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
}

// configureTTY puts the serial device into raw mode at the requested baud
// rate, mirroring the ioctl-based setup the teacher performs for SPI mode
// and speed in lepton/bus.go's SPI.setFlag, adapted here to termios via
// golang.org/x/sys/unix rather than a bespoke ioctl wrapper. Baud rate is
// set the way goserial's Termios.SetSpeed does it: mask out CBAUD and OR in
// the rate, since this package exposes no cfsetispeed/cfsetospeed helper.
func configureTTY(f *os.File, baud int) error {
	rate, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("serial: unsupported baud rate %d", baud)
	}
	t, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		return fmt.Errorf("serial: TCGETS: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	// golang.org/x/sys/unix has no cfsetispeed/cfsetospeed wrapper: the baud
	// rate lives in the CBAUD bits of Cflag, mirrored into Ispeed/Ospeed.
	t.Cflag &^= unix.CBAUD
	t.Cflag |= rate
	t.Ispeed = rate
	t.Ospeed = rate
	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, t); err != nil {
		return fmt.Errorf("serial: TCSETS: %w", err)
	}
	return nil
}
