package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/showrunner/controller/internal/device"
)

// newDeviceSimCommand wires internal/device's reference Decoder up to a Unix
// domain socket so the render pipeline can be driven against a model of the
// hardware instead of a real serial port, the same role the teacher's
// leptontest fake camera plays for its tests and demos.
func newDeviceSimCommand() *cobra.Command {
	var (
		socketPath  string
		gamma       float64
		currentCap  float64
		faultVolt   float64
		faultTemp   float64
		faultCurAmp float64
	)
	cmd := &cobra.Command{
		Use:   "device-sim",
		Short: "Run a software model of the LED cube firmware on a Unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			os.Remove(socketPath)
			ln, err := net.Listen("unix", socketPath)
			if err != nil {
				return err
			}
			defer ln.Close()
			log.Printf("device-sim: listening on %s", socketPath)

			d := device.NewDecoder(gamma, currentCap, faultVolt, faultTemp, faultCurAmp)
			go simulateSensors(ctx, d)

			go func() {
				<-ctx.Done()
				ln.Close()
			}()
			for {
				conn, err := ln.Accept()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				go serveDeviceConn(ctx, conn, d)
			}
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/showrunner-device.sock", "Unix socket path to listen on")
	cmd.Flags().Float64Var(&gamma, "gamma", 2.8, "gamma correction exponent")
	cmd.Flags().Float64Var(&currentCap, "current-cap", 9000, "per-channel sum of gamma-corrected 0-255 components before current limiting")
	cmd.Flags().Float64Var(&faultVolt, "fault-voltage", 3.0, "per-channel feedback voltage that trips a channel fault")
	cmd.Flags().Float64Var(&faultTemp, "fault-temp", 85, "board temperature (C) that trips the global fault")
	cmd.Flags().Float64Var(&faultCurAmp, "fault-current", 20, "bus current (A) that trips the global fault")
	return cmd
}

// serveDeviceConn feeds every byte from conn into the decoder and writes a
// STATS line back once a second, exactly mirroring what the real firmware
// does over its UART.
func serveDeviceConn(ctx context.Context, conn net.Conn, d *device.Decoder) {
	defer conn.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				d.Feed(buf[i])
			}
			if err != nil {
				if err != io.EOF {
					log.Printf("device-sim: read: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			d.CheckTimeout(time.Now())
			if _, err := conn.Write([]byte(d.StatsLine())); err != nil {
				return
			}
		}
	}
}

// simulateSensors drives the pattern-mode frame advance at 30Hz and feeds
// plausible, stable sensor readings so the fault model has something to
// evaluate even with nothing else connected.
func simulateSensors(ctx context.Context, d *device.Decoder) {
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CheckTimeout(time.Now())
			d.AdvancePattern()
			d.UpdateSensors(32, 30, 12.0, 2.5)
			for ch := 0; ch < 8; ch++ {
				d.UpdateChannelFeedback(ch, 5.0)
			}
		}
	}
}
