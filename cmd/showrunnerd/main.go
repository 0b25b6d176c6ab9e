package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/showrunner/controller/internal/anim"
	"github.com/showrunner/controller/internal/config"
	"github.com/showrunner/controller/internal/coords"
	"github.com/showrunner/controller/internal/render"
	"github.com/showrunner/controller/internal/serial"
	"github.com/showrunner/controller/internal/switcher"
	"github.com/showrunner/controller/internal/takeover"
	"github.com/showrunner/controller/internal/telemetry"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "showrunnerd",
		Short: "Drive the LED cube: load animations, render them, and forward takeover sessions to the device",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file (environment variables override its values)")
	configCmd := &cobra.Command{Use: "config", Short: "Manage showrunnerd configuration files"}
	configCmd.AddCommand(newConfigInitCommand())
	root.AddCommand(newRunCommand(), configCmd, newDeviceSimCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "showrunnerd: %s\n", err)
		os.Exit(1)
	}
}

func newConfigInitCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a YAML config file containing the documented defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err := os.Stdout.Write(b)
				return err
			}
			return os.WriteFile(out, b, 0644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "showrunner.yaml", "file to write (- for stdout)")
	return cmd
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load configuration and run the render, serial and takeover pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
	return cmd
}

func runDaemon() error {
	cfg := config.Default()
	if cfgPath != "" {
		if err := cfg.LoadFile(cfgPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return fmt.Errorf("loading env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := coords.Load(cfg.CoordinatesFile)
	if err != nil {
		return fmt.Errorf("loading coordinates: %w", err)
	}
	log.Printf("loaded %d LED coordinates", store.Len())

	port, err := serial.DiscoverPort(cfg.SerialBase, cfg.SerialBaud)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	session := serial.New(port)
	defer session.Close()

	engine := render.New(store, session, cfg.TargetFPS, cfg.Channels, cfg.LEDsPerChannel)

	host := anim.NewHost(cfg.AnimationDir, func(id int) (coords.Point, bool) { return store.Coord(id) })
	sw, err := switcher.New(cfg.ControlFile, engine, host, cfg.InitialAnimation)
	if err != nil {
		return fmt.Errorf("starting switcher: %w", err)
	}
	if err := sw.LoadInitial(); err != nil {
		return fmt.Errorf("loading initial animation: %w", err)
	}

	tw := telemetry.New(cfg.StatusFile, session, 200_000_000) // 200ms poll, faster than the device's 1Hz STATS
	takeoverSrv := takeover.New(engine, session, cfg.WSEvictionAge, cfg.WSIdleTimeout)

	srv := newHTTPServer(cfg.WSListen, takeoverSrv, tw)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// A lost serial link is fatal: stop the context the same as Ctrl-C
	// would, but remember it happened so we can exit nonzero.
	linkLost := make(chan struct{})
	go func() {
		select {
		case <-session.Lost():
			close(linkLost)
			stop()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 4)
	go func() { errc <- engine.Run(ctx) }()
	go func() { errc <- sw.Run(ctx) }()
	go func() { errc <- tw.Run(ctx) }()
	go func() { errc <- srv.run(ctx) }()
	go logInfoLines(ctx, session)
	go newStatusLine(engine, tw).run(ctx)

	<-ctx.Done()
	color.Yellow("showrunnerd: shutting down")
	takeoverSrv.Shutdown()
	srv.shutdown(context.Background())

	for i := 0; i < 4; i++ {
		if err := <-errc; err != nil {
			log.Printf("showrunnerd: subsystem error: %v", err)
		}
	}

	select {
	case <-linkLost:
		return fmt.Errorf("serial: link lost, exiting")
	default:
		return nil
	}
}

func logInfoLines(ctx context.Context, s *serial.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-s.InfoLines():
			if !ok {
				return
			}
			log.Printf("device: %s", line)
		}
	}
}
