// Package config loads the environment-driven configuration of the
// showrunner daemon, layering an optional YAML file on top of the documented
// defaults and underneath process environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime tunable the daemon accepts. Each field has a
// documented default applied by Default().
type Config struct {
	CoordinatesFile    string        `yaml:"coordinates_file"`
	AnimationDir       string        `yaml:"animation_dir"`
	ControlFile        string        `yaml:"control_file"`
	InitialAnimation   string        `yaml:"initial_animation"`
	SerialBase         string        `yaml:"serial_base"`
	SerialBaud         int           `yaml:"serial_baud"`
	LEDsPerChannel     int           `yaml:"leds_per_channel"`
	Channels           int           `yaml:"channels"`
	TargetFPS          int           `yaml:"target_fps"`
	StatusFile         string        `yaml:"status_file"`
	WSListen           string        `yaml:"ws_listen"`
	WSEvictionAge      time.Duration `yaml:"ws_eviction_age"`
	WSIdleTimeout      time.Duration `yaml:"ws_idle_timeout"`
	LogLevel           string        `yaml:"log_level"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		CoordinatesFile: "leds.txt",
		AnimationDir:    "animations",
		ControlFile:     "current_animation.txt",
		InitialAnimation: "default.lua",
		SerialBase:      "/dev/ttyACM",
		SerialBaud:      115200,
		LEDsPerChannel:  200,
		Channels:        8,
		TargetFPS:       30,
		StatusFile:      "status.json",
		WSListen:        "0.0.0.0:8081",
		WSEvictionAge:   10 * time.Second,
		WSIdleTimeout:   30 * time.Second,
		LogLevel:        "info",
	}
}

// LoadFile layers a YAML file's contents onto c. A missing file is not an
// error; any other read or parse failure is.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	return dec.Decode(c)
}

// envKeys maps SHOWRUNNER_* environment variables to the Config field they
// set, kept in one table so the precedence order (env over file) is obvious
// at a glance.
var envKeys = map[string]func(*Config, string) error{
	"SHOWRUNNER_COORDINATES_FILE": func(c *Config, v string) error { c.CoordinatesFile = v; return nil },
	"SHOWRUNNER_ANIMATION_DIR":    func(c *Config, v string) error { c.AnimationDir = v; return nil },
	"SHOWRUNNER_CONTROL_FILE":     func(c *Config, v string) error { c.ControlFile = v; return nil },
	"SHOWRUNNER_INITIAL_ANIMATION": func(c *Config, v string) error { c.InitialAnimation = v; return nil },
	"SHOWRUNNER_SERIAL_BASE":      func(c *Config, v string) error { c.SerialBase = v; return nil },
	"SHOWRUNNER_STATUS_FILE":      func(c *Config, v string) error { c.StatusFile = v; return nil },
	"SHOWRUNNER_WS_LISTEN":        func(c *Config, v string) error { c.WSListen = v; return nil },
	"SHOWRUNNER_LOG_LEVEL":        func(c *Config, v string) error { c.LogLevel = v; return nil },
	"SHOWRUNNER_SERIAL_BAUD": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_SERIAL_BAUD: %w", err)
		}
		c.SerialBaud = n
		return nil
	},
	"SHOWRUNNER_LEDS_PER_CHANNEL": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_LEDS_PER_CHANNEL: %w", err)
		}
		c.LEDsPerChannel = n
		return nil
	},
	"SHOWRUNNER_CHANNELS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_CHANNELS: %w", err)
		}
		c.Channels = n
		return nil
	},
	"SHOWRUNNER_TARGET_FPS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_TARGET_FPS: %w", err)
		}
		c.TargetFPS = n
		return nil
	},
	"SHOWRUNNER_WS_EVICTION_AGE": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_WS_EVICTION_AGE: %w", err)
		}
		c.WSEvictionAge = time.Duration(n) * time.Second
		return nil
	},
	"SHOWRUNNER_WS_IDLE_TIMEOUT": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOWRUNNER_WS_IDLE_TIMEOUT: %w", err)
		}
		c.WSIdleTimeout = time.Duration(n) * time.Second
		return nil
	},
}

// LoadEnv overlays process environment variables onto c.
func (c *Config) LoadEnv() error {
	for k, set := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			if err := set(c, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate enforces the invariants that make a fatal configuration error at
// startup rather than a runtime surprise.
func (c *Config) Validate() error {
	if c.LEDsPerChannel <= 0 || c.LEDsPerChannel > 200 {
		return fmt.Errorf("config: leds_per_channel must be in (0,200], got %d", c.LEDsPerChannel)
	}
	if c.Channels <= 0 || c.Channels > 8 {
		return fmt.Errorf("config: channels must be in (0,8], got %d", c.Channels)
	}
	if c.TargetFPS < 1 || c.TargetFPS > 120 {
		return fmt.Errorf("config: target_fps must be in [1,120], got %d", c.TargetFPS)
	}
	if c.WSEvictionAge < 0 {
		return fmt.Errorf("config: ws_eviction_age must be >= 0")
	}
	if c.WSIdleTimeout <= 0 {
		return fmt.Errorf("config: ws_idle_timeout must be > 0")
	}
	if c.CoordinatesFile == "" {
		return fmt.Errorf("config: coordinates_file is required")
	}
	return nil
}

// NumLEDs is the total LED count N = channels * leds_per_channel.
func (c *Config) NumLEDs() int {
	return c.Channels * c.LEDsPerChannel
}
