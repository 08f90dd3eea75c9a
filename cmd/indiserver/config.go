package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/indi-protocol/indi-go/pkg/discovery"
	"github.com/indi-protocol/indi-go/pkg/transport"
)

// Config holds the server configuration.
//
// Values come from defaults, then the optional YAML file, then flags that
// were set explicitly on the command line.
type Config struct {
	ConfigFile     string        `yaml:"-"`
	Port           int           `yaml:"port"`
	MaxClients     int           `yaml:"max_clients"`
	MaxMessageSize int           `yaml:"max_message_size"`
	Profiles       string        `yaml:"profiles"`
	BusyOnlyExpiry bool          `yaml:"busy_only_expiry"`
	NewRate        float64       `yaml:"new_rate"`
	Handshake      time.Duration `yaml:"handshake_timeout"`
	LogLevel       string        `yaml:"log_level"`
	ProtocolLog    string        `yaml:"protocol_log"`
	MDNS           bool          `yaml:"mdns"`
	Instance       string        `yaml:"instance"`
	HTTP           string        `yaml:"http"`
	Simulate       bool          `yaml:"simulate"`
}

func defaultConfig() Config {
	return Config{
		Port:           discovery.DefaultPort,
		MaxClients:     transport.DefaultMaxClients,
		MaxMessageSize: transport.DefaultMaxMessageSize,
		LogLevel:       "info",
	}
}

func bindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML configuration file")
	fs.IntVar(&c.Port, "port", c.Port, "TCP listen port")
	fs.IntVar(&c.MaxClients, "max-clients", c.MaxClients, "Maximum concurrent connections (0 = unlimited)")
	fs.IntVar(&c.MaxMessageSize, "max-message-size", c.MaxMessageSize, "Maximum size of one XML element in bytes")
	fs.StringVar(&c.Profiles, "profiles", c.Profiles, "Directory of device profile YAML files")
	fs.BoolVar(&c.BusyOnlyExpiry, "busy-only-expiry", c.BusyOnlyExpiry, "Only expire vectors in Busy state")
	fs.Float64Var(&c.NewRate, "new-rate", c.NewRate, "Maximum new* requests per second per client (0 = unlimited)")
	fs.DurationVar(&c.Handshake, "handshake-timeout", c.Handshake, "Close clients that stay silent this long (0 = never)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.ProtocolLog, "protocol-log", c.ProtocolLog, "Write a CBOR protocol capture to this file")
	fs.BoolVar(&c.MDNS, "mdns", c.MDNS, "Advertise the server over mDNS")
	fs.StringVar(&c.Instance, "instance", c.Instance, "mDNS instance name (default \"INDI Server on <host>\")")
	fs.StringVar(&c.HTTP, "http", c.HTTP, "Serve the HTTP API and WebSocket bridge on this address")
	fs.BoolVar(&c.Simulate, "simulate", c.Simulate, "Register a simulated telescope")
}

// loadConfig parses args and merges the optional config file underneath
// any flags set on the command line.
func loadConfig(args []string, stderr io.Writer) (Config, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("indiserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if cfg.ConfigFile != "" {
		file, err := readConfigFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, err
		}
		overlay := flag.NewFlagSet("overlay", flag.ContinueOnError)
		bindFlags(overlay, &file)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if err := overlay.Set(f.Name, f.Value.String()); err != nil && setErr == nil {
				setErr = err
			}
		})
		if setErr != nil {
			return Config{}, setErr
		}
		file.ConfigFile = cfg.ConfigFile
		cfg = file
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", c.Port)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("max clients must not be negative, got %d", c.MaxClients)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative, got %d", c.MaxMessageSize)
	}
	if c.NewRate < 0 {
		return errors.New("new rate must not be negative")
	}
	if c.Handshake < 0 {
		return errors.New("handshake timeout must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
