package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Advertiser publishes a server on the local network.
type Advertiser interface {
	// Advertise starts advertising, replacing any previous advertisement.
	Advertise(ctx context.Context, info *ServerInfo) error

	// Update replaces the TXT records of the running advertisement.
	Update(info *ServerInfo) error

	// Stop withdraws the advertisement.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}

// Validate checks the configuration.
func (c AdvertiserConfig) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("%w: negative TTL", ErrInvalidConfig)
	}
	return nil
}

// DefaultInstanceName returns "INDI Server on <hostname>".
func DefaultInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := "INDI Server on " + host
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Announcer keeps an advertisement's device count in step with a server.
type Announcer struct {
	// Advertiser publishes the service.
	Advertiser Advertiser

	// Info is the initial advertisement. Devices is overwritten.
	Info ServerInfo

	// Devices returns the current number of devices.
	Devices func() int

	// Interval between checks (default: 5s).
	Interval time.Duration

	// Logger is optional.
	Logger *slog.Logger
}

// Run advertises, then updates the devices record whenever the count
// changes, until ctx is cancelled. The advertisement is withdrawn on return.
func (a *Announcer) Run(ctx context.Context) error {
	interval := a.Interval
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}

	info := a.Info
	info.Devices = a.Devices()
	if err := a.Advertiser.Advertise(ctx, &info); err != nil {
		return fmt.Errorf("advertise: %w", err)
	}
	defer a.Advertiser.Stop()

	if a.Logger != nil {
		a.Logger.Info("advertising", "instance", info.Instance, "port", info.Port, "devices", info.Devices)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := a.Devices()
			if n == info.Devices {
				continue
			}
			info.Devices = n
			if err := a.Advertiser.Update(&info); err != nil && a.Logger != nil {
				a.Logger.Warn("advertisement update failed", "error", err)
			}
		}
	}
}
