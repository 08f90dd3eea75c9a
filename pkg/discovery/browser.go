package discovery

import (
	"context"
	"time"
)

// Browser finds INDI servers on the local network.
type Browser interface {
	// Browse searches for servers. Each server is emitted once, with the
	// addresses known when first seen. The channel is closed when the
	// context is cancelled.
	Browse(ctx context.Context) (<-chan *Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindAll.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FindAll browses for the configured timeout and returns every server seen.
func FindAll(ctx context.Context, b Browser, timeout time.Duration) ([]*Service, error) {
	if timeout <= 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Service
	for svc := range ch {
		out = append(out, svc)
	}
	return out, nil
}
