package subscription

import (
	"errors"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Subscription errors.
var (
	ErrUnknownSubscriber   = errors.New("unknown subscriber")
	ErrDuplicateSubscriber = errors.New("subscriber already registered")
	ErrResourceExhausted   = errors.New("maximum subscribers reached")
	ErrTooManyFilters      = errors.New("maximum filters reached")
	ErrMissingDevice       = errors.New("device required")
)

// Default limits.
const (
	DefaultMaxSubscribers      = 256
	DefaultMaxFiltersPerSub    = 1024
	DefaultMaxSnoopLinksPerSub = 256
)

// Config holds router configuration.
type Config struct {
	// MaxSubscribers is the maximum number of registered subscribers.
	MaxSubscribers int

	// MaxFiltersPerSub bounds getProperties filters per subscriber.
	MaxFiltersPerSub int

	// MaxSnoopLinksPerSub bounds explicit snoop links per subscriber.
	MaxSnoopLinksPerSub int
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscribers:      DefaultMaxSubscribers,
		MaxFiltersPerSub:    DefaultMaxFiltersPerSub,
		MaxSnoopLinksPerSub: DefaultMaxSnoopLinksPerSub,
	}
}

// Subscriber receives routed messages.
type Subscriber interface {
	// ID identifies the subscriber. It matches Event.Origin for events the
	// subscriber caused.
	ID() string

	// Deliver hands over one message. It must not block; a false return
	// means the message was dropped.
	Deliver(Delivery) bool
}

// Event is a message to fan out.
type Event struct {
	Message wire.Message

	// Revision is the registry revision of a vector event, or 0.
	Revision uint64

	// Origin is the ID of the subscriber that caused the event, if any.
	Origin string
}

// Delivery is one routed message for one recipient.
type Delivery struct {
	Recipient Subscriber
	Message   wire.Message
	Revision  uint64

	// Snoop marks device-to-device traffic.
	Snoop bool
}

// filter is one getProperties filter or snoop link. An empty name matches
// every property of the device; an empty device matches every device.
type filter struct {
	device string
	name   string
}

func (f filter) matches(device, name string) bool {
	if f.device != "" && f.device != device {
		return false
	}
	return f.name == "" || name == "" || f.name == name
}

// covers reports whether f already includes o.
func (f filter) covers(o filter) bool {
	if f.device != "" && f.device != o.device {
		return false
	}
	return f.name == "" || f.name == o.name
}

// subscriber is the router's per-subscriber state.
type subscriber struct {
	sub     Subscriber
	filters []filter
	blob    map[model.Key]model.BLOBMode
	snoops  []filter

	// active holds devices named by the subscriber's ACTIVE_* vectors.
	active []string
}

func addFilter(list []filter, f filter, limit int) ([]filter, error) {
	for _, existing := range list {
		if existing.covers(f) {
			return list, nil
		}
	}
	if len(list) >= limit {
		return list, ErrTooManyFilters
	}
	// A broader filter replaces the narrower ones it covers.
	out := list[:0:0]
	for _, existing := range list {
		if !f.covers(existing) {
			out = append(out, existing)
		}
	}
	return append(out, f), nil
}

func (s *subscriber) wants(device, name string) bool {
	for _, f := range s.filters {
		if f.matches(device, name) {
			return true
		}
	}
	return false
}

func (s *subscriber) snooping(device, name string) bool {
	for _, f := range s.snoops {
		if f.matches(device, name) {
			return true
		}
	}
	for _, d := range s.active {
		if d == device {
			return true
		}
	}
	return false
}

// blobMode returns the mode for (device, name), falling back to the device
// level.
func (s *subscriber) blobMode(device, name string) model.BLOBMode {
	if name != "" {
		if m, ok := s.blob[model.Key{Device: device, Name: name}]; ok {
			return m
		}
	}
	return s.blob[model.Key{Device: device}]
}
