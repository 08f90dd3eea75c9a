package subscription

import (
	"fmt"
	"sync"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Router tracks subscriber interest and computes fan-out.
type Router struct {
	mu sync.RWMutex

	config Config

	// Subscribers by ID, and in registration order.
	subs  map[string]*subscriber
	order []*subscriber
}

// NewRouter creates a router with the default configuration.
func NewRouter() *Router {
	return NewRouterWithConfig(DefaultConfig())
}

// NewRouterWithConfig creates a router with a custom configuration.
func NewRouterWithConfig(config Config) *Router {
	def := DefaultConfig()
	if config.MaxSubscribers <= 0 {
		config.MaxSubscribers = def.MaxSubscribers
	}
	if config.MaxFiltersPerSub <= 0 {
		config.MaxFiltersPerSub = def.MaxFiltersPerSub
	}
	if config.MaxSnoopLinksPerSub <= 0 {
		config.MaxSnoopLinksPerSub = def.MaxSnoopLinksPerSub
	}
	return &Router{
		config: config,
		subs:   make(map[string]*subscriber),
	}
}

// Register adds a subscriber with no filters and BLOB mode Never.
func (r *Router) Register(sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[sub.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscriber, sub.ID())
	}
	if len(r.subs) >= r.config.MaxSubscribers {
		return ErrResourceExhausted
	}

	s := &subscriber{sub: sub, blob: make(map[model.Key]model.BLOBMode)}
	r.subs[sub.ID()] = s
	r.order = append(r.order, s)
	return nil
}

// Unregister removes a subscriber with its filters, BLOB modes and snoop
// links. It reports whether the subscriber was registered.
func (r *Router) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok {
		return false
	}
	delete(r.subs, id)
	for i, o := range r.order {
		if o == s {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Subscribe adds a getProperties filter. An empty device matches every
// device; an empty name matches every property of the device.
func (r *Router) Subscribe(id, device, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.filters, err = addFilter(s.filters, filter{device: device, name: name}, r.config.MaxFiltersPerSub)
	return err
}

// HasFilters reports whether the subscriber has sent getProperties.
func (r *Router) HasFilters(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return ok && len(s.filters) > 0
}

// Wants reports whether the subscriber's filters match (device, name).
func (r *Router) Wants(id, device, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return ok && s.wants(device, name)
}

// SetBLOBMode sets the BLOB mode for a device, or one of its properties when
// name is set.
func (r *Router) SetBLOBMode(id, device, name string, mode model.BLOBMode) error {
	if device == "" {
		return ErrMissingDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.blob[model.Key{Device: device, Name: name}] = mode
	return nil
}

// BLOBMode returns the effective mode for (device, name).
func (r *Router) BLOBMode(id, device, name string) model.BLOBMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return model.BLOBNever
	}
	return s.blobMode(device, name)
}

// AddSnoop registers an explicit snoop link on a device, or on one of its
// properties when name is set.
func (r *Router) AddSnoop(id, device, name string) error {
	if device == "" {
		return ErrMissingDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.snoops, err = addFilter(s.snoops, filter{device: device, name: name}, r.config.MaxSnoopLinksPerSub)
	return err
}

// SetActiveSnoops replaces the implicit snoop links derived from the
// subscriber's ACTIVE_* vectors.
func (r *Router) SetActiveSnoops(id string, devices []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.active = s.active[:0]
	for _, d := range devices {
		if d != "" {
			s.active = append(s.active, d)
		}
	}
	return nil
}

// Snoops reports whether the subscriber holds a snoop link on (device, name).
func (r *Router) Snoops(id, device, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return ok && s.snooping(device, name)
}

// Count returns the number of registered subscribers.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Route returns the deliveries for ev in subscriber registration order.
func (r *Router) Route(ev Event) []Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.route(ev)
}

// Dispatch routes ev and hands each delivery to its recipient. It returns
// the number of deliveries accepted.
func (r *Router) Dispatch(ev Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, d := range r.route(ev) {
		if d.Recipient.Deliver(d) {
			n++
		}
	}
	return n
}

func (r *Router) route(ev Event) []Delivery {
	if ev.Message == nil {
		return nil
	}

	device := ev.Message.DeviceName()
	name := wire.PropertyName(ev.Message)

	var vector *model.Vector
	switch m := ev.Message.(type) {
	case *wire.DefVector:
		vector = &m.Vector
	case *wire.SetVector:
		vector = &m.Vector
	case *wire.DelProperty:
	case *wire.PlainMessage:
		if device == "" {
			return r.broadcast(ev)
		}
	default:
		// getProperties, new and enableBLOB are requests, not events.
		return nil
	}

	var out []Delivery
	for _, s := range r.order {
		client := s.wants(device, name)
		snoop := !client && s.sub.ID() != ev.Origin && s.snooping(device, name)
		if !client && !snoop {
			continue
		}
		if vector != nil && !passesBLOBGate(s, vector, ev.Message) {
			continue
		}
		out = append(out, Delivery{
			Recipient: s.sub,
			Message:   ev.Message,
			Revision:  ev.Revision,
			Snoop:     snoop,
		})
	}
	return out
}

// broadcast delivers a device-less message to every subscriber with filters.
func (r *Router) broadcast(ev Event) []Delivery {
	var out []Delivery
	for _, s := range r.order {
		if len(s.filters) == 0 {
			continue
		}
		out = append(out, Delivery{Recipient: s.sub, Message: ev.Message, Revision: ev.Revision})
	}
	return out
}

// passesBLOBGate applies BLOB modes. A defBLOBVector carries no payload and
// always passes.
func passesBLOBGate(s *subscriber, v *model.Vector, msg wire.Message) bool {
	if v.IsBLOB() {
		if _, isDef := msg.(*wire.DefVector); isDef {
			return true
		}
		return s.blobMode(v.Device, v.Name) != model.BLOBNever
	}
	return s.blob[model.Key{Device: v.Device}] != model.BLOBOnly
}

func (r *Router) lookup(id string) (*subscriber, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubscriber, id)
	}
	return s, nil
}
