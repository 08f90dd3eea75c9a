package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indi-protocol/indi-go/pkg/model"
)

// Registry errors.
var (
	ErrUnknownDevice   = errors.New("unknown device")
	ErrUnknownProperty = errors.New("unknown property")
)

// ChangeKind identifies what a Change did.
type ChangeKind uint8

const (
	ChangeDef ChangeKind = iota
	ChangeSet
	ChangeDel

	// ChangeDeviceRemoved follows the Del changes of a whole-device delete.
	ChangeDeviceRemoved
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeDef:
		return "def"
	case ChangeSet:
		return "set"
	case ChangeDel:
		return "del"
	case ChangeDeviceRemoved:
		return "device-removed"
	default:
		return "unknown"
	}
}

// Change describes one committed mutation.
type Change struct {
	Kind   ChangeKind
	Device string

	// Name is empty for ChangeDeviceRemoved.
	Name string

	// Vector is the state after the change. For ChangeDel it is the last
	// state before removal.
	Vector model.Vector

	Revision  uint64
	Timestamp time.Time

	// Message is the commentary carried by the mutation.
	Message string

	// Expired marks the Alert transition made by Expire.
	Expired bool

	// Origin identifies the session that caused the change, if any.
	Origin string

	// Unchanged is set on the result of a set that matched the current
	// state. Such changes are not published.
	Unchanged bool
}

// Publisher receives committed changes. It runs with the device lock held
// and must not block.
type Publisher func(Change)

// Snapshot is a stored vector with its bookkeeping.
type Snapshot struct {
	Vector    model.Vector
	Revision  uint64
	Refreshed time.Time
	Expired   bool
}

// Config holds registry configuration.
type Config struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// BusyOnlyExpiry limits expiry to vectors in the Busy state.
	BusyOnlyExpiry bool
}

// Option adjusts a single mutation.
type Option func(*Change)

// From records the session that caused a mutation.
func From(origin string) Option {
	return func(c *Change) { c.Origin = origin }
}

// WithMessage attaches commentary to a delete.
func WithMessage(msg string) Option {
	return func(c *Change) { c.Message = msg }
}

type entry struct {
	vector    model.Vector
	revision  uint64
	refreshed time.Time
	expired   bool
}

type device struct {
	mu      sync.Mutex
	name    string
	order   []string
	entries map[string]*entry
	removed bool
}

// Registry stores device state. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*device
	order   []string
	publish Publisher

	config   Config
	revision atomic.Uint64
}

// New creates a registry with the default configuration.
func New() *Registry {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a registry with a custom configuration.
func NewWithConfig(config Config) *Registry {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Registry{
		config:  config,
		devices: make(map[string]*device),
	}
}

// OnChange sets the publisher for committed changes.
func (r *Registry) OnChange(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish = p
}

// Revision returns the most recently issued revision.
func (r *Registry) Revision() uint64 {
	return r.revision.Load()
}

// lockDevice returns the named device with its lock held.
func (r *Registry) lockDevice(name string, create bool) (*device, error) {
	for {
		r.mu.RLock()
		d := r.devices[name]
		r.mu.RUnlock()

		if d == nil {
			if !create {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
			}
			r.mu.Lock()
			d = r.devices[name]
			if d == nil {
				d = &device{name: name, entries: make(map[string]*entry)}
				r.devices[name] = d
				r.order = append(r.order, name)
			}
			r.mu.Unlock()
		}

		d.mu.Lock()
		if !d.removed {
			return d, nil
		}
		d.mu.Unlock()
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
		}
	}
}

// emit stamps a change with the next revision and publishes it. Called with
// the device lock held.
func (r *Registry) emit(c *Change) {
	c.Revision = r.revision.Add(1)
	r.mu.RLock()
	p := r.publish
	r.mu.RUnlock()
	if p != nil {
		p(*c)
	}
}

// ApplyDef defines a vector, creating its device if needed. Redefining an
// existing vector replaces it in place.
func (r *Registry) ApplyDef(v model.Vector, opts ...Option) (Change, error) {
	if err := model.ValidateDef(v); err != nil {
		return Change{}, err
	}

	now := r.config.Clock()
	v = v.Clone()
	v.Absent = 0
	if v.Timestamp.IsZero() {
		v.Timestamp = now
	}
	msg := v.Message
	v.Message = ""

	d, err := r.lockDevice(v.Device, true)
	if err != nil {
		return Change{}, err
	}
	defer d.mu.Unlock()

	e, ok := d.entries[v.Name]
	if !ok {
		e = &entry{}
		d.entries[v.Name] = e
		d.order = append(d.order, v.Name)
	}
	e.vector = v
	e.refreshed = now
	e.expired = false

	c := Change{Kind: ChangeDef, Device: v.Device, Name: v.Name, Vector: v.Clone(), Timestamp: v.Timestamp, Message: msg}
	for _, opt := range opts {
		opt(&c)
	}
	r.emit(&c)
	e.revision = c.Revision
	return c, nil
}

// ApplySet merges an authoritative update into an existing vector. A delta
// that leaves the state unchanged refreshes the timeout without publishing.
func (r *Registry) ApplySet(delta model.Vector, opts ...Option) (Change, error) {
	now := r.config.Clock()

	d, err := r.lockDevice(delta.Device, false)
	if err != nil {
		return Change{}, err
	}
	defer d.mu.Unlock()

	e, ok := d.entries[delta.Name]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownProperty, delta.Key())
	}

	merged, err := model.MergeSet(e.vector, delta)
	if err != nil {
		return Change{}, err
	}
	if merged.Timestamp.IsZero() {
		merged.Timestamp = now
	}
	msg := merged.Message
	merged.Message = ""

	e.refreshed = now
	e.expired = false

	if merged.SameState(&e.vector) {
		return Change{
			Kind: ChangeSet, Device: e.vector.Device, Name: e.vector.Name,
			Vector: e.vector.Clone(), Revision: e.revision, Timestamp: e.vector.Timestamp,
			Unchanged: true,
		}, nil
	}

	e.vector = merged
	c := Change{Kind: ChangeSet, Device: merged.Device, Name: merged.Name, Vector: merged.Clone(), Timestamp: merged.Timestamp, Message: msg}
	for _, opt := range opts {
		opt(&c)
	}
	r.emit(&c)
	e.revision = c.Revision
	return c, nil
}

// ApplyDel removes one vector, or every vector of the device when name is
// empty. A whole-device delete yields one ChangeDel per vector in definition
// order followed by a ChangeDeviceRemoved.
func (r *Registry) ApplyDel(deviceName, name string, opts ...Option) ([]Change, error) {
	now := r.config.Clock()

	d, err := r.lockDevice(deviceName, false)
	if err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	del := func(n string) Change {
		e := d.entries[n]
		c := Change{Kind: ChangeDel, Device: deviceName, Name: n, Vector: e.vector, Timestamp: now}
		for _, opt := range opts {
			opt(&c)
		}
		delete(d.entries, n)
		r.emit(&c)
		return c
	}

	if name != "" {
		if _, ok := d.entries[name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, deviceName, name)
		}
		for i, n := range d.order {
			if n == name {
				d.order = append(d.order[:i:i], d.order[i+1:]...)
				break
			}
		}
		return []Change{del(name)}, nil
	}

	changes := make([]Change, 0, len(d.order)+1)
	for _, n := range d.order {
		changes = append(changes, del(n))
	}
	d.order = nil
	d.removed = true

	r.mu.Lock()
	delete(r.devices, deviceName)
	for i, n := range r.order {
		if n == deviceName {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	c := Change{Kind: ChangeDeviceRemoved, Device: deviceName, Timestamp: now}
	for _, opt := range opts {
		opt(&c)
	}
	r.emit(&c)
	return append(changes, c), nil
}

// Lookup returns one stored vector.
func (r *Registry) Lookup(deviceName, name string) (Snapshot, error) {
	d, err := r.lockDevice(deviceName, false)
	if err != nil {
		return Snapshot{}, err
	}
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, deviceName, name)
	}
	return e.snapshot(), nil
}

// Get returns the named vector, or every vector of the device in definition
// order when name is empty.
func (r *Registry) Get(deviceName, name string) ([]model.Vector, error) {
	if name != "" {
		s, err := r.Lookup(deviceName, name)
		if err != nil {
			return nil, err
		}
		return []model.Vector{s.Vector}, nil
	}

	d, err := r.lockDevice(deviceName, false)
	if err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	out := make([]model.Vector, 0, len(d.order))
	for _, n := range d.order {
		out = append(out, d.entries[n].vector.Clone())
	}
	return out, nil
}

// List returns snapshots for one device, or for every device in creation
// order when deviceName is empty. An unknown device yields nil.
func (r *Registry) List(deviceName string) []Snapshot {
	names := []string{deviceName}
	if deviceName == "" {
		names = r.deviceNames()
	}

	var out []Snapshot
	for _, dn := range names {
		d, err := r.lockDevice(dn, false)
		if err != nil {
			continue
		}
		for _, n := range d.order {
			out = append(out, d.entries[n].snapshot())
		}
		d.mu.Unlock()
	}
	return out
}

// Devices returns the names of devices that hold at least one vector, in
// creation order.
func (r *Registry) Devices() []string {
	var out []string
	for _, dn := range r.deviceNames() {
		d, err := r.lockDevice(dn, false)
		if err != nil {
			continue
		}
		if len(d.order) > 0 {
			out = append(out, dn)
		}
		d.mu.Unlock()
	}
	return out
}

// Has reports whether the device exists.
func (r *Registry) Has(deviceName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[deviceName]
	return ok
}

// Expire moves every vector whose timeout has elapsed without a refresh to
// Alert. Each vector expires once until it is refreshed again.
func (r *Registry) Expire(now time.Time) []Change {
	var changes []Change
	for _, dn := range r.deviceNames() {
		d, err := r.lockDevice(dn, false)
		if err != nil {
			continue
		}
		for _, n := range d.order {
			e := d.entries[n]
			if e.expired || !e.vector.Expired(e.refreshed, now) {
				continue
			}
			if r.config.BusyOnlyExpiry && e.vector.State != model.StateBusy {
				continue
			}
			e.expired = true
			e.vector.State = model.StateAlert
			e.vector.Timestamp = now

			c := Change{Kind: ChangeSet, Device: dn, Name: n, Vector: e.vector.Clone(), Timestamp: now, Expired: true}
			r.emit(&c)
			e.revision = c.Revision
			changes = append(changes, c)
		}
		d.mu.Unlock()
	}
	return changes
}

func (r *Registry) deviceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Vector:    e.vector.Clone(),
		Revision:  e.revision,
		Refreshed: e.refreshed,
		Expired:   e.expired,
	}
}
