package client

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// ErrUndefined indicates a set for a vector the mirror has not seen defined.
var ErrUndefined = errors.New("vector not defined")

// DefaultMessageHistory is the number of message elements a State keeps.
const DefaultMessageHistory = 64

type mirrorDevice struct {
	order   []string
	vectors map[string]model.Vector
}

// State mirrors the vectors a server has defined. It is safe for concurrent
// use.
type State struct {
	mu       sync.RWMutex
	devices  map[string]*mirrorDevice
	messages []wire.PlainMessage
	history  int

	// changed is closed and replaced on every mutation.
	changed chan struct{}
}

// NewState creates an empty mirror.
func NewState() *State {
	return &State{
		devices: make(map[string]*mirrorDevice),
		history: DefaultMessageHistory,
		changed: make(chan struct{}),
	}
}

// Apply folds one server message into the mirror. Messages that carry no
// state (getProperties, enableBLOB, new*) are ignored.
func (s *State) Apply(msg wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch m := msg.(type) {
	case *wire.DefVector:
		s.define(m.Vector)
	case *wire.SetVector:
		err = s.set(m.Vector)
	case *wire.DelProperty:
		s.remove(m.Device, m.Name)
	case *wire.PlainMessage:
		s.messages = append(s.messages, *m)
		if over := len(s.messages) - s.history; over > 0 {
			s.messages = append(s.messages[:0:0], s.messages[over:]...)
		}
	default:
		return nil
	}
	if err == nil {
		s.notify()
	}
	return err
}

func (s *State) define(v model.Vector) {
	d, ok := s.devices[v.Device]
	if !ok {
		d = &mirrorDevice{vectors: make(map[string]model.Vector)}
		s.devices[v.Device] = d
	}
	if _, exists := d.vectors[v.Name]; !exists {
		d.order = append(d.order, v.Name)
	}
	d.vectors[v.Name] = v.Clone()
}

func (s *State) set(delta model.Vector) error {
	d, ok := s.devices[delta.Device]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndefined, delta.Key())
	}
	current, ok := d.vectors[delta.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndefined, delta.Key())
	}
	merged, err := model.MergeSet(current, delta)
	if err != nil {
		return err
	}
	d.vectors[delta.Name] = merged
	return nil
}

func (s *State) remove(device, name string) {
	if device == "" {
		return
	}
	if name == "" {
		delete(s.devices, device)
		return
	}
	d, ok := s.devices[device]
	if !ok {
		return
	}
	if _, ok := d.vectors[name]; !ok {
		return
	}
	delete(d.vectors, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
	if len(d.vectors) == 0 {
		delete(s.devices, device)
	}
}

func (s *State) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// watch returns a channel that is closed on the next mutation.
func (s *State) watch() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Vector returns a copy of the mirrored vector.
func (s *State) Vector(device, name string) (model.Vector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[device]
	if !ok {
		return model.Vector{}, false
	}
	v, ok := d.vectors[name]
	if !ok {
		return model.Vector{}, false
	}
	return v.Clone(), true
}

// Devices returns the mirrored device names, sorted.
func (s *State) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Properties returns copies of a device's vectors in definition order.
func (s *State) Properties(device string) []model.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[device]
	if !ok {
		return nil
	}
	out := make([]model.Vector, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.vectors[name].Clone())
	}
	return out
}

// Messages returns the most recent message elements, oldest first.
func (s *State) Messages() []wire.PlainMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]wire.PlainMessage(nil), s.messages...)
}
