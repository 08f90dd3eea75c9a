package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/registry"
	"github.com/indi-protocol/indi-go/pkg/subscription"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// activePrefix marks text vectors whose element values name snooped devices.
const activePrefix = "ACTIVE_"

// Session is the protocol state of one peer connection. It is the peer's
// subscription.Subscriber.
type Session struct {
	hub   *Hub
	conn  Conn
	id    string
	since time.Time

	// limiter bounds new* requests; nil when unlimited.
	limiter *rate.Limiter

	mu     sync.Mutex
	state  SessionState
	role   Role
	owned  map[string]bool
	active []string

	// sent holds the highest revision enqueued per vector, deletions
	// included; defined holds vectors the peer currently knows.
	sent    map[model.Key]uint64
	defined map[model.Key]bool
	removed map[string]uint64
}

func newSession(h *Hub, conn Conn) *Session {
	s := &Session{
		hub:     h,
		conn:    conn,
		id:      conn.ID(),
		since:   h.config.Clock(),
		owned:   make(map[string]bool),
		sent:    make(map[model.Key]uint64),
		defined: make(map[model.Key]bool),
		removed: make(map[string]uint64),
	}
	if h.config.NewRate > 0 {
		burst := h.config.NewBurst
		if burst == 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(h.config.NewRate), burst)
	}
	return s
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns what the peer acts as.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Info returns a description of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{ID: s.id, Role: s.role, State: s.state, Since: s.since}
	for dev := range s.owned {
		info.Devices = append(info.Devices, dev)
	}
	return info
}

// Deliver enqueues a routed message. It never blocks.
func (s *Session) Deliver(d subscription.Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosing {
		return false
	}
	msg := s.track(d.Message, d.Revision)
	if msg == nil {
		return true
	}
	if err := s.conn.Send(msg); err != nil {
		s.hub.metrics.dropped.Inc()
		return false
	}
	s.hub.metrics.deliveries.Inc()
	if s.hub.protoLogger != nil {
		ev := log.NewDeliveryEvent(s.id, msg, d.Revision, d.Snoop)
		ev.Timestamp = s.hub.config.Clock()
		s.hub.protoLogger.Log(ev)
	}
	return true
}

// track records what the peer has been sent and returns the message to
// enqueue, or nil for a stale catch-up snapshot. A set for a vector the peer
// has not seen defined is sent as a definition; it carries the full state.
// Called with s.mu held.
func (s *Session) track(msg wire.Message, rev uint64) wire.Message {
	switch m := msg.(type) {
	case *wire.DefVector:
		key := m.Vector.Key()
		if rev != 0 && (rev <= s.sent[key] || rev <= s.removed[key.Device]) {
			return nil
		}
		s.sent[key] = rev
		s.defined[key] = true

	case *wire.SetVector:
		key := m.Vector.Key()
		if rev != 0 && rev <= s.sent[key] {
			return nil
		}
		s.sent[key] = rev
		if !s.defined[key] {
			s.defined[key] = true
			return &wire.DefVector{Vector: m.Vector}
		}

	case *wire.DelProperty:
		if m.Name != "" {
			key := model.Key{Device: m.Device, Name: m.Name}
			s.sent[key] = rev
			delete(s.defined, key)
			break
		}
		s.removed[m.Device] = rev
		for key := range s.defined {
			if key.Device == m.Device {
				delete(s.defined, key)
			}
		}
		for key := range s.sent {
			if key.Device == m.Device {
				delete(s.sent, key)
			}
		}
	}
	return msg
}

// send writes a message outside routing, to this peer only.
func (s *Session) send(msg wire.Message) {
	s.mu.Lock()
	closing := s.state == SessionClosing
	s.mu.Unlock()
	if closing {
		return
	}
	if err := s.conn.Send(msg); err != nil {
		s.hub.metrics.dropped.Inc()
	}
}

// reply sends a message element to this peer.
func (s *Session) reply(device, text string) {
	s.send(&wire.PlainMessage{Device: device, Timestamp: s.hub.config.Clock(), Text: text})
}

func (s *Session) setState(next SessionState, reason string) {
	s.mu.Lock()
	prev := s.state
	if prev == next || prev == SessionClosing {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.hub.logSessionState(s, prev, next, reason)
}

// activate marks the handshake as complete.
func (s *Session) activate() {
	s.hub.tracker.Remove(s.conn)
	s.setState(SessionActive, "")
}

func (s *Session) handle(ctx context.Context, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.GetProperties:
		s.handleGetProperties(m)
	case *wire.EnableBLOB:
		s.handleEnableBLOB(m)
	case *wire.NewVector:
		s.handleNew(ctx, m)
	case *wire.DefVector:
		s.handleDef(m)
	case *wire.SetVector:
		s.handleSet(m)
	case *wire.DelProperty:
		s.handleDel(m)
	case *wire.PlainMessage:
		s.handlePlain(m)
	}
}

func (s *Session) handleGetProperties(m *wire.GetProperties) {
	router := s.hub.router
	s.checkPeerVersion(m.Version)

	var err error
	if s.Role() == RoleDriver && m.Device != "" {
		err = router.AddSnoop(s.id, m.Device, m.Name)
	} else {
		err = router.Subscribe(s.id, m.Device, m.Name)
	}
	if err != nil {
		s.hub.reject(s, m.Device, "getProperties", err)
		return
	}

	s.activate()
	s.catchUp(m.Device, m.Name)
}

// catchUp sends definitions of the current vectors matching (device, name).
func (s *Session) catchUp(device, name string) {
	for _, snap := range s.hub.registry.List(device) {
		if name != "" && snap.Vector.Name != name {
			continue
		}
		s.Deliver(subscription.Delivery{
			Recipient: s,
			Message:   &wire.DefVector{Vector: snap.Vector},
			Revision:  snap.Revision,
		})
	}
}

func (s *Session) handleEnableBLOB(m *wire.EnableBLOB) {
	if !s.hub.registry.Has(m.Device) {
		s.hub.reject(s, m.Device, "enableBLOB", fmt.Errorf("%w: %s", registry.ErrUnknownDevice, m.Device))
		return
	}
	if m.Name != "" {
		if _, err := s.hub.registry.Lookup(m.Device, m.Name); err != nil {
			s.hub.reject(s, m.Device, "enableBLOB", err)
			return
		}
	}
	if err := s.hub.router.SetBLOBMode(s.id, m.Device, m.Name, m.Mode); err != nil {
		s.hub.reject(s, m.Device, "enableBLOB", err)
	}
}

func (s *Session) handleNew(ctx context.Context, m *wire.NewVector) {
	delta := m.Vector
	if s.limiter != nil && !s.limiter.Allow() {
		s.hub.reject(s, delta.Device, "new", fmt.Errorf("%w: %s", ErrRateLimited, delta.Key()))
		return
	}

	snap, err := s.hub.registry.Lookup(delta.Device, delta.Name)
	if err != nil {
		s.hub.reject(s, delta.Device, "new", err)
		return
	}

	proposed, err := s.hub.validator.ValidateNew(snap.Vector, delta)
	if err != nil {
		s.rejectNew(snap.Vector, err)
		return
	}
	s.hub.forwardNew(ctx, s, snap.Vector, proposed)
}

// rejectNew echoes the unchanged vector in Alert with the reason, then the
// reason as a message, to this peer only.
func (s *Session) rejectNew(current model.Vector, err error) {
	s.hub.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
	if s.hub.logger != nil {
		s.hub.logger.Debug("new rejected", "session", s.id, "property", current.Key().String(), "error", err)
	}

	echo := current.Clone()
	echo.State = model.StateAlert
	echo.Timestamp = s.hub.config.Clock()
	echo.Message = err.Error()
	s.send(&wire.SetVector{Vector: echo})
	s.reply(current.Device, err.Error())
}

func (s *Session) handleDef(m *wire.DefVector) {
	dev := m.Vector.Device
	if err := s.hub.claim(s, dev); err != nil {
		s.hub.reject(s, dev, "def", err)
		return
	}
	s.becomeDriver()

	c, err := s.hub.registry.ApplyDef(m.Vector, registry.From(s.id))
	if err != nil {
		s.hub.reject(s, dev, "def", err)
		if len(s.hub.registry.List(dev)) == 0 {
			s.hub.release(s, dev)
		}
		return
	}
	s.refreshActive(&c.Vector)
}

func (s *Session) handleSet(m *wire.SetVector) {
	dev := m.Vector.Device
	if err := s.hub.checkOwner(s, dev); err != nil {
		s.hub.reject(s, dev, "set", err)
		return
	}
	c, err := s.hub.registry.ApplySet(m.Vector, registry.From(s.id))
	if err != nil {
		s.hub.reject(s, dev, "set", err)
		return
	}
	s.refreshActive(&c.Vector)
}

func (s *Session) handleDel(m *wire.DelProperty) {
	if err := s.hub.checkOwner(s, m.Device); err != nil {
		s.hub.reject(s, m.Device, "delProperty", err)
		return
	}
	if _, err := s.hub.registry.ApplyDel(m.Device, m.Name, registry.From(s.id), registry.WithMessage(m.Message)); err != nil {
		s.hub.reject(s, m.Device, "delProperty", err)
		return
	}
	if m.Name == "" {
		s.hub.release(s, m.Device)
	}
	if strings.HasPrefix(m.Name, activePrefix) || m.Name == "" {
		s.refreshActive(nil)
	}
}

func (s *Session) handlePlain(m *wire.PlainMessage) {
	if s.Role() != RoleDriver {
		return
	}
	if m.Device != "" && s.hub.checkOwner(s, m.Device) != nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.hub.config.Clock()
	}
	s.hub.router.Dispatch(subscription.Event{Message: m, Origin: s.id})
}

func (s *Session) becomeDriver() {
	s.mu.Lock()
	changed := s.role != RoleDriver
	s.role = RoleDriver
	s.mu.Unlock()
	if changed {
		s.activate()
	}
}

// refreshActive recomputes implicit snoop links after an ACTIVE_* text
// vector changed, and sends catch-up for newly snooped devices. A nil
// vector forces the recomputation.
func (s *Session) refreshActive(v *model.Vector) {
	if v != nil && (v.Kind != model.KindText || !strings.HasPrefix(v.Name, activePrefix)) {
		return
	}

	s.mu.Lock()
	owned := make([]string, 0, len(s.owned))
	for dev := range s.owned {
		owned = append(owned, dev)
	}
	prev := s.active
	s.mu.Unlock()

	var devices []string
	seen := make(map[string]bool)
	for _, dev := range owned {
		for _, snap := range s.hub.registry.List(dev) {
			av := &snap.Vector
			if av.Kind != model.KindText || !strings.HasPrefix(av.Name, activePrefix) {
				continue
			}
			for _, el := range av.Elements {
				name := strings.TrimSpace(el.Text)
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				devices = append(devices, name)
			}
		}
	}

	if err := s.hub.router.SetActiveSnoops(s.id, devices); err != nil {
		return
	}

	s.mu.Lock()
	s.active = devices
	s.mu.Unlock()

	for _, dev := range devices {
		if !contains(prev, dev) {
			s.catchUp(dev, "")
		}
	}
}

// teardown unregisters the session and deletes the devices it owned.
func (s *Session) teardown(reason string) {
	s.mu.Lock()
	if s.state == SessionClosing {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = SessionClosing
	owned := make([]string, 0, len(s.owned))
	for dev := range s.owned {
		owned = append(owned, dev)
	}
	s.mu.Unlock()

	s.hub.logSessionState(s, prev, SessionClosing, reason)
	s.hub.tracker.Remove(s.conn)
	s.hub.router.Unregister(s.id)

	for _, dev := range owned {
		_, err := s.hub.registry.ApplyDel(dev, "", registry.From(s.id), registry.WithMessage("driver disconnected"))
		if err != nil && !errors.Is(err, registry.ErrUnknownDevice) && s.hub.logger != nil {
			s.hub.logger.Warn("teardown delete failed", "session", s.id, "device", dev, "error", err)
		}
		s.hub.release(s, dev)
	}
}

func (s *Session) logEvent(prev, next SessionState, reason string) log.Event {
	return log.Event{
		Timestamp:    s.hub.config.Clock(),
		ConnectionID: s.id,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// rejectReason labels a rejection for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrReadOnly):
		return "read_only"
	case errors.Is(err, model.ErrRuleViolation):
		return "rule"
	case errors.Is(err, model.ErrOutOfRange), errors.Is(err, model.ErrStepMismatch):
		return "range"
	case errors.Is(err, model.ErrUnknownElement), errors.Is(err, model.ErrKindMismatch),
		errors.Is(err, model.ErrInvalidValue), errors.Is(err, model.ErrEmptyVector),
		errors.Is(err, model.ErrDuplicateName), errors.Is(err, model.ErrMissingName):
		return "invalid"
	case errors.Is(err, registry.ErrUnknownDevice), errors.Is(err, registry.ErrUnknownProperty):
		return "unknown"
	case errors.Is(err, ErrRateLimited):
		return "rate"
	case errors.Is(err, ErrDeviceOwned), errors.Is(err, ErrNotOwner):
		return "ownership"
	default:
		return "driver"
	}
}
