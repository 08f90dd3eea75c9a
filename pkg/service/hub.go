package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/registry"
	"github.com/indi-protocol/indi-go/pkg/subscription"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Hub owns the device registry and the subscription router and runs the
// protocol for every connected session.
type Hub struct {
	config    HubConfig
	registry  *registry.Registry
	router    *subscription.Router
	validator model.Validator
	metrics   *metrics
	tracker   *connTracker

	logger      *slog.Logger
	protoLogger log.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	drivers  map[string]Driver
	owners   map[string]*Session

	// Background processing
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHub creates a hub with its own registry and router.
func NewHub(config HubConfig) (*Hub, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	h := &Hub{
		config: config,
		registry: registry.NewWithConfig(registry.Config{
			Clock:          config.Clock,
			BusyOnlyExpiry: config.BusyOnlyExpiry,
		}),
		router:      subscription.NewRouter(),
		validator:   model.Validator{Policy: config.RangePolicy, IgnoreStep: config.IgnoreStep},
		metrics:     newMetrics(config.Registerer),
		tracker:     newConnTracker(),
		logger:      config.Logger,
		protoLogger: config.ProtocolLogger,
		sessions:    make(map[string]*Session),
		drivers:     make(map[string]Driver),
		owners:      make(map[string]*Session),
	}
	h.registry.OnChange(h.publish)
	return h, nil
}

// Registry returns the hub's device registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Router returns the hub's subscription router.
func (h *Hub) Router() *subscription.Router {
	return h.router
}

// Start begins the periodic expiry sweep.
func (h *Hub) Start(ctx context.Context) error {
	if h.running.Swap(true) {
		return ErrAlreadyStarted
	}

	h.mu.Lock()
	h.ctx, h.cancel = context.WithCancel(ctx)
	sweepCtx := h.ctx
	h.mu.Unlock()

	h.wg.Add(1)
	go h.sweepLoop(sweepCtx)
	return nil
}

// Stop stops the sweep and cancels in-flight driver calls.
func (h *Hub) Stop() {
	if !h.running.Swap(false) {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	cancel()
	h.wg.Wait()
}

// sweepLoop runs the background expiry sweep.
func (h *Hub) sweepLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep expires timed-out vectors and closes sessions that never completed
// their handshake. It returns the number of expired vectors.
func (h *Hub) Sweep() int {
	now := h.config.Clock()
	changes := h.registry.Expire(now)
	if h.config.HandshakeTimeout > 0 {
		if n := h.tracker.CloseStale(now, h.config.HandshakeTimeout); n > 0 && h.logger != nil {
			h.logger.Info("closed idle connections", "count", n)
		}
	}
	return len(changes)
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}

// RegisterDriver adds an in-process driver and defines its properties.
func (h *Hub) RegisterDriver(d Driver) error {
	name := d.Name()
	props := d.Properties()
	for i := range props {
		if props[i].Device == "" {
			props[i].Device = name
		}
		if props[i].Device != name {
			return fmt.Errorf("%w: %s", ErrDriverProperties, props[i].Key())
		}
	}

	h.mu.Lock()
	if _, ok := h.drivers[name]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDriver, name)
	}
	if h.owners[name] != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceOwned, name)
	}
	h.drivers[name] = d
	h.mu.Unlock()

	for _, v := range props {
		if _, err := h.registry.ApplyDef(v, registry.From(driverOrigin(name))); err != nil {
			h.UnregisterDriver(name)
			return fmt.Errorf("define %s: %w", v.Key(), err)
		}
	}

	if h.logger != nil {
		h.logger.Info("driver registered", "device", name, "properties", len(props))
	}
	return nil
}

// UnregisterDriver removes an in-process driver and deletes its device.
func (h *Hub) UnregisterDriver(name string) bool {
	h.mu.Lock()
	_, ok := h.drivers[name]
	delete(h.drivers, name)
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.registry.ApplyDel(name, "", registry.From(driverOrigin(name)))
	return true
}

// Drivers returns the names of in-process drivers.
func (h *Hub) Drivers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.drivers))
	for name := range h.drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Update pushes an authoritative set from an in-process driver.
func (h *Hub) Update(delta model.Vector) (registry.Change, error) {
	h.mu.RLock()
	_, ok := h.drivers[delta.Device]
	h.mu.RUnlock()
	if !ok {
		return registry.Change{}, fmt.Errorf("%w: %s", ErrNoDriver, delta.Device)
	}
	return h.registry.ApplySet(delta, registry.From(driverOrigin(delta.Device)))
}

// Message routes a message element to the subscribers of device, or to every
// subscriber when device is empty.
func (h *Hub) Message(device, text string) int {
	return h.router.Dispatch(subscription.Event{
		Message: &wire.PlainMessage{Device: device, Timestamp: h.config.Clock(), Text: text},
	})
}

// HandleConnect registers a new peer.
func (h *Hub) HandleConnect(conn Conn) (*Session, error) {
	s := newSession(h, conn)

	h.mu.Lock()
	if _, exists := h.sessions[s.id]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", subscription.ErrDuplicateSubscriber, s.id)
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	if err := h.router.Register(s); err != nil {
		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()
		return nil, err
	}

	h.tracker.Add(conn, s.since)
	h.metrics.sessions.Inc()
	s.setState(SessionAwaitingFilters, "")
	return s, nil
}

// HandleMessage runs one inbound message through the peer's session.
func (h *Hub) HandleMessage(conn Conn, msg wire.Message) {
	s := h.Session(conn.ID())
	if s == nil || msg == nil {
		return
	}
	h.metrics.messages.WithLabelValues(msg.Element()).Inc()
	s.handle(h.context(), msg)
}

// HandleError reports a stream error to the peer. Decode errors are answered
// with a message element.
func (h *Hub) HandleError(conn Conn, err error) {
	var de *wire.DecodeError
	if !errors.As(err, &de) {
		return
	}
	s := h.Session(conn.ID())
	if s == nil {
		return
	}
	h.metrics.rejected.WithLabelValues("decode").Inc()
	s.reply("", "malformed XML: "+de.Err.Error())
}

// HandleDisconnect tears down the peer's session.
func (h *Hub) HandleDisconnect(conn Conn) {
	h.mu.Lock()
	s := h.sessions[conn.ID()]
	delete(h.sessions, conn.ID())
	h.mu.Unlock()
	if s == nil {
		return
	}

	reason := "peer closed"
	if sc, ok := conn.(interface{ Err() error }); ok && sc.Err() != nil {
		reason = sc.Err().Error()
	}
	s.teardown(reason)
	h.metrics.sessions.Dec()
}

// Bind wires the hub into a transport server configuration.
func (h *Hub) Bind(config transport.ServerConfig) transport.ServerConfig {
	onError := config.OnError
	config.OnConnect = func(c *transport.ServerConn) {
		if _, err := h.HandleConnect(c); err != nil {
			if h.logger != nil {
				h.logger.Warn("session rejected", "conn", c.ID(), "error", err)
			}
			c.Close()
		}
	}
	config.OnMessage = func(c *transport.ServerConn, msg wire.Message) {
		h.HandleMessage(c, msg)
	}
	config.OnDisconnect = func(c *transport.ServerConn) {
		h.HandleDisconnect(c)
	}
	config.OnError = func(c *transport.ServerConn, err error) {
		if c != nil {
			h.HandleError(c, err)
		}
		if onError != nil {
			onError(c, err)
		}
	}
	return config
}

// Session returns the session for a connection ID, or nil.
func (h *Hub) Session(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// Sessions describes the live sessions, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.RUnlock()

	out := make([]SessionInfo, len(list))
	for i, s := range list {
		out[i] = s.Info()
		sort.Strings(out[i].Devices)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].ID < out[j].ID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// Owner returns the ID of the session or in-process driver that owns device.
func (h *Hub) Owner(device string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.drivers[device]; ok {
		return driverOrigin(device), true
	}
	if s := h.owners[device]; s != nil {
		return s.id, true
	}
	return "", false
}

// publish routes a committed change. It runs under the registry's device
// lock and only enqueues.
func (h *Hub) publish(c registry.Change) {
	h.metrics.changes.WithLabelValues(c.Kind.String()).Inc()
	if c.Expired {
		h.metrics.expired.Inc()
	}

	msg := changeMessage(c)
	if msg == nil {
		return
	}
	h.router.Dispatch(subscription.Event{Message: msg, Revision: c.Revision, Origin: c.Origin})
}

// changeMessage renders a change as the message subscribers receive.
func changeMessage(c registry.Change) wire.Message {
	switch c.Kind {
	case registry.ChangeDef:
		v := c.Vector
		v.Message = c.Message
		return &wire.DefVector{Vector: v}
	case registry.ChangeSet:
		v := c.Vector
		v.Message = c.Message
		if c.Expired {
			v.Message = "timed out"
		}
		return &wire.SetVector{Vector: v}
	case registry.ChangeDel:
		return &wire.DelProperty{Device: c.Device, Name: c.Name, Timestamp: c.Timestamp, Message: c.Message}
	case registry.ChangeDeviceRemoved:
		return &wire.DelProperty{Device: c.Device, Timestamp: c.Timestamp, Message: c.Message}
	default:
		return nil
	}
}

// forwardNew hands an accepted request to the device's owner.
func (h *Hub) forwardNew(ctx context.Context, s *Session, current, proposed model.Vector) {
	dev := current.Device

	h.mu.RLock()
	drv := h.drivers[dev]
	owner := h.owners[dev]
	h.mu.RUnlock()

	switch {
	case drv != nil:
		result, err := drv.HandleNew(ctx, proposed)
		if err != nil {
			s.rejectNew(current, err)
			return
		}
		result.Device, result.Name, result.Kind = current.Device, current.Name, current.Kind
		c, err := h.registry.ApplySet(result, registry.From(s.id))
		if err != nil {
			s.rejectNew(current, err)
			return
		}
		if c.Unchanged {
			// Nothing was published; answer the submitter directly.
			s.send(&wire.SetVector{Vector: c.Vector})
		}

	case owner != nil:
		owner.send(&wire.NewVector{Vector: proposed})

	default:
		s.rejectNew(current, fmt.Errorf("%w: %s", ErrNoDriver, dev))
	}
}

// claim makes s the owner of device unless someone else owns it.
func (h *Hub) claim(s *Session, device string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.drivers[device]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceOwned, device)
	}
	if o := h.owners[device]; o != nil && o != s {
		return fmt.Errorf("%w: %s", ErrDeviceOwned, device)
	}
	h.owners[device] = s

	s.mu.Lock()
	s.owned[device] = true
	s.mu.Unlock()
	return nil
}

// release drops s's ownership of device.
func (h *Hub) release(s *Session, device string) {
	h.mu.Lock()
	if h.owners[device] == s {
		delete(h.owners, device)
	}
	h.mu.Unlock()

	s.mu.Lock()
	delete(s.owned, device)
	s.mu.Unlock()
}

func (h *Hub) checkOwner(s *Session, device string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.owners[device] != s {
		return fmt.Errorf("%w: %s", ErrNotOwner, device)
	}
	return nil
}

// reject answers a refused request with a message element.
func (h *Hub) reject(s *Session, device, op string, err error) {
	h.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
	if h.logger != nil {
		h.logger.Debug("request rejected", "session", s.id, "op", op, "device", device, "error", err)
	}
	s.reply(device, fmt.Sprintf("%s: %v", op, err))
}

func (h *Hub) logSessionState(s *Session, prev, next SessionState, reason string) {
	if h.logger != nil {
		h.logger.Debug("session state", "session", s.id, "from", prev.String(), "to", next.String(), "reason", reason)
	}
	if h.protoLogger != nil {
		h.protoLogger.Log(s.logEvent(prev, next, reason))
	}
}

func driverOrigin(device string) string {
	return "driver:" + device
}
