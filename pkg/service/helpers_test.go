package service_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

var _ service.Driver = (*driver.Basic)(nil)

// fakeConn records everything sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   []wire.Message
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// take returns and clears the recorded messages.
func (c *fakeConn) take() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	return out
}

// eventRecorder is a protocol logger that keeps routed message events.
type eventRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *eventRecorder) Log(e log.Event) {
	if e.Category != log.CategoryMessage {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) take() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// manualClock is a settable clock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHub(t *testing.T, mutate func(*service.HubConfig)) (*service.Hub, *manualClock) {
	t.Helper()
	clock := newManualClock()
	config := service.DefaultHubConfig()
	config.Clock = clock.Now
	if mutate != nil {
		mutate(&config)
	}
	hub, err := service.NewHub(config)
	require.NoError(t, err)
	return hub, clock
}

func connect(t *testing.T, hub *service.Hub, id string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: id}
	_, err := hub.HandleConnect(conn)
	require.NoError(t, err)
	return conn
}

// subscribe connects a client and drains its catch-up.
func subscribe(t *testing.T, hub *service.Hub, id, device string) *fakeConn {
	t.Helper()
	conn := connect(t, hub, id)
	hub.HandleMessage(conn, &wire.GetProperties{Version: wire.ProtocolVersion, Device: device})
	conn.take()
	return conn
}

func registerBasic(t *testing.T, hub *service.Hub, device string) *driver.Basic {
	t.Helper()
	d := driver.New(driver.Config{Device: device})
	require.NoError(t, hub.RegisterDriver(d))
	return d
}

func connectSwitch(device string, connect, disconnect model.SwitchState) *wire.NewVector {
	return &wire.NewVector{Vector: model.Vector{
		Kind: model.KindSwitch, Device: device, Name: driver.Connection,
		Elements: []model.Element{
			{Name: driver.Connect, Switch: connect},
			{Name: driver.Disconnect, Switch: disconnect},
		},
	}}
}

func mountCoords(state model.State, ra float64) model.Vector {
	return model.Vector{
		Kind: model.KindNumber, Device: "Mount", Name: "EQUATORIAL_EOD_COORD",
		Perm: model.PermRW, State: state, Timeout: 5,
		Elements: []model.Element{
			{Name: "RA", Number: model.Number{Value: ra, Format: "%010.6m", Min: 0, Max: 24}},
			{Name: "DEC", Number: model.Number{Value: 45, Format: "%010.6m", Min: -90, Max: 90}},
		},
	}
}

func names(msgs []wire.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = strings.TrimSpace(m.Element() + " " + wire.PropertyName(m))
	}
	return out
}
