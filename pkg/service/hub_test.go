package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/registry"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

func TestHubConfigValidate(t *testing.T) {
	assert.NoError(t, service.DefaultHubConfig().Validate())

	bad := []service.HubConfig{
		{SweepInterval: -time.Second},
		{NewRate: -1},
		{NewBurst: -1},
		{HandshakeTimeout: -time.Second},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Validate(), service.ErrInvalidConfig)
		_, err := service.NewHub(c)
		assert.ErrorIs(t, err, service.ErrInvalidConfig)
	}
}

func TestNoTrafficBeforeGetProperties(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	conn := connect(t, hub, "client")

	s := hub.Session("client")
	require.NotNil(t, s)
	assert.Equal(t, service.SessionAwaitingFilters, s.State())

	hub.Message("", "hello")
	hub.HandleMessage(conn, connectSwitch("CCD Simulator", model.SwitchOn, model.SwitchOff))

	// The request is processed; its broadcast reaches nobody.
	for _, m := range conn.take() {
		assert.NotEqual(t, "setSwitchVector", m.Element(), "unsubscribed peer received %s", m.Element())
	}
}

func TestGetPropertiesCatchUpAndScoping(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	registerBasic(t, hub, "Focuser Simulator")

	conn := connect(t, hub, "client")
	hub.HandleMessage(conn, &wire.GetProperties{Version: wire.ProtocolVersion, Device: "CCD Simulator"})

	got := conn.take()
	assert.Equal(t, []string{"defSwitchVector CONNECTION", "defTextVector DRIVER_INFO"}, names(got))
	for _, m := range got {
		assert.Equal(t, "CCD Simulator", m.DeviceName())
	}
	assert.Equal(t, service.SessionActive, hub.Session("client").State())

	// Updates on other devices stay out of scope.
	_, err := hub.Update(setConnection("Focuser Simulator", model.StateBusy))
	require.NoError(t, err)
	assert.Empty(t, conn.take())

	_, err = hub.Update(setConnection("CCD Simulator", model.StateBusy))
	require.NoError(t, err)
	assert.Equal(t, []string{"setSwitchVector CONNECTION"}, names(conn.take()))

	// A property-scoped request only catches up that property.
	named := connect(t, hub, "named")
	hub.HandleMessage(named, &wire.GetProperties{Device: "Focuser Simulator", Name: driver.DriverInfo})
	assert.Equal(t, []string{"defTextVector DRIVER_INFO"}, names(named.take()))
}

func TestAcceptedNewCommitsAndBroadcasts(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	d := registerBasic(t, hub, "Telescope Simulator")
	client := subscribe(t, hub, "client", "")
	observer := subscribe(t, hub, "observer", "Telescope Simulator")

	hub.HandleMessage(client, connectSwitch("Telescope Simulator", model.SwitchOn, model.SwitchOff))

	for _, conn := range []*fakeConn{client, observer} {
		got := conn.take()
		require.Len(t, got, 1)
		set, ok := got[0].(*wire.SetVector)
		require.True(t, ok, "got %T", got[0])
		assert.Equal(t, model.StateOk, set.Vector.State)
		on, _ := set.Vector.Element(driver.Connect)
		off, _ := set.Vector.Element(driver.Disconnect)
		assert.Equal(t, model.SwitchOn, on.Switch)
		assert.Equal(t, model.SwitchOff, off.Switch)
	}
	assert.True(t, d.Connected())

	snap, err := hub.Registry().Lookup("Telescope Simulator", driver.Connection)
	require.NoError(t, err)
	assert.Equal(t, model.StateOk, snap.Vector.State)

	// The same request again changes nothing; the submitter still hears back.
	hub.HandleMessage(client, connectSwitch("Telescope Simulator", model.SwitchOn, model.SwitchOff))
	assert.Equal(t, []string{"setSwitchVector CONNECTION"}, names(client.take()))
	assert.Empty(t, observer.take())
}

func TestRejectedNewEchoesAlertToSubmitter(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	d := registerBasic(t, hub, "Telescope Simulator")
	client := subscribe(t, hub, "client", "")
	observer := subscribe(t, hub, "observer", "")

	tests := []struct {
		name string
		msg  *wire.NewVector
		err  error
	}{
		{"two on for OneOfMany", connectSwitch("Telescope Simulator", model.SwitchOn, model.SwitchOn), model.ErrRuleViolation},
		{"none on for OneOfMany", connectSwitch("Telescope Simulator", model.SwitchOff, model.SwitchOff), model.ErrRuleViolation},
		{"read-only", &wire.NewVector{Vector: model.Vector{
			Kind: model.KindText, Device: "Telescope Simulator", Name: driver.DriverInfo,
			Elements: []model.Element{{Name: driver.DriverName, Text: "x"}},
		}}, model.ErrReadOnly},
		{"unknown element", &wire.NewVector{Vector: model.Vector{
			Kind: model.KindSwitch, Device: "Telescope Simulator", Name: driver.Connection,
			Elements: []model.Element{{Name: "PARK", Switch: model.SwitchOn}},
		}}, model.ErrUnknownElement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.HandleMessage(client, tt.msg)

			got := client.take()
			require.Len(t, got, 2)
			set, ok := got[0].(*wire.SetVector)
			require.True(t, ok, "got %T", got[0])
			assert.Equal(t, model.StateAlert, set.Vector.State)
			assert.Contains(t, set.Vector.Message, tt.err.Error())
			msg, ok := got[1].(*wire.PlainMessage)
			require.True(t, ok, "got %T", got[1])
			assert.Equal(t, "Telescope Simulator", msg.Device)
			assert.Equal(t, set.Vector.Message, msg.Text)
			assert.Empty(t, observer.take())
		})
	}

	snap, err := hub.Registry().Lookup("Telescope Simulator", driver.Connection)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, snap.Vector.State)
	assert.False(t, d.Connected())
}

func TestNewForUnknownPropertyIsAnsweredWithMessage(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	client := subscribe(t, hub, "client", "")

	hub.HandleMessage(client, connectSwitch("Nowhere", model.SwitchOn, model.SwitchOff))
	got := client.take()
	require.Len(t, got, 1)
	msg, ok := got[0].(*wire.PlainMessage)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, "Nowhere", msg.Device)
	assert.Contains(t, msg.Text, "unknown device")
}

func TestRemoteDriverFlow(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	client := subscribe(t, hub, "client", "")
	drv := connect(t, hub, "mount-driver")

	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateIdle, 10)})
	assert.Equal(t, service.RoleDriver, hub.Session("mount-driver").Role())
	assert.Equal(t, service.SessionActive, hub.Session("mount-driver").State())
	owner, ok := hub.Owner("Mount")
	assert.True(t, ok)
	assert.Equal(t, "mount-driver", owner)
	assert.Equal(t, []string{"defNumberVector EQUATORIAL_EOD_COORD"}, names(client.take()))

	// A valid request is forwarded to the owning driver unchanged in state.
	hub.HandleMessage(client, &wire.NewVector{Vector: model.Vector{
		Kind: model.KindNumber, Device: "Mount", Name: "EQUATORIAL_EOD_COORD",
		Elements: []model.Element{{Name: "RA", Number: model.Number{Value: 12}}},
	}})
	got := drv.take()
	require.Len(t, got, 1)
	nv, ok := got[0].(*wire.NewVector)
	require.True(t, ok, "got %T", got[0])
	ra, _ := nv.Vector.Element("RA")
	assert.Equal(t, 12.0, ra.Number.Value)
	assert.Empty(t, client.take())

	// Out of range never reaches the driver.
	hub.HandleMessage(client, &wire.NewVector{Vector: model.Vector{
		Kind: model.KindNumber, Device: "Mount", Name: "EQUATORIAL_EOD_COORD",
		Elements: []model.Element{{Name: "RA", Number: model.Number{Value: 30}}},
	}})
	assert.Empty(t, drv.take())
	got = client.take()
	require.Len(t, got, 2)
	assert.Equal(t, model.StateAlert, got[0].(*wire.SetVector).Vector.State)
	assert.Contains(t, got[1].(*wire.PlainMessage).Text, "out of range")

	// The driver answers; identical sets are published once.
	hub.HandleMessage(drv, &wire.SetVector{Vector: mountCoords(model.StateBusy, 12)})
	hub.HandleMessage(drv, &wire.SetVector{Vector: mountCoords(model.StateBusy, 12)})
	assert.Equal(t, []string{"setNumberVector EQUATORIAL_EOD_COORD"}, names(client.take()))

	// Driver messages reach subscribers of the device.
	hub.HandleMessage(drv, &wire.PlainMessage{Device: "Mount", Text: "slewing"})
	got = client.take()
	require.Len(t, got, 1)
	assert.Equal(t, "slewing", got[0].(*wire.PlainMessage).Text)
}

func TestOwnershipEnforced(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	first := connect(t, hub, "first")
	second := connect(t, hub, "second")

	hub.HandleMessage(first, &wire.DefVector{Vector: mountCoords(model.StateIdle, 1)})
	assert.Empty(t, first.take())

	hub.HandleMessage(second, &wire.DefVector{Vector: mountCoords(model.StateIdle, 2)})
	hub.HandleMessage(second, &wire.SetVector{Vector: mountCoords(model.StateOk, 3)})
	hub.HandleMessage(second, &wire.DelProperty{Device: "Mount"})
	hub.HandleMessage(second, &wire.DefVector{Vector: driver.ConnectionVector("CCD Simulator")})

	got := second.take()
	require.Len(t, got, 4)
	for _, m := range got {
		msg, ok := m.(*wire.PlainMessage)
		require.True(t, ok, "got %T", m)
		assert.Contains(t, msg.Text, "own")
	}

	snap, err := hub.Registry().Lookup("Mount", "EQUATORIAL_EOD_COORD")
	require.NoError(t, err)
	ra, _ := snap.Vector.Element("RA")
	assert.Equal(t, 1.0, ra.Number.Value)

	assert.ErrorIs(t, hub.RegisterDriver(driver.New(driver.Config{Device: "Mount"})), service.ErrDeviceOwned)
	assert.ErrorIs(t, hub.RegisterDriver(driver.New(driver.Config{Device: "CCD Simulator"})), service.ErrDuplicateDriver)
}

func TestDriverDisconnectDeletesDevices(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	client := subscribe(t, hub, "client", "")
	drv := connect(t, hub, "mount-driver")

	hub.HandleMessage(drv, &wire.DefVector{Vector: driver.ConnectionVector("Mount")})
	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateIdle, 10)})
	client.take()

	hub.HandleDisconnect(drv)

	got := client.take()
	assert.Equal(t, []string{
		"delProperty CONNECTION",
		"delProperty EQUATORIAL_EOD_COORD",
		"delProperty",
	}, names(got))
	assert.Equal(t, "driver disconnected", got[2].(*wire.DelProperty).Message)
	assert.False(t, hub.Registry().Has("Mount"))
	assert.Nil(t, hub.Session("mount-driver"))
	_, owned := hub.Owner("Mount")
	assert.False(t, owned)

	// The device name is free again.
	next := connect(t, hub, "next-driver")
	hub.HandleMessage(next, &wire.DefVector{Vector: mountCoords(model.StateIdle, 5)})
	assert.Empty(t, next.take())
	owner, _ := hub.Owner("Mount")
	assert.Equal(t, "next-driver", owner)
}

func TestDeletedPropertyIsNotResurrectedByCatchUp(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	drv := connect(t, hub, "driver")
	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateIdle, 10)})
	hub.HandleMessage(drv, &wire.DefVector{Vector: driver.ConnectionVector("Mount")})

	client := subscribe(t, hub, "client", "Mount")
	hub.HandleMessage(drv, &wire.DelProperty{Device: "Mount", Name: "EQUATORIAL_EOD_COORD"})
	assert.Equal(t, []string{"delProperty EQUATORIAL_EOD_COORD"}, names(client.take()))

	// A second getProperties only resends what still exists.
	hub.HandleMessage(client, &wire.GetProperties{Device: "Mount"})
	assert.Empty(t, client.take(), "already-sent definitions are not repeated")

	late := connect(t, hub, "late")
	hub.HandleMessage(late, &wire.GetProperties{Device: "Mount"})
	assert.Equal(t, []string{"defSwitchVector CONNECTION"}, names(late.take()))
}

func TestActiveSnoopLinks(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "Mount")
	guider := connect(t, hub, "guider")

	hub.HandleMessage(guider, &wire.DefVector{Vector: model.Vector{
		Kind: model.KindText, Device: "Guider", Name: "ACTIVE_DEVICES", Perm: model.PermRW,
		Elements: []model.Element{{Name: "ACTIVE_TELESCOPE", Text: "Mount"}},
	}})
	assert.Equal(t, []string{"defSwitchVector CONNECTION", "defTextVector DRIVER_INFO"}, names(guider.take()))

	_, err := hub.Update(setConnection("Mount", model.StateBusy))
	require.NoError(t, err)
	assert.Equal(t, []string{"setSwitchVector CONNECTION"}, names(guider.take()))

	// Retargeting the link drops the snoop.
	hub.HandleMessage(guider, &wire.SetVector{Vector: model.Vector{
		Kind: model.KindText, Device: "Guider", Name: "ACTIVE_DEVICES", Perm: model.PermRW,
		Elements: []model.Element{{Name: "ACTIVE_TELESCOPE", Text: ""}},
	}})
	_, err = hub.Update(setConnection("Mount", model.StateOk))
	require.NoError(t, err)
	assert.Empty(t, guider.take())
}

func TestSnoopDeliveriesAreCaptured(t *testing.T) {
	recorder := &eventRecorder{}
	hub, _ := newTestHub(t, func(c *service.HubConfig) { c.ProtocolLogger = recorder })
	registerBasic(t, hub, "Mount")
	client := subscribe(t, hub, "client", "Mount")
	guider := connect(t, hub, "guider")
	hub.HandleMessage(guider, &wire.DefVector{Vector: model.Vector{
		Kind: model.KindText, Device: "Guider", Name: "ACTIVE_DEVICES", Perm: model.PermRW,
		Elements: []model.Element{{Name: "ACTIVE_TELESCOPE", Text: "Mount"}},
	}})
	client.take()
	guider.take()
	recorder.take()

	_, err := hub.Update(setConnection("Mount", model.StateBusy))
	require.NoError(t, err)
	assert.Len(t, client.take(), 1)
	assert.Len(t, guider.take(), 1)

	snoop := map[string]bool{}
	for _, e := range recorder.take() {
		require.NotNil(t, e.Message)
		assert.Equal(t, log.LayerService, e.Layer)
		assert.Equal(t, log.DirectionOut, e.Direction)
		assert.Equal(t, "Mount", e.Device)
		assert.Equal(t, driver.Connection, e.Message.Name)
		assert.NotZero(t, e.Message.Revision)
		snoop[e.ConnectionID] = e.Message.Snoop
	}
	assert.Equal(t, map[string]bool{"client": false, "guider": true}, snoop)
}

func TestExplicitSnoop(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "Mount")
	guider := connect(t, hub, "guider")
	hub.HandleMessage(guider, &wire.DefVector{Vector: driver.ConnectionVector("Guider")})

	hub.HandleMessage(guider, &wire.GetProperties{Device: "Mount", Name: driver.Connection})
	assert.Equal(t, []string{"defSwitchVector CONNECTION"}, names(guider.take()))
	assert.True(t, hub.Router().Snoops("guider", "Mount", driver.Connection))
	assert.False(t, hub.Router().HasFilters("guider"))
}

func TestRateLimit(t *testing.T) {
	hub, _ := newTestHub(t, func(c *service.HubConfig) {
		c.NewRate = 0.001
		c.NewBurst = 1
	})
	registerBasic(t, hub, "CCD Simulator")
	client := subscribe(t, hub, "client", "")

	hub.HandleMessage(client, connectSwitch("CCD Simulator", model.SwitchOn, model.SwitchOff))
	assert.Equal(t, []string{"setSwitchVector CONNECTION"}, names(client.take()))

	hub.HandleMessage(client, connectSwitch("CCD Simulator", model.SwitchOff, model.SwitchOn))
	got := client.take()
	require.Len(t, got, 1)
	msg, ok := got[0].(*wire.PlainMessage)
	require.True(t, ok, "got %T", got[0])
	assert.Contains(t, msg.Text, service.ErrRateLimited.Error())
}

func TestEnableBLOB(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	client := subscribe(t, hub, "client", "")

	hub.HandleMessage(client, &wire.EnableBLOB{Device: "Nowhere", Mode: model.BLOBAlso})
	got := client.take()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].(*wire.PlainMessage).Text, "unknown device")

	hub.HandleMessage(client, &wire.EnableBLOB{Device: "CCD Simulator", Mode: model.BLOBOnly})
	assert.Empty(t, client.take())
	assert.Equal(t, model.BLOBOnly, hub.Router().BLOBMode("client", "CCD Simulator", "CCD1"))
}

func TestEnableBLOBUnknownPropertyIsAnsweredWithMessage(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	client := subscribe(t, hub, "client", "")

	hub.HandleMessage(client, &wire.EnableBLOB{Device: "CCD Simulator", Name: "NO_SUCH_PROP", Mode: model.BLOBAlso})
	got := client.take()
	require.Len(t, got, 1)
	msg, ok := got[0].(*wire.PlainMessage)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, "CCD Simulator", msg.Device)
	assert.Contains(t, msg.Text, registry.ErrUnknownProperty.Error())
	assert.Equal(t, model.BLOBNever, hub.Router().BLOBMode("client", "CCD Simulator", "NO_SUCH_PROP"))

	// A known property is accepted silently.
	hub.HandleMessage(client, &wire.EnableBLOB{Device: "CCD Simulator", Name: driver.Connection, Mode: model.BLOBAlso})
	assert.Empty(t, client.take())
	assert.Equal(t, model.BLOBAlso, hub.Router().BLOBMode("client", "CCD Simulator", driver.Connection))
}

func TestSweepExpiresTimedOutVectors(t *testing.T) {
	hub, clock := newTestHub(t, nil)
	client := subscribe(t, hub, "client", "")
	drv := connect(t, hub, "driver")
	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateBusy, 10)})
	client.take()

	clock.Advance(4 * time.Second)
	assert.Equal(t, 0, hub.Sweep())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, hub.Sweep())
	got := client.take()
	require.Len(t, got, 1)
	set := got[0].(*wire.SetVector)
	assert.Equal(t, model.StateAlert, set.Vector.State)
	assert.Equal(t, "timed out", set.Vector.Message)

	// Once expired, a vector stays quiet until refreshed.
	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, hub.Sweep())
}

func TestBusyOnlyExpiry(t *testing.T) {
	hub, clock := newTestHub(t, func(c *service.HubConfig) { c.BusyOnlyExpiry = true })
	drv := connect(t, hub, "driver")
	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateIdle, 10)})

	clock.Advance(time.Minute)
	assert.Equal(t, 0, hub.Sweep())
}

func TestBasicDevicesDoNotExpireByDefault(t *testing.T) {
	hub, clock := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	client := subscribe(t, hub, "client", "")

	clock.Advance(time.Hour)
	assert.Equal(t, 0, hub.Sweep())
	assert.Empty(t, client.take())

	snap, err := hub.Registry().Lookup("CCD Simulator", driver.Connection)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, snap.Vector.State)
}

func TestHandshakeTimeoutClosesSilentPeers(t *testing.T) {
	hub, clock := newTestHub(t, func(c *service.HubConfig) { c.HandshakeTimeout = 5 * time.Second })
	silent := connect(t, hub, "silent")
	active := subscribe(t, hub, "active", "")

	clock.Advance(10 * time.Second)
	hub.Sweep()
	assert.True(t, silent.isClosed())
	assert.False(t, active.isClosed())
}

func TestDecodeErrorReply(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	client := connect(t, hub, "client")

	hub.HandleError(client, &wire.DecodeError{Fragment: []byte("<bogus/>"), Err: wire.ErrUnknownElement})
	got := client.take()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].(*wire.PlainMessage).Text, "malformed XML")

	hub.HandleError(client, errors.New("connection reset"))
	assert.Empty(t, client.take())
}

func TestSessionsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub, clock := newTestHub(t, func(c *service.HubConfig) { c.Registerer = reg })
	registerBasic(t, hub, "CCD Simulator")

	subscribe(t, hub, "a", "")
	clock.Advance(time.Second)
	drv := connect(t, hub, "b")
	hub.HandleMessage(drv, &wire.DefVector{Vector: mountCoords(model.StateIdle, 1)})

	infos := hub.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, service.RoleClient, infos[0].Role)
	assert.Equal(t, "b", infos[1].ID)
	assert.Equal(t, service.RoleDriver, infos[1].Role)
	assert.Equal(t, []string{"Mount"}, infos[1].Devices)
	assert.Equal(t, []string{"CCD Simulator"}, hub.Drivers())

	n, err := testutil.GatherAndCount(reg, "indi_hub_sessions", "indi_registry_changes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one gauge plus the def series")

	hub.HandleDisconnect(drv)
	assert.Len(t, hub.Sessions(), 1)
	assert.NoError(t, hub.Start(t.Context()))
	assert.ErrorIs(t, hub.Start(t.Context()), service.ErrAlreadyStarted)
	hub.Stop()
}

func TestUnregisterDriver(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	client := subscribe(t, hub, "client", "")

	assert.True(t, hub.UnregisterDriver("CCD Simulator"))
	assert.False(t, hub.UnregisterDriver("CCD Simulator"))
	got := names(client.take())
	require.NotEmpty(t, got)
	assert.Equal(t, "delProperty", got[len(got)-1])

	_, err := hub.Update(setConnection("CCD Simulator", model.StateOk))
	assert.ErrorIs(t, err, service.ErrNoDriver)
}

func setConnection(device string, state model.State) model.Vector {
	v := driver.ConnectionVector(device)
	v.State = state
	return v
}

func TestIncompatibleVersionIsWarned(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	registerBasic(t, hub, "CCD Simulator")
	client := connect(t, hub, "client")

	hub.HandleMessage(client, &wire.GetProperties{Version: "2.0", Device: "CCD Simulator"})
	got := client.take()
	require.Len(t, got, 3)
	assert.Contains(t, got[0].(*wire.PlainMessage).Text, "incompatible protocol version")
	assert.Equal(t, []string{"defSwitchVector CONNECTION", "defTextVector DRIVER_INFO"}, names(got[1:]))
}
