package indi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/webapi"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

const camera = "CCD Simulator"

func temperatureVector() model.Vector {
	return model.Vector{
		Kind:    model.KindNumber,
		Device:  camera,
		Name:    "CCD_TEMPERATURE",
		Label:   "Temperature",
		Group:   "Main Control",
		Perm:    model.PermRW,
		State:   model.StateIdle,
		Timeout: 60,
		Elements: []model.Element{{
			Name:   "CCD_TEMPERATURE_VALUE",
			Label:  "Temperature (C)",
			Number: model.Number{Value: 20, Format: "%5.2f", Min: -50, Max: 50, Step: 0},
		}},
	}
}

// runCamera plays a remote driver: it defines its vectors and answers every
// new request with a set in state Ok.
func runCamera(t *testing.T, conn *transport.ClientConn) {
	t.Helper()
	require.NoError(t, conn.Send(&wire.DefVector{Vector: driver.ConnectionVector(camera)}))
	require.NoError(t, conn.Send(&wire.DefVector{Vector: temperatureVector()}))

	go func() {
		for {
			msg, err := conn.Receive(0)
			if err != nil {
				return
			}
			nv, ok := msg.(*wire.NewVector)
			if !ok {
				continue
			}
			v := nv.Vector
			v.State = model.StateOk
			if err := conn.Send(&wire.SetVector{Vector: v}); err != nil {
				return
			}
		}
	}()
}

func TestFullStack(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "session.cbor")
	fl, err := log.NewFileLogger(capture)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	hubConfig := service.DefaultHubConfig()
	hubConfig.Registerer = reg
	hubConfig.ProtocolLogger = fl
	hub, err := service.NewHub(hubConfig)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop()

	srv, err := transport.NewServer(hub.Bind(transport.ServerConfig{Address: "127.0.0.1:0", Logger: fl}))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()

	drv, err := transport.NewClient(transport.ClientConfig{}).Connect(dialCtx, srv.Addr().String())
	require.NoError(t, err)
	runCamera(t, drv)

	c, err := client.Dial(dialCtx, srv.Addr().String(), client.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, c.GetProperties("", ""))

	_, err = c.WaitFor(dialCtx, camera, "CCD_TEMPERATURE")
	require.NoError(t, err)
	owner, ok := hub.Owner(camera)
	require.True(t, ok)
	var ownerDevices []string
	for _, info := range hub.Sessions() {
		if info.ID == owner {
			ownerDevices = info.Devices
		}
	}
	assert.Equal(t, []string{camera}, ownerDevices)

	// A new request travels client -> hub -> driver and the set comes back.
	require.NoError(t, c.SendNew(model.Vector{
		Kind: model.KindNumber, Device: camera, Name: "CCD_TEMPERATURE",
		Elements: []model.Element{{Name: "CCD_TEMPERATURE_VALUE", Number: model.Number{Value: -10}}},
	}))
	require.Eventually(t, func() bool {
		v, ok := c.State().Vector(camera, "CCD_TEMPERATURE")
		return ok && v.State == model.StateOk && v.Elements[0].Number.Value == -10
	}, 2*time.Second, 5*time.Millisecond)

	// The HTTP API sees the same registry.
	api, err := webapi.NewServer(webapi.Config{Hub: hub, Gatherer: reg})
	require.NoError(t, err)
	ts := httptest.NewServer(api.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/devices/CCD%20Simulator/CCD_TEMPERATURE")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view webapi.VectorView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.Len(t, view.Elements, 1)
	assert.Equal(t, "Ok", view.State)
	assert.Equal(t, -10.0, view.Elements[0].Value)

	// Dropping the driver removes the device from the client mirror.
	require.NoError(t, drv.Close())
	require.Eventually(t, func() bool {
		return len(c.State().Devices()) == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, srv.Stop())
	require.NoError(t, fl.Close())

	r, err := log.NewFilteredReader(capture, log.Filter{Property: "CCD_TEMPERATURE", Element: "newNumberVector"})
	require.NoError(t, err)
	defer r.Close()
	events, err := r.All()
	require.NoError(t, err)
	assert.NotEmpty(t, events, "capture should contain the new request")
}
