package main

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/service"
)

const (
	simDevice   = "Telescope Simulator"
	coordVector = "EQUATORIAL_EOD_COORD"

	// slew rates per simulation tick
	slewRA  = 0.25 // hours
	slewDec = 2.0  // degrees

	simInterval = time.Second
	slewTimeout = 60 // seconds
)

// telescope is a Basic driver whose coordinate vector slews toward the
// requested target instead of jumping to it.
type telescope struct {
	*driver.Basic
	hub *service.Hub

	mu       sync.Mutex
	ra, dec  float64
	targetRA float64
	targetDE float64
	slewing  bool
}

func newTelescopeSimulator(hub *service.Hub) (*telescope, error) {
	t := &telescope{hub: hub}
	t.Basic = driver.New(driver.Config{
		Device:     simDevice,
		DriverName: "Telescope Simulator",
		Exec:       "indiserver",
		Interface:  1,
		Vectors:    []model.Vector{coordinates(0, 0, model.StateIdle)},
	})
	if err := hub.RegisterDriver(t); err != nil {
		return nil, err
	}
	return t, nil
}

// coordinates builds the coordinate vector. Only a slew carries a timeout.
func coordinates(ra, dec float64, state model.State) model.Vector {
	v := model.Vector{
		Kind:   model.KindNumber,
		Device: simDevice,
		Name:   coordVector,
		Label:  "Eq. Coordinates",
		Group:  driver.MainControl,
		Perm:   model.PermRW,
		State:  state,
		Elements: []model.Element{
			{Name: "RA", Label: "RA (hh:mm:ss)", Number: model.Number{Value: ra, Format: "%010.6m", Min: 0, Max: 24}},
			{Name: "DEC", Label: "DEC (dd:mm:ss)", Number: model.Number{Value: dec, Format: "%010.6m", Min: -90, Max: 90}},
		},
	}
	if state == model.StateBusy {
		v.Timeout = slewTimeout
	}
	return v
}

// HandleNew starts a slew to the requested coordinates.
func (t *telescope) HandleNew(ctx context.Context, proposed model.Vector) (model.Vector, error) {
	if proposed.Name != coordVector {
		return t.Basic.HandleNew(ctx, proposed)
	}
	if err := ctx.Err(); err != nil {
		return model.Vector{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Connected() {
		v := coordinates(t.ra, t.dec, model.StateAlert)
		v.Message = "telescope is not connected"
		return v, nil
	}
	if el, ok := proposed.Element("RA"); ok {
		t.targetRA = el.Number.Value
	}
	if el, ok := proposed.Element("DEC"); ok {
		t.targetDE = el.Number.Value
	}
	t.slewing = true
	return coordinates(t.ra, t.dec, model.StateBusy), nil
}

// step advances the mount by one tick and reports the new position.
func (t *telescope) step() (model.Vector, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.slewing {
		return model.Vector{}, false
	}
	t.ra = approach(t.ra, t.targetRA, slewRA)
	t.dec = approach(t.dec, t.targetDE, slewDec)
	state := model.StateBusy
	if t.ra == t.targetRA && t.dec == t.targetDE {
		state = model.StateOk
		t.slewing = false
	}
	return coordinates(t.ra, t.dec, state), true
}

func approach(from, to, rate float64) float64 {
	d := to - from
	if math.Abs(d) <= rate {
		return to
	}
	return from + math.Copysign(rate, d)
}

func (t *telescope) run(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()
	logger.Info("[SIM] simulation started", "device", simDevice)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, ok := t.step()
			if !ok {
				continue
			}
			if _, err := t.hub.Update(v); err != nil {
				logger.Warn("[SIM] update failed", "error", err)
				continue
			}
			if v.State == model.StateOk {
				t.hub.Message(simDevice, "slew complete")
			}
		}
	}
}
