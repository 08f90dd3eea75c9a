package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Name() string {
	return m.Called().String(0)
}

func (m *mockDriver) Properties() []model.Vector {
	return m.Called().Get(0).([]model.Vector)
}

func (m *mockDriver) HandleNew(ctx context.Context, proposed model.Vector) (model.Vector, error) {
	args := m.Called(ctx, proposed)
	return args.Get(0).(model.Vector), args.Error(1)
}

func TestDriverErrorEchoesAlert(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	d := &mockDriver{}
	d.On("Name").Return("Focuser")
	d.On("Properties").Return([]model.Vector{driver.ConnectionVector("")})
	d.On("HandleNew", mock.Anything, mock.MatchedBy(func(v model.Vector) bool {
		on, _ := v.Element(driver.Connect)
		return v.Name == driver.Connection && on.Switch == model.SwitchOn
	})).Return(model.Vector{}, assert.AnError).Once()
	require.NoError(t, hub.RegisterDriver(d))

	client := subscribe(t, hub, "client", "Focuser")
	hub.HandleMessage(client, connectSwitch("Focuser", model.SwitchOn, model.SwitchOff))

	got := client.take()
	require.Len(t, got, 2)
	set := got[0].(*wire.SetVector)
	assert.Equal(t, model.StateAlert, set.Vector.State)
	assert.Equal(t, assert.AnError.Error(), set.Vector.Message)
	assert.Equal(t, assert.AnError.Error(), got[1].(*wire.PlainMessage).Text)
	off, _ := set.Vector.Element(driver.Connect)
	assert.Equal(t, model.SwitchOff, off.Switch, "the echo carries the unchanged state")
	d.AssertExpectations(t)
}

func TestDriverResultMayDiffer(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	d := &mockDriver{}
	d.On("Name").Return("Focuser")
	d.On("Properties").Return([]model.Vector{driver.ConnectionVector("Focuser")})
	d.On("HandleNew", mock.Anything, mock.Anything).Return(func() model.Vector {
		v := driver.ConnectionVector("Focuser")
		v.State = model.StateBusy
		v.Message = "connecting"
		return v
	}(), nil)
	require.NoError(t, hub.RegisterDriver(d))

	client := subscribe(t, hub, "client", "")
	hub.HandleMessage(client, connectSwitch("Focuser", model.SwitchOn, model.SwitchOff))

	got := client.take()
	require.Len(t, got, 1)
	set := got[0].(*wire.SetVector)
	assert.Equal(t, model.StateBusy, set.Vector.State)
	assert.Equal(t, "connecting", set.Vector.Message)
}
