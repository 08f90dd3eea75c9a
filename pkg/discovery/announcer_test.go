package discovery_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/discovery"
)

type mockAdvertiser struct {
	mock.Mock
}

func (m *mockAdvertiser) Advertise(ctx context.Context, info *discovery.ServerInfo) error {
	return m.Called(ctx, *info).Error(0)
}

func (m *mockAdvertiser) Update(info *discovery.ServerInfo) error {
	return m.Called(*info).Error(0)
}

func (m *mockAdvertiser) Stop() {
	m.Called()
}

func TestAnnouncerTracksDeviceCount(t *testing.T) {
	var devices atomic.Int32
	devices.Store(1)

	adv := &mockAdvertiser{}
	advertised := make(chan struct{})
	adv.On("Advertise", mock.Anything, discovery.ServerInfo{Instance: "obs", Port: 7624, Version: "1.7", Devices: 1}).
		Run(func(mock.Arguments) { close(advertised) }).Return(nil).Once()
	updated := make(chan struct{})
	adv.On("Update", discovery.ServerInfo{Instance: "obs", Port: 7624, Version: "1.7", Devices: 3}).
		Run(func(mock.Arguments) { close(updated) }).Return(nil).Once()
	adv.On("Stop").Return().Once()

	a := &discovery.Announcer{
		Advertiser: adv,
		Info:       discovery.ServerInfo{Instance: "obs", Port: 7624, Version: "1.7"},
		Devices:    func() int { return int(devices.Load()) },
		Interval:   10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-advertised
	devices.Store(3)
	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("no update after the device count changed")
	}

	cancel()
	require.NoError(t, <-done)
	adv.AssertExpectations(t)
}

func TestAnnouncerAdvertiseError(t *testing.T) {
	adv := &mockAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.Anything).Return(assert.AnError)

	a := &discovery.Announcer{Advertiser: adv, Devices: func() int { return 0 }}
	err := a.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	adv.AssertNotCalled(t, "Stop")
}

func TestFindAll(t *testing.T) {
	b := &fakeBrowser{services: []*discovery.Service{{Instance: "a"}, {Instance: "b"}}}
	got, err := discovery.FindAll(context.Background(), b, time.Second)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

type fakeBrowser struct {
	services []*discovery.Service
}

func (f *fakeBrowser) Browse(ctx context.Context) (<-chan *discovery.Service, error) {
	ch := make(chan *discovery.Service, len(f.services))
	for _, s := range f.services {
		ch <- s
	}
	close(ch)
	return ch, nil
}

func (f *fakeBrowser) Stop() {}
