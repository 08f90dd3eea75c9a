package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(99).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerService.String(), "SERVICE"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{Category(1).String(), "UNKNOWN"},
		{RoleServer.String(), "SERVER"},
		{RoleClient.String(), "CLIENT"},
		{RoleDriver.String(), "DRIVER"},
		{StateEntityConnection.String(), "CONNECTION"},
		{StateEntitySession.String(), "SESSION"},
		{StateEntityProperty.String(), "PROPERTY"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2025, 2, 21, 22, 5, 32, 123456789, time.UTC)
	event := Event{
		Timestamp:    ts,
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		LocalRole:    RoleServer,
		RemoteAddr:   "127.0.0.1:50000",
		Device:       "CCD Simulator",
		Message: &MessageEvent{
			Element:  "setSwitchVector",
			Verb:     "set",
			Kind:     "Switch",
			Name:     "CONNECTION",
			State:    "Ok",
			Elements: 2,
			Revision: 42,
			Snoop:    true,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, ts)
	}
	if decoded.ConnectionID != "conn-1" || decoded.Device != "CCD Simulator" || decoded.LocalRole != RoleServer {
		t.Errorf("header mismatch: %+v", decoded)
	}
	if decoded.Message == nil || *decoded.Message != *event.Message {
		t.Errorf("Message = %+v, want %+v", decoded.Message, event.Message)
	}
}

func TestMessageEventOf(t *testing.T) {
	set := &wire.SetVector{Vector: model.Vector{
		Kind: model.KindNumber, Device: "Telescope", Name: "EQUATORIAL_EOD_COORD", State: model.StateBusy,
		Message:  "slewing",
		Elements: []model.Element{{Name: "RA"}, {Name: "DEC"}},
	}}
	ev := MessageEventOf(set)
	if ev.Element != "setNumberVector" || ev.Verb != "set" || ev.Kind != "Number" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Name != "EQUATORIAL_EOD_COORD" || ev.State != "Busy" || ev.Elements != 2 || ev.Text != "slewing" {
		t.Errorf("unexpected event %+v", ev)
	}

	ev = MessageEventOf(&wire.NewVector{Vector: model.Vector{Kind: model.KindSwitch, Device: "CCD", Name: "CONNECTION"}})
	if ev.State != "" {
		t.Errorf("new carries no state, got %q", ev.State)
	}

	ev = MessageEventOf(&wire.EnableBLOB{Device: "CCD", Mode: model.BLOBAlso})
	if ev.Element != "enableBLOB" || ev.Text != "Also" {
		t.Errorf("unexpected event %+v", ev)
	}

	full := NewMessageEvent("c1", DirectionIn, &wire.PlainMessage{Device: "CCD", Text: "hello"})
	if full.Device != "CCD" || full.Layer != LayerWire || full.Message.Text != "hello" {
		t.Errorf("unexpected event %+v", full)
	}
}

func writeCapture(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if logger.Events() != len(events) {
		t.Errorf("Events() = %d, want %d", logger.Events(), len(events))
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	logger.Log(Event{ConnectionID: "after-close"})
	return path
}

func TestNewDeliveryEvent(t *testing.T) {
	set := &wire.SetVector{Vector: model.Vector{
		Kind: model.KindSwitch, Device: "Mount", Name: "CONNECTION", State: model.StateOk,
		Elements: []model.Element{{Name: "CONNECT"}, {Name: "DISCONNECT"}},
	}}
	ev := NewDeliveryEvent("guider", set, 7, true)
	if ev.Layer != LayerService || ev.Direction != DirectionOut || ev.Category != CategoryMessage {
		t.Errorf("unexpected header %+v", ev)
	}
	if ev.ConnectionID != "guider" || ev.Device != "Mount" {
		t.Errorf("connection/device = %q/%q", ev.ConnectionID, ev.Device)
	}
	if ev.Message == nil || ev.Message.Revision != 7 || !ev.Message.Snoop || ev.Message.Name != "CONNECTION" {
		t.Errorf("unexpected message %+v", ev.Message)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := DirectionIn
	wireLayer := LayerWire
	events := []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionIn, Layer: LayerTransport, Frame: &FrameEvent{Size: 30, Data: []byte("<getProperties version=\"1.7\"/>")}},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionIn, Layer: LayerWire, Device: "CCD", Message: &MessageEvent{Element: "newSwitchVector", Name: "CONNECTION"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Direction: DirectionOut, Layer: LayerWire, Device: "CCD", Message: &MessageEvent{Element: "setSwitchVector", Name: "CONNECTION"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", Direction: DirectionOut, Layer: LayerService, Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntitySession, NewState: "Closing"}},
	}
	path := writeCapture(t, events)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "b"}, 2},
		{"direction", Filter{Direction: &in}, 2},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"device", Filter{Device: "CCD"}, 2},
		{"property", Filter{Property: "CONNECTION"}, 2},
		{"element", Filter{Element: "newSwitchVector"}, 1},
		{"combined", Filter{Direction: &in, Device: "CCD"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()

			got, err := r.All()
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Frame == nil || !bytes.HasPrefix(first.Frame.Data, []byte("<getProperties")) {
		t.Errorf("first event = %+v", first)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent"+FileExtension)
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c"})
			}
		}()
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	events, err := r.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(events) != 400 {
		t.Errorf("got %d events, want 400", len(events))
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b int
	m := NewMultiLogger(LoggerFunc(func(Event) { a++ }), nil, LoggerFunc(func(Event) { b++ }))
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	m.Log(Event{})
	m.Log(Event{})
	if a != 2 || b != 2 {
		t.Errorf("a=%d b=%d, want 2 each", a, b)
	}
	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Log(Event{
		ConnectionID: "conn-7",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Device:       "CCD",
		Message:      &MessageEvent{Element: "newSwitchVector", Name: "CONNECTION", Elements: 2},
	})
	adapter.Log(Event{
		ConnectionID: "conn-7",
		Layer:        LayerTransport,
		Category:     CategoryError,
		Error:        &ErrorEventData{Layer: LayerWire, Message: "unknown element", Context: "decode"},
	})

	out := buf.String()
	for _, want := range []string{"conn_id=conn-7", "device=CCD", "element=newSwitchVector", "property=CONNECTION", "elements=2", `error_msg="unknown element"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
