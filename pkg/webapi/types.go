package webapi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/registry"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// ErrInvalidConfig indicates an unusable Config.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults.
const (
	DefaultOutboxSize   = 256
	DefaultWriteTimeout = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	// Hub serves the API. Required.
	Hub *service.Hub

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// OutboxSize is the per-WebSocket outbound queue length (default: 256).
	OutboxSize int

	// MaxMessageSize bounds one buffered INDI element (default: 1 MiB).
	MaxMessageSize int

	// WriteTimeout bounds each WebSocket write (default: 10s).
	WriteTimeout time.Duration

	// Version is reported by /api/v1/health.
	Version string

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// ProtocolLogger captures WebSocket traffic (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration for hub with default limits.
func DefaultConfig(hub *service.Hub) Config {
	return Config{
		Hub:            hub,
		OutboxSize:     DefaultOutboxSize,
		MaxMessageSize: wire.DefaultMaxElementSize,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Hub == nil {
		return fmt.Errorf("%w: hub is required", ErrInvalidConfig)
	}
	if c.OutboxSize < 0 || c.MaxMessageSize < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	return nil
}

// HealthResponse is the body of /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Protocol string `json:"protocol"`
}

// SessionView describes one connected session.
type SessionView struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	State   string    `json:"state"`
	Devices []string  `json:"devices,omitempty"`
	Since   time.Time `json:"since"`
}

// DeviceView summarizes one device.
type DeviceView struct {
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
	Properties int    `json:"properties"`
}

// VectorView is the JSON form of a stored vector. BLOB payloads are
// reported by size only.
type VectorView struct {
	Device    string        `json:"device"`
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Label     string        `json:"label,omitempty"`
	Group     string        `json:"group,omitempty"`
	Perm      string        `json:"perm,omitempty"`
	State     string        `json:"state"`
	Rule      string        `json:"rule,omitempty"`
	Timeout   float64       `json:"timeout,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Revision  uint64        `json:"revision"`
	Expired   bool          `json:"expired,omitempty"`
	Elements  []ElementView `json:"elements"`
}

// ElementView is the JSON form of one element.
type ElementView struct {
	Name      string  `json:"name"`
	Label     string  `json:"label,omitempty"`
	Value     any     `json:"value"`
	Formatted string  `json:"formatted,omitempty"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
	Step      float64 `json:"step,omitempty"`
	Format    string  `json:"format,omitempty"`
	Size      int     `json:"size,omitempty"`
}

// MessageRequest is the body of POST /api/v1/messages.
type MessageRequest struct {
	Device string `json:"device,omitempty"`
	Text   string `json:"text"`
}

// MessageResponse reports how many sessions received a message.
type MessageResponse struct {
	Delivered int `json:"delivered"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func sessionView(info service.SessionInfo) SessionView {
	return SessionView{
		ID:      info.ID,
		Role:    info.Role.String(),
		State:   info.State.String(),
		Devices: info.Devices,
		Since:   info.Since,
	}
}

func vectorView(s registry.Snapshot) VectorView {
	v := s.Vector
	out := VectorView{
		Device:    v.Device,
		Name:      v.Name,
		Kind:      v.Kind.String(),
		Label:     v.Label,
		Group:     v.Group,
		State:     v.State.String(),
		Timeout:   v.Timeout,
		Timestamp: v.Timestamp,
		Revision:  s.Revision,
		Expired:   s.Expired,
		Elements:  make([]ElementView, len(v.Elements)),
	}
	if v.Kind != model.KindLight {
		out.Perm = v.Perm.String()
	}
	if v.Kind == model.KindSwitch {
		out.Rule = v.Rule.String()
	}
	for i, el := range v.Elements {
		ev := ElementView{Name: el.Name, Label: el.Label}
		switch v.Kind {
		case model.KindSwitch:
			ev.Value = el.Switch.String()
		case model.KindText:
			ev.Value = el.Text
		case model.KindLight:
			ev.Value = el.Light.String()
		case model.KindNumber:
			ev.Value = el.Number.Value
			ev.Formatted = model.FormatNumber(el.Number.Value, el.Number.Format)
			ev.Format = el.Number.Format
			ev.Min, ev.Max, ev.Step = el.Number.Min, el.Number.Max, el.Number.Step
		case model.KindBLOB:
			ev.Value = nil
			ev.Format = el.BLOB.Format
			ev.Size = el.BLOB.Size
		}
		out.Elements[i] = ev
	}
	return out
}
