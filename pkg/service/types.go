package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/model"
)

// Service errors.
var (
	ErrAlreadyStarted   = errors.New("hub already started")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSessionClosed    = errors.New("session closed")
	ErrUnknownSession   = errors.New("unknown session")
	ErrDeviceOwned      = errors.New("device owned by another driver")
	ErrNotOwner         = errors.New("device not owned by this session")
	ErrNoDriver         = errors.New("device has no driver")
	ErrRateLimited      = errors.New("request rate exceeded")
	ErrDuplicateDriver  = errors.New("driver already registered")
	ErrDriverProperties = errors.New("driver property belongs to another device")
)

// SessionState is the lifecycle state of a session.
type SessionState uint8

const (
	// SessionConnected - peer accepted, not yet registered for routing.
	SessionConnected SessionState = iota

	// SessionAwaitingFilters - registered, no getProperties or def seen yet.
	SessionAwaitingFilters

	// SessionActive - filters set or the peer is acting as a driver.
	SessionActive

	// SessionClosing - torn down; nothing further is emitted.
	SessionClosing
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "CONNECTED"
	case SessionAwaitingFilters:
		return "AWAITING_FILTERS"
	case SessionActive:
		return "ACTIVE"
	case SessionClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Role is what a session's peer acts as.
type Role uint8

const (
	// RoleClient - issues getProperties, enableBLOB and new* requests.
	RoleClient Role = iota

	// RoleDriver - defines and updates devices.
	RoleDriver
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleDriver:
		return "DRIVER"
	default:
		return "UNKNOWN"
	}
}

// DefaultSweepInterval is the default expiry sweep period.
const DefaultSweepInterval = time.Second

// HubConfig configures a Hub.
type HubConfig struct {
	// SweepInterval is the period of the timeout expiry sweep (default: 1s).
	SweepInterval time.Duration

	// RangePolicy decides how out-of-range numbers in new* requests are
	// handled (default: reject).
	RangePolicy model.RangePolicy

	// IgnoreStep disables the number step grid check.
	IgnoreStep bool

	// BusyOnlyExpiry limits timeout expiry to Busy vectors.
	BusyOnlyExpiry bool

	// NewRate bounds new* requests per second per session (0 = unlimited).
	NewRate float64

	// NewBurst is the burst size for NewRate (default: 1 when limited).
	NewBurst int

	// HandshakeTimeout closes sessions that neither send getProperties nor
	// define a device within this time (0 = disabled).
	HandshakeTimeout time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Registerer receives the hub's Prometheus collectors (optional).
	Registerer prometheus.Registerer

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures session state changes and routed deliveries
	// (optional).
	ProtocolLogger log.Logger
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SweepInterval: DefaultSweepInterval,
		RangePolicy:   model.RangeReject,
	}
}

// Validate checks the configuration.
func (c HubConfig) Validate() error {
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval %v", ErrInvalidConfig, c.SweepInterval)
	}
	if c.NewRate < 0 || c.NewBurst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalidConfig)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: handshake timeout %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	return nil
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID      string
	Role    Role
	State   SessionState
	Devices []string
	Since   time.Time
}
