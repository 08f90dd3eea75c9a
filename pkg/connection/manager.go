package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrGaveUp is returned by Run when MaxAttempts consecutive dials fail.
var ErrGaveUp = errors.New("reconnect attempts exhausted")

// State is the manager's view of the session.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes a session. The returned channel is closed when the
// session ends.
type DialFunc func(ctx context.Context) (<-chan struct{}, error)

// DefaultStableAfter is how long a session must last to reset the backoff.
const DefaultStableAfter = 10 * time.Second

// Config configures a Manager.
type Config struct {
	// Backoff shapes the redial delays.
	Backoff BackoffConfig

	// MaxAttempts bounds consecutive failed dials (0 = unlimited).
	MaxAttempts int

	// DialTimeout bounds each dial (0 = none).
	DialTimeout time.Duration

	// StableAfter is how long a session must last before the backoff resets.
	StableAfter time.Duration

	// Logger is optional.
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:     BackoffConfig{Jitter: JitterFactor},
		DialTimeout: 10 * time.Second,
		StableAfter: DefaultStableAfter,
	}
}

// Manager redials a session whenever it ends.
type Manager struct {
	dial    DialFunc
	config  Config
	backoff *Backoff

	mu            sync.RWMutex
	state         State
	onStateChange func(old, new State)
}

// NewManager creates a manager for dial.
func NewManager(dial DialFunc, config Config) *Manager {
	return &Manager{
		dial:    dial,
		config:  config,
		backoff: NewBackoffWithConfig(config.Backoff),
	}
}

// OnStateChange sets a callback invoked on every state transition.
func (m *Manager) OnStateChange(fn func(old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the number of redial delays since the last stable session.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	fn := m.onStateChange
	m.mu.Unlock()
	if fn != nil && prev != next {
		fn(prev, next)
	}
}

// Run dials and redials until ctx is cancelled, returning ctx.Err(), or
// until MaxAttempts consecutive dials fail, returning ErrGaveUp.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setState(StateClosed)

	failures := 0
	m.setState(StateConnecting)
	for {
		done, err := m.dialOnce(ctx)
		if err == nil {
			failures = 0
			m.setState(StateConnected)
			started := time.Now()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
			}
			if time.Since(started) >= m.config.StableAfter {
				m.backoff.Reset()
			}
			if m.config.Logger != nil {
				m.config.Logger.Warn("session ended", "uptime", time.Since(started).Round(time.Millisecond))
			}
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if m.config.Logger != nil {
				m.config.Logger.Warn("dial failed", "attempt", failures, "error", err)
			}
			if m.config.MaxAttempts > 0 && failures >= m.config.MaxAttempts {
				return fmt.Errorf("%w: %v", ErrGaveUp, err)
			}
		}

		m.setState(StateReconnecting)
		delay := m.backoff.Next()
		if m.config.Logger != nil {
			m.config.Logger.Info("reconnecting", "delay", delay.Round(time.Millisecond), "attempt", m.backoff.Attempts())
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) dialOnce(ctx context.Context) (<-chan struct{}, error) {
	if m.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.DialTimeout)
		defer cancel()
	}
	return m.dial(ctx)
}
