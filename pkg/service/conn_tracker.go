package service

import (
	"sync"
	"time"
)

// connTracker tracks sessions that have not completed their handshake
// (no getProperties and no def yet) and their creation times. The sweeper
// uses it to close peers that connect and never speak INDI.
type connTracker struct {
	mu    sync.Mutex
	conns map[Conn]time.Time
}

// newConnTracker creates a new connection tracker.
func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[Conn]time.Time),
	}
}

// Add registers a connection with the given time.
func (ct *connTracker) Add(conn Conn, at time.Time) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[conn] = at
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ct *connTracker) Remove(conn Conn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, conn)
}

// CloseStale closes and removes all connections added before now-maxAge.
// Returns the number of connections closed.
func (ct *connTracker) CloseStale(now time.Time, maxAge time.Duration) int {
	ct.mu.Lock()
	var stale []Conn
	cutoff := now.Add(-maxAge)
	for conn, added := range ct.conns {
		if added.Before(cutoff) {
			stale = append(stale, conn)
			delete(ct.conns, conn)
		}
	}
	ct.mu.Unlock()

	// Close outside the lock: a close may re-enter Remove.
	for _, conn := range stale {
		_ = conn.Close()
	}
	return len(stale)
}

// Len returns the number of tracked connections.
func (ct *connTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}
