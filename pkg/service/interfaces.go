package service

import (
	"context"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Conn is a peer connection. Send must not block; a connection that cannot
// keep up closes itself and returns an error.
type Conn interface {
	ID() string
	Send(msg wire.Message) error
	Close() error
}

// Driver is an in-process device implementation.
type Driver interface {
	// Name returns the device name.
	Name() string

	// Properties returns the device's initial vector definitions.
	Properties() []model.Vector

	// HandleNew applies a validated client request and returns the
	// resulting state. It is called outside all hub locks and may block.
	HandleNew(ctx context.Context, proposed model.Vector) (model.Vector, error)
}

// Compile-time check: *transport.ServerConn implements Conn.
var _ Conn = (*transport.ServerConn)(nil)
