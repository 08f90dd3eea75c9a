package transport

import (
	"context"
	"net"
	"time"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// ServerConnection represents a server-side connection to a peer.
// Implemented by ServerConn.
type ServerConnection interface {
	// ID returns the unique connection identifier.
	ID() string

	// RemoteAddr returns the remote network address of the peer.
	RemoteAddr() net.Addr

	// Send queues a message for the peer without blocking.
	Send(msg wire.Message) error

	// Close closes the connection.
	Close() error
}

// ClientConnection represents a client-side connection to a server.
// Implemented by ClientConn.
type ClientConnection interface {
	ID() string
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Send writes a message to the server.
	Send(msg wire.Message) error

	// Receive reads a message with the specified timeout.
	Receive(timeout time.Duration) (wire.Message, error)

	// Close closes the connection.
	Close() error
}

// TransportServer represents an INDI TCP server.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// MessageReader reads INDI messages. Implemented by StreamReader.
type MessageReader interface {
	ReadMessage() (wire.Message, error)
}

// MessageWriter writes INDI messages. Implemented by StreamWriter.
type MessageWriter interface {
	WriteMessage(msg wire.Message) error
}

// Compile-time interface satisfaction checks.
var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ MessageReader    = (*StreamReader)(nil)
	_ MessageWriter    = (*StreamWriter)(nil)
)
