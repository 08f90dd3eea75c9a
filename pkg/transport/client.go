package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// ClientConfig configures an INDI client connection.
type ClientConfig struct {
	// MaxMessageSize is the maximum element size (default: 1 MiB).
	MaxMessageSize int

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Client dials INDI servers.
type Client struct {
	config ClientConfig
}

// NewClient creates a new INDI client.
func NewClient(config ClientConfig) *Client {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &Client{config: config}
}

// Dial connects to address with the default client configuration.
func Dial(ctx context.Context, address string) (*ClientConn, error) {
	return NewClient(ClientConfig{}).Connect(ctx, address)
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return NewClientConn(conn, c.config), nil
}

// NewClientConn wraps an established connection.
func NewClientConn(conn net.Conn, config ClientConfig) *ClientConn {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	cc := &ClientConn{
		conn:    conn,
		reader:  NewStreamReaderWithMaxSize(conn, config.MaxMessageSize),
		writer:  NewStreamWriter(conn),
		closeCh: make(chan struct{}),
		connID:  uuid.New().String(),
	}
	if config.Logger != nil {
		cc.reader.SetLogger(config.Logger, cc.connID, log.RoleClient)
		cc.writer.SetLogger(config.Logger, cc.connID, log.RoleClient)
	}
	return cc
}

// ClientConn represents a connection from client to server.
type ClientConn struct {
	conn    net.Conn
	reader  *StreamReader
	writer  *StreamWriter
	closeCh chan struct{}
	connID  string

	closeOnce sync.Once
	readMu    sync.Mutex
}

// ID returns the unique connection identifier.
func (c *ClientConn) ID() string {
	return c.connID
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes a message to the server.
func (c *ClientConn) Send(msg wire.Message) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.writer.WriteMessage(msg)
}

// Receive reads the next message from the server. A zero timeout waits
// indefinitely.
func (c *ClientConn) Receive(timeout time.Duration) (wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.reader.ReadMessage()
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
