package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Client errors.
var (
	ErrClosed = errors.New("client is closed")
)

// Config configures a Client.
type Config struct {
	// Transport configures the underlying connection.
	Transport transport.ClientConfig

	// Version is announced in getProperties (default: wire.ProtocolVersion).
	Version string

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{Version: wire.ProtocolVersion}
}

// Client is a connection to an INDI server with a local property mirror.
type Client struct {
	conn   *transport.ClientConn
	config Config
	state  *State
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []func(wire.Message)

	done chan struct{}
	err  error
}

// Dial connects to an INDI server and starts reading from it.
func Dial(ctx context.Context, address string, config Config) (*Client, error) {
	conn, err := transport.NewClient(config.Transport).Connect(ctx, address)
	if err != nil {
		return nil, err
	}
	return New(conn, config), nil
}

// New wraps an established connection and starts reading from it.
func New(conn *transport.ClientConn, config Config) *Client {
	if config.Version == "" {
		config.Version = wire.ProtocolVersion
	}
	c := &Client{
		conn:   conn,
		config: config,
		state:  NewState(),
		logger: config.Logger,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// State returns the property mirror.
func (c *Client) State() *State {
	return c.state
}

// OnMessage registers a handler called for every message received, after
// the mirror has been updated. Handlers run on the read goroutine and must
// not block.
func (c *Client) OnMessage(fn func(wire.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// GetProperties asks the server for definitions. Empty device and name
// request everything.
func (c *Client) GetProperties(device, name string) error {
	return c.send(&wire.GetProperties{Version: c.config.Version, Device: device, Name: name})
}

// EnableBLOB sets the BLOB delivery mode for a device or one vector.
func (c *Client) EnableBLOB(device, name string, mode model.BLOBMode) error {
	return c.send(&wire.EnableBLOB{Device: device, Name: name, Mode: mode})
}

// SendNew requests a change. The vector only needs the elements to change.
func (c *Client) SendNew(v model.Vector) error {
	if v.Device == "" || v.Name == "" {
		return fmt.Errorf("new%sVector needs a device and a name", v.Kind)
	}
	return c.send(&wire.NewVector{Vector: v})
}

// SendSwitch turns the named switch On in a switch vector.
func (c *Client) SendSwitch(device, name, element string) error {
	return c.SendNew(model.Vector{
		Kind:     model.KindSwitch,
		Device:   device,
		Name:     name,
		Elements: []model.Element{{Name: element, Switch: model.SwitchOn}},
	})
}

func (c *Client) send(msg wire.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.conn.Send(msg)
}

// WaitFor blocks until the mirror holds the named vector, the client
// closes, or ctx is done.
func (c *Client) WaitFor(ctx context.Context, device, name string) (model.Vector, error) {
	for {
		changed := c.state.watch()
		if v, ok := c.state.Vector(device, name); ok {
			return v, nil
		}
		select {
		case <-changed:
		case <-c.done:
			return model.Vector{}, ErrClosed
		case <-ctx.Done():
			return model.Vector{}, ctx.Err()
		}
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, or nil after a clean
// end of stream or Close.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		msg, err := c.conn.Receive(0)
		if err != nil {
			var de *wire.DecodeError
			if errors.As(err, &de) {
				if c.logger != nil {
					c.logger.Warn("dropping malformed element", "conn", c.conn.ID(), "error", err)
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) &&
				!errors.Is(err, transport.ErrConnectionClosed) {
				c.err = err
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wire.Message) {
	if err := c.state.Apply(msg); err != nil && c.logger != nil {
		c.logger.Debug("mirror skipped message", "element", msg.Element(), "error", err)
	}

	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
}
