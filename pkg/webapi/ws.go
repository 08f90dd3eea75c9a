package webapi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// WSConn is a hub session carried over a WebSocket. It implements
// service.Conn.
type WSConn struct {
	conn    *websocket.Conn
	id      string
	config  Config
	decoder *wire.Decoder
	outbox  chan wire.Message

	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ service.Conn = (*WSConn)(nil)

func newWSConn(conn *websocket.Conn, config Config) *WSConn {
	return &WSConn{
		conn:    conn,
		id:      "ws-" + uuid.New().String(),
		config:  config,
		decoder: wire.NewDecoderSize(config.MaxMessageSize),
		outbox:  make(chan wire.Message, config.OutboxSize),
		closeCh: make(chan struct{}),
	}
}

// ID returns the unique connection identifier.
func (c *WSConn) ID() string {
	return c.id
}

// Send queues a message. It never blocks: a full outbox closes the
// connection.
func (c *WSConn) Send(msg wire.Message) error {
	select {
	case <-c.closeCh:
		return transport.ErrConnectionClosed
	default:
	}

	select {
	case c.outbox <- msg:
		return nil
	default:
		c.closeWithError(transport.ErrOutboxFull)
		return transport.ErrOutboxFull
	}
}

// Close closes the connection.
func (c *WSConn) Close() error {
	return c.closeWithError(transport.ErrConnectionClosed)
}

// Err returns why the connection closed, or nil for a peer close.
func (c *WSConn) Err() error {
	select {
	case <-c.closeCh:
		return c.closeErr
	default:
		return nil
	}
}

func (c *WSConn) closeWithError(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// readLoop feeds text frames through the stream decoder until the peer
// goes away.
func (c *WSConn) readLoop(hub *service.Hub) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.closeWithError(err)
				} else {
					c.closeWithError(nil)
				}
			}
			return
		}

		c.decoder.Feed(data)
		for {
			msg, err := c.decoder.Next()
			if errors.Is(err, wire.ErrIncomplete) {
				break
			}
			if err != nil {
				hub.HandleError(c, err)
				if errors.Is(err, wire.ErrElementTooLarge) {
					c.closeWithError(err)
					return
				}
				continue
			}
			c.logMessage(log.DirectionIn, msg)
			hub.HandleMessage(c, msg)
		}
	}
}

// writeLoop drains the outbox, one element per text frame.
func (c *WSConn) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.outbox:
			data, err := wire.Encode(msg)
			if err != nil {
				if c.config.Logger != nil {
					c.config.Logger.Warn("dropping unencodable message", "conn", c.id, "element", msg.Element(), "error", err)
				}
				continue
			}
			if c.config.WriteTimeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeWithError(err)
				return
			}
			c.logMessage(log.DirectionOut, msg)
		}
	}
}

func (c *WSConn) logMessage(dir log.Direction, msg wire.Message) {
	if c.config.ProtocolLogger == nil {
		return
	}
	ev := log.NewMessageEvent(c.id, dir, msg)
	ev.Timestamp = time.Now()
	ev.LocalRole = log.RoleServer
	c.config.ProtocolLogger.Log(ev)
}
