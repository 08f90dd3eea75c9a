package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Server defaults.
const (
	// DefaultPort is the IANA-registered INDI port.
	DefaultPort = 7624

	// DefaultMaxClients is the default connection limit.
	DefaultMaxClients = 10

	// DefaultOutboxSize is the default per-connection outbound queue length.
	DefaultOutboxSize = 256
)

// Server errors.
var (
	ErrServerRunning  = errors.New("server already running")
	ErrTooManyClients = errors.New("too many clients")
)

// ServerConfig configures an INDI server.
type ServerConfig struct {
	// Address to listen on (e.g., ":7624" or "127.0.0.1:7624").
	Address string

	// MaxClients bounds concurrent connections (default: 10).
	MaxClients int

	// MaxMessageSize is the maximum element size (default: 1 MiB).
	MaxMessageSize int

	// OutboxSize is the per-connection outbound queue length (default: 256).
	OutboxSize int

	// IdleTimeout closes connections that send nothing for this long
	// (0 = no timeout).
	IdleTimeout time.Duration

	// WriteTimeout bounds each write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for each decoded message, from the connection's
	// reader goroutine.
	OnMessage func(conn *ServerConn, msg wire.Message)

	// OnError is called when an error occurs. Decode errors other than
	// wire.ErrElementTooLarge are not fatal to the connection.
	OnError func(conn *ServerConn, err error)
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        fmt.Sprintf(":%d", DefaultPort),
		MaxClients:     DefaultMaxClients,
		MaxMessageSize: DefaultMaxMessageSize,
		OutboxSize:     DefaultOutboxSize,
	}
}

// Validate checks the configuration.
func (c ServerConfig) Validate() error {
	if c.MaxClients < 0 {
		return fmt.Errorf("max clients must not be negative: %d", c.MaxClients)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative: %d", c.MaxMessageSize)
	}
	if c.OutboxSize < 0 {
		return fmt.Errorf("outbox size must not be negative: %d", c.OutboxSize)
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Server is an INDI TCP server that accepts clients and remote drivers.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// Active connections
	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new INDI server.
func NewServer(config ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	def := DefaultServerConfig()
	if config.Address == "" {
		config.Address = def.Address
	}
	if config.MaxClients == 0 {
		config.MaxClients = def.MaxClients
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.OutboxSize == 0 {
		config.OutboxSize = def.OutboxSize
	}

	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	// Stop when the parent context ends.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		listener.Close()
	}()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.closeWithError(ErrConnectionClosed)
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection processes a single connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	sconn := newServerConn(s, conn, connID)

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	if len(s.conns) >= s.config.MaxClients {
		s.connsMu.Unlock()
		conn.Close()
		s.logState(connID, conn.RemoteAddr(), "", "REJECTED", ErrTooManyClients.Error())
		if s.config.OnError != nil {
			s.config.OnError(nil, fmt.Errorf("%w: %s", ErrTooManyClients, conn.RemoteAddr()))
		}
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.logState(connID, conn.RemoteAddr(), "", "CONNECTED", "")

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sconn.writeLoop()
	}()

	sconn.readLoop()
	sconn.closeWithError(nil)
	<-writerDone

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	reason := ""
	if err := sconn.Err(); err != nil {
		reason = err.Error()
	}
	s.logState(connID, conn.RemoteAddr(), "CONNECTED", "DISCONNECTED", reason)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) logState(connID string, addr net.Addr, oldState, newState, reason string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   addr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// ServerConn represents a peer connection to the server.
type ServerConn struct {
	conn       net.Conn
	reader     *StreamReader
	writer     *StreamWriter
	server     *Server
	outbox     chan wire.Message
	closeCh    chan struct{}
	closeOnce  sync.Once
	closeErr   error
	remoteAddr net.Addr
	connID     string
}

func newServerConn(s *Server, conn net.Conn, connID string) *ServerConn {
	c := &ServerConn{
		conn:       conn,
		server:     s,
		outbox:     make(chan wire.Message, s.config.OutboxSize),
		closeCh:    make(chan struct{}),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}
	c.reader = NewStreamReaderWithMaxSize(idleReader{conn: conn, timeout: s.config.IdleTimeout}, s.config.MaxMessageSize)
	c.writer = NewStreamWriter(conn)
	if s.config.Logger != nil {
		c.reader.SetLogger(s.config.Logger, connID, log.RoleServer)
		c.writer.SetLogger(s.config.Logger, connID, log.RoleServer)
	}
	return c
}

// ID returns the unique connection identifier.
func (c *ServerConn) ID() string {
	return c.connID
}

// RemoteAddr returns the remote address of the peer.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Send queues a message for the writer goroutine. It never blocks: when the
// outbox is full the connection is closed and ErrOutboxFull returned.
func (c *ServerConn) Send(msg wire.Message) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.outbox <- msg:
		return nil
	default:
		c.closeWithError(ErrOutboxFull)
		return ErrOutboxFull
	}
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	return c.closeWithError(ErrConnectionClosed)
}

// Done is closed when the connection closes.
func (c *ServerConn) Done() <-chan struct{} {
	return c.closeCh
}

// Err returns why the connection closed, or nil for a peer close.
func (c *ServerConn) Err() error {
	select {
	case <-c.closeCh:
		return c.closeErr
	default:
		return nil
	}
}

func (c *ServerConn) closeWithError(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// readLoop reads messages until the peer closes or a fatal error occurs.
func (c *ServerConn) readLoop() {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var de *wire.DecodeError
			if errors.As(err, &de) && !errors.Is(err, wire.ErrElementTooLarge) {
				c.reportError(err)
				continue
			}
			select {
			case <-c.closeCh:
				// Already closing, don't report
			default:
				c.reportError(err)
				c.closeWithError(err)
			}
			return
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, msg)
		}
	}
}

// writeLoop drains the outbox. Messages still queued at close are dropped.
func (c *ServerConn) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.outbox:
			if c.server.config.WriteTimeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			}
			if err := c.writer.WriteMessage(msg); err != nil {
				c.reportError(err)
				if errors.Is(err, ErrEncode) {
					continue
				}
				c.closeWithError(err)
				return
			}
		}
	}
}

func (c *ServerConn) reportError(err error) {
	if c.server.config.OnError != nil && c.server.running.Load() {
		c.server.config.OnError(c, err)
	}
}

// idleReader arms a read deadline before every read.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
