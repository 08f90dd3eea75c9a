package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Stream constants.
const (
	// DefaultMaxMessageSize is the largest element accepted (1 MiB).
	DefaultMaxMessageSize = wire.DefaultMaxElementSize

	// MaxLogFrameDataSize is the maximum raw XML size to include in logs (4 KB).
	// Larger elements are truncated in log events.
	MaxLogFrameDataSize = 4096

	readChunkSize = 32 * 1024
)

// Stream errors.
var (
	// ErrConnectionClosed indicates the connection was closed locally.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrOutboxFull indicates a peer did not drain its outbox in time.
	ErrOutboxFull = errors.New("outbox full")

	// ErrEncode indicates a message could not be encoded. Nothing was written.
	ErrEncode = errors.New("encode failed")
)

// StreamReader reads INDI messages from an unframed XML stream.
type StreamReader struct {
	r   io.Reader
	dec *wire.Decoder
	buf []byte

	// err is a read error held back until buffered elements are drained.
	err error

	// Logging support (optional)
	logger log.Logger
	connID string
	role   log.Role
}

// NewStreamReader creates a reader with DefaultMaxMessageSize.
func NewStreamReader(r io.Reader) *StreamReader {
	return NewStreamReaderWithMaxSize(r, DefaultMaxMessageSize)
}

// NewStreamReaderWithMaxSize creates a reader with a custom element size limit.
func NewStreamReaderWithMaxSize(r io.Reader, maxSize int) *StreamReader {
	return &StreamReader{
		r:   r,
		dec: wire.NewDecoderSize(maxSize),
		buf: make([]byte, readChunkSize),
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (sr *StreamReader) SetLogger(logger log.Logger, connID string, role log.Role) {
	sr.logger = logger
	sr.connID = connID
	sr.role = role
}

// ReadMessage returns the next message. A malformed element yields a
// *wire.DecodeError and reading can continue; io.EOF marks the end of the
// stream.
func (sr *StreamReader) ReadMessage() (wire.Message, error) {
	for {
		msg, raw, err := sr.dec.NextRaw()
		if raw != nil {
			sr.logFrame(raw)
		}
		if err == nil {
			sr.logMessage(msg)
			return msg, nil
		}
		if !errors.Is(err, wire.ErrIncomplete) {
			sr.logError(err)
			return nil, err
		}

		if sr.err != nil {
			return nil, sr.err
		}
		n, rerr := sr.r.Read(sr.buf)
		if n > 0 {
			sr.dec.Feed(sr.buf[:n])
		}
		if rerr != nil {
			sr.err = rerr
		}
	}
}

func (sr *StreamReader) logFrame(data []byte) {
	if sr.logger == nil {
		return
	}
	sr.logger.Log(makeFrameEvent(data, log.DirectionIn, sr.connID, sr.role))
}

func (sr *StreamReader) logMessage(msg wire.Message) {
	if sr.logger == nil {
		return
	}
	ev := log.NewMessageEvent(sr.connID, log.DirectionIn, msg)
	ev.Timestamp = time.Now()
	ev.LocalRole = sr.role
	sr.logger.Log(ev)
}

func (sr *StreamReader) logError(err error) {
	if sr.logger == nil {
		return
	}
	data := &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "decode"}
	var de *wire.DecodeError
	if errors.As(err, &de) {
		data.Message = de.Err.Error()
		data.Fragment = string(truncate(de.Fragment))
	}
	sr.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sr.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    sr.role,
		Error:        data,
	})
}

// StreamWriter encodes INDI messages onto a stream.
type StreamWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
	role   log.Role
}

// NewStreamWriter creates a new stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (sw *StreamWriter) SetLogger(logger log.Logger, connID string, role log.Role) {
	sw.logger = logger
	sw.connID = connID
	sw.role = role
}

// WriteMessage encodes and writes one message.
// Thread-safe: can be called from multiple goroutines.
func (sw *StreamWriter) WriteMessage(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := sw.w.Write(data); err != nil {
		return err
	}

	if sw.logger != nil {
		sw.logger.Log(makeFrameEvent(data, log.DirectionOut, sw.connID, sw.role))
		ev := log.NewMessageEvent(sw.connID, log.DirectionOut, msg)
		ev.Timestamp = time.Now()
		ev.LocalRole = sw.role
		sw.logger.Log(ev)
	}
	return nil
}

// makeFrameEvent creates a transport-layer log event for raw XML.
func makeFrameEvent(data []byte, direction log.Direction, connID string, role log.Role) log.Event {
	frame := truncate(data)
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		LocalRole:    role,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      frame,
			Truncated: len(frame) < len(data),
		},
	}
}

func truncate(data []byte) []byte {
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
