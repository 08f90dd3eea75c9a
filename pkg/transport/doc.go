// Package transport carries INDI messages over TCP.
//
// INDI has no framing of its own: a stream is an unframed concatenation of
// top-level XML elements. The transport layer handles:
//   - element boundaries, via the streaming wire.Decoder
//   - per-connection reader and writer goroutines
//   - bounded outboxes, so one slow peer never stalls the others
//   - idle timeouts for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      INDI XML elements         │
//	├────────────────────────────────┤
//	│   Streaming element scanner    │
//	├────────────────────────────────┤
//	│           TCP (7624)           │
//	└────────────────────────────────┘
//
// # Outbox
//
// ServerConn.Send never blocks. Each connection owns a bounded queue drained
// by its writer goroutine; when the queue is full the connection is closed
// with ErrOutboxFull and the remaining peers are unaffected.
//
// # Capture
//
// StreamReader and StreamWriter log raw XML (truncated to
// MaxLogFrameDataSize) at the transport layer and the decoded message at the
// wire layer when a log.Logger is attached.
package transport
