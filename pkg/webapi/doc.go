// Package webapi exposes a running hub over HTTP.
//
// Routes:
//
//	GET  /api/v1/health                      liveness and protocol version
//	GET  /api/v1/sessions                    connected sessions
//	GET  /api/v1/devices                     devices with owner and vector count
//	GET  /api/v1/devices/{device}            every vector of a device
//	GET  /api/v1/devices/{device}/{property} one vector
//	POST /api/v1/messages                    broadcast a message element
//	GET  /ws                                 INDI XML over WebSocket
//	GET  /metrics                            Prometheus metrics
//
// A WebSocket peer is a full hub session. Each text frame carries one or
// more INDI elements; elements may span frames.
package webapi
