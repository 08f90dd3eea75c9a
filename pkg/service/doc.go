// Package service runs the INDI protocol for connected peers.
//
// A Hub owns the device Registry and the subscription Router. Every peer
// connection gets a Session, which walks through
//
//	CONNECTED -> AWAITING_FILTERS -> ACTIVE -> CLOSING
//
// and plays one of two roles:
//
//   - Clients send getProperties, enableBLOB and new*Vector. getProperties
//     installs a filter and replies with definitions of the matching
//     vectors. new*Vector is validated against the stored vector; a
//     rejected request is echoed back in Alert with the reason, an accepted
//     one is forwarded to the device's owner.
//   - Drivers send def*Vector, set*Vector, delProperty and message. The
//     first definition of a device makes the session its owner; nobody
//     else may update or delete it. A driver's getProperties for a device
//     is a snoop link, and ACTIVE_* text vectors name further devices to
//     snoop.
//
// In-process drivers implement Driver and are registered with
// Hub.RegisterDriver. Their HandleNew runs outside every lock.
//
// Example usage:
//
//	hub, err := service.NewHub(service.DefaultHubConfig())
//	hub.RegisterDriver(myDriver)
//	hub.Start(ctx)
//	defer hub.Stop()
//
//	server, err := transport.NewServer(hub.Bind(transport.DefaultServerConfig()))
//	server.Start(ctx)
//
// When a session closes, its filters and snoop links are dropped and the
// devices it owned are deleted, which subscribers observe as delProperty.
package service
