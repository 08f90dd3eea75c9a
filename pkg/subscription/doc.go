// Package subscription routes INDI events to interested peers.
//
// A peer is any Subscriber: a client session, a remote driver session or an
// in-process driver. Two kinds of interest are tracked per subscriber:
//
//   - Filters come from getProperties. A filter names a device, or a device
//     and one property. A subscriber with no filters receives nothing.
//   - Snoop links name devices (and optionally properties) whose traffic a
//     driver wants to observe. Snoop deliveries are flagged and never sent
//     back to the session that caused the event.
//
// # BLOB Gating
//
// Vectors carrying BLOB payloads are delivered only when the subscriber's
// mode for (device, property), or failing that (device, ""), is Also or
// Only. A device-level Only suppresses every non-BLOB vector of that device.
// The default mode is Never.
//
// # Ordering
//
// Route returns deliveries in subscriber registration order. Callers that
// route under a per-device lock get one total order per device.
package subscription
