// Package discovery implements mDNS/DNS-SD discovery for INDI servers.
//
// Servers advertise the _indi._tcp service on the port they listen on.
// The instance name is user-chosen (default: "INDI Server on <host>").
// TXT records carry:
//
//	version  protocol version spoken, e.g. "1.7"
//	devices  number of devices currently defined
//
// An Announcer keeps the devices record current as drivers come and go.
// Clients use a Browser to find servers on the local network.
package discovery
