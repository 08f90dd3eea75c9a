package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service identification.
const (
	ServiceType = "_indi._tcp"
	Domain      = "local."
	DefaultPort = 7624
)

// TXT record keys.
const (
	TXTKeyVersion = "version"
	TXTKeyDevices = "devices"
)

// Limits and defaults.
const (
	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default browse duration.
	BrowseTimeout = 5 * time.Second

	// DefaultAnnounceInterval is how often an Announcer checks for changes.
	DefaultAnnounceInterval = 5 * time.Second
)

// Discovery errors.
var (
	ErrMissingRequired  = errors.New("missing required TXT record")
	ErrInvalidTXTRecord = errors.New("invalid TXT record")
	ErrNotAdvertising   = errors.New("not advertising")
	ErrInvalidConfig    = errors.New("invalid discovery configuration")
)

// ServerInfo is what a server advertises about itself.
type ServerInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the INDI TCP port (default: 7624).
	Port uint16

	// Version is the protocol version (e.g. "1.7").
	Version string

	// Devices is the number of devices currently defined.
	Devices int
}

// Service is a discovered INDI server.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Version   string
	Devices   int
}

// Address returns "host:port" for dialing, preferring the first resolved
// address over the host name.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
