package service

import (
	"github.com/indi-protocol/indi-go/pkg/version"
)

// checkPeerVersion warns a peer whose getProperties announces a protocol
// version this server does not speak. The request is still served: peers
// routinely announce versions they only partly implement.
func (s *Session) checkPeerVersion(announced string) {
	err := version.Check(announced)
	if err == nil {
		return
	}
	s.hub.metrics.rejected.WithLabelValues("version").Inc()
	if s.hub.logger != nil {
		s.hub.logger.Warn("peer protocol version", "session", s.id, "version", announced, "error", err)
	}
	s.reply("", err.Error())
}
