package log

import (
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// MessageEventOf summarizes an INDI message for capture.
func MessageEventOf(msg wire.Message) *MessageEvent {
	ev := &MessageEvent{Element: msg.Element(), Name: wire.PropertyName(msg)}

	if v, verb, ok := wire.VectorOf(msg); ok {
		ev.Verb = verb.String()
		ev.Kind = v.Kind.String()
		ev.Elements = len(v.Elements)
		ev.Text = v.Message
		if verb != wire.VerbNew {
			ev.State = v.State.String()
		}
		return ev
	}

	switch m := msg.(type) {
	case *wire.DelProperty:
		ev.Text = m.Message
	case *wire.EnableBLOB:
		ev.Text = m.Mode.String()
	case *wire.PlainMessage:
		ev.Text = m.Text
	case *wire.GetProperties:
		ev.Text = m.Version
	}
	return ev
}

// NewMessageEvent builds a wire-layer event for msg.
func NewMessageEvent(connID string, dir Direction, msg wire.Message) Event {
	return Event{
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Device:       msg.DeviceName(),
		Message:      MessageEventOf(msg),
	}
}

// NewDeliveryEvent builds a service-layer event for a message the router
// delivered to connID.
func NewDeliveryEvent(connID string, msg wire.Message, revision uint64, snoop bool) Event {
	ev := MessageEventOf(msg)
	ev.Revision = revision
	ev.Snoop = snoop
	return Event{
		ConnectionID: connID,
		Direction:    DirectionOut,
		Layer:        LayerService,
		Category:     CategoryMessage,
		LocalRole:    RoleServer,
		Device:       msg.DeviceName(),
		Message:      ev,
	}
}
