package wire

import (
	"time"

	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/version"
)

// ProtocolVersion is the INDI protocol version spoken by this package.
const ProtocolVersion = version.Current

// Verb distinguishes the three vector message forms.
type Verb uint8

const (
	// VerbDef defines a vector.
	VerbDef Verb = iota

	// VerbSet pushes authoritative state.
	VerbSet

	// VerbNew requests a change.
	VerbNew
)

// String returns the element prefix of the verb.
func (v Verb) String() string {
	switch v {
	case VerbDef:
		return "def"
	case VerbSet:
		return "set"
	case VerbNew:
		return "new"
	default:
		return "unknown"
	}
}

// Message is one top-level INDI element.
type Message interface {
	// Element returns the wire element name, e.g. "defSwitchVector".
	Element() string

	// DeviceName returns the device the message concerns, or "".
	DeviceName() string

	isMessage()
}

// GetProperties asks for property definitions. Device and Name narrow the
// request; both empty means everything.
type GetProperties struct {
	Version string
	Device  string
	Name    string
}

// DefVector defines a property vector.
type DefVector struct {
	Vector model.Vector
}

// SetVector carries authoritative state. Elements may be a subset.
type SetVector struct {
	Vector model.Vector
}

// NewVector carries a client request to change a vector.
type NewVector struct {
	Vector model.Vector
}

// DelProperty removes one vector, or the whole device when Name is empty.
type DelProperty struct {
	Device    string
	Name      string
	Timestamp time.Time
	Message   string
}

// EnableBLOB sets the BLOB delivery mode for a device or one of its vectors.
type EnableBLOB struct {
	Device string
	Name   string
	Mode   model.BLOBMode
}

// PlainMessage is free-form commentary, optionally about a device.
type PlainMessage struct {
	Device    string
	Timestamp time.Time
	Text      string
}

func (*GetProperties) Element() string { return "getProperties" }
func (m *DefVector) Element() string   { return vectorElement(VerbDef, m.Vector.Kind) }
func (m *SetVector) Element() string   { return vectorElement(VerbSet, m.Vector.Kind) }
func (m *NewVector) Element() string   { return vectorElement(VerbNew, m.Vector.Kind) }
func (*DelProperty) Element() string   { return "delProperty" }
func (*EnableBLOB) Element() string    { return "enableBLOB" }
func (*PlainMessage) Element() string  { return "message" }

func (m *GetProperties) DeviceName() string { return m.Device }
func (m *DefVector) DeviceName() string     { return m.Vector.Device }
func (m *SetVector) DeviceName() string     { return m.Vector.Device }
func (m *NewVector) DeviceName() string     { return m.Vector.Device }
func (m *DelProperty) DeviceName() string   { return m.Device }
func (m *EnableBLOB) DeviceName() string    { return m.Device }
func (m *PlainMessage) DeviceName() string  { return m.Device }

func (*GetProperties) isMessage() {}
func (*DefVector) isMessage()     {}
func (*SetVector) isMessage()     {}
func (*NewVector) isMessage()     {}
func (*DelProperty) isMessage()   {}
func (*EnableBLOB) isMessage()    {}
func (*PlainMessage) isMessage()  {}

// VectorOf returns the vector carried by a def, set or new message.
func VectorOf(msg Message) (*model.Vector, Verb, bool) {
	switch m := msg.(type) {
	case *DefVector:
		return &m.Vector, VerbDef, true
	case *SetVector:
		return &m.Vector, VerbSet, true
	case *NewVector:
		return &m.Vector, VerbNew, true
	default:
		return nil, 0, false
	}
}

// NewMessage returns the vector message of the given verb.
func NewMessage(verb Verb, v model.Vector) Message {
	switch verb {
	case VerbDef:
		return &DefVector{Vector: v}
	case VerbNew:
		return &NewVector{Vector: v}
	default:
		return &SetVector{Vector: v}
	}
}

// PropertyName returns the vector name a message concerns, or "".
func PropertyName(msg Message) string {
	switch m := msg.(type) {
	case *GetProperties:
		return m.Name
	case *DelProperty:
		return m.Name
	case *EnableBLOB:
		return m.Name
	}
	if v, _, ok := VectorOf(msg); ok {
		return v.Name
	}
	return ""
}

func vectorElement(verb Verb, kind model.Kind) string {
	return verb.String() + kind.String() + "Vector"
}

func childElement(verb Verb, kind model.Kind) string {
	if verb == VerbDef {
		return "def" + kind.String()
	}
	return "one" + kind.String()
}
