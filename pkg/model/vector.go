package model

import (
	"bytes"
	"time"
)

// Absent flags optional header attributes that a decoded set or new message
// did not carry. The zero value means every attribute is present, which is
// what vectors built in Go code want.
type Absent uint8

const (
	AbsentState Absent = 1 << iota
	AbsentTimeout
)

// Key identifies a property vector within a registry.
type Key struct {
	Device string
	Name   string
}

// String returns "device.name".
func (k Key) String() string {
	if k.Name == "" {
		return k.Device
	}
	return k.Device + "." + k.Name
}

// Vector is a property vector: a named, typed group of elements belonging to
// one device. Kind selects which Element fields are meaningful.
type Vector struct {
	Kind   Kind
	Device string
	Name   string
	Label  string
	Group  string
	Perm   Perm
	State  State

	// Rule applies to switch vectors only.
	Rule Rule

	// Timeout is the worst-case time in seconds to complete a change.
	// Zero disables expiry.
	Timeout float64

	// Timestamp is the moment the values were valid. Zero means "now" to the
	// consuming layer.
	Timestamp time.Time

	// Message is optional commentary carried with a def or set. It is not
	// part of the stored state.
	Message string

	Elements []Element

	// Absent is only meaningful on deltas decoded from the wire.
	Absent Absent
}

// Element is one member of a property vector.
type Element struct {
	Name  string
	Label string

	Switch SwitchState // KindSwitch
	Text   string      // KindText
	Light  State       // KindLight
	Number Number      // KindNumber
	BLOB   BLOB        // KindBLOB
}

// Number is the value and declared constraints of a number element.
// Min, Max, Step and Format come from the definition; deltas only carry Value.
type Number struct {
	Value  float64
	Format string
	Min    float64
	Max    float64
	Step   float64
}

// HasRange reports whether min and max are declared.
func (n Number) HasRange() bool { return n.Max > n.Min }

// BLOB is the value of a BLOB element. Data is shared between clones and must
// be treated as immutable once stored.
type BLOB struct {
	Format string
	Size   int
	Data   []byte
}

// Key returns the vector's registry key.
func (v *Vector) Key() Key {
	return Key{Device: v.Device, Name: v.Name}
}

// Clone returns a copy whose element slice can be modified independently.
func (v Vector) Clone() Vector {
	out := v
	if v.Elements != nil {
		out.Elements = make([]Element, len(v.Elements))
		copy(out.Elements, v.Elements)
	}
	return out
}

// Index returns the position of the named element, or -1.
func (v *Vector) Index(name string) int {
	for i := range v.Elements {
		if v.Elements[i].Name == name {
			return i
		}
	}
	return -1
}

// Element returns the named element.
func (v *Vector) Element(name string) (*Element, bool) {
	i := v.Index(name)
	if i < 0 {
		return nil, false
	}
	return &v.Elements[i], true
}

// IsBLOB reports whether the vector carries BLOB elements.
func (v *Vector) IsBLOB() bool {
	return v.Kind == KindBLOB
}

// OnCount returns the number of switch elements that are On.
func (v *Vector) OnCount() int {
	n := 0
	for i := range v.Elements {
		if v.Elements[i].Switch == SwitchOn {
			n++
		}
	}
	return n
}

// ExpiresAt returns when a vector last refreshed at refreshed times out.
// The second result is false when the vector has no timeout.
func (v *Vector) ExpiresAt(refreshed time.Time) (time.Time, bool) {
	if v.Timeout <= 0 {
		return time.Time{}, false
	}
	return refreshed.Add(time.Duration(v.Timeout * float64(time.Second))), true
}

// Expired reports whether a vector last refreshed at refreshed has gone
// longer than its timeout without a refresh.
func (v *Vector) Expired(refreshed, now time.Time) bool {
	deadline, ok := v.ExpiresAt(refreshed)
	return ok && !now.Before(deadline)
}

// SameState reports whether two vectors carry identical header and element
// values. Timestamp and Message are ignored.
func (v *Vector) SameState(o *Vector) bool {
	if v.Kind != o.Kind || v.Device != o.Device || v.Name != o.Name ||
		v.Label != o.Label || v.Group != o.Group || v.Perm != o.Perm ||
		v.State != o.State || v.Rule != o.Rule || v.Timeout != o.Timeout ||
		len(v.Elements) != len(o.Elements) {
		return false
	}
	for i := range v.Elements {
		a, b := &v.Elements[i], &o.Elements[i]
		if a.Name != b.Name || a.Label != b.Label {
			return false
		}
		switch v.Kind {
		case KindSwitch:
			if a.Switch != b.Switch {
				return false
			}
		case KindText:
			if a.Text != b.Text {
				return false
			}
		case KindLight:
			if a.Light != b.Light {
				return false
			}
		case KindNumber:
			if a.Number != b.Number {
				return false
			}
		case KindBLOB:
			if a.BLOB.Format != b.BLOB.Format || a.BLOB.Size != b.BLOB.Size ||
				!bytes.Equal(a.BLOB.Data, b.BLOB.Data) {
				return false
			}
		}
	}
	return true
}
