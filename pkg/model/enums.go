package model

import "fmt"

// Kind identifies the element type carried by a property vector.
type Kind uint8

const (
	KindSwitch Kind = iota
	KindNumber
	KindText
	KindLight
	KindBLOB
)

// String returns the wire suffix used in element names (e.g. "Switch" in
// "defSwitchVector").
func (k Kind) String() string {
	switch k {
	case KindSwitch:
		return "Switch"
	case KindNumber:
		return "Number"
	case KindText:
		return "Text"
	case KindLight:
		return "Light"
	case KindBLOB:
		return "BLOB"
	default:
		return "Unknown"
	}
}

// ParseKind parses a wire kind suffix.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "Switch":
		return KindSwitch, nil
	case "Number":
		return KindNumber, nil
	case "Text":
		return KindText, nil
	case "Light":
		return KindLight, nil
	case "BLOB":
		return KindBLOB, nil
	default:
		return 0, fmt.Errorf("%w: kind %q", ErrInvalidValue, s)
	}
}

// State is the status of a property vector.
type State uint8

const (
	StateIdle State = iota
	StateOk
	StateBusy
	StateAlert
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOk:
		return "Ok"
	case StateBusy:
		return "Busy"
	case StateAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// ParseState parses a wire state name.
func ParseState(s string) (State, error) {
	switch s {
	case "Idle":
		return StateIdle, nil
	case "Ok":
		return StateOk, nil
	case "Busy":
		return StateBusy, nil
	case "Alert":
		return StateAlert, nil
	default:
		return 0, fmt.Errorf("%w: state %q", ErrInvalidValue, s)
	}
}

// Perm is the client permission on a property vector.
type Perm uint8

const (
	// PermUnset means the attribute was absent. On set messages it keeps the
	// permission of the definition.
	PermUnset Perm = iota
	PermRO
	PermWO
	PermRW
)

// String returns the wire name of the permission.
func (p Perm) String() string {
	switch p {
	case PermRO:
		return "ro"
	case PermWO:
		return "wo"
	case PermRW:
		return "rw"
	default:
		return ""
	}
}

// CanWrite reports whether clients may submit new values.
func (p Perm) CanWrite() bool { return p == PermWO || p == PermRW }

// CanRead reports whether clients may observe values.
func (p Perm) CanRead() bool { return p == PermRO || p == PermRW }

// ParsePerm parses a wire permission.
func ParsePerm(s string) (Perm, error) {
	switch s {
	case "ro":
		return PermRO, nil
	case "wo":
		return PermWO, nil
	case "rw":
		return PermRW, nil
	case "":
		return PermUnset, nil
	default:
		return 0, fmt.Errorf("%w: perm %q", ErrInvalidValue, s)
	}
}

// Rule is the selection rule of a switch vector.
type Rule uint8

const (
	// RuleUnset means the attribute was absent.
	RuleUnset Rule = iota

	// RuleOneOfMany requires exactly one switch to be On.
	RuleOneOfMany

	// RuleAtMostOne allows zero or one switch to be On.
	RuleAtMostOne

	// RuleAnyOfMany requires at least one switch to be On.
	RuleAnyOfMany
)

// String returns the wire name of the rule.
func (r Rule) String() string {
	switch r {
	case RuleOneOfMany:
		return "OneOfMany"
	case RuleAtMostOne:
		return "AtMostOne"
	case RuleAnyOfMany:
		return "AnyOfMany"
	default:
		return ""
	}
}

// ParseRule parses a wire switch rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "OneOfMany":
		return RuleOneOfMany, nil
	case "AtMostOne":
		return RuleAtMostOne, nil
	case "AnyOfMany":
		return RuleAnyOfMany, nil
	case "":
		return RuleUnset, nil
	default:
		return 0, fmt.Errorf("%w: rule %q", ErrInvalidValue, s)
	}
}

// SwitchState is the value of a switch element.
type SwitchState uint8

const (
	SwitchOff SwitchState = iota
	SwitchOn
)

// String returns "On" or "Off".
func (s SwitchState) String() string {
	if s == SwitchOn {
		return "On"
	}
	return "Off"
}

// ParseSwitchState parses "On" or "Off".
func ParseSwitchState(s string) (SwitchState, error) {
	switch s {
	case "On":
		return SwitchOn, nil
	case "Off":
		return SwitchOff, nil
	default:
		return 0, fmt.Errorf("%w: switch %q", ErrInvalidValue, s)
	}
}

// BLOBMode controls whether BLOB vectors are delivered to a subscriber.
type BLOBMode uint8

const (
	// BLOBNever suppresses BLOB vectors. This is the default.
	BLOBNever BLOBMode = iota

	// BLOBAlso delivers BLOB vectors together with everything else.
	BLOBAlso

	// BLOBOnly delivers BLOB vectors and suppresses all others.
	BLOBOnly
)

// String returns the wire name of the mode.
func (m BLOBMode) String() string {
	switch m {
	case BLOBNever:
		return "Never"
	case BLOBAlso:
		return "Also"
	case BLOBOnly:
		return "Only"
	default:
		return "Unknown"
	}
}

// ParseBLOBMode parses an enableBLOB body.
func ParseBLOBMode(s string) (BLOBMode, error) {
	switch s {
	case "Never":
		return BLOBNever, nil
	case "Also":
		return BLOBAlso, nil
	case "Only":
		return BLOBOnly, nil
	default:
		return 0, fmt.Errorf("%w: BLOB mode %q", ErrInvalidValue, s)
	}
}
