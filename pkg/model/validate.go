package model

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors.
var (
	ErrReadOnly       = errors.New("property is read-only")
	ErrRuleViolation  = errors.New("switch rule violated")
	ErrOutOfRange     = errors.New("value out of range")
	ErrStepMismatch   = errors.New("value not on step grid")
	ErrUnknownElement = errors.New("unknown element")
	ErrDuplicateName  = errors.New("duplicate element name")
	ErrKindMismatch   = errors.New("vector kind mismatch")
	ErrInvalidValue   = errors.New("invalid value")
	ErrEmptyVector    = errors.New("vector has no elements")
	ErrMissingName    = errors.New("device and name are required")
)

// ValidationError describes why a vector or delta was rejected.
type ValidationError struct {
	Device  string
	Name    string
	Element string
	Err     error
	Detail  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	where := e.Device + "." + e.Name
	if e.Element != "" {
		where += "." + e.Element
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", where, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(v *Vector, element string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{
		Device:  v.Device,
		Name:    v.Name,
		Element: element,
		Err:     err,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// RangePolicy decides what happens to number values outside min/max or off
// the step grid.
type RangePolicy uint8

const (
	// RangeReject rejects the request with a validation error.
	RangeReject RangePolicy = iota

	// RangeClamp clamps the value into range and snaps it to the step grid.
	RangeClamp
)

// String returns the policy name.
func (p RangePolicy) String() string {
	switch p {
	case RangeReject:
		return "reject"
	case RangeClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

// ParseRangePolicy parses "reject" or "clamp".
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch s {
	case "reject", "":
		return RangeReject, nil
	case "clamp":
		return RangeClamp, nil
	default:
		return 0, fmt.Errorf("%w: range policy %q", ErrInvalidValue, s)
	}
}

// stepTolerance is the fraction of a step a value may deviate from the grid.
const stepTolerance = 1e-6

// Validator checks client requests against the current vector state.
type Validator struct {
	Policy RangePolicy

	// IgnoreStep disables the step grid check.
	IgnoreStep bool
}

// DefaultValidator rejects out-of-range values and enforces steps.
func DefaultValidator() Validator {
	return Validator{Policy: RangeReject}
}

// ValidateNew checks a client-submitted delta against the current vector and
// returns the proposed new state. The current vector is not modified.
//
// For OneOfMany and AtMostOne switches, turning an element On implicitly
// turns every element the delta does not mention Off. The selection rule is
// then checked on the result; violations are rejected, never corrected.
func (val Validator) ValidateNew(current, delta Vector) (Vector, error) {
	if delta.Kind != current.Kind {
		return Vector{}, invalid(&current, "", ErrKindMismatch, "got %s, want %s", delta.Kind, current.Kind)
	}
	if current.Kind == KindLight || !current.Perm.CanWrite() {
		return Vector{}, invalid(&current, "", ErrReadOnly, "perm %q", current.Perm)
	}
	if len(delta.Elements) == 0 {
		return Vector{}, invalid(&current, "", ErrEmptyVector, "")
	}

	proposed := current.Clone()
	proposed.Message = ""
	proposed.Timestamp = delta.Timestamp

	mentioned := make(map[string]bool, len(delta.Elements))
	turnedOn := false
	for _, d := range delta.Elements {
		if mentioned[d.Name] {
			return Vector{}, invalid(&current, d.Name, ErrDuplicateName, "")
		}
		mentioned[d.Name] = true

		el, ok := proposed.Element(d.Name)
		if !ok {
			return Vector{}, invalid(&current, d.Name, ErrUnknownElement, "")
		}
		switch current.Kind {
		case KindSwitch:
			el.Switch = d.Switch
			if d.Switch == SwitchOn {
				turnedOn = true
			}
		case KindNumber:
			value, err := val.checkNumber(&current, el, d.Number.Value)
			if err != nil {
				return Vector{}, err
			}
			el.Number.Value = value
		case KindText:
			el.Text = d.Text
		case KindBLOB:
			el.BLOB = d.BLOB
			if el.BLOB.Size == 0 {
				el.BLOB.Size = len(el.BLOB.Data)
			}
		}
	}

	if current.Kind == KindSwitch {
		if turnedOn && (current.Rule == RuleOneOfMany || current.Rule == RuleAtMostOne) {
			for i := range proposed.Elements {
				if !mentioned[proposed.Elements[i].Name] {
					proposed.Elements[i].Switch = SwitchOff
				}
			}
		}
		if err := checkRule(&proposed, true); err != nil {
			return Vector{}, err
		}
	}
	return proposed, nil
}

func (val Validator) checkNumber(v *Vector, el *Element, value float64) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, invalid(v, el.Name, ErrInvalidValue, "%v", value)
	}
	n := el.Number
	if n.HasRange() && (value < n.Min || value > n.Max) {
		if val.Policy != RangeClamp {
			return 0, invalid(v, el.Name, ErrOutOfRange, "%g not in [%g, %g]", value, n.Min, n.Max)
		}
		value = math.Max(n.Min, math.Min(n.Max, value))
	}
	if n.Step > 0 && !val.IgnoreStep {
		k := (value - n.Min) / n.Step
		r := math.Round(k)
		if math.Abs(k-r) > stepTolerance {
			if val.Policy != RangeClamp {
				return 0, invalid(v, el.Name, ErrStepMismatch, "%g with step %g", value, n.Step)
			}
			value = n.Min + r*n.Step
			if n.HasRange() && value > n.Max {
				value -= n.Step
			}
		}
	}
	return value, nil
}

// checkRule enforces the switch selection rule. Without strict, only the
// upper bound is checked.
func checkRule(v *Vector, strict bool) error {
	on := v.OnCount()
	switch v.Rule {
	case RuleOneOfMany:
		if on > 1 || (strict && on != 1) {
			return invalid(v, "", ErrRuleViolation, "OneOfMany requires exactly one On, got %d", on)
		}
	case RuleAtMostOne:
		if on > 1 {
			return invalid(v, "", ErrRuleViolation, "AtMostOne allows at most one On, got %d", on)
		}
	case RuleAnyOfMany:
		if strict && on < 1 {
			return invalid(v, "", ErrRuleViolation, "AnyOfMany requires at least one On")
		}
	}
	return nil
}

// ValidateDef checks a vector definition.
func ValidateDef(v Vector) error {
	if v.Device == "" || v.Name == "" {
		return invalid(&v, "", ErrMissingName, "")
	}
	if len(v.Elements) == 0 {
		return invalid(&v, "", ErrEmptyVector, "")
	}
	seen := make(map[string]bool, len(v.Elements))
	for _, el := range v.Elements {
		if el.Name == "" {
			return invalid(&v, "", ErrMissingName, "element without name")
		}
		if seen[el.Name] {
			return invalid(&v, el.Name, ErrDuplicateName, "")
		}
		seen[el.Name] = true
	}
	if v.Kind == KindSwitch {
		return checkRule(&v, false)
	}
	return nil
}

// MergeSet applies an authoritative set delta to the current vector and
// returns the result. Elements the delta omits keep their values; elements
// it names must already exist. Empty label and group, unset perm and rule,
// and attributes flagged Absent mean "unchanged".
func MergeSet(current, delta Vector) (Vector, error) {
	if delta.Kind != current.Kind {
		return Vector{}, invalid(&current, "", ErrKindMismatch, "got %s, want %s", delta.Kind, current.Kind)
	}

	merged := current.Clone()
	merged.Message = delta.Message
	merged.Timestamp = delta.Timestamp
	if delta.Label != "" {
		merged.Label = delta.Label
	}
	if delta.Group != "" {
		merged.Group = delta.Group
	}
	if delta.Perm != PermUnset {
		merged.Perm = delta.Perm
	}
	if delta.Rule != RuleUnset {
		merged.Rule = delta.Rule
	}
	if delta.Absent&AbsentState == 0 {
		merged.State = delta.State
	}
	if delta.Absent&AbsentTimeout == 0 {
		merged.Timeout = delta.Timeout
	}

	for _, d := range delta.Elements {
		el, ok := merged.Element(d.Name)
		if !ok {
			return Vector{}, invalid(&current, d.Name, ErrUnknownElement, "set cannot introduce elements")
		}
		if d.Label != "" {
			el.Label = d.Label
		}
		switch current.Kind {
		case KindSwitch:
			el.Switch = d.Switch
		case KindNumber:
			if math.IsNaN(d.Number.Value) {
				return Vector{}, invalid(&current, d.Name, ErrInvalidValue, "NaN")
			}
			el.Number.Value = d.Number.Value
		case KindText:
			el.Text = d.Text
		case KindLight:
			el.Light = d.Light
		case KindBLOB:
			el.BLOB = d.BLOB
			if el.BLOB.Size == 0 {
				el.BLOB.Size = len(el.BLOB.Data)
			}
		}
	}

	if merged.Kind == KindSwitch {
		if err := checkRule(&merged, false); err != nil {
			return Vector{}, err
		}
	}
	return merged, nil
}
