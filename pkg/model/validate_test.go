package model

import (
	"errors"
	"testing"
	"time"
)

func connectionVector() Vector {
	return Vector{
		Kind:   KindSwitch,
		Device: "CCD Simulator",
		Name:   "CONNECTION",
		Label:  "Connection",
		Group:  "Main Control",
		Perm:   PermRW,
		State:  StateIdle,
		Rule:   RuleOneOfMany,
		Elements: []Element{
			{Name: "CONNECT", Label: "Connect", Switch: SwitchOff},
			{Name: "DISCONNECT", Label: "Disconnect", Switch: SwitchOn},
		},
	}
}

func exposureVector() Vector {
	return Vector{
		Kind:   KindNumber,
		Device: "CCD Simulator",
		Name:   "CCD_EXPOSURE",
		Perm:   PermRW,
		Elements: []Element{
			{Name: "CCD_EXPOSURE_VALUE", Number: Number{Value: 1, Format: "%5.2f", Min: 0, Max: 3600, Step: 0.5}},
		},
	}
}

func switchDelta(v Vector, states map[string]SwitchState) Vector {
	d := Vector{Kind: KindSwitch, Device: v.Device, Name: v.Name}
	for _, el := range v.Elements {
		if s, ok := states[el.Name]; ok {
			d.Elements = append(d.Elements, Element{Name: el.Name, Switch: s})
		}
	}
	return d
}

func TestValidateNewOneOfMany(t *testing.T) {
	current := connectionVector()
	val := DefaultValidator()

	t.Run("SingleOnAccepted", func(t *testing.T) {
		got, err := val.ValidateNew(current, switchDelta(current, map[string]SwitchState{"CONNECT": SwitchOn}))
		if err != nil {
			t.Fatalf("ValidateNew: %v", err)
		}
		if el, _ := got.Element("CONNECT"); el.Switch != SwitchOn {
			t.Errorf("CONNECT = %v, want On", el.Switch)
		}
		if el, _ := got.Element("DISCONNECT"); el.Switch != SwitchOff {
			t.Errorf("DISCONNECT = %v, want Off", el.Switch)
		}
		if el, _ := current.Element("DISCONNECT"); el.Switch != SwitchOn {
			t.Error("current vector was modified")
		}
	})

	t.Run("TwoOnRejected", func(t *testing.T) {
		_, err := val.ValidateNew(current, switchDelta(current, map[string]SwitchState{
			"CONNECT": SwitchOn, "DISCONNECT": SwitchOn,
		}))
		if !errors.Is(err, ErrRuleViolation) {
			t.Errorf("expected ErrRuleViolation, got %v", err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Name != "CONNECTION" {
			t.Errorf("expected ValidationError for CONNECTION, got %v", err)
		}
	})

	t.Run("AllOffRejected", func(t *testing.T) {
		_, err := val.ValidateNew(current, switchDelta(current, map[string]SwitchState{"DISCONNECT": SwitchOff}))
		if !errors.Is(err, ErrRuleViolation) {
			t.Errorf("expected ErrRuleViolation, got %v", err)
		}
	})

	t.Run("UnknownElement", func(t *testing.T) {
		d := Vector{Kind: KindSwitch, Device: current.Device, Name: current.Name,
			Elements: []Element{{Name: "RECONNECT", Switch: SwitchOn}}}
		if _, err := val.ValidateNew(current, d); !errors.Is(err, ErrUnknownElement) {
			t.Errorf("expected ErrUnknownElement, got %v", err)
		}
	})

	t.Run("KindMismatch", func(t *testing.T) {
		d := Vector{Kind: KindText, Device: current.Device, Name: current.Name,
			Elements: []Element{{Name: "CONNECT", Text: "On"}}}
		if _, err := val.ValidateNew(current, d); !errors.Is(err, ErrKindMismatch) {
			t.Errorf("expected ErrKindMismatch, got %v", err)
		}
	})
}

func TestValidateNewSwitchRules(t *testing.T) {
	base := Vector{
		Kind: KindSwitch, Device: "Mount", Name: "TRACK", Perm: PermRW,
		Elements: []Element{{Name: "A"}, {Name: "B"}, {Name: "C"}},
	}
	tests := []struct {
		name    string
		rule    Rule
		delta   map[string]SwitchState
		wantErr bool
	}{
		{"AtMostOne none", RuleAtMostOne, map[string]SwitchState{"A": SwitchOff}, false},
		{"AtMostOne one", RuleAtMostOne, map[string]SwitchState{"B": SwitchOn}, false},
		{"AtMostOne two", RuleAtMostOne, map[string]SwitchState{"A": SwitchOn, "B": SwitchOn}, true},
		{"AnyOfMany two", RuleAnyOfMany, map[string]SwitchState{"A": SwitchOn, "C": SwitchOn}, false},
		{"AnyOfMany none", RuleAnyOfMany, map[string]SwitchState{"A": SwitchOff}, true},
	}

	val := DefaultValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := base.Clone()
			current.Rule = tt.rule
			_, err := val.ValidateNew(current, switchDelta(current, tt.delta))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNew error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNewReadOnly(t *testing.T) {
	current := connectionVector()
	current.Perm = PermRO
	_, err := DefaultValidator().ValidateNew(current, switchDelta(current, map[string]SwitchState{"CONNECT": SwitchOn}))
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}

	light := Vector{Kind: KindLight, Device: "D", Name: "L", Elements: []Element{{Name: "X"}}}
	_, err = DefaultValidator().ValidateNew(light, Vector{Kind: KindLight, Elements: []Element{{Name: "X", Light: StateOk}}})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly for light, got %v", err)
	}
}

func numberDelta(value float64) Vector {
	return Vector{
		Kind: KindNumber, Device: "CCD Simulator", Name: "CCD_EXPOSURE",
		Elements: []Element{{Name: "CCD_EXPOSURE_VALUE", Number: Number{Value: value}}},
	}
}

func TestValidateNewNumberRange(t *testing.T) {
	current := exposureVector()

	t.Run("InRange", func(t *testing.T) {
		got, err := DefaultValidator().ValidateNew(current, numberDelta(2.5))
		if err != nil {
			t.Fatalf("ValidateNew: %v", err)
		}
		el, _ := got.Element("CCD_EXPOSURE_VALUE")
		if el.Number.Value != 2.5 || el.Number.Format != "%5.2f" || el.Number.Max != 3600 {
			t.Errorf("unexpected element %+v", el.Number)
		}
	})

	t.Run("RejectAboveMax", func(t *testing.T) {
		_, err := DefaultValidator().ValidateNew(current, numberDelta(4000))
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("expected ErrOutOfRange, got %v", err)
		}
	})

	t.Run("RejectStep", func(t *testing.T) {
		_, err := DefaultValidator().ValidateNew(current, numberDelta(1.2))
		if !errors.Is(err, ErrStepMismatch) {
			t.Errorf("expected ErrStepMismatch, got %v", err)
		}
	})

	t.Run("IgnoreStep", func(t *testing.T) {
		val := Validator{Policy: RangeReject, IgnoreStep: true}
		if _, err := val.ValidateNew(current, numberDelta(1.2)); err != nil {
			t.Errorf("ValidateNew: %v", err)
		}
	})

	t.Run("Clamp", func(t *testing.T) {
		val := Validator{Policy: RangeClamp}
		got, err := val.ValidateNew(current, numberDelta(4000))
		if err != nil {
			t.Fatalf("ValidateNew: %v", err)
		}
		if el, _ := got.Element("CCD_EXPOSURE_VALUE"); el.Number.Value != 3600 {
			t.Errorf("clamped value = %v, want 3600", el.Number.Value)
		}

		got, err = val.ValidateNew(current, numberDelta(1.2))
		if err != nil {
			t.Fatalf("ValidateNew: %v", err)
		}
		if el, _ := got.Element("CCD_EXPOSURE_VALUE"); el.Number.Value != 1.0 {
			t.Errorf("snapped value = %v, want 1.0", el.Number.Value)
		}
	})
}

func TestValidateDef(t *testing.T) {
	if err := ValidateDef(connectionVector()); err != nil {
		t.Errorf("ValidateDef: %v", err)
	}

	dup := connectionVector()
	dup.Elements[1].Name = "CONNECT"
	if err := ValidateDef(dup); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	empty := connectionVector()
	empty.Elements = nil
	if err := ValidateDef(empty); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("expected ErrEmptyVector, got %v", err)
	}

	twoOn := connectionVector()
	twoOn.Elements[0].Switch = SwitchOn
	if err := ValidateDef(twoOn); !errors.Is(err, ErrRuleViolation) {
		t.Errorf("expected ErrRuleViolation, got %v", err)
	}

	noneOn := connectionVector()
	noneOn.Elements[1].Switch = SwitchOff
	if err := ValidateDef(noneOn); err != nil {
		t.Errorf("OneOfMany with nothing selected should be definable: %v", err)
	}
}

func TestMergeSet(t *testing.T) {
	current := connectionVector()

	t.Run("OmittedAttributesUnchanged", func(t *testing.T) {
		delta := switchDelta(current, map[string]SwitchState{"CONNECT": SwitchOn, "DISCONNECT": SwitchOff})
		delta.State = StateOk
		delta.Message = "connected"

		got, err := MergeSet(current, delta)
		if err != nil {
			t.Fatalf("MergeSet: %v", err)
		}
		if got.Label != "Connection" || got.Group != "Main Control" {
			t.Errorf("label/group = %q/%q, want unchanged", got.Label, got.Group)
		}
		if got.Perm != PermRW || got.Rule != RuleOneOfMany {
			t.Errorf("perm/rule changed: %v/%v", got.Perm, got.Rule)
		}
		if got.State != StateOk || got.Message != "connected" {
			t.Errorf("state/message = %v/%q", got.State, got.Message)
		}
	})

	t.Run("AbsentStateKept", func(t *testing.T) {
		c := current.Clone()
		c.State = StateBusy
		c.Timeout = 60
		delta := switchDelta(c, map[string]SwitchState{"DISCONNECT": SwitchOn})
		delta.Absent = AbsentState | AbsentTimeout

		got, err := MergeSet(c, delta)
		if err != nil {
			t.Fatalf("MergeSet: %v", err)
		}
		if got.State != StateBusy || got.Timeout != 60 {
			t.Errorf("state/timeout = %v/%v, want Busy/60", got.State, got.Timeout)
		}
	})

	t.Run("NewElementRejected", func(t *testing.T) {
		delta := Vector{Kind: KindSwitch, Device: current.Device, Name: current.Name,
			Elements: []Element{{Name: "EXTRA", Switch: SwitchOn}}}
		if _, err := MergeSet(current, delta); !errors.Is(err, ErrUnknownElement) {
			t.Errorf("expected ErrUnknownElement, got %v", err)
		}
	})

	t.Run("TwoOnRejected", func(t *testing.T) {
		delta := switchDelta(current, map[string]SwitchState{"CONNECT": SwitchOn})
		if _, err := MergeSet(current, delta); !errors.Is(err, ErrRuleViolation) {
			t.Errorf("expected ErrRuleViolation, got %v", err)
		}
	})
}

func TestExpiry(t *testing.T) {
	v := exposureVector()
	refreshed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if v.Expired(refreshed, refreshed.Add(time.Hour)) {
		t.Error("vector without timeout must never expire")
	}

	v.Timeout = 5
	if v.Expired(refreshed, refreshed.Add(4*time.Second)) {
		t.Error("expired too early")
	}
	if !v.Expired(refreshed, refreshed.Add(5*time.Second)) {
		t.Error("not expired at deadline")
	}
}

func TestSameState(t *testing.T) {
	a := connectionVector()
	b := a.Clone()
	b.Timestamp = time.Now()
	b.Message = "ignored"
	if !a.SameState(&b) {
		t.Error("timestamp and message must not affect SameState")
	}
	b.Elements[0].Switch = SwitchOn
	if a.SameState(&b) {
		t.Error("element change not detected")
	}
}
