package client

import (
	"testing"

	"github.com/indi-protocol/indi-go/pkg/model"
)

func TestElementValue(t *testing.T) {
	tests := []struct {
		name string
		kind model.Kind
		el   model.Element
		want string
	}{
		{"switch", model.KindSwitch, model.Element{Switch: model.SwitchOn}, "On"},
		{"text", model.KindText, model.Element{Text: "EQMod"}, "EQMod"},
		{"light", model.KindLight, model.Element{Light: model.StateAlert}, "Alert"},
		{"number", model.KindNumber, model.Element{Number: model.Number{Value: 1000, Format: "%6.0f"}}, "1000"},
		{"blob", model.KindBLOB, model.Element{BLOB: model.BLOB{Size: 12, Format: ".fits"}}, "12 bytes (.fits)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElementValue(tt.kind, tt.el); got != tt.want {
				t.Errorf("ElementValue() = %q, want %q", got, tt.want)
			}
		})
	}
}
