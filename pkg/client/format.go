package client

import (
	"fmt"
	"strings"

	"github.com/indi-protocol/indi-go/pkg/model"
)

// ElementValue renders an element's value for display. Numbers use the
// element's printf or sexagesimal format with padding removed.
func ElementValue(kind model.Kind, el model.Element) string {
	switch kind {
	case model.KindSwitch:
		return el.Switch.String()
	case model.KindText:
		return el.Text
	case model.KindLight:
		return el.Light.String()
	case model.KindNumber:
		return strings.TrimSpace(model.FormatNumber(el.Number.Value, el.Number.Format))
	case model.KindBLOB:
		return fmt.Sprintf("%d bytes (%s)", el.BLOB.Size, el.BLOB.Format)
	}
	return ""
}
