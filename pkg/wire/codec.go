package wire

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/indi-protocol/indi-go/pkg/model"
)

// Indent is the prefix written before each vector child element.
const Indent = "    "

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Encode renders msg as a complete top-level element followed by a newline.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes msg to w.
func EncodeTo(w io.Writer, msg Message) error {
	var b bytes.Buffer
	switch m := msg.(type) {
	case *GetProperties:
		version := m.Version
		if version == "" {
			version = ProtocolVersion
		}
		b.WriteString("<getProperties")
		attr(&b, "version", version)
		optAttr(&b, "device", m.Device)
		optAttr(&b, "name", m.Name)
		b.WriteString("/>\n")

	case *DelProperty:
		if m.Device == "" {
			return fmt.Errorf("encode delProperty: %w: device", ErrMissingAttribute)
		}
		b.WriteString("<delProperty")
		attr(&b, "device", m.Device)
		optAttr(&b, "name", m.Name)
		if !m.Timestamp.IsZero() {
			attr(&b, "timestamp", formatTimestamp(m.Timestamp))
		}
		optAttr(&b, "message", m.Message)
		b.WriteString("/>\n")

	case *EnableBLOB:
		if m.Device == "" {
			return fmt.Errorf("encode enableBLOB: %w: device", ErrMissingAttribute)
		}
		b.WriteString("<enableBLOB")
		attr(&b, "device", m.Device)
		optAttr(&b, "name", m.Name)
		b.WriteString(">\n")
		b.WriteString(m.Mode.String())
		b.WriteString("\n</enableBLOB>\n")

	case *PlainMessage:
		b.WriteString("<message")
		optAttr(&b, "device", m.Device)
		if !m.Timestamp.IsZero() {
			attr(&b, "timestamp", formatTimestamp(m.Timestamp))
		}
		attr(&b, "message", m.Text)
		b.WriteString("/>\n")

	case *DefVector:
		if err := encodeVector(&b, VerbDef, &m.Vector); err != nil {
			return err
		}
	case *SetVector:
		if err := encodeVector(&b, VerbSet, &m.Vector); err != nil {
			return err
		}
	case *NewVector:
		if err := encodeVector(&b, VerbNew, &m.Vector); err != nil {
			return err
		}

	default:
		return fmt.Errorf("encode: unsupported message %T", msg)
	}

	_, err := w.Write(b.Bytes())
	return err
}

func encodeVector(b *bytes.Buffer, verb Verb, v *model.Vector) error {
	if v.Device == "" || v.Name == "" {
		return fmt.Errorf("encode %s: %w: device and name", vectorElement(verb, v.Kind), ErrMissingAttribute)
	}

	tag := vectorElement(verb, v.Kind)
	b.WriteByte('<')
	b.WriteString(tag)
	attr(b, "device", v.Device)
	attr(b, "name", v.Name)

	switch verb {
	case VerbDef:
		optAttr(b, "label", v.Label)
		optAttr(b, "group", v.Group)
		attr(b, "state", v.State.String())
		if v.Kind != model.KindLight {
			perm := v.Perm
			if perm == model.PermUnset {
				perm = model.PermRO
			}
			attr(b, "perm", perm.String())
		}
		if v.Kind == model.KindSwitch {
			rule := v.Rule
			if rule == model.RuleUnset {
				rule = model.RuleOneOfMany
			}
			attr(b, "rule", rule.String())
		}
		if v.Kind != model.KindLight {
			attr(b, "timeout", strconv.FormatFloat(v.Timeout, 'g', -1, 64))
		}
	case VerbSet:
		if v.Absent&model.AbsentState == 0 {
			attr(b, "state", v.State.String())
		}
		if v.Absent&model.AbsentTimeout == 0 && v.Timeout > 0 && v.Kind != model.KindLight {
			attr(b, "timeout", strconv.FormatFloat(v.Timeout, 'g', -1, 64))
		}
	}

	if !v.Timestamp.IsZero() {
		attr(b, "timestamp", formatTimestamp(v.Timestamp))
	}
	if verb != VerbNew {
		optAttr(b, "message", v.Message)
	}
	b.WriteString(">\n")

	child := childElement(verb, v.Kind)
	for i := range v.Elements {
		el := &v.Elements[i]
		if el.Name == "" {
			return fmt.Errorf("encode %s %s: %w: element name", tag, v.Key(), ErrMissingAttribute)
		}
		b.WriteString(Indent)
		b.WriteByte('<')
		b.WriteString(child)
		attr(b, "name", el.Name)
		if verb == VerbDef {
			optAttr(b, "label", el.Label)
		}

		switch v.Kind {
		case model.KindSwitch:
			closeChild(b, child, el.Switch.String())
		case model.KindLight:
			closeChild(b, child, el.Light.String())
		case model.KindText:
			closeChild(b, child, escaper.Replace(el.Text))
		case model.KindNumber:
			if verb == VerbDef {
				format := el.Number.Format
				if format == "" {
					format = "%g"
				}
				attr(b, "format", format)
				attr(b, "min", formatPlain(el.Number.Min))
				attr(b, "max", formatPlain(el.Number.Max))
				attr(b, "step", formatPlain(el.Number.Step))
			}
			closeChild(b, child, model.FormatNumber(el.Number.Value, el.Number.Format))
		case model.KindBLOB:
			if verb == VerbDef {
				b.WriteString("/>\n")
				continue
			}
			size := el.BLOB.Size
			if size == 0 {
				size = len(el.BLOB.Data)
			}
			attr(b, "size", strconv.Itoa(size))
			attr(b, "format", el.BLOB.Format)
			closeChild(b, child, base64.StdEncoding.EncodeToString(el.BLOB.Data))
		default:
			return fmt.Errorf("encode %s: %w: kind %d", tag, ErrUnknownElement, v.Kind)
		}
	}

	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">\n")
	return nil
}

func closeChild(b *bytes.Buffer, child, value string) {
	b.WriteString(">\n")
	b.WriteString(value)
	b.WriteString("\n")
	b.WriteString(Indent)
	b.WriteString("</")
	b.WriteString(child)
	b.WriteString(">\n")
}

func attr(b *bytes.Buffer, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(escaper.Replace(value))
	b.WriteByte('"')
}

func optAttr(b *bytes.Buffer, name, value string) {
	if value != "" {
		attr(b, name, value)
	}
}

// formatTimestamp keeps milliseconds when t has a fractional second.
func formatTimestamp(t time.Time) string {
	if t.Nanosecond() == 0 {
		return model.FormatTimestamp(t)
	}
	return model.FormatTimestampPrecision(t, 3)
}

func formatPlain(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
