package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/indi-protocol/indi-go/pkg/model"
)

// DefaultMaxElementSize bounds a single buffered element.
const DefaultMaxElementSize = 1 << 20

// Decoder errors.
var (
	// ErrIncomplete means the buffer holds no complete element yet.
	ErrIncomplete = errors.New("incomplete element")

	ErrElementTooLarge  = errors.New("element exceeds maximum size")
	ErrUnexpectedText   = errors.New("unexpected text between elements")
	ErrUnknownElement   = errors.New("unknown element")
	ErrMissingAttribute = errors.New("missing attribute")
	ErrMalformed        = errors.New("malformed element")
)

// DecodeError reports an element that could not be decoded. The offending
// bytes have already been consumed.
type DecodeError struct {
	Fragment []byte
	Err      error
}

func (e *DecodeError) Error() string {
	frag := e.Fragment
	if len(frag) > 64 {
		frag = frag[:64]
	}
	return fmt.Sprintf("decode %q: %v", frag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder splits an unframed INDI byte stream into messages.
type Decoder struct {
	buf     []byte
	maxSize int
}

// NewDecoder returns a decoder with DefaultMaxElementSize.
func NewDecoder() *Decoder {
	return NewDecoderSize(DefaultMaxElementSize)
}

// NewDecoderSize returns a decoder that rejects elements larger than max bytes.
func NewDecoderSize(max int) *Decoder {
	if max <= 0 {
		max = DefaultMaxElementSize
	}
	return &Decoder{maxSize: max}
}

// Feed appends a chunk of the stream.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next returns the next complete message. It returns ErrIncomplete when more
// input is needed and a *DecodeError for a malformed element, after which
// decoding can continue.
func (d *Decoder) Next() (Message, error) {
	msg, _, err := d.NextRaw()
	return msg, err
}

// NextRaw is Next that also returns the raw element bytes.
func (d *Decoder) NextRaw() (Message, []byte, error) {
	for {
		d.buf = bytes.TrimLeft(d.buf, " \t\r\n")
		if len(d.buf) == 0 {
			d.buf = d.buf[:0]
			return nil, nil, ErrIncomplete
		}

		if d.buf[0] != '<' {
			n := bytes.IndexByte(d.buf, '<')
			if n < 0 {
				n = len(d.buf)
			}
			junk := d.take(n)
			return nil, junk, &DecodeError{Fragment: junk, Err: ErrUnexpectedText}
		}

		end, err := scanElement(d.buf)
		if err != nil {
			n := bytes.IndexByte(d.buf, '>') + 1
			if n <= 0 {
				n = len(d.buf)
			}
			frag := d.take(n)
			return nil, frag, &DecodeError{Fragment: frag, Err: err}
		}
		if end < 0 {
			if len(d.buf) > d.maxSize {
				frag := d.buf[:min(len(d.buf), 256)]
				d.buf = nil
				return nil, frag, &DecodeError{Fragment: frag, Err: ErrElementTooLarge}
			}
			return nil, nil, ErrIncomplete
		}

		frag := d.take(end)
		if bytes.HasPrefix(frag, []byte("<?")) || bytes.HasPrefix(frag, []byte("<!")) {
			continue
		}
		msg, err := Decode(frag)
		if err != nil {
			return nil, frag, &DecodeError{Fragment: frag, Err: err}
		}
		return msg, frag, nil
	}
}

func (d *Decoder) take(n int) []byte {
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out
}

// scanElement returns the length of the first top-level element in b, or -1
// if b ends before the element does.
func scanElement(b []byte) (int, error) {
	depth := 0
	i := 0
	for i < len(b) {
		if b[i] != '<' {
			i++
			continue
		}
		rest := b[i:]
		if len(rest) < 2 {
			return -1, nil
		}

		switch {
		case bytes.HasPrefix(rest, []byte("<!--")):
			j := bytes.Index(rest[4:], []byte("-->"))
			if j < 0 {
				return -1, nil
			}
			i += 4 + j + 3
		case bytes.HasPrefix(rest, []byte("<![CDATA[")):
			j := bytes.Index(rest[9:], []byte("]]>"))
			if j < 0 {
				return -1, nil
			}
			i += 9 + j + 3
		case rest[1] == '!' && (len(rest) < 9 && (bytes.HasPrefix([]byte("<!--"), rest) || bytes.HasPrefix([]byte("<![CDATA["), rest))):
			return -1, nil
		case rest[1] == '?':
			j := bytes.Index(rest, []byte("?>"))
			if j < 0 {
				return -1, nil
			}
			i += j + 2
		case rest[1] == '!':
			j := bytes.IndexByte(rest, '>')
			if j < 0 {
				return -1, nil
			}
			i += j + 1
		case rest[1] == '/':
			j := bytes.IndexByte(rest, '>')
			if j < 0 {
				return -1, nil
			}
			depth--
			if depth < 0 {
				return 0, fmt.Errorf("%w: unmatched end tag", ErrMalformed)
			}
			i += j + 1
			if depth == 0 {
				return i, nil
			}
			continue
		default:
			j, selfClosing := scanTag(rest)
			if j < 0 {
				return -1, nil
			}
			i += j + 1
			if !selfClosing {
				depth++
				continue
			}
		}
		if depth == 0 {
			return i, nil
		}
	}
	return -1, nil
}

// scanTag returns the index of the '>' closing the start tag at the front of
// b, skipping quoted attribute values.
func scanTag(b []byte) (int, bool) {
	var quote byte
	for i := 1; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i, b[i-1] == '/'
		}
	}
	return -1, false
}

// node is a generic XML element.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) require(name string) (string, error) {
	v, ok := n.attr(name)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w: %s", n.XMLName.Local, ErrMissingAttribute, name)
	}
	return v, nil
}

func (n *node) value() string {
	return strings.TrimSpace(n.Text)
}

// text strips only the line framing Encode puts around a value: one leading
// newline and a trailing newline followed by indentation.
func (n *node) text() string {
	s := n.Text
	if strings.HasPrefix(s, "\r\n") {
		s = s[2:]
	} else {
		s = strings.TrimPrefix(s, "\n")
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 && strings.Trim(s[i+1:], " \t") == "" {
		s = strings.TrimSuffix(s[:i], "\r")
	}
	return s
}

// Decode parses exactly one complete element.
func Decode(data []byte) (Message, error) {
	var n node
	if err := xml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromNode(&n)
}

func fromNode(n *node) (Message, error) {
	switch n.XMLName.Local {
	case "getProperties":
		version, _ := n.attr("version")
		device, _ := n.attr("device")
		prop, _ := n.attr("name")
		return &GetProperties{Version: version, Device: device, Name: prop}, nil

	case "delProperty":
		device, err := n.require("device")
		if err != nil {
			return nil, err
		}
		prop, _ := n.attr("name")
		msg, _ := n.attr("message")
		ts, err := optTimestamp(n)
		if err != nil {
			return nil, err
		}
		return &DelProperty{Device: device, Name: prop, Timestamp: ts, Message: msg}, nil

	case "enableBLOB":
		device, err := n.require("device")
		if err != nil {
			return nil, err
		}
		prop, _ := n.attr("name")
		mode, err := model.ParseBLOBMode(n.value())
		if err != nil {
			return nil, err
		}
		return &EnableBLOB{Device: device, Name: prop, Mode: mode}, nil

	case "message":
		device, _ := n.attr("device")
		text, _ := n.attr("message")
		ts, err := optTimestamp(n)
		if err != nil {
			return nil, err
		}
		return &PlainMessage{Device: device, Timestamp: ts, Text: text}, nil
	}

	verb, kind, ok := parseVectorElement(n.XMLName.Local)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, n.XMLName.Local)
	}
	v, err := decodeVector(n, verb, kind)
	if err != nil {
		return nil, err
	}
	return NewMessage(verb, v), nil
}

func parseVectorElement(name string) (Verb, model.Kind, bool) {
	if len(name) < 4 || !strings.HasSuffix(name, "Vector") {
		return 0, 0, false
	}
	var verb Verb
	switch name[:3] {
	case "def":
		verb = VerbDef
	case "set":
		verb = VerbSet
	case "new":
		verb = VerbNew
	default:
		return 0, 0, false
	}
	kind, err := model.ParseKind(strings.TrimSuffix(name[3:], "Vector"))
	if err != nil {
		return 0, 0, false
	}
	return verb, kind, true
}

func decodeVector(n *node, verb Verb, kind model.Kind) (model.Vector, error) {
	v := model.Vector{Kind: kind}
	var err error
	if v.Device, err = n.require("device"); err != nil {
		return v, err
	}
	if v.Name, err = n.require("name"); err != nil {
		return v, err
	}
	v.Label, _ = n.attr("label")
	v.Group, _ = n.attr("group")
	v.Message, _ = n.attr("message")

	if s, ok := n.attr("state"); ok {
		if v.State, err = model.ParseState(s); err != nil {
			return v, err
		}
	} else if verb == VerbDef {
		return v, fmt.Errorf("%s: %w: state", n.XMLName.Local, ErrMissingAttribute)
	} else {
		v.Absent |= model.AbsentState
	}

	if s, ok := n.attr("perm"); ok {
		if v.Perm, err = model.ParsePerm(s); err != nil {
			return v, err
		}
	} else if verb == VerbDef && kind != model.KindLight {
		return v, fmt.Errorf("%s: %w: perm", n.XMLName.Local, ErrMissingAttribute)
	}

	if s, ok := n.attr("rule"); ok && kind == model.KindSwitch {
		if v.Rule, err = model.ParseRule(s); err != nil {
			return v, err
		}
	} else if verb == VerbDef && kind == model.KindSwitch {
		return v, fmt.Errorf("%s: %w: rule", n.XMLName.Local, ErrMissingAttribute)
	}

	if s, ok := n.attr("timeout"); ok && strings.TrimSpace(s) != "" {
		if v.Timeout, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil || v.Timeout < 0 {
			return v, fmt.Errorf("%w: timeout %q", model.ErrInvalidValue, s)
		}
	} else {
		v.Absent |= model.AbsentTimeout
	}

	if v.Timestamp, err = optTimestamp(n); err != nil {
		return v, err
	}

	want := childElement(verb, kind)
	v.Elements = make([]model.Element, 0, len(n.Children))
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local != want {
			return v, fmt.Errorf("%w: %s inside %s", ErrUnknownElement, c.XMLName.Local, n.XMLName.Local)
		}
		el, err := decodeElement(c, verb, kind)
		if err != nil {
			return v, err
		}
		v.Elements = append(v.Elements, el)
	}
	return v, nil
}

func decodeElement(c *node, verb Verb, kind model.Kind) (model.Element, error) {
	var el model.Element
	var err error
	if el.Name, err = c.require("name"); err != nil {
		return el, err
	}
	el.Label, _ = c.attr("label")

	switch kind {
	case model.KindSwitch:
		el.Switch, err = model.ParseSwitchState(c.value())
	case model.KindLight:
		el.Light, err = model.ParseState(c.value())
	case model.KindText:
		el.Text = c.text()
	case model.KindNumber:
		el.Number.Value, err = model.ParseNumber(c.value())
		if err == nil && verb == VerbDef {
			el.Number.Format, _ = c.attr("format")
			if el.Number.Min, err = numberAttr(c, "min"); err != nil {
				break
			}
			if el.Number.Max, err = numberAttr(c, "max"); err != nil {
				break
			}
			el.Number.Step, err = numberAttr(c, "step")
		}
	case model.KindBLOB:
		if verb == VerbDef {
			break
		}
		el.BLOB.Format, _ = c.attr("format")
		el.BLOB.Data, err = decodeBase64(c.Text)
		if err != nil {
			break
		}
		el.BLOB.Size = len(el.BLOB.Data)
		if s, ok := c.attr("size"); ok && s != "" {
			if el.BLOB.Size, err = strconv.Atoi(strings.TrimSpace(s)); err != nil {
				err = fmt.Errorf("%w: size %q", model.ErrInvalidValue, s)
			}
		}
	}
	if err != nil {
		return el, fmt.Errorf("element %s: %w", el.Name, err)
	}
	return el, nil
}

func numberAttr(c *node, name string) (float64, error) {
	s, ok := c.attr(name)
	if !ok || strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return model.ParseNumber(s)
}

func optTimestamp(n *node) (time.Time, error) {
	s, ok := n.attr("timestamp")
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return model.ParseTimestamp(s)
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", model.ErrInvalidValue, err)
	}
	return data, nil
}
