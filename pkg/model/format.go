package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sexagesimalRe = regexp.MustCompile(`^%(\d+)\.(\d+)m$`)

// sexagesimal fraction bases by precision: units per degree.
var sexagesimalBase = map[int]float64{
	3: 60,     // d:mm
	5: 600,    // d:mm.m
	6: 3600,   // d:mm:ss
	8: 36000,  // d:mm:ss.s
	9: 360000, // d:mm:ss.ss
}

// ParseSexagesimalFormat reports the width and precision of a "%<w>.<f>m"
// format.
func ParseSexagesimalFormat(format string) (width, precision int, ok bool) {
	m := sexagesimalRe.FindStringSubmatch(format)
	if m == nil {
		return 0, 0, false
	}
	width, _ = strconv.Atoi(m[1])
	precision, _ = strconv.Atoi(m[2])
	return width, precision, true
}

// FormatNumber renders value using an INDI number format: a printf-style
// conversion (%g, %.2f, %6.0f, %d, ...) or sexagesimal %<w>.<f>m.
// Unsupported formats fall back to the shortest %g representation.
func FormatNumber(value float64, format string) string {
	if w, p, ok := ParseSexagesimalFormat(format); ok {
		if s, err := FormatSexagesimal(value, w, p); err == nil {
			return s
		}
		return strconv.FormatFloat(value, 'g', -1, 64)
	}
	if s, ok := formatPrintf(value, format); ok {
		return s
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}

// formatPrintf translates a C printf number conversion to fmt.
func formatPrintf(value float64, format string) (string, bool) {
	start := strings.IndexByte(format, '%')
	if start < 0 {
		return "", false
	}
	i := start + 1
	for i < len(format) && strings.IndexByte("-+ #0'", format[i]) >= 0 {
		i++
	}
	for i < len(format) && (format[i] >= '0' && format[i] <= '9' || format[i] == '.') {
		i++
	}
	specEnd := i
	for i < len(format) && strings.IndexByte("hlLqjzt", format[i]) >= 0 {
		i++
	}
	if i >= len(format) {
		return "", false
	}
	spec := strings.ReplaceAll(format[start:specEnd], "'", "")
	verb := format[i]
	prefix, suffix := format[:start], format[i+1:]

	switch verb {
	case 'e', 'E', 'f', 'g', 'G':
		return prefix + fmt.Sprintf(spec+string(verb), value) + suffix, true
	case 'F':
		return prefix + fmt.Sprintf(spec+"f", value) + suffix, true
	case 'd', 'i', 'u':
		return prefix + fmt.Sprintf(spec+"d", int64(math.Round(value))) + suffix, true
	case 'x', 'X', 'o':
		return prefix + fmt.Sprintf(spec+string(verb), int64(math.Round(value))) + suffix, true
	default:
		return "", false
	}
}

// FormatSexagesimal renders value as degrees (or hours) and minutes/seconds.
// Precision selects the layout: 3 d:mm, 5 d:mm.m, 6 d:mm:ss, 8 d:mm:ss.s,
// 9 d:mm:ss.ss. Positive values are left-padded; negative values carry a
// leading minus and no padding.
func FormatSexagesimal(value float64, width, precision int) (string, error) {
	base, ok := sexagesimalBase[precision]
	if !ok {
		return "", fmt.Errorf("%w: sexagesimal precision %d", ErrInvalidValue, precision)
	}
	negative := value < 0
	units := int64(math.Round(math.Abs(value) * base))
	perDegree := int64(base)
	whole := units / perDegree
	frac := units % perDegree

	var numeric string
	switch precision {
	case 3:
		numeric = fmt.Sprintf("%d:%02d", whole, frac)
	case 5:
		numeric = fmt.Sprintf("%d:%02d.%d", whole, frac/10, frac%10)
	case 6:
		numeric = fmt.Sprintf("%d:%02d:%02d", whole, frac/60, frac%60)
	case 8:
		sec := frac % 600
		numeric = fmt.Sprintf("%d:%02d:%02d.%d", whole, frac/600, sec/10, sec%10)
	case 9:
		sec := frac % 6000
		numeric = fmt.Sprintf("%d:%02d:%02d.%02d", whole, frac/6000, sec/100, sec%100)
	}

	if negative {
		return "-" + numeric, nil
	}

	var pad int
	switch {
	case width == 7 && whole >= 100:
		pad = 1
	case width == 7 && whole >= 10:
		pad = 2
	case width == 7:
		pad = 3
	case whole >= 10:
		pad = 1
	default:
		pad = 2
	}
	return strings.Repeat(" ", pad) + numeric, nil
}

// ParseNumber parses a number element value. Plain decimal and sexagesimal
// forms ("-12:30", "12 30", "12;30;15.5") are accepted. The sign of a
// sexagesimal value is taken from its first field, so "-0:30" is -0.5.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidValue)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ';' || r == ' ' || r == '\t'
	})
	if len(parts) == 0 {
		return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
	}

	first, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
	}
	negative := strings.HasPrefix(parts[0], "-")
	value := math.Abs(first)
	scale := 1.0 / 60
	for _, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
		}
		value += v * scale
		scale /= 60
	}
	if negative {
		value = -value
	}
	return value, nil
}
