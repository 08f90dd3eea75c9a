package model

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the INDI timestamp layout: ISO-8601 without a zone.
const TimestampLayout = "2006-01-02T15:04:05"

// FormatTimestamp renders t in UTC without fractional seconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatTimestampPrecision renders t in UTC with the given number of
// fractional second digits (0 to 9).
func FormatTimestampPrecision(t time.Time, digits int) string {
	if digits <= 0 {
		return FormatTimestamp(t)
	}
	if digits > 9 {
		digits = 9
	}
	return t.UTC().Format(TimestampLayout + "." + strings.Repeat("0", digits))
}

// ParseTimestamp parses an INDI timestamp. Fractional seconds are optional.
// A trailing "Z" is tolerated; any other zone designator is rejected. The
// result is in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidValue, s)
	}
	return t, nil
}
