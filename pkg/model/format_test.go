package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFormatSexagesimal(t *testing.T) {
	tests := []struct {
		value     float64
		width     int
		precision int
		want      string
	}{
		{123.75, 7, 3, " 123:45"},
		{-123.75, 7, 3, "-123:45"},
		{1.5, 7, 3, "   1:30"},
		{1.5, 7, 5, "   1:30.0"},
		{1.525, 7, 5, "   1:31.5"},
		{-1.525, 7, 5, "-1:31.5"},
		{1.5, 9, 6, "  1:30:00"},
		{12.5, 9, 6, " 12:30:00"},
		{-1.5, 9, 6, "-1:30:00"},
		{1.508333, 9, 8, "  1:30:30.0"},
		{12.508333, 9, 8, " 12:30:30.0"},
		{-1.508333, 9, 8, "-1:30:30.0"},
		{1.508333, 9, 9, "  1:30:30.00"},
		{12.508333, 9, 9, " 12:30:30.00"},
		{-1.508333, 9, 9, "-1:30:30.00"},
		{1.99999, 9, 6, "  2:00:00"},
	}

	for _, tt := range tests {
		got, err := FormatSexagesimal(tt.value, tt.width, tt.precision)
		if err != nil {
			t.Errorf("FormatSexagesimal(%v, %d, %d) error: %v", tt.value, tt.width, tt.precision, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatSexagesimal(%v, %d, %d) = %q, want %q", tt.value, tt.width, tt.precision, got, tt.want)
		}
	}
}

func TestFormatSexagesimalBadPrecision(t *testing.T) {
	_, err := FormatSexagesimal(1, 9, 4)
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value  float64
		format string
		want   string
	}{
		{1.5, "%g", "1.5"},
		{1.5, "%.2f", "1.50"},
		{3.14159, "%6.2f", "  3.14"},
		{42.4, "%d", "42"},
		{42.6, "%5.0f", "   43"},
		{1000, "%.3e", "1.000e+03"},
		{2.5, "%lf", "2.500000"},
		{1.5, "%9.6m", "  1:30:00"},
		{1.5, "", "1.5"},
		{1.5, "%s", "1.5"},
		{7, "%02d s", "07 s"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.value, tt.format); got != tt.want {
			t.Errorf("FormatNumber(%v, %q) = %q, want %q", tt.value, tt.format, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"  12.5\n", 12.5},
		{"-12:30", -12.5},
		{"12:30:00", 12.5},
		{"12 30", 12.5},
		{"12;30;36", 12.51},
		{"-0:30", -0.5},
		{"1e3", 1000},
	}

	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if err != nil {
			t.Errorf("ParseNumber(%q) error: %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseNumberInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12:xx", "12:-30"} {
		if _, err := ParseNumber(in); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ParseNumber(%q) error = %v, want ErrInvalidValue", in, err)
		}
	}
}

func TestSexagesimalRoundTrip(t *testing.T) {
	for _, v := range []float64{0.25, 5.75, 23.9833333, -45.5} {
		s, err := FormatSexagesimal(v, 9, 6)
		if err != nil {
			t.Fatalf("FormatSexagesimal(%v): %v", v, err)
		}
		got, err := ParseNumber(s)
		if err != nil {
			t.Fatalf("ParseNumber(%q): %v", s, err)
		}
		if math.Abs(got-v) > 1.0/3600 {
			t.Errorf("round trip %v -> %q -> %v", v, s, got)
		}
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2025, 2, 21, 22, 5, 32, 700_000_000, time.UTC)

	if got := FormatTimestamp(ts); got != "2025-02-21T22:05:32" {
		t.Errorf("FormatTimestamp = %q", got)
	}
	if got := FormatTimestampPrecision(ts, 1); got != "2025-02-21T22:05:32.7" {
		t.Errorf("FormatTimestampPrecision = %q", got)
	}

	for _, in := range []string{"2025-02-21T22:05:32.7", "2025-02-21T22:05:32.7Z"} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if !got.Equal(ts) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, ts)
		}
	}

	if _, err := ParseTimestamp("2025-02-21 22:05:32"); err == nil {
		t.Error("expected error for space separator")
	}
	if _, err := ParseTimestamp("2025-02-21T22:05:32+01:00"); err == nil {
		t.Error("expected error for zone offset")
	}
}
