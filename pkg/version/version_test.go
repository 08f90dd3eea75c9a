package version

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.7", 1, 7},
		{"1.0", 1, 0},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major {
				t.Errorf("Major = %d, want %d", v.Major, tt.major)
			}
			if v.Minor != tt.minor {
				t.Errorf("Minor = %d, want %d", v.Minor, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"abc",
		"1.7.0",
		"1.x",
		"-1.0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v15, _ := Parse("1.5")
	v17, _ := Parse("1.7")
	v20, _ := Parse("2.0")

	if !v15.Compatible(v17) || !v17.Compatible(v15) {
		t.Error("1.5 should be compatible with 1.7")
	}
	if v17.Compatible(v20) {
		t.Error("1.7 should NOT be compatible with 2.0")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.7", "1.7", 0},
		{"1.6", "1.7", -1},
		{"1.7", "1.6", 1},
		{"1.9", "2.0", -1},
		{"2.0", "1.9", 1},
	}
	for _, tt := range tests {
		a, _ := Parse(tt.a)
		b, _ := Parse(tt.b)
		if got := a.Compare(b); got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	for _, ok := range []string{"", "1.7", "1.5", "1.12"} {
		if err := Check(ok); err != nil {
			t.Errorf("Check(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"2.0", "0.9", "seven"} {
		if err := Check(bad); !errors.Is(err, ErrIncompatible) {
			t.Errorf("Check(%q) = %v, want ErrIncompatible", bad, err)
		}
	}
}

func TestCurrent(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Parse(Current) returned error: %v", err)
	}
	if v.Major != 1 || v.Minor != 7 {
		t.Errorf("Current version = %s, want 1.7", v)
	}
}
