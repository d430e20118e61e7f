package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestParseDurationCombined(t *testing.T) {
	// 1w + 2d + 3h + 4m + 5s, plus the one second round-up
	want := time.Duration(604800+2*86400+3*3600+4*60+5+1) * time.Second
	got, err := ParseDuration("1w2d3h4m5s")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseDurationSingleUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"5s":  6 * time.Second,
		"1m":  61 * time.Second,
		"4h":  (4*3600 + 1) * time.Second,
		"2d":  (2*86400 + 1) * time.Second,
		"10w": (10*604800 + 1) * time.Second,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDurationRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "5", "5x", "s5", "1h30", "h", "1.5h", "one hour"} {
		if _, err := ParseDuration(in); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("ParseDuration(%q) err = %v, want ErrInvalidDuration", in, err)
		}
	}
}

func TestResolveDuration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at, err := ResolveDuration("4h", now)
	if err != nil {
		t.Fatalf("ResolveDuration: %v", err)
	}
	want := now.Add((4*3600 + 1) * time.Second)
	if !at.Equal(want) {
		t.Fatalf("got %v want %v", at, want)
	}
}

func TestIsPermanent(t *testing.T) {
	for _, in := range []string{"permanent", "Forever", " PERMANENT "} {
		if !IsPermanent(in) {
			t.Fatalf("IsPermanent(%q) = false", in)
		}
	}
	for _, in := range []string{"4h", "", "perm"} {
		if IsPermanent(in) {
			t.Fatalf("IsPermanent(%q) = true", in)
		}
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := map[time.Duration]string{
		2*24*time.Hour + 3*time.Hour: "2 days, 3 hours",
		time.Minute:                  "1 minute",
		0:                            "0 seconds",
		90 * time.Second:             "1 minute, 30 seconds",
	}
	for in, want := range cases {
		if got := HumanizeDuration(in); got != want {
			t.Fatalf("HumanizeDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
