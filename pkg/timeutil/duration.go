package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDuration is returned for malformed duration strings, including
// bare integers (no unit, so the intent is ambiguous).
var ErrInvalidDuration = errors.New("invalid duration")

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 60 * 60,
	'd': 60 * 60 * 24,
	'w': 60 * 60 * 24 * 7,
}

// ParseDuration parses the staff-facing `1w2d3h4m5s` syntax: one or more
// <integer><unit> pairs in any order, units w/d/h/m/s. A bare integer is
// rejected. The result is rounded up by one second so that a fire time
// computed from it never lands short of the requested delay.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidDuration)
	}
	var total int64
	var digits int64
	haveDigits := false
	haveUnit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			digits = digits*10 + int64(c-'0')
			haveDigits = true
			continue
		}
		mult, ok := unitSeconds[c]
		if !ok || !haveDigits {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		total += digits * mult
		digits = 0
		haveDigits = false
		haveUnit = true
	}
	if !haveUnit || haveDigits {
		// all digits consumed with no trailing unit, or no unit at all
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return time.Duration(total+1) * time.Second, nil
}

// ResolveDuration parses s and anchors it to now, returning the absolute
// fire time in UTC.
func ResolveDuration(s string, now time.Time) (time.Time, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return time.Time{}, err
	}
	return now.UTC().Add(d), nil
}

// IsPermanent reports whether s is one of the no-expiry sentinels accepted
// by expiry-setting flows (appeal deny). The sentinels are not valid input
// to close scheduling.
func IsPermanent(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permanent", "forever":
		return true
	}
	return false
}

var humanUnits = []struct {
	name string
	secs int64
}{
	{"week", 604800},
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// HumanizeDuration renders d as "2 days, 3 hours" for channel notices.
func HumanizeDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0 seconds"
	}
	var parts []string
	for _, u := range humanUnits {
		n := secs / u.secs
		secs %= u.secs
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	return strings.Join(parts, ", ")
}
