package policy

import (
	"regexp"
	"strconv"
	"time"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

var windowRe = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})\s*$`)

// ParseWindow parses "H:MM-H:MM" into minutes since midnight.
// Hours are 0-23, minutes 0-59, and start must differ from end.
func ParseWindow(s string) (domain.TimeWindow, error) {
	m := windowRe.FindStringSubmatch(s)
	if m == nil {
		return domain.TimeWindow{}, &domain.FormatError{Kind: "window", Value: s, Reason: "expected HH:MM-HH:MM"}
	}
	start, err := clockMinutes(s, m[1], m[2])
	if err != nil {
		return domain.TimeWindow{}, err
	}
	end, err := clockMinutes(s, m[3], m[4])
	if err != nil {
		return domain.TimeWindow{}, err
	}
	if start == end {
		return domain.TimeWindow{}, &domain.FormatError{Kind: "window", Value: s, Reason: "start equals end"}
	}
	return domain.TimeWindow{Start: start, End: end}, nil
}

func clockMinutes(raw, hh, mm string) (int, error) {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	if h > 23 {
		return 0, &domain.FormatError{Kind: "window", Value: raw, Reason: "hour out of range"}
	}
	if m > 59 {
		return 0, &domain.FormatError{Kind: "window", Value: raw, Reason: "minute out of range"}
	}
	return h*60 + m, nil
}

// NormalizeWindow returns the zero-padded HH:MM-HH:MM form.
func NormalizeWindow(s string) (string, error) {
	w, err := ParseWindow(s)
	if err != nil {
		return "", err
	}
	return w.String(), nil
}

// MinuteOfDay converts t's local wall clock to minutes since midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// WindowActive reports whether now falls inside window s.
// Unparseable windows are never active.
func WindowActive(s string, now time.Time) bool {
	w, err := ParseWindow(s)
	if err != nil {
		return false
	}
	return w.Contains(MinuteOfDay(now))
}

// AnyWindowActive reports whether now falls inside any of the windows.
func AnyWindowActive(windows []string, now time.Time) bool {
	for _, s := range windows {
		if WindowActive(s, now) {
			return true
		}
	}
	return false
}
