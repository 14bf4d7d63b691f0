// Package wallclock converts between picked local dates/times and the canonical
// storage strings used for sessions ("YYYY-MM-DD" and 24-hour "HH:MM").
//
// Canonical strings are local wall-clock values, never instants. They are only
// combined into a time.Time for ordering, comparison and reminder triggers.
package wallclock

import (
	"fmt"
	"time"

	"github.com/caseload/caseload/internal/platform/apperr"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// StorageDate formats t using its own year, month and day. The instant is
// never shifted to UTC first, so a late-evening pick west of UTC keeps its day.
func StorageDate(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// StorageTime formats t as a 24-hour "HH:MM" string.
func StorageTime(t time.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseDate parses a canonical date. The returned value is midnight UTC of
// that calendar day, so StorageDate(ParseDate(s)) == s.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, apperr.Validation("date", fmt.Sprintf("%q is not in YYYY-MM-DD form", s))
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation("date", fmt.Sprintf("%q is not a valid calendar date", s))
	}
	return t, nil
}

// ParseTime parses a canonical "HH:MM" time into hour and minute.
func ParseTime(s string) (hour, minute int, err error) {
	if len(s) != len(TimeLayout) || s[2] != ':' {
		return 0, 0, apperr.Validation("time", fmt.Sprintf("%q is not in HH:MM form", s))
	}
	hour, ok1 := twoDigits(s[0:2])
	minute, ok2 := twoDigits(s[3:5])
	if !ok1 || !ok2 || hour > 23 || minute > 59 {
		return 0, 0, apperr.Validation("time", fmt.Sprintf("%q is not a valid 24-hour time", s))
	}
	return hour, minute, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// NormalizeDate validates s and returns it unchanged.
func NormalizeDate(s string) (string, error) {
	if _, err := ParseDate(s); err != nil {
		return "", err
	}
	return s, nil
}

// NormalizeTime validates s and returns it unchanged.
func NormalizeTime(s string) (string, error) {
	if _, _, err := ParseTime(s); err != nil {
		return "", err
	}
	return s, nil
}

// Combine interprets date and clock as a wall-clock moment in loc.
func Combine(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := ParseTime(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc), nil
}

// Today returns the canonical date of now in now's own location.
func Today(now time.Time) string {
	return StorageDate(now)
}

// IsToday reports whether date is the canonical date of now.
func IsToday(date string, now time.Time) bool {
	return date == Today(now)
}
