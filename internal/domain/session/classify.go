package session

import (
	"sort"
	"time"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/pkg/wallclock"
)

// View selects one of the named session lists.
type View string

const (
	ViewAll      View = "all"
	ViewToday    View = "today"
	ViewUpcoming View = "upcoming"
	ViewPast     View = "past"
)

// ParseView accepts an empty string as ViewAll.
func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewAll:
		return ViewAll, nil
	case ViewToday, ViewUpcoming, ViewPast:
		return View(s), nil
	}
	return "", apperr.Validation("view", "must be one of all, today, upcoming, past")
}

// The classifiers expect input in insertion order and sort stably, so
// sessions sharing a date and time keep that order.

// Today returns sessions dated today in now's location, ascending by time.
func Today(sessions []*Session, now time.Time) []*Session {
	today := wallclock.Today(now)
	out := filter(sessions, func(s *Session) bool { return s.Date == today })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Upcoming returns incomplete sessions ascending by date and time. Overdue
// sessions that were never completed stay here.
func Upcoming(sessions []*Session) []*Session {
	out := filter(sessions, func(s *Session) bool { return !s.Completed })
	sortAscending(out)
	return out
}

// Past returns completed sessions, most recent first.
func Past(sessions []*Session) []*Session {
	out := filter(sessions, func(s *Session) bool { return s.Completed })
	sort.SliceStable(out, func(i, j int) bool { return out[i].sortKey() > out[j].sortKey() })
	return out
}

// Classify applies view. ViewAll returns every session ascending.
func Classify(view View, sessions []*Session, now time.Time) []*Session {
	switch view {
	case ViewToday:
		return Today(sessions, now)
	case ViewUpcoming:
		return Upcoming(sessions)
	case ViewPast:
		return Past(sessions)
	}
	out := filter(sessions, func(*Session) bool { return true })
	sortAscending(out)
	return out
}

func sortAscending(s []*Session) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].sortKey() < s[j].sortKey() })
}

func filter(sessions []*Session, keep func(*Session) bool) []*Session {
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
