package session

import (
	"testing"

	"github.com/caseload/caseload/internal/platform/apperr"
)

func sess(name, date, clock string, completed bool) *Session {
	return &Session{PatientName: name, Date: date, Time: clock, Completed: completed}
}

func names(items []*Session) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s.PatientName
	}
	return out
}

func fixture() []*Session {
	return []*Session{
		sess("a", "2025-03-12", "16:00", false),
		sess("b", "2025-03-10", "09:00", true),
		sess("c", "2025-03-12", "08:00", true),
		sess("d", "2025-03-20", "10:00", false),
		sess("e", "2025-03-01", "10:00", false),
		sess("f", "2025-03-12", "08:00", false),
	}
}

func TestToday(t *testing.T) {
	if got := names(Today(fixture(), fixedNow)); got != "c,f,a" {
		t.Errorf("expected c,f,a, got %s", got)
	}
}

func TestUpcoming_OverdueStays(t *testing.T) {
	if got := names(Upcoming(fixture())); got != "e,f,a,d" {
		t.Errorf("expected e,f,a,d, got %s", got)
	}
}

func TestPast_Descending(t *testing.T) {
	if got := names(Past(fixture())); got != "c,b" {
		t.Errorf("expected c,b, got %s", got)
	}
}

func TestClassify_AllAscendingStable(t *testing.T) {
	if got := names(Classify(ViewAll, fixture(), fixedNow)); got != "e,b,c,f,a,d" {
		t.Errorf("expected e,b,c,f,a,d, got %s", got)
	}
}

func TestPast_TieKeepsInsertionOrder(t *testing.T) {
	items := []*Session{
		sess("x", "2025-03-10", "10:00", true),
		sess("y", "2025-03-10", "10:00", true),
	}
	if got := names(Past(items)); got != "x,y" {
		t.Errorf("expected x,y, got %s", got)
	}
}

func TestClassify_DoesNotMutateInput(t *testing.T) {
	in := fixture()
	Classify(ViewPast, in, fixedNow)
	if names(in) != "a,b,c,d,e,f" {
		t.Error("input order must be preserved")
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	for _, v := range []View{ViewAll, ViewToday, ViewUpcoming, ViewPast} {
		got := Classify(v, nil, fixedNow)
		if got == nil || len(got) != 0 {
			t.Errorf("%s: expected empty non-nil slice", v)
		}
	}
}

func TestParseView(t *testing.T) {
	tests := map[string]View{"": ViewAll, "all": ViewAll, "today": ViewToday, "upcoming": ViewUpcoming, "past": ViewPast}
	for in, want := range tests {
		got, err := ParseView(in)
		if err != nil || got != want {
			t.Errorf("ParseView(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseView("later"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
