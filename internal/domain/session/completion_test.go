package session

import (
	"math"
	"testing"

	"github.com/caseload/caseload/internal/platform/apperr"
)

func TestMarkComplete_TodayAndPast(t *testing.T) {
	for _, date := range []string{"2025-03-12", "2025-03-01"} {
		s := &Session{Date: date, Time: "23:59"}
		if err := MarkComplete(s, nil, ViewUpcoming, fixedNow); err != nil {
			t.Errorf("%s: unexpected error: %v", date, err)
		}
		if !s.Completed || s.Amount != nil {
			t.Errorf("%s: expected completed and unpaid, got %+v", date, s)
		}
	}
}

func TestMarkComplete_FutureRejectedOutsidePastView(t *testing.T) {
	for _, v := range []View{ViewAll, ViewToday, ViewUpcoming} {
		s := &Session{Date: "2025-03-13", Time: "00:00"}
		err := MarkComplete(s, nil, v, fixedNow)
		if !apperr.Is(err, apperr.KindPrecondition) {
			t.Errorf("%s: expected precondition error, got %v", v, err)
		}
		if s.Completed {
			t.Errorf("%s: session must stay incomplete", v)
		}
	}
}

func TestMarkComplete_PastViewUnconditional(t *testing.T) {
	s := &Session{Date: "2025-04-01", Time: "10:00"}
	if err := MarkComplete(s, ptr(250.0), ViewPast, fixedNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Amount == nil || *s.Amount != 250 {
		t.Errorf("expected amount 250, got %v", s.Amount)
	}
}

func TestMarkComplete_KeepsAmountWhenOmitted(t *testing.T) {
	s := &Session{Date: "2025-03-01", Time: "10:00", Completed: true, Amount: ptr(100.0)}
	MarkComplete(s, nil, ViewPast, fixedNow)
	if s.Amount == nil || *s.Amount != 100 {
		t.Errorf("expected amount 100 kept, got %v", s.Amount)
	}
}

func TestMarkComplete_CopiesAmount(t *testing.T) {
	amount := 300.0
	s := &Session{Date: "2025-03-01", Time: "10:00"}
	MarkComplete(s, &amount, ViewAll, fixedNow)
	amount = 1
	if *s.Amount != 300 {
		t.Error("session must not alias the caller's amount")
	}
}

func TestMarkComplete_InvalidAmount(t *testing.T) {
	for _, v := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		s := &Session{Date: "2025-03-01", Time: "10:00"}
		if err := MarkComplete(s, &v, ViewPast, fixedNow); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%v: expected validation error, got %v", v, err)
		}
		if s.Completed {
			t.Errorf("%v: session must stay incomplete", v)
		}
	}
}

func TestMarkIncomplete_ClearsAmount(t *testing.T) {
	s := &Session{Completed: true, Amount: ptr(500.0)}
	MarkIncomplete(s)
	if s.Completed || s.Amount != nil {
		t.Errorf("expected cleared session, got %+v", s)
	}
}
