package session

import (
	"time"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/pkg/wallclock"
)

const msgFutureSession = "session cannot be completed before it takes place"

// MarkComplete moves s to completed and records amount when given. Outside
// the past view a session dated after today is rejected. Without an amount an
// already recorded payment is kept; a fresh completion stays unpaid.
func MarkComplete(s *Session, amount *float64, view View, now time.Time) error {
	if amount != nil {
		if err := validateAmount(*amount); err != nil {
			return err
		}
	}
	if view != ViewPast && s.Date > wallclock.Today(now) {
		return apperr.Precondition(msgFutureSession)
	}
	s.Completed = true
	if amount != nil {
		v := *amount
		s.Amount = &v
	}
	return nil
}

// MarkIncomplete reopens s and always discards the recorded amount.
func MarkIncomplete(s *Session) {
	s.Completed = false
	s.Amount = nil
}
