package session

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/pkg/wallclock"
)

// Session maps to the sessions table. Date and Time are local wall-clock
// strings and are never stored as an instant.
type Session struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Seq         int64     `db:"seq" json:"-"`
	OwnerID     string    `db:"owner_id" json:"-"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	Date        string    `db:"date" json:"date"`
	Time        string    `db:"time" json:"time"`
	Notes       string    `db:"notes" json:"notes"`
	Completed   bool      `db:"completed" json:"completed"`
	Amount      *float64  `db:"amount" json:"amount,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// sortKey orders sessions chronologically. Both parts are fixed width, so
// string order matches time order.
func (s *Session) sortKey() string {
	return s.Date + "T" + s.Time
}

// Validate checks the record invariants that hold after every write.
func (s *Session) Validate() error {
	if s.PatientID == uuid.Nil {
		return apperr.Validation("patient_id", "is required")
	}
	if _, err := wallclock.NormalizeDate(s.Date); err != nil {
		return err
	}
	if _, err := wallclock.NormalizeTime(s.Time); err != nil {
		return err
	}
	if s.Amount != nil {
		if !s.Completed {
			return apperr.Validation("amount", "can only be recorded on a completed session")
		}
		if err := validateAmount(*s.Amount); err != nil {
			return err
		}
	}
	return nil
}

// maxAmount is the largest value NUMERIC(12, 2) holds.
const maxAmount = 9999999999.99

func validateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return apperr.Validation("amount", "must be greater than zero")
	}
	if v > maxAmount {
		return apperr.Validation("amount", "must not exceed 9999999999.99")
	}
	// The shortest form is the decimal the client sent.
	digits := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(digits, '.'); i >= 0 && len(digits)-i-1 > 2 {
		return apperr.Validation("amount", "must have at most two decimal places")
	}
	return nil
}

// CreateRequest is the client input for a new session.
type CreateRequest struct {
	PatientID string   `json:"patient_id"`
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	Notes     string   `json:"notes"`
	Completed bool     `json:"completed"`
	Amount    *float64 `json:"amount,omitempty"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	PatientID *string  `json:"patient_id,omitempty"`
	Date      *string  `json:"date,omitempty"`
	Time      *string  `json:"time,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Completed *bool    `json:"completed,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
}

// CompleteRequest marks a session done. View names the list the request came
// from and decides whether the future-date rule applies.
type CompleteRequest struct {
	Amount *float64 `json:"amount,omitempty"`
	View   string   `json:"view,omitempty"`
}

func parsePatientID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, apperr.Validation("patient_id", "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("patient_id", "must be a UUID")
	}
	return id, nil
}

// Filter narrows List. Date bounds are inclusive and compared as canonical
// strings.
type Filter struct {
	PatientID *uuid.UUID
	StartDate *string
	EndDate   *string
	Completed *bool
}

// Validate checks the date bounds and their order.
func (f Filter) Validate() error {
	if f.StartDate != nil {
		if _, err := wallclock.ParseDate(*f.StartDate); err != nil {
			return apperr.Validation("start_date", "must be YYYY-MM-DD")
		}
	}
	if f.EndDate != nil {
		if _, err := wallclock.ParseDate(*f.EndDate); err != nil {
			return apperr.Validation("end_date", "must be YYYY-MM-DD")
		}
	}
	if f.StartDate != nil && f.EndDate != nil && *f.StartDate > *f.EndDate {
		return apperr.Validation("start_date", "must not be after end_date")
	}
	return nil
}

// Match reports whether s satisfies every set criterion.
func (f Filter) Match(s *Session) bool {
	if f.PatientID != nil && s.PatientID != *f.PatientID {
		return false
	}
	if f.StartDate != nil && s.Date < *f.StartDate {
		return false
	}
	if f.EndDate != nil && s.Date > *f.EndDate {
		return false
	}
	if f.Completed != nil && s.Completed != *f.Completed {
		return false
	}
	return true
}
