package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caseload/caseload/internal/domain/patient"
	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/internal/platform/db"
	"github.com/caseload/caseload/internal/platform/notification"
	"github.com/caseload/caseload/internal/platform/telemetry"
	"github.com/caseload/caseload/pkg/wallclock"
)

// PatientFinder resolves a patient owned by ownerID, or reports NotFound.
type PatientFinder interface {
	FindOwned(ctx context.Context, ownerID string, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	repo      SessionRepository
	patients  PatientFinder
	tx        db.TxRunner
	scheduler *Scheduler
	handles   notification.HandleStore
	locks     stripedLock
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func NewService(repo SessionRepository, patients PatientFinder, tx db.TxRunner, scheduler *Scheduler,
	handles notification.HandleStore, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		tx:        tx,
		scheduler: scheduler,
		handles:   handles,
		metrics:   metrics,
		logger:    logger,
	}
}

// CreateSession verifies the patient and writes the session in one
// transaction, then schedules its reminder. A session created as completed
// goes through MarkComplete, so it cannot be dated in the future.
func (s *Service) CreateSession(ctx context.Context, ownerID string, req CreateRequest) (*Session, error) {
	patientID, err := parsePatientID(req.PatientID)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		OwnerID:   ownerID,
		PatientID: patientID,
		Date:      req.Date,
		Time:      req.Time,
		Notes:     req.Notes,
	}
	if req.Amount != nil && !req.Completed {
		return nil, apperr.Validation("amount", "can only be recorded on a completed session")
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if req.Completed {
		if err := MarkComplete(sess, req.Amount, ViewAll, s.scheduler.Now()); err != nil {
			return nil, err
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.FindOwned(ctx, ownerID, patientID)
		if err != nil {
			return err
		}
		sess.PatientName = p.Name
		return s.repo.Create(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionWrite("create")

	unlock := s.locks.lock(sess.ID)
	defer unlock()
	s.replaceReminder(ctx, sess)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, ownerID string, id uuid.UUID) (*Session, error) {
	return apperr.RetryOnce(ctx, func(ctx context.Context) (*Session, error) {
		return s.repo.GetByID(ctx, ownerID, id)
	})
}

// UpdateSession applies a partial patch. Changing the date, time or patient
// replaces the reminder. The session's stripe is held from the read until the
// reminder is replaced, so reminders follow the order writes commit in.
func (s *Service) UpdateSession(ctx context.Context, ownerID string, id uuid.UUID, p Patch) (*Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	var (
		next       Session
		reschedule bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		next = *cur
		if err := s.applyPatch(ctx, &next, cur, p); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		reschedule = next.Date != cur.Date || next.Time != cur.Time || next.PatientID != cur.PatientID
		return s.repo.Update(ctx, &next)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionWrite("update")

	if reschedule {
		s.replaceReminder(ctx, &next)
	}
	return &next, nil
}

func (s *Service) applyPatch(ctx context.Context, next, cur *Session, p Patch) error {
	if p.PatientID != nil {
		pid, err := parsePatientID(*p.PatientID)
		if err != nil {
			return err
		}
		if pid != cur.PatientID {
			pt, err := s.patients.FindOwned(ctx, cur.OwnerID, pid)
			if err != nil {
				return err
			}
			next.PatientID = pid
			next.PatientName = pt.Name
		}
	}
	if p.Date != nil {
		d, err := wallclock.NormalizeDate(*p.Date)
		if err != nil {
			return err
		}
		next.Date = d
	}
	if p.Time != nil {
		t, err := wallclock.NormalizeTime(*p.Time)
		if err != nil {
			return err
		}
		next.Time = t
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}

	switch {
	case p.Completed != nil && !*p.Completed:
		if p.Amount != nil {
			return apperr.Validation("amount", "can only be recorded on a completed session")
		}
		MarkIncomplete(next)
	case p.Completed != nil && !cur.Completed:
		return MarkComplete(next, p.Amount, ViewAll, s.scheduler.Now())
	case p.Amount != nil:
		if !next.Completed {
			return apperr.Validation("amount", "can only be recorded on a completed session")
		}
		if err := validateAmount(*p.Amount); err != nil {
			return err
		}
		v := *p.Amount
		next.Amount = &v
	}
	return nil
}

// DeleteSession removes the session and cancels its reminder before
// returning.
func (s *Service) DeleteSession(ctx context.Context, ownerID string, id uuid.UUID) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.metrics.SessionWrite("delete")
	s.cancelRecorded(ctx, id)
	return nil
}

// ListSessions returns the owner's sessions matching f, ascending by date and
// time.
func (s *Service) ListSessions(ctx context.Context, ownerID string, f Filter) ([]*Session, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	items, err := s.list(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	sortAscending(items)
	return items, nil
}

func (s *Service) ListToday(ctx context.Context, ownerID string) ([]*Session, error) {
	now := s.scheduler.Now()
	day := wallclock.Today(now)
	items, err := s.list(ctx, ownerID, Filter{StartDate: &day, EndDate: &day})
	if err != nil {
		return nil, err
	}
	return Today(items, now), nil
}

func (s *Service) ListUpcoming(ctx context.Context, ownerID string) ([]*Session, error) {
	incomplete := false
	items, err := s.list(ctx, ownerID, Filter{Completed: &incomplete})
	if err != nil {
		return nil, err
	}
	return Upcoming(items), nil
}

func (s *Service) ListPast(ctx context.Context, ownerID string) ([]*Session, error) {
	completed := true
	items, err := s.list(ctx, ownerID, Filter{Completed: &completed})
	if err != nil {
		return nil, err
	}
	return Past(items), nil
}

// ListByPatient classifies one patient's sessions. The patient must be owned
// by ownerID.
func (s *Service) ListByPatient(ctx context.Context, ownerID string, patientID uuid.UUID, view View) ([]*Session, error) {
	_, err := apperr.RetryOnce(ctx, func(ctx context.Context) (*patient.Patient, error) {
		return s.patients.FindOwned(ctx, ownerID, patientID)
	})
	if err != nil {
		return nil, err
	}
	items, err := s.list(ctx, ownerID, Filter{PatientID: &patientID})
	if err != nil {
		return nil, err
	}
	return Classify(view, items, s.scheduler.Now()), nil
}

func (s *Service) list(ctx context.Context, ownerID string, f Filter) ([]*Session, error) {
	return apperr.RetryOnce(ctx, func(ctx context.Context) ([]*Session, error) {
		return s.repo.List(ctx, ownerID, f)
	})
}

// CompleteSession marks the session completed, recording req.Amount when
// given. Reminders are left as they are.
func (s *Service) CompleteSession(ctx context.Context, ownerID string, id uuid.UUID, req CompleteRequest) (*Session, error) {
	view, err := ParseView(req.View)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	var sess *Session
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := MarkComplete(cur, req.Amount, view, s.scheduler.Now()); err != nil {
			return err
		}
		sess = cur
		return s.repo.Update(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionWrite("complete")
	s.logger.Info().
		Str("owner_id", ownerID).
		Str("session_id", id.String()).
		Bool("paid", sess.Amount != nil).
		Msg("session completed")
	return sess, nil
}

// ReopenSession marks the session incomplete and discards its amount.
func (s *Service) ReopenSession(ctx context.Context, ownerID string, id uuid.UUID) (*Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	var sess *Session
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		MarkIncomplete(cur)
		sess = cur
		return s.repo.Update(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionWrite("reopen")
	return sess, nil
}

// Reminder returns the recorded reminder of an owned session, or nil when
// none is pending.
func (s *Service) Reminder(ctx context.Context, ownerID string, id uuid.UUID) (*notification.Handle, error) {
	if _, err := s.GetSession(ctx, ownerID, id); err != nil {
		return nil, err
	}
	h, ok, err := s.handles.Get(ctx, id.String())
	if err != nil {
		return nil, apperr.Dependency("get reminder", err)
	}
	if !ok || !h.TriggerAt.After(s.scheduler.Now()) {
		return nil, nil
	}
	return &h, nil
}

// DeleteForPatient removes every session of a patient. It runs inside the
// caller's transaction and leaves reminders alone.
func (s *Service) DeleteForPatient(ctx context.Context, ownerID string, patientID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.DeleteByPatient(ctx, ownerID, patientID)
}

// CancelReminders cancels the recorded reminders of deleted sessions.
func (s *Service) CancelReminders(ctx context.Context, sessionIDs []uuid.UUID) {
	for _, id := range sessionIDs {
		s.metrics.SessionWrite("delete")
		unlock := s.locks.lock(id)
		s.cancelRecorded(ctx, id)
		unlock()
	}
}

// replaceReminder keeps at most one reminder recorded for sess. The caller
// holds the session's stripe.
func (s *Service) replaceReminder(ctx context.Context, sess *Session) {
	s.cancelRecorded(ctx, sess.ID)
	h := s.scheduler.Schedule(ctx, sess)
	if h == nil {
		return
	}
	if err := s.handles.Put(ctx, sess.ID.String(), *h); err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("reminder handle not recorded")
		s.scheduler.Cancel(ctx, h)
	}
}

// cancelRecorded must be called with the session's stripe held.
func (s *Service) cancelRecorded(ctx context.Context, id uuid.UUID) {
	key := id.String()
	h, ok, err := s.handles.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", key).Msg("reminder handle lookup failed")
		return
	}
	if !ok {
		return
	}
	s.scheduler.Cancel(ctx, &h)
	if err := s.handles.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("session_id", key).Msg("reminder handle not removed")
	}
}
