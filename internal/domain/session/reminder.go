package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caseload/caseload/internal/platform/notification"
	"github.com/caseload/caseload/internal/platform/telemetry"
	"github.com/caseload/caseload/pkg/wallclock"
)

// ReminderLead is how long before a session its reminder fires.
const ReminderLead = time.Hour

// Scheduler derives reminder triggers from sessions and registers them with
// a Notifier. Its failures are logged, never returned.
type Scheduler struct {
	notifier notification.Notifier
	loc      *time.Location
	now      func() time.Time
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

// NewScheduler interprets session dates and times in loc.
func NewScheduler(notifier notification.Notifier, loc *time.Location, metrics *telemetry.Metrics, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{notifier: notifier, loc: loc, now: time.Now, metrics: metrics, logger: logger}
}

// TriggerAt returns the instant the reminder for s should fire.
func (sc *Scheduler) TriggerAt(s *Session) (time.Time, error) {
	at, err := wallclock.Combine(s.Date, s.Time, sc.loc)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(-ReminderLead), nil
}

// Schedule registers a one-shot reminder for s. It returns nil when the
// trigger is not in the future or when registration fails.
func (sc *Scheduler) Schedule(ctx context.Context, s *Session) *notification.Handle {
	at, err := sc.TriggerAt(s)
	if err != nil {
		sc.logger.Warn().Err(err).Str("session_id", s.ID.String()).Msg("reminder not scheduled")
		return nil
	}
	if !at.After(sc.now()) {
		sc.metrics.Reminder(telemetry.ReminderSuppressed)
		return nil
	}

	h, err := sc.notifier.RegisterOneShot(ctx, at, notification.Payload{
		SessionID:   s.ID.String(),
		OwnerID:     s.OwnerID,
		PatientName: s.PatientName,
		Date:        s.Date,
		Time:        s.Time,
	})
	if err != nil {
		sc.metrics.Reminder(telemetry.ReminderFailed)
		sc.logger.Error().Err(err).Str("session_id", s.ID.String()).Msg("reminder registration failed")
		return nil
	}
	sc.metrics.Reminder(telemetry.ReminderScheduled)
	return &h
}

// Cancel withdraws h. A nil handle is a no-op.
func (sc *Scheduler) Cancel(ctx context.Context, h *notification.Handle) {
	if h == nil {
		return
	}
	if err := sc.notifier.Cancel(ctx, *h); err != nil {
		sc.logger.Warn().Err(err).Str("reminder_id", h.ID).Msg("reminder cancel failed")
		return
	}
	sc.metrics.Reminder(telemetry.ReminderCancelled)
}

// Now returns the current instant in the scheduler's location. Callers use it
// to resolve "today" the same way reminder triggers are resolved.
func (sc *Scheduler) Now() time.Time {
	return sc.now().In(sc.loc)
}
