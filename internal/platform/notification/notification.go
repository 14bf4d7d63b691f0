// Package notification registers one-shot session reminders and delivers them
// through a Sender once they come due.
//
// Two Notifier implementations exist: TimerNotifier keeps in-process timers for
// single-instance and development use, RedisNotifier stores due reminders in a
// sorted set that a Dispatcher polls.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caseload/caseload/internal/platform/telemetry"
)

// Handle identifies a registered one-shot reminder.
type Handle struct {
	ID        string    `json:"id"`
	TriggerAt time.Time `json:"trigger_at"`
}

// Payload is the data carried by a reminder until it fires.
type Payload struct {
	SessionID   string `json:"session_id"`
	OwnerID     string `json:"owner_id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`

	// ReminderID is filled in by the Notifier that registered the reminder.
	ReminderID string `json:"reminder_id,omitempty"`
}

func (p Payload) templateData() map[string]string {
	return map[string]string{
		"patient_name": p.PatientName,
		"date":         p.Date,
		"time":         p.Time,
	}
}

// Notifier registers and cancels one-shot reminders. Cancel of an unknown or
// already fired handle is not an error.
type Notifier interface {
	RegisterOneShot(ctx context.Context, at time.Time, p Payload) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
}

// Message is a rendered push notification.
type Message struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a rendered message to the practitioner's devices.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Deliverer turns a due payload into a sent message.
type Deliverer interface {
	Deliver(ctx context.Context, p Payload) error
}

// OwnerTopic is the push topic an owner's devices subscribe to. Characters
// outside the topic alphabet are replaced with '_'.
func OwnerTopic(ownerID string) string {
	var b strings.Builder
	b.WriteString("owner-")
	for _, r := range ownerID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '%':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Delivery renders the session reminder template and hands it to a Sender.
type Delivery struct {
	templates *TemplateEngine
	sender    Sender
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func NewDelivery(templates *TemplateEngine, sender Sender, metrics *telemetry.Metrics, logger zerolog.Logger) *Delivery {
	return &Delivery{templates: templates, sender: sender, metrics: metrics, logger: logger}
}

func (d *Delivery) Deliver(ctx context.Context, p Payload) error {
	title, body, err := d.templates.Render(TemplateSessionReminder, p.templateData())
	if err != nil {
		d.metrics.Reminder(telemetry.ReminderFailed)
		return fmt.Errorf("render reminder: %w", err)
	}

	msg := Message{
		Topic: OwnerTopic(p.OwnerID),
		Title: title,
		Body:  body,
		Data: map[string]string{
			"session_id": p.SessionID,
			"date":       p.Date,
			"time":       p.Time,
		},
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.Reminder(telemetry.ReminderFailed)
		d.logger.Error().Err(err).Str("session_id", p.SessionID).Msg("reminder delivery failed")
		return fmt.Errorf("send reminder: %w", err)
	}
	d.metrics.Reminder(telemetry.ReminderDelivered)
	d.logger.Info().Str("session_id", p.SessionID).Str("topic", msg.Topic).Msg("reminder delivered")
	return nil
}

// LogSender writes messages to the log instead of a push service.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info().
		Str("topic", msg.Topic).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("reminder")
	return nil
}

// MultiSender sends msg through every sender, in order. All senders are tried;
// the joined error reports the ones that failed.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MockSender records messages. It is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	messages   []Message
	ShouldFail bool
}

func (m *MockSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.ShouldFail {
		return errors.New("mock sender failure")
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MockSender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
