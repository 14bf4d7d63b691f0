package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// deliveryTimeout bounds a single send started by a fired timer.
const deliveryTimeout = 30 * time.Second

// TimerNotifier holds reminders as in-process timers. Pending reminders are
// lost on restart.
type TimerNotifier struct {
	deliver Deliverer
	logger  zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerNotifier(deliver Deliverer, logger zerolog.Logger) *TimerNotifier {
	return &TimerNotifier{
		deliver: deliver,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

func (n *TimerNotifier) RegisterOneShot(_ context.Context, at time.Time, p Payload) (Handle, error) {
	id := uuid.New().String()
	p.ReminderID = id
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	n.mu.Lock()
	n.timers[id] = time.AfterFunc(delay, func() { n.fire(id, p) })
	n.mu.Unlock()

	return Handle{ID: id, TriggerAt: at}, nil
}

func (n *TimerNotifier) fire(id string, p Payload) {
	n.mu.Lock()
	if _, ok := n.timers[id]; !ok {
		n.mu.Unlock()
		return
	}
	delete(n.timers, id)
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := n.deliver.Deliver(ctx, p); err != nil {
		n.logger.Warn().Err(err).Str("reminder_id", id).Msg("timer reminder not delivered")
	}
}

func (n *TimerNotifier) Cancel(_ context.Context, h Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[h.ID]; ok {
		t.Stop()
		delete(n.timers, h.ID)
	}
	return nil
}

// Pending returns the number of reminders that have not fired.
func (n *TimerNotifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timers)
}

// Stop cancels every pending timer.
func (n *TimerNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}
