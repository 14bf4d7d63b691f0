package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DueKey is a sorted set of reminder ids scored by unix trigger time.
	DueKey = "caseload:reminders:due"
	// PayloadKey is a hash of reminder id to JSON payload.
	PayloadKey = "caseload:reminders:payloads"
)

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisNotifier stores reminders in Redis so they survive restarts and can be
// dispatched by any instance.
type RedisNotifier struct {
	rdb        redis.UniversalClient
	dueKey     string
	payloadKey string
	logger     zerolog.Logger
}

func NewRedisNotifier(rdb redis.UniversalClient, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, dueKey: DueKey, payloadKey: PayloadKey, logger: logger}
}

func (n *RedisNotifier) RegisterOneShot(ctx context.Context, at time.Time, p Payload) (Handle, error) {
	id := uuid.New().String()
	p.ReminderID = id
	data, err := json.Marshal(p)
	if err != nil {
		return Handle{}, fmt.Errorf("marshal reminder payload: %w", err)
	}

	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, n.payloadKey, id, data)
		pipe.ZAdd(ctx, n.dueKey, redis.Z{Score: float64(at.Unix()), Member: id})
		return nil
	})
	if err != nil {
		return Handle{}, fmt.Errorf("register reminder: %w", err)
	}
	return Handle{ID: id, TriggerAt: at}, nil
}

func (n *RedisNotifier) Cancel(ctx context.Context, h Handle) error {
	_, err := n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, n.dueKey, h.ID)
		pipe.HDel(ctx, n.payloadKey, h.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return nil
}

// claimScript pops up to ARGV[2] reminders scored at or before ARGV[1] and
// returns alternating id, payload pairs. ZREM guards against two dispatchers
// claiming the same id.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local p = redis.call('HGET', KEYS[2], id)
    redis.call('HDEL', KEYS[2], id)
    if p then
      table.insert(out, id)
      table.insert(out, p)
    end
  end
end
return out
`)

// DueReminder is a reminder claimed for delivery.
type DueReminder struct {
	ID      string
	Payload Payload
}

// ClaimDue atomically removes and returns reminders due at or before now.
// The script has already removed the whole batch, so a payload that cannot be
// decoded is logged and skipped rather than failing the rest. Only a failed
// script run is returned as an error.
func (n *RedisNotifier) ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueReminder, error) {
	res, err := claimScript.Run(ctx, n.rdb,
		[]string{n.dueKey, n.payloadKey},
		strconv.FormatInt(now.Unix(), 10), limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}

	due := make([]DueReminder, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		var p Payload
		if err := json.Unmarshal([]byte(res[i+1]), &p); err != nil {
			n.logger.Error().Err(err).Str("reminder_id", res[i]).Msg("undecodable reminder dropped")
			continue
		}
		due = append(due, DueReminder{ID: res[i], Payload: p})
	}
	return due, nil
}

// Pending returns the number of reminders not yet claimed.
func (n *RedisNotifier) Pending(ctx context.Context) (int64, error) {
	return n.rdb.ZCard(ctx, n.dueKey).Result()
}

// Dispatcher polls a RedisNotifier and delivers due reminders.
type Dispatcher struct {
	notifier *RedisNotifier
	deliver  Deliverer
	interval time.Duration
	batch    int
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(notifier *RedisNotifier, deliver Deliverer, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		deliver:  deliver,
		interval: interval,
		batch:    100,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick delivers every reminder currently due and returns how many were sent.
// A claimed reminder whose delivery fails is logged and dropped.
func (d *Dispatcher) Tick(ctx context.Context) int {
	sent := 0
	for {
		due, err := d.notifier.ClaimDue(ctx, d.now(), d.batch)
		if err != nil {
			d.logger.Error().Err(err).Msg("reminder dispatch poll failed")
		}
		for _, r := range due {
			if err := d.deliver.Deliver(ctx, r.Payload); err != nil {
				d.logger.Warn().Err(err).Str("reminder_id", r.ID).Msg("reminder dropped")
				continue
			}
			sent++
		}
		if err != nil || len(due) < d.batch {
			return sent
		}
	}
}
