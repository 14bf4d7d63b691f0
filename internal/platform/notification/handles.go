package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HandleKey is the Redis hash of session id to reminder handle.
const HandleKey = "caseload:reminders:handles"

// HandleStore is the caller-side record of which reminder belongs to which
// session. It lives beside the session, never inside it.
type HandleStore interface {
	Get(ctx context.Context, sessionID string) (Handle, bool, error)
	Put(ctx context.Context, sessionID string, h Handle) error
	Delete(ctx context.Context, sessionID string) error
	// Release deletes the record only while it still names reminderID, so a
	// reminder that fires after being replaced leaves the new record alone.
	Release(ctx context.Context, sessionID, reminderID string) error
}

// MemoryHandleStore keeps handles in process memory.
type MemoryHandleStore struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{handles: make(map[string]Handle)}
}

func (s *MemoryHandleStore) Get(_ context.Context, sessionID string) (Handle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[sessionID]
	return h, ok, nil
}

func (s *MemoryHandleStore) Put(_ context.Context, sessionID string, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[sessionID] = h
	return nil
}

func (s *MemoryHandleStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, sessionID)
	return nil
}

func (s *MemoryHandleStore) Release(_ context.Context, sessionID, reminderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[sessionID]; ok && h.ID == reminderID {
		delete(s.handles, sessionID)
	}
	return nil
}

// Len returns the number of recorded handles.
func (s *MemoryHandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// RedisHandleStore keeps handles in a Redis hash shared by all instances.
type RedisHandleStore struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisHandleStore(rdb redis.UniversalClient) *RedisHandleStore {
	return &RedisHandleStore{rdb: rdb, key: HandleKey}
}

func (s *RedisHandleStore) Get(ctx context.Context, sessionID string) (Handle, bool, error) {
	data, err := s.rdb.HGet(ctx, s.key, sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Handle{}, false, nil
	}
	if err != nil {
		return Handle{}, false, fmt.Errorf("get reminder handle: %w", err)
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, false, fmt.Errorf("decode reminder handle: %w", err)
	}
	return h, true, nil
}

func (s *RedisHandleStore) Put(ctx context.Context, sessionID string, h Handle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode reminder handle: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key, sessionID, data).Err(); err != nil {
		return fmt.Errorf("put reminder handle: %w", err)
	}
	return nil
}

func (s *RedisHandleStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.HDel(ctx, s.key, sessionID).Err(); err != nil {
		return fmt.Errorf("delete reminder handle: %w", err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v and cjson.decode(v)['id'] == ARGV[2] then
  return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

func (s *RedisHandleStore) Release(ctx context.Context, sessionID, reminderID string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key}, sessionID, reminderID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release reminder handle: %w", err)
	}
	return nil
}

// FiredReleaser wraps a Deliverer and drops the session's handle record once
// its reminder has fired, whether or not delivery succeeded.
type FiredReleaser struct {
	next    Deliverer
	handles HandleStore
	logger  zerolog.Logger
}

func NewFiredReleaser(next Deliverer, handles HandleStore, logger zerolog.Logger) *FiredReleaser {
	return &FiredReleaser{next: next, handles: handles, logger: logger}
}

func (r *FiredReleaser) Deliver(ctx context.Context, p Payload) error {
	err := r.next.Deliver(ctx, p)
	if p.ReminderID != "" {
		if rerr := r.handles.Release(ctx, p.SessionID, p.ReminderID); rerr != nil {
			r.logger.Warn().Err(rerr).Str("session_id", p.SessionID).Msg("fired reminder handle not released")
		}
	}
	return err
}
