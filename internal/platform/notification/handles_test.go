package notification

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryHandleStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHandleStore()

	if _, ok, _ := s.Get(ctx, "s-1"); ok {
		t.Fatal("expected empty store")
	}

	h := Handle{ID: "r-1", TriggerAt: time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)}
	if err := s.Put(ctx, "s-1", h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := s.Get(ctx, "s-1")
	if err != nil || !ok {
		t.Fatalf("expected handle, got ok=%v err=%v", ok, err)
	}
	if got.ID != "r-1" {
		t.Errorf("expected r-1, got %s", got.ID)
	}

	if err := s.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "s-1"); ok {
		t.Error("expected handle removed")
	}
}

func TestMemoryHandleStore_Release(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHandleStore()
	s.Put(ctx, "s-1", Handle{ID: "r-2"})

	s.Release(ctx, "s-1", "r-1")
	if _, ok, _ := s.Get(ctx, "s-1"); !ok {
		t.Fatal("releasing a replaced reminder must keep the newer record")
	}
	s.Release(ctx, "s-1", "r-2")
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d records", s.Len())
	}
}

func TestFiredReleaser_DropsHandleWhenFired(t *testing.T) {
	ctx := context.Background()
	handles := NewMemoryHandleStore()
	d := newRecordingDeliverer()
	n := NewTimerNotifier(NewFiredReleaser(d, handles, zerolog.Nop()), zerolog.Nop())

	h, err := n.RegisterOneShot(ctx, time.Now().Add(50*time.Millisecond), Payload{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	handles.Put(ctx, "s-1", h)

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	// The release runs right after delivery returns.
	deadline := time.Now().Add(time.Second)
	for handles.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if handles.Len() != 0 {
		t.Errorf("expected fired reminder's record removed, got %d records", handles.Len())
	}
	if got := d.payloads[0].ReminderID; got != h.ID {
		t.Errorf("expected payload reminder id %s, got %q", h.ID, got)
	}
}
