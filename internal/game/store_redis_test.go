package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	url := fmt.Sprintf("redis://%s/0", mr.Addr())
	store, err := NewRedisStore(url, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", Status: StatusWaiting, Turn: "white", CreatedAt: time.Now()}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "s1" || got.Status != StatusWaiting {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreCreateTwiceRejected(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	sess := &Session{ID: "dup", Status: StatusWaiting}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, sess); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
}

func TestRedisStoreUpdateCommitsMutation(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, &Session{ID: "s1", Status: StatusWaiting}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(ctx, "s1", func(s *Session) error {
		s.Status = StatusInProgress
		s.Turn = "white"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("mutation not applied: %s", updated.Status)
	}
	got, _ := store.Get(ctx, "s1")
	if got.Status != StatusInProgress {
		t.Fatalf("mutation not persisted: %s", got.Status)
	}
}

func TestRedisStoreUpdateAbortsOnError(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, &Session{ID: "s1", Status: StatusWaiting}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(s *Session) error {
		s.Status = StatusFinished
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("fn error must pass through unchanged, got %v", err)
	}
	got, _ := store.Get(ctx, "s1")
	if got.Status != StatusWaiting {
		t.Fatalf("aborted update leaked a write: %s", got.Status)
	}
}

func TestRedisStoreJoinCodes(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.BindCode(ctx, "CM-ABC123", "s1")
	if err != nil || !ok {
		t.Fatalf("BindCode: ok=%v err=%v", ok, err)
	}
	ok, err = store.BindCode(ctx, "CM-ABC123", "s2")
	if err != nil {
		t.Fatalf("BindCode repeat: %v", err)
	}
	if ok {
		t.Fatalf("code must bind at most once")
	}

	id, err := store.ResolveCode(ctx, "cm-abc123")
	if err != nil || id != "s1" {
		t.Fatalf("ResolveCode: id=%q err=%v", id, err)
	}
	if _, err := store.ResolveCode(ctx, "CM-NOPE99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAllocateCodeUnique(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := allocateCode(ctx, store, fmt.Sprintf("s%d", i))
		if err != nil {
			t.Fatalf("allocateCode: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}
