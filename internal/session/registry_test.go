package session

import (
	"sync"
	"testing"
	"time"
)

func TestRegistryAttachDetach(t *testing.T) {
	r := NewRegistry()
	r.Attach("s1", "c1", "alice")
	r.Attach("s1", "c2", "bob")

	if got := r.Conns("s1"); len(got) != 2 {
		t.Fatalf("expected 2 conns, got %v", got)
	}
	if got := r.ConnsExcept("s1", "c1"); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("unexpected ConnsExcept: %v", got)
	}

	sessID, pid, ok := r.Detach("c1")
	if !ok || sessID != "s1" || pid != "alice" {
		t.Fatalf("Detach: %q %q %v", sessID, pid, ok)
	}
	if r.Empty("s1") {
		t.Fatalf("room still has c2")
	}
	if _, _, ok := r.Detach("c1"); ok {
		t.Fatalf("double detach must report false")
	}
	r.Detach("c2")
	if !r.Empty("s1") {
		t.Fatalf("room should be empty")
	}
}

func TestRegistryGraceTimer(t *testing.T) {
	r := NewRegistry()
	fired := make(chan struct{}, 1)

	r.ScheduleGrace("s1", "alice", 20*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("grace timer never fired")
	}

	// Cancel before expiry.
	r.ScheduleGrace("s1", "alice", 20*time.Millisecond, func() { fired <- struct{}{} })
	if !r.CancelGrace("s1", "alice") {
		t.Fatalf("expected an armed timer to cancel")
	}
	select {
	case <-fired:
		t.Fatalf("canceled timer fired")
	case <-time.After(100 * time.Millisecond):
	}

	// Attach also cancels.
	r.ScheduleGrace("s1", "alice", 20*time.Millisecond, func() { fired <- struct{}{} })
	if !r.Attach("s1", "c1", "alice") {
		t.Fatalf("Attach must report the canceled timer")
	}
	select {
	case <-fired:
		t.Fatalf("timer fired after rejoin")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("s1")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("keyed mutex admitted %d holders", maxActive)
	}
}
