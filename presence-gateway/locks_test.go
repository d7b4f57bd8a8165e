package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockManager_AcquireAndDeny(t *testing.T) {
	m := newLockManager(5 * time.Minute)

	lock, granted := m.acquire("alice", "conn-a", "schedule_slot", "slot-42")
	if !granted {
		t.Fatal("first acquire denied")
	}
	if lock.LockedBy != "alice" || !lock.IsActive {
		t.Errorf("lock = holder %q active %v, want alice active", lock.LockedBy, lock.IsActive)
	}
	if lock.LockId == "" {
		t.Error("LockId not assigned")
	}

	held, granted := m.acquire("bob", "conn-b", "schedule_slot", "slot-42")
	if granted {
		t.Fatal("second acquire by another user granted")
	}
	if held.LockedBy != "alice" {
		t.Errorf("denied response reports holder %q, want alice", held.LockedBy)
	}
}

func TestLockManager_MutualExclusion(t *testing.T) {
	m := newLockManager(5 * time.Minute)

	const n = 32
	var grants int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			user := fmt.Sprintf("user-%d", i)
			if _, granted := m.acquire(user, "conn-"+user, "task", "task-1"); granted {
				atomic.AddInt64(&grants, 1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if grants != 1 {
		t.Errorf("%d concurrent requesters got %d grants, want exactly 1", n, grants)
	}
}

func TestLockManager_LeaseExpiryReclaim(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	if _, granted := m.acquire("alice", "conn-a", "task", "task-1"); !granted {
		t.Fatal("initial acquire denied")
	}

	current = base.Add(4 * time.Minute)
	if _, granted := m.acquire("bob", "conn-b", "task", "task-1"); granted {
		t.Fatal("acquire granted before lease expiry")
	}

	current = base.Add(5*time.Minute + time.Second)
	lock, granted := m.acquire("bob", "conn-b", "task", "task-1")
	if !granted {
		t.Fatal("acquire denied after lease expiry")
	}
	if lock.LockedBy != "bob" {
		t.Errorf("reclaimed lock holder = %q, want bob", lock.LockedBy)
	}
}

func TestLockManager_SameHolderReacquire(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	first, _ := m.acquire("alice", "conn-a", "task", "task-1")
	current = base.Add(time.Minute)
	second, granted := m.acquire("alice", "conn-a2", "task", "task-1")
	if !granted {
		t.Fatal("re-request by holder denied")
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("re-request did not refresh lease: %v → %v", first.ExpiresAt, second.ExpiresAt)
	}
}

func TestLockManager_RenewHolderOnly(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	first, _ := m.acquire("alice", "conn-a", "task", "task-1")

	current = base.Add(time.Minute)
	renewed, ok := m.renew("alice", "task", "task-1")
	if !ok {
		t.Fatal("renew by holder failed")
	}
	if !renewed.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("renew did not extend: %v → %v", first.ExpiresAt, renewed.ExpiresAt)
	}

	if _, ok := m.renew("bob", "task", "task-1"); ok {
		t.Error("renew by non-holder succeeded")
	}
}

func TestLockManager_RenewAfterExpiryFailsClosed(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	m.acquire("alice", "conn-a", "task", "task-1")
	current = base.Add(6 * time.Minute)
	if _, ok := m.renew("alice", "task", "task-1"); ok {
		t.Error("renew of expired lease succeeded, want fail closed")
	}
}

func TestLockManager_ReleaseForeignIsNoOp(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	m.acquire("alice", "conn-a", "task", "task-1")

	if _, ok := m.release("bob", "task", "task-1"); ok {
		t.Error("release by non-holder reported success")
	}
	if _, held := m.holder("task", "task-1"); !held {
		t.Error("lock vanished after foreign release")
	}
}

func TestLockManager_Release(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	m.acquire("alice", "conn-a", "task", "task-1")

	lock, ok := m.release("alice", "task", "task-1")
	if !ok || lock.IsActive {
		t.Fatalf("release = ok %v active %v, want true/false", ok, lock.IsActive)
	}
	if _, held := m.holder("task", "task-1"); held {
		t.Error("lock still held after release")
	}

	// Released key is free for the next acquirer.
	if _, granted := m.acquire("bob", "conn-b", "task", "task-1"); !granted {
		t.Error("acquire after release denied")
	}
}

func TestLockManager_ReleaseConnection(t *testing.T) {
	m := newLockManager(5 * time.Minute)
	m.acquire("alice", "conn-a", "task", "task-1")
	m.acquire("alice", "conn-a", "schedule_slot", "slot-9")
	m.acquire("bob", "conn-b", "task", "task-2")

	released := m.releaseConnection("conn-a")
	if len(released) != 2 {
		t.Fatalf("releaseConnection freed %d locks, want 2", len(released))
	}
	if _, held := m.holder("task", "task-1"); held {
		t.Error("task-1 still held after connection release")
	}
	if _, held := m.holder("schedule_slot", "slot-9"); held {
		t.Error("slot-9 still held after connection release")
	}
	if _, held := m.holder("task", "task-2"); !held {
		t.Error("unrelated connection's lock released")
	}
}
