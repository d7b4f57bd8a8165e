package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// EditLock is a time-bounded exclusive claim over (lockType, resourceId).
// A lock past its ExpiresAt is treated as free on the next acquisition
// attempt; there is no background expiry timer.
type EditLock struct {
	LockId       string    `json:"lockId"`
	LockType     string    `json:"lockType"`
	ResourceId   string    `json:"resourceId"`
	LockedBy     string    `json:"lockedBy"`
	ConnectionId string    `json:"connectionId"`
	LockedAt     time.Time `json:"lockedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsActive     bool      `json:"isActive"`
}

func (l EditLock) expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

type lockKey struct {
	lockType, resourceId string
}

// lockManager arbitrates edit leases. Every operation runs its
// read-test-write as one critical section under the manager mutex, so two
// racing acquirers for the same key cannot both win.
type lockManager struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[lockKey]*EditLock
	now   func() time.Time
}

func newLockManager(ttl time.Duration) *lockManager {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &lockManager{
		ttl:   ttl,
		locks: make(map[lockKey]*EditLock),
		now:   time.Now,
	}
}

// acquire attempts to take the lease. First writer wins: if another user
// holds an active unexpired lock the attempt is denied and the current
// holder returned; otherwise (no lock, expired lock, or re-request by the
// same holder) the lease is written with a fresh expiry.
func (m *lockManager) acquire(userId, connId, lockType, resourceId string) (EditLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey{lockType, resourceId}
	now := m.now()
	if cur, ok := m.locks[key]; ok && cur.IsActive && !cur.expired(now) && cur.LockedBy != userId {
		return *cur, false
	}
	lock := &EditLock{
		LockId:       uuid.NewString(),
		LockType:     lockType,
		ResourceId:   resourceId,
		LockedBy:     userId,
		ConnectionId: connId,
		LockedAt:     now,
		ExpiresAt:    now.Add(m.ttl),
		IsActive:     true,
	}
	m.locks[key] = lock
	return *lock, true
}

// renew extends the lease, but only for the current active unexpired
// holder. A miss means the caller no longer holds the lock and must
// re-request.
func (m *lockManager) renew(userId, lockType, resourceId string) (EditLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cur, ok := m.locks[lockKey{lockType, resourceId}]
	if !ok || !cur.IsActive || cur.expired(now) || cur.LockedBy != userId {
		return EditLock{}, false
	}
	cur.ExpiresAt = now.Add(m.ttl)
	return *cur, true
}

// release deactivates the lease if the caller holds it. Releasing a lock
// you don't hold is a silent no-op.
func (m *lockManager) release(userId, lockType, resourceId string) (EditLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[lockKey{lockType, resourceId}]
	if !ok || !cur.IsActive || cur.LockedBy != userId {
		return EditLock{}, false
	}
	cur.IsActive = false
	return *cur, true
}

// releaseConnection deactivates every active lock bound to a dead
// connection, without checking holder identity. Disconnect cleanup only.
func (m *lockManager) releaseConnection(connId string) []EditLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var released []EditLock
	for _, lock := range m.locks {
		if lock.IsActive && lock.ConnectionId == connId {
			lock.IsActive = false
			released = append(released, *lock)
		}
	}
	return released
}

// holder returns the current active unexpired lease, if any.
func (m *lockManager) holder(lockType, resourceId string) (EditLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[lockKey{lockType, resourceId}]
	if !ok || !cur.IsActive || cur.expired(m.now()) {
		return EditLock{}, false
	}
	return *cur, true
}
