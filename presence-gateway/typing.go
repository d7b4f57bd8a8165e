package main

import (
	"sync"
	"time"
)

const defaultTypingTTL = 5 * time.Second

// TypingIndicator is an ephemeral "user is typing in resource under
// context" record. A record past its ExpiresAt is treated as absent even if
// not yet physically removed.
type TypingIndicator struct {
	UserId     string    `json:"userId"`
	Context    string    `json:"context"`
	ResourceId string    `json:"resourceId"`
	StartedAt  time.Time `json:"startedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (t TypingIndicator) expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type typingKey struct {
	userId, context, resourceId string
}

// typingTracker enforces at most one live indicator per (user, context,
// resource). Expiry is lazy: applied on every read, never by a timer.
type typingTracker struct {
	mu         sync.Mutex
	ttl        time.Duration
	indicators map[typingKey]TypingIndicator
	now        func() time.Time
}

func newTypingTracker(ttl time.Duration) *typingTracker {
	if ttl <= 0 {
		ttl = defaultTypingTTL
	}
	return &typingTracker{
		ttl:        ttl,
		indicators: make(map[typingKey]TypingIndicator),
		now:        time.Now,
	}
}

// start upserts the indicator with a fresh TTL. Re-typing refreshes the
// existing record rather than creating a second one.
func (t *typingTracker) start(userId, context, resourceId string) TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{userId, context, resourceId}
	now := t.now()
	ind, ok := t.indicators[key]
	if !ok || ind.expired(now) {
		ind = TypingIndicator{
			UserId:     userId,
			Context:    context,
			ResourceId: resourceId,
			StartedAt:  now,
		}
	}
	ind.ExpiresAt = now.Add(t.ttl)
	t.indicators[key] = ind
	return ind
}

// stop deletes the indicator if present. Absence is a no-op, not an error.
func (t *typingTracker) stop(userId, context, resourceId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{userId, context, resourceId}
	ind, ok := t.indicators[key]
	if !ok {
		return false
	}
	delete(t.indicators, key)
	return !ind.expired(t.now())
}

// active returns unexpired indicators for (context, resource), pruning
// expired entries it walks past.
func (t *typingTracker) active(context, resourceId string) []TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var result []TypingIndicator
	for key, ind := range t.indicators {
		if ind.expired(now) {
			delete(t.indicators, key)
			continue
		}
		if key.context == context && key.resourceId == resourceId {
			result = append(result, ind)
		}
	}
	return result
}

// clearUser deletes every indicator owned by a user, returning the live
// ones so the caller can notify their rooms. Used on disconnect, when the
// client can no longer signal "stopped".
func (t *typingTracker) clearUser(userId string) []TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var removed []TypingIndicator
	for key, ind := range t.indicators {
		if key.userId != userId {
			continue
		}
		delete(t.indicators, key)
		if !ind.expired(now) {
			removed = append(removed, ind)
		}
	}
	return removed
}
