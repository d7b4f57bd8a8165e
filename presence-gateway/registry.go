package main

import (
	"sync"
	"time"
)

// connEntry records one live connection.
type connEntry struct {
	userId      string
	connectedAt time.Time
}

// registry is the single authoritative connection table: forward connId →
// owner, reverse userId → set of connIds. No other component keeps its own
// copy of this mapping.
type registry struct {
	mu    sync.RWMutex
	conns map[string]connEntry
	users map[string]map[string]bool
}

func newRegistry() *registry {
	return &registry{
		conns: make(map[string]connEntry),
		users: make(map[string]map[string]bool),
	}
}

// register adds a connection for a user. Connection ids are unique; a user
// may hold arbitrarily many connections at once.
func (r *registry) register(userId, connId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connId] = connEntry{userId: userId, connectedAt: time.Now()}
	if r.users[userId] == nil {
		r.users[userId] = make(map[string]bool)
	}
	r.users[userId][connId] = true
}

// deregister removes a dropped connection and returns its owner for
// downstream cleanup. wasLast reports whether this was the user's final
// connection.
func (r *registry) deregister(connId string) (userId string, wasLast bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.conns[connId]
	if !found {
		return "", false, false
	}
	delete(r.conns, connId)
	if conns, exists := r.users[entry.userId]; exists {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(r.users, entry.userId)
			return entry.userId, true, true
		}
	}
	return entry.userId, false, true
}

// connections returns the live connection ids for a user.
func (r *registry) connections(userId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.users[userId]
	if len(conns) == 0 {
		return nil
	}
	result := make([]string, 0, len(conns))
	for id := range conns {
		result = append(result, id)
	}
	return result
}

// owner returns the user id that owns a connection.
func (r *registry) owner(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connId]
	return entry.userId, ok
}

func (r *registry) connCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *registry) hasConns(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userId]) > 0
}
