package main

import (
	"sync"
	"time"
)

// Presence statuses.
const (
	StatusOnline       = "online"
	StatusAway         = "away"
	StatusDoNotDisturb = "dnd"
	StatusOffline      = "offline"
)

// Activities.
const (
	ActivityViewing = "viewing"
	ActivityEditing = "editing"
	ActivityInChat  = "in_chat"
	ActivityIdle    = "idle"
)

var validStatuses = map[string]bool{
	StatusOnline: true, StatusAway: true, StatusDoNotDisturb: true, StatusOffline: true,
}

var validActivities = map[string]bool{
	ActivityViewing: true, ActivityEditing: true, ActivityInChat: true, ActivityIdle: true,
}

// PresenceRecord is the last known presence for one user. Records are
// created lazily on first contact and never deleted; an offline record is
// the user's "last seen" state.
type PresenceRecord struct {
	UserId              string     `json:"userId"`
	Status              string     `json:"status"`
	IsOnline            bool       `json:"isOnline"`
	LastSeen            time.Time  `json:"lastSeen"`
	CurrentActivity     string     `json:"currentActivity"`
	CurrentResourceId   string     `json:"currentResourceId,omitempty"`
	CustomStatusMessage string     `json:"customStatusMessage,omitempty"`
	AwaySince           *time.Time `json:"awaySince,omitempty"`
	DeviceInfo          string     `json:"deviceInfo,omitempty"`
}

// presenceStore holds one record per user. Every mutation is a single
// critical section over the record, so concurrent handlers cannot observe
// or produce a half-applied update.
type presenceStore struct {
	mu      sync.RWMutex
	records map[string]*PresenceRecord
	now     func() time.Time
}

func newPresenceStore() *presenceStore {
	return &presenceStore{
		records: make(map[string]*PresenceRecord),
		now:     time.Now,
	}
}

// upsertLocked returns the record for a user, creating it if absent.
// Caller must hold p.mu.
func (p *presenceStore) upsertLocked(userId string) *PresenceRecord {
	rec, ok := p.records[userId]
	if !ok {
		rec = &PresenceRecord{
			UserId:          userId,
			Status:          StatusOffline,
			CurrentActivity: ActivityIdle,
		}
		p.records[userId] = rec
	}
	return rec
}

// setOnline marks a user online on connect.
func (p *presenceStore) setOnline(userId, deviceInfo string) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.upsertLocked(userId)
	rec.Status = StatusOnline
	rec.IsOnline = true
	rec.LastSeen = p.now()
	rec.AwaySince = nil
	if deviceInfo != "" {
		rec.DeviceInfo = deviceInfo
	}
	return *rec
}

// setOffline flips a user offline. Called only once the user's connection
// set has emptied; resets activity to idle and clears the viewed resource.
func (p *presenceStore) setOffline(userId string) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.upsertLocked(userId)
	rec.Status = StatusOffline
	rec.IsOnline = false
	rec.LastSeen = p.now()
	rec.CurrentActivity = ActivityIdle
	rec.CurrentResourceId = ""
	return *rec
}

// updateStatus applies a user-initiated status change. awaySince is stamped
// only on the transition into away.
func (p *presenceStore) updateStatus(userId, status, customMessage string) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.upsertLocked(userId)
	if status == StatusAway && rec.Status != StatusAway {
		t := p.now()
		rec.AwaySince = &t
	}
	if status != StatusAway {
		rec.AwaySince = nil
	}
	rec.Status = status
	rec.CustomStatusMessage = customMessage
	rec.LastSeen = p.now()
	return *rec
}

// updateActivity records what the user is currently doing and where.
func (p *presenceStore) updateActivity(userId, activity, resourceId string) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.upsertLocked(userId)
	rec.CurrentActivity = activity
	rec.CurrentResourceId = resourceId
	rec.LastSeen = p.now()
	return *rec
}

// get returns the record for a user, or a synthetic never-seen offline
// default — an unknown user is not an error.
func (p *presenceStore) get(userId string) PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rec, ok := p.records[userId]; ok {
		return *rec
	}
	return PresenceRecord{
		UserId:          userId,
		Status:          StatusOffline,
		CurrentActivity: ActivityIdle,
	}
}

// queryOnline returns online users, optionally restricted to a candidate
// set.
func (p *presenceStore) queryOnline(userIds []string) []PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var result []PresenceRecord
	if userIds == nil {
		for _, rec := range p.records {
			if rec.IsOnline {
				result = append(result, *rec)
			}
		}
		return result
	}
	for _, id := range userIds {
		if rec, ok := p.records[id]; ok && rec.IsOnline {
			result = append(result, *rec)
		}
	}
	return result
}

// viewers returns online users currently viewing a resource.
func (p *presenceStore) viewers(resourceId string) []PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var result []PresenceRecord
	for _, rec := range p.records {
		if rec.IsOnline && rec.CurrentResourceId == resourceId {
			result = append(result, *rec)
		}
	}
	return result
}
