package main

import (
	"testing"
	"time"
)

func TestPresenceStore_SyntheticDefault(t *testing.T) {
	p := newPresenceStore()
	rec := p.get("never-seen")
	if rec.UserId != "never-seen" {
		t.Errorf("UserId = %q, want never-seen", rec.UserId)
	}
	if rec.Status != StatusOffline || rec.IsOnline {
		t.Errorf("unknown user = %q/online=%v, want offline/false", rec.Status, rec.IsOnline)
	}
	if rec.CurrentActivity != ActivityIdle {
		t.Errorf("CurrentActivity = %q, want idle", rec.CurrentActivity)
	}
}

func TestPresenceStore_SetOnline(t *testing.T) {
	p := newPresenceStore()
	rec := p.setOnline("alice", "test-agent")
	if rec.Status != StatusOnline || !rec.IsOnline {
		t.Errorf("setOnline = %q/online=%v, want online/true", rec.Status, rec.IsOnline)
	}
	if rec.DeviceInfo != "test-agent" {
		t.Errorf("DeviceInfo = %q, want test-agent", rec.DeviceInfo)
	}
	if rec.LastSeen.IsZero() {
		t.Error("LastSeen not stamped")
	}
}

func TestPresenceStore_SetOfflineClearsActivity(t *testing.T) {
	p := newPresenceStore()
	p.setOnline("alice", "")
	p.updateActivity("alice", ActivityEditing, "slot-42")

	rec := p.setOffline("alice")
	if rec.IsOnline || rec.Status != StatusOffline {
		t.Errorf("setOffline = %q/online=%v, want offline/false", rec.Status, rec.IsOnline)
	}
	if rec.CurrentActivity != ActivityIdle {
		t.Errorf("CurrentActivity = %q, want idle", rec.CurrentActivity)
	}
	if rec.CurrentResourceId != "" {
		t.Errorf("CurrentResourceId = %q, want empty", rec.CurrentResourceId)
	}
}

func TestPresenceStore_AwaySinceOnlyOnTransition(t *testing.T) {
	p := newPresenceStore()
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	current := base
	p.now = func() time.Time { return current }

	p.setOnline("alice", "")
	rec := p.updateStatus("alice", StatusAway, "brb")
	if rec.AwaySince == nil || !rec.AwaySince.Equal(base) {
		t.Fatalf("AwaySince = %v, want %v", rec.AwaySince, base)
	}
	if rec.CustomStatusMessage != "brb" {
		t.Errorf("CustomStatusMessage = %q, want brb", rec.CustomStatusMessage)
	}

	// A second away update must not restamp the transition time.
	current = base.Add(10 * time.Minute)
	rec = p.updateStatus("alice", StatusAway, "still away")
	if rec.AwaySince == nil || !rec.AwaySince.Equal(base) {
		t.Errorf("AwaySince restamped to %v, want %v", rec.AwaySince, base)
	}
	if !rec.LastSeen.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("LastSeen = %v, want bumped", rec.LastSeen)
	}

	rec = p.updateStatus("alice", StatusOnline, "")
	if rec.AwaySince != nil {
		t.Errorf("AwaySince = %v after leaving away, want nil", rec.AwaySince)
	}
}

func TestPresenceStore_QueryOnline(t *testing.T) {
	p := newPresenceStore()
	p.setOnline("alice", "")
	p.setOnline("bob", "")
	p.setOnline("carol", "")
	p.setOffline("carol")

	all := p.queryOnline(nil)
	if len(all) != 2 {
		t.Fatalf("queryOnline(nil) = %d users, want 2", len(all))
	}

	filtered := p.queryOnline([]string{"alice", "carol", "ghost"})
	if len(filtered) != 1 || filtered[0].UserId != "alice" {
		t.Errorf("queryOnline(filter) = %v, want just alice", filtered)
	}
}

func TestPresenceStore_Viewers(t *testing.T) {
	p := newPresenceStore()
	p.setOnline("alice", "")
	p.setOnline("bob", "")
	p.updateActivity("alice", ActivityViewing, "slot-42")
	p.updateActivity("bob", ActivityViewing, "slot-99")

	viewers := p.viewers("slot-42")
	if len(viewers) != 1 || viewers[0].UserId != "alice" {
		t.Errorf("viewers(slot-42) = %v, want just alice", viewers)
	}
}
