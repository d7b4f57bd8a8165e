package main

import (
	"encoding/json"
	"testing"
)

func newTestClientWithBuffer(userId, connId string, buffer int) *client {
	return &client{id: connId, userId: userId, send: make(chan []byte, buffer)}
}

func newTestClient(userId, connId string) *client {
	return newTestClientWithBuffer(userId, connId, 16)
}

func drain(c *client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// nextEvent pops one queued frame, failing the test if none is pending.
func nextEvent(t *testing.T, c *client) (string, map[string]interface{}) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg struct {
			Type    string                 `json:"type"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal queued event: %v", err)
		}
		return msg.Type, msg.Payload
	default:
		t.Fatal("no event queued")
		return "", nil
	}
}

func assertNoEvent(t *testing.T, c *client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected event queued: %s", data)
	default:
	}
}

func TestHub_BroadcastToResourceExcludesSender(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	a := newTestClient("alice", "conn-a")
	b := newTestClient("bob", "conn-b")
	h.attach(a)
	h.attach(b)
	h.subscribe("conn-a", "group-7")
	h.subscribe("conn-b", "group-7")

	h.broadcastToResource("group-7", serverMessage{Type: evtUserTyping}, "conn-a")

	if typ, _ := nextEvent(t, b); typ != evtUserTyping {
		t.Errorf("bob got %q, want userTyping", typ)
	}
	assertNoEvent(t, a)
}

func TestHub_BroadcastToUserReachesAllDevices(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	d1 := newTestClient("alice", "conn-1")
	d2 := newTestClient("alice", "conn-2")
	h.attach(d1)
	h.attach(d2)
	reg.register("alice", "conn-1")
	reg.register("alice", "conn-2")

	h.broadcastToUser("alice", serverMessage{Type: evtEditLockExpired})

	if typ, _ := nextEvent(t, d1); typ != evtEditLockExpired {
		t.Errorf("device 1 got %q", typ)
	}
	if typ, _ := nextEvent(t, d2); typ != evtEditLockExpired {
		t.Errorf("device 2 got %q", typ)
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	a := newTestClient("alice", "conn-a")
	h.attach(a)
	h.subscribe("conn-a", "group-7")
	h.unsubscribe("conn-a", "group-7")

	h.broadcastToResource("group-7", serverMessage{Type: evtUserTyping}, "")
	assertNoEvent(t, a)
	if h.roomSize("group-7") != 0 {
		t.Errorf("roomSize = %d after unsubscribe, want 0", h.roomSize("group-7"))
	}
}

func TestHub_DetachLeavesAllRooms(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	a := newTestClient("alice", "conn-a")
	h.attach(a)
	h.subscribe("conn-a", "group-7")
	h.subscribe("conn-a", "task-3")

	affected := h.detach("conn-a")
	if len(affected) != 2 {
		t.Errorf("detach affected %d rooms, want 2", len(affected))
	}
	if h.roomSize("group-7") != 0 || h.roomSize("task-3") != 0 {
		t.Error("rooms not emptied after detach")
	}
}

func TestHub_GlobalMirroredToBus(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	var subjects []string
	h.publish = func(subject string, _ []byte) { subjects = append(subjects, subject) }

	h.broadcastGlobal(serverMessage{Type: evtPresenceUpdate})
	h.broadcastToResource("slot 4.b", serverMessage{Type: evtResourceLocked}, "")

	if len(subjects) != 2 {
		t.Fatalf("published %d subjects, want 2", len(subjects))
	}
	if subjects[0] != "presence.event.global" {
		t.Errorf("global subject = %q", subjects[0])
	}
	if subjects[1] != "presence.event.resource.slot_4_b" {
		t.Errorf("resource subject = %q, want sanitized token", subjects[1])
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	reg := newRegistry()
	h := newHub(reg)
	a := newTestClientWithBuffer("alice", "conn-a", 1)
	h.attach(a)

	// Second broadcast must not block even though the queue is full.
	h.broadcastGlobal(serverMessage{Type: evtPresenceUpdate})
	h.broadcastGlobal(serverMessage{Type: evtPresenceUpdate})

	if got := len(a.send); got != 1 {
		t.Errorf("queued frames = %d, want 1 (overflow dropped)", got)
	}
}
