package main

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// client is one attached connection's outbound queue. The write pump drains
// send; broadcasts must never block on a slow client.
type client struct {
	id     string
	userId string
	send   chan []byte
}

// hub is the resource subscription router and event broadcaster. Room
// membership is tracked with forward (resource → conns) and reverse
// (conn → resources) indexes so disconnect cleanup is O(that conn's rooms).
// The three broadcast methods are the only egress paths any component uses.
type hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	rooms    map[string]map[string]bool
	joined   map[string]map[string]bool
	registry *registry

	// publish, when set, mirrors resource and global events onto the
	// message bus for sibling subsystems and a future multi-instance relay.
	publish func(subject string, data []byte)
}

func newHub(reg *registry) *hub {
	return &hub{
		clients:  make(map[string]*client),
		rooms:    make(map[string]map[string]bool),
		joined:   make(map[string]map[string]bool),
		registry: reg,
	}
}

func (h *hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// detach removes a connection from the hub and every room it joined,
// returning the affected resource ids.
func (h *hub) detach(connId string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connId)
	resources, ok := h.joined[connId]
	if !ok {
		return nil
	}
	affected := make([]string, 0, len(resources))
	for resourceId := range resources {
		affected = append(affected, resourceId)
		if conns, exists := h.rooms[resourceId]; exists {
			delete(conns, connId)
			if len(conns) == 0 {
				delete(h.rooms, resourceId)
			}
		}
	}
	delete(h.joined, connId)
	return affected
}

func (h *hub) subscribe(connId, resourceId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[resourceId] == nil {
		h.rooms[resourceId] = make(map[string]bool)
	}
	h.rooms[resourceId][connId] = true
	if h.joined[connId] == nil {
		h.joined[connId] = make(map[string]bool)
	}
	h.joined[connId][resourceId] = true
}

func (h *hub) unsubscribe(connId, resourceId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[resourceId]; ok {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(h.rooms, resourceId)
		}
	}
	if resources, ok := h.joined[connId]; ok {
		delete(resources, resourceId)
		if len(resources) == 0 {
			delete(h.joined, connId)
		}
	}
}

func (h *hub) roomSize(resourceId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[resourceId])
}

// enqueue hands a frame to one client's write pump, dropping it if the
// client cannot keep up.
func (h *hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("Dropping event for slow client", "connId", c.id, "user", c.userId)
	}
}

func marshalEvent(msg serverMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("Failed to marshal event", "type", msg.Type, "error", err)
		return nil
	}
	return data
}

// sendToConn delivers an event to a single connection.
func (h *hub) sendToConn(connId string, msg serverMessage) {
	data := marshalEvent(msg)
	if data == nil {
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connId]
	h.mu.RUnlock()
	if ok {
		h.enqueue(c, data)
	}
}

// broadcastToUser fans an event out to every live connection of one user,
// keeping multi-device sessions consistent.
func (h *hub) broadcastToUser(userId string, msg serverMessage) {
	data := marshalEvent(msg)
	if data == nil {
		return
	}
	for _, connId := range h.registry.connections(userId) {
		h.mu.RLock()
		c, ok := h.clients[connId]
		h.mu.RUnlock()
		if ok {
			h.enqueue(c, data)
		}
	}
}

// broadcastToResource fans an event out to every connection subscribed to a
// resource, except an optional excluded sender.
func (h *hub) broadcastToResource(resourceId string, msg serverMessage, excludeConn string) {
	data := marshalEvent(msg)
	if data == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[resourceId]))
	for connId := range h.rooms[resourceId] {
		if connId == excludeConn {
			continue
		}
		if c, ok := h.clients[connId]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, data)
	}
	h.mirror("presence.event.resource."+subjectToken(resourceId), data)
}

// broadcastGlobal fans an event out to all connections.
func (h *hub) broadcastGlobal(msg serverMessage) {
	data := marshalEvent(msg)
	if data == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, data)
	}
	h.mirror("presence.event.global", data)
}

func (h *hub) mirror(subject string, data []byte) {
	if h.publish != nil {
		h.publish(subject, data)
	}
}

// subjectToken makes an opaque resource id safe for use as one subject
// token: dots, spaces, and wildcards would change subject semantics.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, id)
}
