package main

import (
	"encoding/json"
	"log/slog"
)

// gateway wires the stores together and owns the inbound-message dispatch.
// Each handler mutates exactly one store through a conditional update, then
// notifies through the hub.
type gateway struct {
	registry *registry
	presence *presenceStore
	typing   *typingTracker
	locks    *lockManager
	hub      *hub
	metrics  *gatewayMetrics
}

func newGateway(reg *registry, pres *presenceStore, typ *typingTracker, locks *lockManager, h *hub, m *gatewayMetrics) *gateway {
	return &gateway{
		registry: reg,
		presence: pres,
		typing:   typ,
		locks:    locks,
		hub:      h,
		metrics:  m,
	}
}

// connect registers a new connection and announces the user online.
func (g *gateway) connect(c *client, deviceInfo string) {
	g.hub.attach(c)
	g.registry.register(c.userId, c.id)
	rec := g.presence.setOnline(c.userId, deviceInfo)
	g.hub.broadcastGlobal(serverMessage{Type: evtPresenceUpdate, Payload: presenceUpdateEvent{
		UserId: rec.UserId, Status: rec.Status, IsOnline: rec.IsOnline,
	}})
	g.metrics.connects.add(1)
	slog.Info("Connection registered", "user", c.userId, "connId", c.id)
}

// disconnect runs the full cleanup for a dropped connection: deregister,
// release its locks, clear the user's typing indicators, and flip presence
// offline when it was the last connection. Each step proceeds regardless of
// what the previous ones found; there is no client left to notify about
// partial failures.
func (g *gateway) disconnect(c *client) {
	userId, wasLast, ok := g.registry.deregister(c.id)
	g.hub.detach(c.id)
	if !ok {
		slog.Warn("Disconnect for unknown connection", "connId", c.id)
		return
	}

	for _, lock := range g.locks.releaseConnection(c.id) {
		g.hub.broadcastToResource(lock.ResourceId, serverMessage{Type: evtResourceUnlocked, Payload: resourceUnlockedEvent{
			ResourceId: lock.ResourceId, LockType: lock.LockType,
		}}, "")
		slog.Info("Released lock bound to dead connection", "user", lock.LockedBy, "lockType", lock.LockType, "resource", lock.ResourceId)
	}

	for _, ind := range g.typing.clearUser(userId) {
		g.hub.broadcastToResource(ind.ResourceId, serverMessage{Type: evtUserStoppedTyping, Payload: typingEvent{
			UserId: ind.UserId, Context: ind.Context, ResourceId: ind.ResourceId,
		}}, "")
	}

	if wasLast {
		rec := g.presence.setOffline(userId)
		g.hub.broadcastGlobal(serverMessage{Type: evtPresenceUpdate, Payload: presenceUpdateEvent{
			UserId: rec.UserId, Status: rec.Status, IsOnline: rec.IsOnline,
		}})
	}
	g.metrics.disconnects.add(1)
	slog.Info("Connection deregistered", "user", userId, "connId", c.id, "wasLast", wasLast)
}

// dispatch routes one inbound frame. Malformed payloads are surfaced back to
// the sending client as an error event and never anywhere else.
func (g *gateway) dispatch(c *client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendError(c, "invalid message")
		return
	}
	g.metrics.messages.add(1, "type", msg.Type)

	switch msg.Type {
	case msgUpdateStatus:
		var req updateStatusRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || !validStatuses[req.Status] {
			g.sendError(c, "invalid status update")
			return
		}
		rec := g.presence.updateStatus(c.userId, req.Status, req.CustomMessage)
		g.hub.broadcastGlobal(serverMessage{Type: evtPresenceUpdate, Payload: presenceUpdateEvent{
			UserId: rec.UserId, Status: rec.Status, IsOnline: rec.IsOnline,
		}})

	case msgUpdateActivity:
		var req updateActivityRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || !validActivities[req.Activity] {
			g.sendError(c, "invalid activity update")
			return
		}
		g.applyActivity(c.userId, req.Activity, req.ResourceId)

	case msgSubscribe:
		var req subscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" {
			g.sendError(c, "invalid subscribe request")
			return
		}
		g.hub.subscribe(c.id, req.ResourceId)
		g.hub.sendToConn(c.id, serverMessage{Type: evtResourceUsers, Payload: resourceUsersEvent{
			ResourceId: req.ResourceId,
			Users:      nonNilRecords(g.presence.viewers(req.ResourceId)),
		}})

	case msgUnsubscribe:
		var req unsubscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" {
			g.sendError(c, "invalid unsubscribe request")
			return
		}
		g.hub.unsubscribe(c.id, req.ResourceId)

	case msgGetOnlineUsers:
		var req onlineUsersRequest
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				g.sendError(c, "invalid online users request")
				return
			}
		}
		g.hub.sendToConn(c.id, serverMessage{Type: evtOnlineUsers, Payload: onlineUsersEvent{
			Users: nonNilRecords(g.presence.queryOnline(req.UserIds)),
		}})

	case msgStartTyping:
		var req typingRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" {
			g.sendError(c, "invalid typing request")
			return
		}
		ind := g.typing.start(c.userId, req.Context, req.ResourceId)
		g.metrics.typingStarts.add(1)
		g.hub.broadcastToResource(ind.ResourceId, serverMessage{Type: evtUserTyping, Payload: typingEvent{
			UserId: ind.UserId, Context: ind.Context, ResourceId: ind.ResourceId,
		}}, c.id)

	case msgStopTyping:
		var req typingRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" {
			g.sendError(c, "invalid typing request")
			return
		}
		if g.typing.stop(c.userId, req.Context, req.ResourceId) {
			g.hub.broadcastToResource(req.ResourceId, serverMessage{Type: evtUserStoppedTyping, Payload: typingEvent{
				UserId: c.userId, Context: req.Context, ResourceId: req.ResourceId,
			}}, "")
		}

	case msgGetTypingUsers:
		var req typingRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" {
			g.sendError(c, "invalid typing request")
			return
		}
		typing := g.typing.active(req.Context, req.ResourceId)
		if typing == nil {
			typing = []TypingIndicator{}
		}
		g.hub.sendToConn(c.id, serverMessage{Type: evtTypingUsers, Payload: typingUsersEvent{
			Context: req.Context, ResourceId: req.ResourceId, Typing: typing,
		}})

	case msgRequestEditLock:
		var req lockRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" || req.LockType == "" {
			g.sendError(c, "invalid lock request")
			return
		}
		g.requestLock(c, req.LockType, req.ResourceId)

	case msgRenewEditLock:
		var req lockRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" || req.LockType == "" {
			g.sendError(c, "invalid lock request")
			return
		}
		lock, ok := g.locks.renew(c.userId, req.LockType, req.ResourceId)
		if !ok {
			g.hub.sendToConn(c.id, serverMessage{Type: evtEditLockExpired, Payload: lockExpiredEvent{
				LockType: req.LockType, ResourceId: req.ResourceId,
			}})
			return
		}
		g.hub.sendToConn(c.id, serverMessage{Type: evtEditLockRenewed, Payload: lockRenewedEvent{
			LockType: lock.LockType, ResourceId: lock.ResourceId, ExpiresAt: lock.ExpiresAt,
		}})

	case msgReleaseEditLock:
		var req lockRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ResourceId == "" || req.LockType == "" {
			g.sendError(c, "invalid lock request")
			return
		}
		lock, ok := g.locks.release(c.userId, req.LockType, req.ResourceId)
		if !ok {
			// Releasing a lock you don't hold is a no-op.
			return
		}
		g.hub.sendToConn(c.id, serverMessage{Type: evtEditLockReleased, Payload: lockReleasedEvent{
			LockType: lock.LockType, ResourceId: lock.ResourceId,
		}})
		g.hub.broadcastToResource(lock.ResourceId, serverMessage{Type: evtResourceUnlocked, Payload: resourceUnlockedEvent{
			ResourceId: lock.ResourceId, LockType: lock.LockType,
		}}, c.id)

	default:
		g.sendError(c, "unknown message type: "+msg.Type)
	}
}

// requestLock arbitrates an acquisition attempt. Denials go to the
// requester only; grants notify the rest of the resource room.
func (g *gateway) requestLock(c *client, lockType, resourceId string) {
	lock, granted := g.locks.acquire(c.userId, c.id, lockType, resourceId)
	if !granted {
		g.metrics.lockDenials.add(1, "lockType", lockType)
		g.hub.sendToConn(c.id, serverMessage{Type: evtEditLockDenied, Payload: lockDeniedEvent{
			LockType:   lockType,
			ResourceId: resourceId,
			LockedBy:   lock.LockedBy,
			LockedAt:   lock.LockedAt,
			ExpiresAt:  lock.ExpiresAt,
		}})
		return
	}
	g.metrics.lockGrants.add(1, "lockType", lockType)
	g.hub.sendToConn(c.id, serverMessage{Type: evtEditLockGranted, Payload: lockGrantedEvent{
		LockId: lock.LockId, LockType: lock.LockType, ResourceId: lock.ResourceId, ExpiresAt: lock.ExpiresAt,
	}})
	g.hub.broadcastToResource(lock.ResourceId, serverMessage{Type: evtResourceLocked, Payload: resourceLockedEvent{
		ResourceId: lock.ResourceId, LockType: lock.LockType, LockedBy: lock.LockedBy,
	}}, c.id)
}

// applyActivity is shared by the client handler and the internal API:
// activity updates fan out to the resource's subscribers only, never
// globally.
func (g *gateway) applyActivity(userId, activity, resourceId string) {
	rec := g.presence.updateActivity(userId, activity, resourceId)
	if resourceId == "" {
		return
	}
	g.hub.broadcastToResource(resourceId, serverMessage{Type: evtUserActivity, Payload: userActivityEvent{
		UserId: rec.UserId, Activity: rec.CurrentActivity, ResourceId: rec.CurrentResourceId,
	}}, "")
}

func (g *gateway) sendError(c *client, message string) {
	g.hub.sendToConn(c.id, serverMessage{Type: evtError, Payload: errorEvent{Message: message}})
}

func nonNilRecords(records []PresenceRecord) []PresenceRecord {
	if records == nil {
		return []PresenceRecord{}
	}
	return records
}
