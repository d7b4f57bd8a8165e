package main

import (
	"encoding/json"
	"time"
)

// clientMessage is the inbound envelope every websocket frame carries.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serverMessage is the outbound envelope.
type serverMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound message types (client → gateway).
const (
	msgUpdateStatus    = "updateStatus"
	msgUpdateActivity  = "updateActivity"
	msgSubscribe       = "subscribeToResource"
	msgUnsubscribe     = "unsubscribeFromResource"
	msgGetOnlineUsers  = "getOnlineUsers"
	msgStartTyping     = "startTyping"
	msgStopTyping      = "stopTyping"
	msgGetTypingUsers  = "getTypingUsers"
	msgRequestEditLock = "requestEditLock"
	msgReleaseEditLock = "releaseEditLock"
	msgRenewEditLock   = "renewEditLock"
)

// Outbound message types (gateway → client).
const (
	evtPresenceUpdate    = "presenceUpdate"
	evtUserActivity      = "userActivity"
	evtResourceUsers     = "resourceUsers"
	evtOnlineUsers       = "onlineUsers"
	evtUserTyping        = "userTyping"
	evtUserStoppedTyping = "userStoppedTyping"
	evtTypingUsers       = "typingUsers"
	evtEditLockGranted   = "editLockGranted"
	evtEditLockDenied    = "editLockDenied"
	evtEditLockReleased  = "editLockReleased"
	evtEditLockRenewed   = "editLockRenewed"
	evtEditLockExpired   = "editLockExpired"
	evtResourceLocked    = "resourceLocked"
	evtResourceUnlocked  = "resourceUnlocked"
	evtError             = "error"
)

type updateStatusRequest struct {
	Status        string `json:"status"`
	CustomMessage string `json:"customMessage,omitempty"`
}

type updateActivityRequest struct {
	Activity   string `json:"activity"`
	ResourceId string `json:"resourceId,omitempty"`
}

type subscribeRequest struct {
	ResourceId   string `json:"resourceId"`
	ResourceType string `json:"resourceType,omitempty"`
}

type unsubscribeRequest struct {
	ResourceId string `json:"resourceId"`
}

type onlineUsersRequest struct {
	UserIds []string `json:"userIds,omitempty"`
}

type typingRequest struct {
	Context    string `json:"context"`
	ResourceId string `json:"resourceId"`
}

type lockRequest struct {
	LockType   string `json:"lockType"`
	ResourceId string `json:"resourceId"`
}

type presenceUpdateEvent struct {
	UserId   string `json:"userId"`
	Status   string `json:"status"`
	IsOnline bool   `json:"isOnline"`
}

type userActivityEvent struct {
	UserId     string `json:"userId"`
	Activity   string `json:"activity"`
	ResourceId string `json:"resourceId,omitempty"`
}

type resourceUsersEvent struct {
	ResourceId string           `json:"resourceId"`
	Users      []PresenceRecord `json:"users"`
}

type onlineUsersEvent struct {
	Users []PresenceRecord `json:"users"`
}

type typingEvent struct {
	UserId     string `json:"userId"`
	Context    string `json:"context"`
	ResourceId string `json:"resourceId"`
}

type typingUsersEvent struct {
	Context    string            `json:"context"`
	ResourceId string            `json:"resourceId"`
	Typing     []TypingIndicator `json:"typing"`
}

type lockGrantedEvent struct {
	LockId     string    `json:"lockId"`
	LockType   string    `json:"lockType"`
	ResourceId string    `json:"resourceId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type lockDeniedEvent struct {
	LockType   string    `json:"lockType"`
	ResourceId string    `json:"resourceId"`
	LockedBy   string    `json:"lockedBy"`
	LockedAt   time.Time `json:"lockedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type lockReleasedEvent struct {
	LockType   string `json:"lockType"`
	ResourceId string `json:"resourceId"`
}

type lockRenewedEvent struct {
	LockType   string    `json:"lockType"`
	ResourceId string    `json:"resourceId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type lockExpiredEvent struct {
	LockType   string `json:"lockType"`
	ResourceId string `json:"resourceId"`
}

type resourceLockedEvent struct {
	ResourceId string `json:"resourceId"`
	LockType   string `json:"lockType"`
	LockedBy   string `json:"lockedBy"`
}

type resourceUnlockedEvent struct {
	ResourceId string `json:"resourceId"`
	LockType   string `json:"lockType"`
}

type errorEvent struct {
	Message string `json:"message"`
}

// activityUpdate is the payload sibling subsystems publish to
// presence.activity so an editor can push activity changes for a user
// without an active client message.
type activityUpdate struct {
	UserId     string `json:"userId"`
	Activity   string `json:"activity"`
	ResourceId string `json:"resourceId,omitempty"`
}
