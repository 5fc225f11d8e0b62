package models

import "encoding/json"

type EventName string

// Inbound events sent by clients.
const (
	EventJoinRoom     EventName = "join-room" // legacy, caller-supplied room key
	EventJoinTenant   EventName = "join-tenant"
	EventSendMessage  EventName = "send-message"
	EventTypingStart  EventName = "typing-start"
	EventTypingStop   EventName = "typing-stop"
	EventUpdateStatus EventName = "update-status"
	EventMarkRead     EventName = "mark-read"
	EventLeaveRoom    EventName = "leave-room" // legacy
)

// Outbound events emitted by the hub.
const (
	EventRecentMessages    EventName = "recent-messages"
	EventNewMessage        EventName = "new-message"
	EventMessageSent       EventName = "message-sent"
	EventUserTyping        EventName = "user-typing"
	EventUserStatusChanged EventName = "user-status-changed"
	EventMessageRead       EventName = "message-read"
)

// Presence statuses accepted by update-status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// Envelope is the wire framing for every event in both directions:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type JoinTenantPayload struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId,omitempty"`
}

type SendMessagePayload struct {
	TenantID string `json:"tenantId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
}

type UpdateStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type MarkReadPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// HistoryEntry is one retained chat message. It doubles as the payload of
// new-message broadcasts and the elements of recent-messages replays.
// Timestamps are ISO-8601 strings generated at the moment of emission.
type HistoryEntry struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type RecentMessagesPayload struct {
	TenantID string         `json:"tenantId"`
	Messages []HistoryEntry `json:"messages"`
}

type MessageSentPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

type UserTypingPayload struct {
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp string `json:"timestamp"`
}

type UserStatusPayload struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type MessageReadPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}
