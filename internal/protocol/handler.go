// Package protocol decodes inbound client events, validates their shape, and
// dispatches them to the room broker and history buffer. Every step is
// mirrored into the structured audit log.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"tenant-hub/internal/broker"
	"tenant-hub/internal/diag"
	"tenant-hub/internal/history"
	"tenant-hub/internal/identity"
	"tenant-hub/internal/models"
	"tenant-hub/internal/registry"

	"github.com/google/uuid"
)

// Audit log event names.
const (
	AuditConnectionEstablished = "CONNECTION_ESTABLISHED"
	AuditAuthAccepted          = "AUTH_ACCEPTED"
	AuditAuthRejected          = "AUTH_REJECTED"
	AuditAuthenticated         = "AUTHENTICATED"
	AuditRoomJoined            = "ROOM_JOINED"
	AuditRoomLeft              = "ROOM_LEFT"
	AuditTenantJoined          = "TENANT_JOINED"
	AuditReplaySent            = "REPLAY_SENT"
	AuditMessageSent           = "MESSAGE_SENT"
	AuditTyping                = "TYPING"
	AuditStatusChanged         = "STATUS_CHANGED"
	AuditMessageRead           = "MESSAGE_READ"
	AuditMalformedEvent        = "MALFORMED_EVENT"
	AuditUnknownEvent          = "UNKNOWN_EVENT"
	AuditDeliveryFailed        = "DELIVERY_FAILED"
	AuditDisconnect            = "DISCONNECT"
	AuditTransportError        = "TRANSPORT_ERROR"
	AuditHandlerPanic          = "HANDLER_PANIC"
)

// Handler drives the per-connection event state machine:
// CONNECTED (transport open, no identity) -> JOINED (tenant/user attached,
// member of at least one room) -> CLOSED. Each transport delivers one
// inbound event at a time per connection, so Handler methods never
// interleave for the same connection.
type Handler struct {
	registry *registry.Registry
	broker   *broker.Broker
	history  *history.Buffer
	audit    *diag.Logger

	now   func() time.Time
	newID func() string
}

func NewHandler(reg *registry.Registry, br *broker.Broker, hist *history.Buffer, audit *diag.Logger) *Handler {
	return &Handler{
		registry: reg,
		broker:   br,
		history:  hist,
		audit:    audit,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (h *Handler) timestamp() string {
	return h.now().Format(time.RFC3339)
}

// HandleConnect registers the connection and records the trust-on-receipt
// outcome of any handshake identity claims. Missing or malformed claims are
// logged but never reject the connection.
func (h *Handler) HandleConnect(s broker.Sender, transport registry.Transport, remoteAddr, userAgent string, claims identity.Claims, claimsErr error) {
	conn := h.registry.Register(s.ID(), transport, remoteAddr, userAgent)

	h.audit.Info(AuditConnectionEstablished, "connection established", diag.Context{
		ConnectionID: conn.ID,
		Transport:    string(transport),
		Details: map[string]interface{}{
			"remoteAddr": remoteAddr,
			"userAgent":  userAgent,
		},
	})

	switch {
	case claimsErr != nil:
		h.audit.Warn(AuditAuthRejected, fmt.Sprintf("handshake identity claims rejected: %v", claimsErr), diag.Context{
			ConnectionID: conn.ID,
			Transport:    string(transport),
		})
	case claims.Present():
		h.audit.Info(AuditAuthAccepted, "handshake identity claims accepted on trust", diag.Context{
			ConnectionID: conn.ID,
			TenantID:     claims.TenantID,
			UserID:       claims.UserID,
			Transport:    string(transport),
			Details:      map[string]interface{}{"source": string(claims.Source)},
		})
	}
}

// HandleEvent decodes and dispatches one inbound event. A malformed or
// failing event affects only its own connection; nothing escapes past this
// handler.
func (h *Handler) HandleEvent(s broker.Sender, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.audit.Error(AuditHandlerPanic, fmt.Sprintf("recovered from event handler panic: %v", r), diag.Context{
				ConnectionID: s.ID(),
			})
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.warnMalformed(s.ID(), "", fmt.Sprintf("undecodable event payload: %v", err))
		return
	}

	switch env.Event {
	case models.EventJoinRoom:
		h.handleJoinRoom(s, env.Data)
	case models.EventJoinTenant:
		h.handleJoinTenant(s, env.Data)
	case models.EventSendMessage:
		h.handleSendMessage(s, env.Data)
	case models.EventTypingStart:
		h.handleTyping(s, env.Data, true)
	case models.EventTypingStop:
		h.handleTyping(s, env.Data, false)
	case models.EventUpdateStatus:
		h.handleUpdateStatus(s, env.Data)
	case models.EventMarkRead:
		h.handleMarkRead(s, env.Data)
	case models.EventLeaveRoom:
		h.handleLeaveRoom(s, env.Data)
	default:
		h.audit.Warn(AuditUnknownEvent, fmt.Sprintf("ignoring unknown event %q", env.Event), diag.Context{
			ConnectionID: s.ID(),
		})
	}
}

func (h *Handler) handleJoinRoom(s broker.Sender, data json.RawMessage) {
	var payload models.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Room == "" {
		h.warnMalformed(s.ID(), models.EventJoinRoom, "join-room without a room key ignored")
		return
	}

	h.registry.RecordRoomJoin(s.ID(), payload.Room)
	members := h.broker.Join(payload.Room, s)

	h.audit.Info(AuditRoomJoined, fmt.Sprintf("connection joined room %s", payload.Room), diag.Context{
		ConnectionID: s.ID(),
		Details:      map[string]interface{}{"room": payload.Room, "members": members},
	})
}

func (h *Handler) handleJoinTenant(s broker.Sender, data json.RawMessage) {
	var payload models.JoinTenantPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TenantID == "" {
		h.warnMalformed(s.ID(), models.EventJoinTenant, "join-tenant without a tenantId ignored")
		return
	}

	if !h.registry.AttachIdentity(s.ID(), payload.TenantID, payload.UserID) {
		h.warnMalformed(s.ID(), models.EventJoinTenant, "join-tenant from unregistered connection ignored")
		return
	}
	h.audit.Info(AuditAuthenticated, "identity attached on trust", diag.Context{
		ConnectionID: s.ID(),
		TenantID:     payload.TenantID,
		UserID:       payload.UserID,
	})

	roomKey := broker.TenantRoomKey(payload.TenantID)
	h.registry.RecordRoomJoin(s.ID(), roomKey)
	members := h.broker.Join(roomKey, s)

	h.audit.Info(AuditTenantJoined, fmt.Sprintf("connection joined tenant room %s", roomKey), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     payload.TenantID,
		UserID:       payload.UserID,
		Details:      map[string]interface{}{"room": roomKey, "members": members},
	})

	// Replay goes to the joining connection only.
	entries := h.history.Recent(payload.TenantID)
	h.sendTo(s, models.EventRecentMessages, models.RecentMessagesPayload{
		TenantID: payload.TenantID,
		Messages: entries,
	})
	h.audit.Debug(AuditReplaySent, fmt.Sprintf("replayed %d messages", len(entries)), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     payload.TenantID,
	})

	if payload.UserID != "" {
		h.broadcast(roomKey, models.EventUserStatusChanged, models.UserStatusPayload{
			UserID:    payload.UserID,
			Status:    models.StatusOnline,
			Timestamp: h.timestamp(),
		})
	}
}

func (h *Handler) handleSendMessage(s broker.Sender, data json.RawMessage) {
	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil ||
		payload.TenantID == "" || payload.SenderID == "" || payload.Content == "" {
		h.warnMalformed(s.ID(), models.EventSendMessage, "send-message missing tenantId, senderId, or content dropped")
		return
	}
	if _, ok := h.joined(s.ID(), models.EventSendMessage); !ok {
		return
	}

	entry := models.HistoryEntry{
		ID:        h.newID(),
		TenantID:  payload.TenantID,
		SenderID:  payload.SenderID,
		Content:   payload.Content,
		Timestamp: h.timestamp(),
	}
	h.history.Append(payload.TenantID, entry)

	roomKey := broker.TenantRoomKey(payload.TenantID)
	h.broadcast(roomKey, models.EventNewMessage, entry)

	// Acknowledgment goes to the sender only, never broadcast.
	h.sendTo(s, models.EventMessageSent, models.MessageSentPayload{
		ID:        entry.ID,
		Timestamp: h.timestamp(),
	})

	h.audit.Info(AuditMessageSent, fmt.Sprintf("message %s delivered to room %s", entry.ID, roomKey), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     payload.TenantID,
		UserID:       payload.SenderID,
		Details:      map[string]interface{}{"messageId": entry.ID},
	})
}

func (h *Handler) handleTyping(s broker.Sender, data json.RawMessage, isTyping bool) {
	event := models.EventTypingStop
	if isTyping {
		event = models.EventTypingStart
	}

	var payload models.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		h.warnMalformed(s.ID(), event, "typing event without a userId dropped")
		return
	}
	conn, ok := h.joined(s.ID(), event)
	if !ok {
		return
	}

	h.broadcast(broker.TenantRoomKey(conn.TenantID), models.EventUserTyping, models.UserTypingPayload{
		UserID:    payload.UserID,
		IsTyping:  isTyping,
		Timestamp: h.timestamp(),
	})

	h.audit.Debug(AuditTyping, fmt.Sprintf("user %s typing=%t", payload.UserID, isTyping), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     conn.TenantID,
		UserID:       payload.UserID,
	})
}

func (h *Handler) handleUpdateStatus(s broker.Sender, data json.RawMessage) {
	var payload models.UpdateStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		h.warnMalformed(s.ID(), models.EventUpdateStatus, "update-status without a userId dropped")
		return
	}
	if payload.Status != models.StatusOnline && payload.Status != models.StatusOffline && payload.Status != models.StatusAway {
		h.warnMalformed(s.ID(), models.EventUpdateStatus, fmt.Sprintf("update-status with unsupported status %q dropped", payload.Status))
		return
	}
	conn, ok := h.joined(s.ID(), models.EventUpdateStatus)
	if !ok {
		return
	}

	h.broadcast(broker.TenantRoomKey(conn.TenantID), models.EventUserStatusChanged, models.UserStatusPayload{
		UserID:    payload.UserID,
		Status:    payload.Status,
		Timestamp: h.timestamp(),
	})

	h.audit.Info(AuditStatusChanged, fmt.Sprintf("user %s is now %s", payload.UserID, payload.Status), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     conn.TenantID,
		UserID:       payload.UserID,
	})
}

func (h *Handler) handleMarkRead(s broker.Sender, data json.RawMessage) {
	var payload models.MarkReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" || payload.UserID == "" {
		h.warnMalformed(s.ID(), models.EventMarkRead, "mark-read missing messageId or userId dropped")
		return
	}
	conn, ok := h.joined(s.ID(), models.EventMarkRead)
	if !ok {
		return
	}

	h.broadcast(broker.TenantRoomKey(conn.TenantID), models.EventMessageRead, models.MessageReadPayload{
		MessageID: payload.MessageID,
		UserID:    payload.UserID,
		Timestamp: h.timestamp(),
	})

	h.audit.Debug(AuditMessageRead, fmt.Sprintf("message %s read by %s", payload.MessageID, payload.UserID), diag.Context{
		ConnectionID: s.ID(),
		TenantID:     conn.TenantID,
		UserID:       payload.UserID,
	})
}

func (h *Handler) handleLeaveRoom(s broker.Sender, data json.RawMessage) {
	var payload models.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Room == "" {
		// Unknown or missing room is a no-op.
		return
	}

	h.registry.RecordRoomLeave(s.ID(), payload.Room)
	h.broker.Leave(payload.Room, s.ID())

	h.audit.Info(AuditRoomLeft, fmt.Sprintf("connection left room %s", payload.Room), diag.Context{
		ConnectionID: s.ID(),
		Details:      map[string]interface{}{"room": payload.Room},
	})
}

// HandleDisconnect tears down the connection: registry removal, room
// eviction, and an offline presence broadcast when the record carried an
// identity. Safe to call for connections that were never registered.
func (h *Handler) HandleDisconnect(connID, reason string) {
	conn, ok := h.registry.Remove(connID)
	if !ok {
		return
	}

	for _, roomKey := range conn.Rooms {
		h.broker.Leave(roomKey, connID)
	}

	if conn.TenantID != "" && conn.UserID != "" {
		h.broadcast(broker.TenantRoomKey(conn.TenantID), models.EventUserStatusChanged, models.UserStatusPayload{
			UserID:    conn.UserID,
			Status:    models.StatusOffline,
			Timestamp: h.timestamp(),
		})
	}

	h.audit.Info(AuditDisconnect, fmt.Sprintf("connection closed: %s", reason), diag.Context{
		ConnectionID: connID,
		TenantID:     conn.TenantID,
		UserID:       conn.UserID,
		Transport:    string(conn.Transport),
		Details:      map[string]interface{}{"reason": reason},
	})
}

// HandleTransportError records a transport-level failure with full context.
// The error is isolated to its connection; the transport layer drives the
// disconnect path afterwards.
func (h *Handler) HandleTransportError(connID string, err error) {
	conn, _ := h.registry.Get(connID)
	h.audit.Error(AuditTransportError, fmt.Sprintf("transport error: %v", err), diag.Context{
		ConnectionID: connID,
		TenantID:     conn.TenantID,
		UserID:       conn.UserID,
		Transport:    string(conn.Transport),
	})
}

// joined enforces the JOINED precondition: the connection must exist and
// have a tenant attached. Events arriving before join-tenant are dropped
// with a WARN record.
func (h *Handler) joined(connID string, event models.EventName) (registry.Connection, bool) {
	conn, ok := h.registry.Get(connID)
	if !ok || conn.TenantID == "" {
		h.warnMalformed(connID, event, fmt.Sprintf("%s from a connection that never joined a tenant dropped", event))
		return registry.Connection{}, false
	}
	return conn, true
}

func (h *Handler) warnMalformed(connID string, event models.EventName, message string) {
	ctx := diag.Context{ConnectionID: connID}
	if event != "" {
		ctx.Details = map[string]interface{}{"event": string(event)}
	}
	h.audit.Warn(AuditMalformedEvent, message, ctx)
}

func (h *Handler) encode(event models.EventName, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(models.Envelope{Event: event, Data: data})
}

// sendTo delivers an event to a single connection. Failures are recorded as
// delivery failures and never propagate.
func (h *Handler) sendTo(s broker.Sender, event models.EventName, payload interface{}) {
	data, err := h.encode(event, payload)
	if err != nil {
		h.audit.Error(AuditDeliveryFailed, err.Error(), diag.Context{ConnectionID: s.ID()})
		return
	}
	if err := s.Send(data); err != nil {
		h.audit.Warn(AuditDeliveryFailed, fmt.Sprintf("failed to deliver %s: %v", event, err), diag.Context{
			ConnectionID: s.ID(),
			Details:      map[string]interface{}{"event": string(event)},
		})
	}
}

// broadcast fans an event out to every member of roomKey, reporting each
// failed member without aborting delivery to the rest.
func (h *Handler) broadcast(roomKey string, event models.EventName, payload interface{}) {
	data, err := h.encode(event, payload)
	if err != nil {
		h.audit.Error(AuditDeliveryFailed, err.Error(), diag.Context{
			Details: map[string]interface{}{"room": roomKey},
		})
		return
	}

	_, failed := h.broker.Broadcast(roomKey, data)
	for _, connID := range failed {
		h.audit.Warn(AuditDeliveryFailed, fmt.Sprintf("failed to deliver %s to room member", event), diag.Context{
			ConnectionID: connID,
			Details:      map[string]interface{}{"event": string(event), "room": roomKey},
		})
	}
}
