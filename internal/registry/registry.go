package registry

import (
	"sync"
	"time"
)

type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportPolling   Transport = "polling"
)

// Connection is the session state tracked for one live transport connection.
// Rooms preserves join order.
type Connection struct {
	ID          string    `json:"id"`
	Transport   Transport `json:"transport"`
	RemoteAddr  string    `json:"remoteAddr"`
	UserAgent   string    `json:"userAgent,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	TenantID    string    `json:"tenantId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	Rooms       []string  `json:"rooms"`
}

func (c *Connection) inRoom(roomKey string) bool {
	for _, r := range c.Rooms {
		if r == roomKey {
			return true
		}
	}
	return false
}

func (c *Connection) clone() Connection {
	out := *c
	out.Rooms = append([]string(nil), c.Rooms...)
	return out
}

// Registry is the single source of truth mapping connection IDs to session
// state. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func New() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register creates a fresh record for connID. Registering an already known
// ID replaces the old record.
func (r *Registry) Register(connID string, transport Transport, remoteAddr, userAgent string) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := &Connection{
		ID:          connID,
		Transport:   transport,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
	}
	r.conns[connID] = conn
	return conn.clone()
}

// AttachIdentity sets the tenant/user for an existing record. Last write
// wins; calling it repeatedly is safe. Returns false if connID is unknown.
func (r *Registry) AttachIdentity(connID, tenantID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.TenantID = tenantID
	if userID != "" {
		conn.UserID = userID
	}
	return true
}

// RecordRoomJoin adds roomKey to the connection's room set. Joining a room
// twice is a no-op beyond confirming membership.
func (r *Registry) RecordRoomJoin(connID, roomKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	if !conn.inRoom(roomKey) {
		conn.Rooms = append(conn.Rooms, roomKey)
	}
	return true
}

// RecordRoomLeave removes roomKey from the connection's room set. Leaving a
// room the connection never joined is a no-op.
func (r *Registry) RecordRoomLeave(connID, roomKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	for i, room := range conn.Rooms {
		if room == roomKey {
			conn.Rooms = append(conn.Rooms[:i], conn.Rooms[i+1:]...)
			break
		}
	}
	return true
}

// Remove deletes the record and returns it so the caller can run cleanup
// (room eviction, presence broadcast) exactly once. Safe to call for a
// connection that was never registered.
func (r *Registry) Remove(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, connID)
	return conn.clone(), true
}

func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return conn.clone(), true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns copies of every live record, for /diagnostics.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn.clone())
	}
	return out
}

// TransportBreakdown counts live connections per transport kind.
func (r *Registry) TransportBreakdown() map[Transport]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Transport]int, 2)
	for _, conn := range r.conns {
		out[conn.Transport]++
	}
	return out
}
