// Package poll is the fallback long-poll transport for clients that cannot
// hold a WebSocket open. A session queues outbound events until the client
// fetches them; sessions idle beyond the configured timeout are expired,
// which drives the same disconnect path as a closed socket.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"tenant-hub/internal/identity"
	"tenant-hub/internal/protocol"
	"tenant-hub/internal/registry"
	"tenant-hub/pkg/logger"

	"github.com/google/uuid"
)

const (
	// maxQueue bounds the per-session outbound backlog. A session that never
	// fetches stops receiving rather than growing without bound.
	maxQueue = 256

	reapInterval = 30 * time.Second
)

var (
	ErrSessionNotFound = errors.New("poll session not found")
	errSessionClosed   = errors.New("poll session closed")
	errQueueFull       = errors.New("poll event queue full")
)

// Session is one long-poll connection. It satisfies the broker's sender
// contract: Send never blocks.
type Session struct {
	id string

	mu       sync.Mutex
	queue    [][]byte
	notify   chan struct{}
	closed   bool
	lastSeen time.Time

	// eventMu serializes inbound events so the session behaves like a
	// single-reader socket.
	eventMu sync.Mutex
}

func (s *Session) ID() string {
	return s.id
}

// Send queues one outbound event for the next fetch.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	if len(s.queue) >= maxQueue {
		return errQueueFull
	}
	s.queue = append(s.queue, data)

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *Session) drain() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
}

// Manager tracks live poll sessions and bridges them to the protocol
// handler.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	handler     *protocol.Handler
	idleTimeout time.Duration
	waitTimeout time.Duration
}

func NewManager(handler *protocol.Handler, idleTimeout, waitTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		handler:     handler,
		idleTimeout: idleTimeout,
		waitTimeout: waitTimeout,
	}
}

// Open creates a session and registers the connection with the hub.
func (m *Manager) Open(remoteAddr, userAgent string, claims identity.Claims, claimsErr error) *Session {
	s := &Session{
		id:       uuid.NewString(),
		notify:   make(chan struct{}, 1),
		lastSeen: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.handler.HandleConnect(s, registry.TransportPolling, remoteAddr, userAgent, claims, claimsErr)
	return s
}

func (m *Manager) get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Emit feeds one inbound event to the hub on behalf of the session. Events
// for the same session are handled one at a time.
func (m *Manager) Emit(sessionID string, raw []byte) error {
	s, ok := m.get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	s.touch()

	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	m.handler.HandleEvent(s, raw)
	return nil
}

// Events returns queued outbound events, waiting up to the configured
// timeout when the queue is empty so clients can hold the request open.
func (m *Manager) Events(ctx context.Context, sessionID string) ([][]byte, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()

	if events := s.drain(); len(events) > 0 {
		return events, nil
	}

	timer := time.NewTimer(m.waitTimeout)
	defer timer.Stop()

	select {
	case <-s.notify:
		return s.drain(), nil
	case <-timer.C:
		return [][]byte{}, nil
	case <-ctx.Done():
		return [][]byte{}, nil
	}
}

// Close tears down the session and drives the hub's disconnect path.
func (m *Manager) Close(sessionID, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.markClosed()
	m.handler.HandleDisconnect(sessionID, reason)
	return nil
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap expires idle sessions until ctx is cancelled. Run it in its own
// goroutine.
func (m *Manager) Reap(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.idleTimeout)

			m.mu.Lock()
			var expired []*Session
			for id, s := range m.sessions {
				if s.idleSince().Before(cutoff) {
					delete(m.sessions, id)
					expired = append(expired, s)
				}
			}
			m.mu.Unlock()

			for _, s := range expired {
				s.markClosed()
				m.handler.HandleDisconnect(s.id, "poll session expired")
				logger.Debug("Expired idle poll session %s", s.id)
			}
		}
	}
}
