package poll

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"tenant-hub/internal/broker"
	"tenant-hub/internal/diag"
	"tenant-hub/internal/history"
	"tenant-hub/internal/identity"
	"tenant-hub/internal/models"
	"tenant-hub/internal/protocol"
	"tenant-hub/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry) {
	t.Helper()

	audit, err := diag.NewLogger(filepath.Join(t.TempDir(), "hub.log"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	reg := registry.New()
	handler := protocol.NewHandler(reg, broker.New(), history.NewBuffer(0), audit)
	return NewManager(handler, time.Minute, 20*time.Millisecond), reg
}

func joinTenantEvent(t *testing.T, tenantID, userID string) []byte {
	t.Helper()
	data, err := json.Marshal(models.JoinTenantPayload{TenantID: tenantID, UserID: userID})
	require.NoError(t, err)
	raw, err := json.Marshal(models.Envelope{Event: models.EventJoinTenant, Data: data})
	require.NoError(t, err)
	return raw
}

func TestOpenRegistersConnection(t *testing.T) {
	m, reg := newTestManager(t)

	s := m.Open("10.0.0.1:1234", "poll-client", identity.Claims{}, nil)

	assert.Equal(t, 1, m.Count())
	conn, ok := reg.Get(s.ID())
	require.True(t, ok)
	assert.Equal(t, registry.TransportPolling, conn.Transport)
}

func TestEmitQueuesOutboundEvents(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Open("addr", "", identity.Claims{}, nil)

	require.NoError(t, m.Emit(s.ID(), joinTenantEvent(t, "t-1", "u1")))

	events, err := m.Events(context.Background(), s.ID())
	require.NoError(t, err)
	// History replay plus the online presence broadcast.
	require.Len(t, events, 2)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(events[0], &env))
	assert.Equal(t, models.EventRecentMessages, env.Event)
}

func TestEventsWaitTimesOutEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Open("addr", "", identity.Claims{}, nil)

	start := time.Now()
	events, err := m.Events(context.Background(), s.ID())

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSendBoundsTheQueue(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Open("addr", "", identity.Claims{}, nil)

	for i := 0; i < maxQueue; i++ {
		require.NoError(t, s.Send([]byte("x")))
	}
	assert.Error(t, s.Send([]byte("overflow")))
}

func TestCloseDrivesDisconnect(t *testing.T) {
	m, reg := newTestManager(t)
	s := m.Open("addr", "", identity.Claims{}, nil)

	require.NoError(t, m.Close(s.ID(), "client disconnect"))

	assert.Equal(t, 0, m.Count())
	_, ok := reg.Get(s.ID())
	assert.False(t, ok)
	assert.Error(t, s.Send([]byte("after close")))

	assert.ErrorIs(t, m.Close(s.ID(), "again"), ErrSessionNotFound)
	assert.ErrorIs(t, m.Emit("ghost", []byte("{}")), ErrSessionNotFound)
}
