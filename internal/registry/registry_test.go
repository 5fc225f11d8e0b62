package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()

	conn := r.Register("c1", TransportWebSocket, "127.0.0.1:1234", "test-agent")

	assert.Equal(t, "c1", conn.ID)
	assert.Equal(t, TransportWebSocket, conn.Transport)
	assert.False(t, conn.ConnectedAt.IsZero())
	assert.Empty(t, conn.TenantID)
	assert.Empty(t, conn.Rooms)

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, 1, r.Count())
}

func TestAttachIdentityLastWriteWins(t *testing.T) {
	r := New()
	r.Register("c1", TransportWebSocket, "addr", "")

	require.True(t, r.AttachIdentity("c1", "t-1", "u1"))
	require.True(t, r.AttachIdentity("c1", "t-2", "u2"))

	got, _ := r.Get("c1")
	assert.Equal(t, "t-2", got.TenantID)
	assert.Equal(t, "u2", got.UserID)

	// A later attach without a user keeps the previous user.
	require.True(t, r.AttachIdentity("c1", "t-2", ""))
	got, _ = r.Get("c1")
	assert.Equal(t, "u2", got.UserID)

	assert.False(t, r.AttachIdentity("ghost", "t-1", "u1"))
}

func TestRoomJoinIsIdempotentAndOrdered(t *testing.T) {
	r := New()
	r.Register("c1", TransportPolling, "addr", "")

	r.RecordRoomJoin("c1", "room-a")
	r.RecordRoomJoin("c1", "room-b")
	r.RecordRoomJoin("c1", "room-a")

	got, _ := r.Get("c1")
	assert.Equal(t, []string{"room-a", "room-b"}, got.Rooms)
}

func TestRoomLeaveUnknownRoomIsNoOp(t *testing.T) {
	r := New()
	r.Register("c1", TransportWebSocket, "addr", "")
	r.RecordRoomJoin("c1", "room-a")

	r.RecordRoomLeave("c1", "never-joined")
	got, _ := r.Get("c1")
	assert.Equal(t, []string{"room-a"}, got.Rooms)

	r.RecordRoomLeave("c1", "room-a")
	got, _ = r.Get("c1")
	assert.Empty(t, got.Rooms)
}

func TestRemoveReturnsRecordExactlyOnce(t *testing.T) {
	r := New()
	r.Register("c1", TransportWebSocket, "addr", "")
	r.AttachIdentity("c1", "t-1", "u1")
	r.RecordRoomJoin("c1", "tenant:t-1")

	removed, ok := r.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, "t-1", removed.TenantID)
	assert.Equal(t, []string{"tenant:t-1"}, removed.Rooms)
	assert.Equal(t, 0, r.Count())

	_, ok = r.Remove("c1")
	assert.False(t, ok)

	// Removing a connection that was never registered is safe.
	_, ok = r.Remove("ghost")
	assert.False(t, ok)
}

func TestSnapshotAndTransportBreakdown(t *testing.T) {
	r := New()
	r.Register("c1", TransportWebSocket, "addr", "")
	r.Register("c2", TransportWebSocket, "addr", "")
	r.Register("c3", TransportPolling, "addr", "")

	assert.Len(t, r.Snapshot(), 3)

	breakdown := r.TransportBreakdown()
	assert.Equal(t, 2, breakdown[TransportWebSocket])
	assert.Equal(t, 1, breakdown[TransportPolling])
}
