package history

import (
	"fmt"
	"testing"

	"tenant-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(tenantID string, n int) models.HistoryEntry {
	return models.HistoryEntry{
		ID:       fmt.Sprintf("msg-%d", n),
		TenantID: tenantID,
		SenderID: "u1",
		Content:  fmt.Sprintf("message %d", n),
	}
}

func TestRecentUnknownTenantIsEmpty(t *testing.T) {
	b := NewBuffer(0)

	got := b.Recent("nobody")

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppendPreservesChronologicalOrder(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 5; i++ {
		b.Append("t-1", entry("t-1", i))
	}

	got := b.Recent("t-1")

	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), e.ID)
	}
}

func TestBoundEvictsOldestFirst(t *testing.T) {
	b := NewBuffer(0) // default capacity of 200
	for i := 0; i < 250; i++ {
		b.Append("t-1", entry("t-1", i))
	}

	got := b.Recent("t-1")

	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, "msg-50", got[0].ID)
	assert.Equal(t, "msg-249", got[len(got)-1].ID)
}

func TestRecentReturnsACopy(t *testing.T) {
	b := NewBuffer(10)
	b.Append("t-1", entry("t-1", 0))

	first := b.Recent("t-1")
	first[0].Content = "mutated"

	assert.Equal(t, "message 0", b.Recent("t-1")[0].Content)
}

func TestTenantsAreIndependent(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append("t-1", entry("t-1", i))
	}
	b.Append("t-2", entry("t-2", 0))

	assert.Len(t, b.Recent("t-1"), 3)
	assert.Len(t, b.Recent("t-2"), 1)
	assert.Equal(t, 2, b.TenantCount())
}
