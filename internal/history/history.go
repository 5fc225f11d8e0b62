// Package history keeps a bounded, append-only sequence of recent messages
// per tenant, replayed to newly joined room members.
package history

import (
	"sync"

	"tenant-hub/internal/models"
)

// DefaultCapacity is the number of entries retained per tenant.
const DefaultCapacity = 200

// ring is one tenant's FIFO. Its own mutex keeps appends for different
// tenants from contending with each other.
type ring struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
}

// Buffer holds one independent ring per tenant. Entries are owned by the
// buffer; Recent hands out copies so callers cannot mutate retained state.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	tenants  map[string]*ring
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		tenants:  make(map[string]*ring),
	}
}

// Append adds entry to the tenant's sequence, evicting the oldest entry once
// the capacity is exceeded. Strict FIFO, never reorders.
func (b *Buffer) Append(tenantID string, entry models.HistoryEntry) {
	b.mu.Lock()
	r, ok := b.tenants[tenantID]
	if !ok {
		r = &ring{entries: make([]models.HistoryEntry, 0, b.capacity)}
		b.tenants[tenantID] = r
	}
	b.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > b.capacity {
		r.entries = r.entries[len(r.entries)-b.capacity:]
	}
}

// Recent returns the tenant's retained sequence in chronological order,
// oldest first. The returned slice is a copy; an unknown tenant yields an
// empty slice.
func (b *Buffer) Recent(tenantID string) []models.HistoryEntry {
	b.mu.RLock()
	r, ok := b.tenants[tenantID]
	b.mu.RUnlock()
	if !ok {
		return []models.HistoryEntry{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// TenantCount returns how many tenants currently hold history.
func (b *Buffer) TenantCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tenants)
}
