// Package broker maps room keys to broadcast groups and fans events out to
// their members, decoupled from any specific transport.
package broker

import "sync"

// TenantRoomPrefix derives the canonical room key for a tenant. The mapping
// is a pure function so any component can compute it without a lookup.
const TenantRoomPrefix = "tenant:"

func TenantRoomKey(tenantID string) string {
	return TenantRoomPrefix + tenantID
}

// Sender is the transport-side handle the broker delivers through. Send must
// not block; a member whose transport cannot accept the payload returns an
// error and is reported as a per-member delivery failure.
type Sender interface {
	ID() string
	Send(data []byte) error
}

// room holds one broadcast group. Its mutex serializes membership changes
// and broadcasts for this room only, so different rooms never contend.
type room struct {
	mu      sync.Mutex
	members map[string]Sender
	order   []string
}

func (rm *room) snapshotOrder() []string {
	return append([]string(nil), rm.order...)
}

// Broker tracks rooms and their members. Rooms spring into existence on
// first join and are dropped from the map when the last member leaves.
type Broker struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func New() *Broker {
	return &Broker{rooms: make(map[string]*room)}
}

// Join adds the sender to roomKey, creating the room if needed, and returns
// the member count after the join. Joining twice replaces the sender handle
// without growing the room.
func (b *Broker) Join(roomKey string, s Sender) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	rm, ok := b.rooms[roomKey]
	if !ok {
		rm = &room{members: make(map[string]Sender)}
		b.rooms[roomKey] = rm
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.members[s.ID()]; !exists {
		rm.order = append(rm.order, s.ID())
	}
	rm.members[s.ID()] = s
	return len(rm.members)
}

// Leave removes the connection from roomKey. If the room becomes empty it is
// dropped from the broker's map. Leaving a room the connection is not a
// member of is a no-op.
func (b *Broker) Leave(roomKey, connID string) {
	b.mu.Lock()
	rm, ok := b.rooms[roomKey]
	if !ok {
		b.mu.Unlock()
		return
	}

	rm.mu.Lock()
	if _, exists := rm.members[connID]; exists {
		delete(rm.members, connID)
		for i, id := range rm.order {
			if id == connID {
				rm.order = append(rm.order[:i], rm.order[i+1:]...)
				break
			}
		}
	}
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		delete(b.rooms, roomKey)
	}
	b.mu.Unlock()
}

// Broadcast delivers data to every current member of roomKey except the IDs
// listed in exclude. A member whose transport rejects the payload is
// collected as a failure and does not abort delivery to other members.
// Broadcasts into the same room are serialized by the room's mutex, so
// events submitted by one sender reach all members in submission order.
func (b *Broker) Broadcast(roomKey string, data []byte, exclude ...string) (delivered int, failed []string) {
	b.mu.RLock()
	rm, ok := b.rooms[roomKey]
	b.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, id := range rm.snapshotOrder() {
		if skip[id] {
			continue
		}
		member, exists := rm.members[id]
		if !exists {
			continue
		}
		if err := member.Send(data); err != nil {
			failed = append(failed, id)
			continue
		}
		delivered++
	}
	return delivered, failed
}

// MemberCount returns the current size of roomKey, 0 if the room does not
// exist.
func (b *Broker) MemberCount(roomKey string) int {
	b.mu.RLock()
	rm, ok := b.rooms[roomKey]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// RoomCount returns the number of rooms with at least one member.
func (b *Broker) RoomCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// Rooms returns a snapshot of room keys to member counts, for /diagnostics.
func (b *Broker) Rooms() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int, len(b.rooms))
	for key, rm := range b.rooms {
		rm.mu.Lock()
		out[key] = len(rm.members)
		rm.mu.Unlock()
	}
	return out
}
