// Package rooms keeps the set of live connections subscribed to each room.
//
// Rooms are keyed by string id (a channel id in practice). Membership here is
// transient: it lives only as long as the connection, while durable channel
// membership is owned by the store.
package rooms

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 32

// Manager tracks which connections are subscribed to which rooms.
//
// Two sharded indexes are kept: room -> connections (for broadcasts) and
// connection -> rooms (for cleanup on disconnect). Each index shard has its
// own lock; no method holds more than one lock at a time.
type Manager struct {
	rooms []*index
	conns []*index
}

type index struct {
	mu  sync.RWMutex
	set map[string]map[string]struct{}
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	m := &Manager{
		rooms: make([]*index, defaultShards),
		conns: make([]*index, defaultShards),
	}
	for i := 0; i < defaultShards; i++ {
		m.rooms[i] = &index{set: make(map[string]map[string]struct{})}
		m.conns[i] = &index{set: make(map[string]map[string]struct{})}
	}
	return m
}

func pick(shards []*index, key string) *index {
	h := fnv.New32a()
	h.Write([]byte(key))
	return shards[h.Sum32()%uint32(len(shards))]
}

func (ix *index) add(key, member string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.set[key]
	if !ok {
		s = make(map[string]struct{})
		ix.set[key] = s
	}
	s[member] = struct{}{}
}

func (ix *index) remove(key, member string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.set[key]
	if !ok {
		return
	}
	delete(s, member)
	if len(s) == 0 {
		delete(ix.set, key)
	}
}

func (ix *index) members(key string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := ix.set[key]
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	return out
}

func (ix *index) has(key, member string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.set[key][member]
	return ok
}

func (ix *index) drop(key string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.set[key]
	delete(ix.set, key)
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	return out
}

// Join subscribes connID to roomID. Joining twice is a no-op.
func (m *Manager) Join(connID, roomID string) {
	pick(m.rooms, roomID).add(roomID, connID)
	pick(m.conns, connID).add(connID, roomID)
}

// Leave unsubscribes connID from roomID. Leaving a room not joined is a no-op.
func (m *Manager) Leave(connID, roomID string) {
	pick(m.conns, connID).remove(connID, roomID)
	pick(m.rooms, roomID).remove(roomID, connID)
}

// LeaveAll unsubscribes connID from every room and returns those rooms.
func (m *Manager) LeaveAll(connID string) []string {
	joined := pick(m.conns, connID).drop(connID)
	for _, roomID := range joined {
		pick(m.rooms, roomID).remove(roomID, connID)
	}
	return joined
}

// Members returns a snapshot of the connections subscribed to roomID.
func (m *Manager) Members(roomID string) []string {
	return pick(m.rooms, roomID).members(roomID)
}

// RoomsOf returns a snapshot of the rooms connID is subscribed to.
func (m *Manager) RoomsOf(connID string) []string {
	return pick(m.conns, connID).members(connID)
}

// IsMember reports whether connID is subscribed to roomID.
func (m *Manager) IsMember(connID, roomID string) bool {
	return pick(m.rooms, roomID).has(roomID, connID)
}

// Count returns the number of rooms with at least one subscriber.
func (m *Manager) Count() int {
	n := 0
	for _, ix := range m.rooms {
		ix.mu.RLock()
		n += len(ix.set)
		ix.mu.RUnlock()
	}
	return n
}
