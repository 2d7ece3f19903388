// Package presence tracks which users are online and on which connections.
//
// A user may hold any number of simultaneous connections (one per device or
// tab). The registry is the single source of truth for that mapping and never
// performs I/O, so every operation completes in bounded time.
package presence

import (
	"sync"
)

const defaultShards = 32

// Registry maps a user id to the set of its live connection ids.
//
// Entries are sharded by user id; each shard has its own lock so unrelated
// users never contend. A user's key exists iff its set is non-empty.
type Registry struct {
	shards []*shard
}

type shard struct {
	mu    sync.RWMutex
	users map[int64]map[string]struct{}
}

// NewRegistry creates an empty registry with the default shard count.
func NewRegistry() *Registry {
	return NewRegistryWithShards(defaultShards)
}

// NewRegistryWithShards creates an empty registry with n shards (minimum 1).
func NewRegistryWithShards(n int) *Registry {
	if n < 1 {
		n = 1
	}
	r := &Registry{shards: make([]*shard, n)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[int64]map[string]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID int64) *shard {
	idx := userID % int64(len(r.shards))
	if idx < 0 {
		idx = -idx
	}
	return r.shards[idx]
}

// Admit adds connID to userID's set, creating the entry if absent.
// Admitting the same connection twice is a no-op. It reports whether this
// was the user's first live connection.
func (r *Registry) Admit(userID int64, connID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		set = make(map[string]struct{})
		s.users[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Remove deletes connID from userID's set and drops the entry once empty.
// It reports whether the user went offline as a result.
func (r *Registry) Remove(userID int64, connID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

// LiveConnections returns a snapshot of userID's connections.
// Unknown users yield an empty slice.
func (r *Registry) LiveConnections(userID int64) []string {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.users[userID]
	conns := make([]string, 0, len(set))
	for id := range set {
		conns = append(conns, id)
	}
	return conns
}

// Online reports whether userID has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// Snapshot returns a copy of the whole mapping.
func (r *Registry) Snapshot() map[int64][]string {
	out := make(map[int64][]string)
	for _, s := range r.shards {
		s.mu.RLock()
		for userID, set := range s.users {
			conns := make([]string, 0, len(set))
			for id := range set {
				conns = append(conns, id)
			}
			out[userID] = conns
		}
		s.mu.RUnlock()
	}
	return out
}

// Stats returns the number of online users and live connections.
func (r *Registry) Stats() (users, connections int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, set := range s.users {
			connections += len(set)
		}
		s.mu.RUnlock()
	}
	return users, connections
}

// All returns every live connection id across all users.
func (r *Registry) All() []string {
	var out []string
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.users {
			for id := range set {
				out = append(out, id)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
