package server

import (
	"sync"
)

// connRegistry maps a user id to its live connections, in admit order. It is
// the sole source of truth for "is this user online" and is owned by the
// Gateway; handlers go through Gateway operations, never the maps.
type connRegistry struct {
	mu    sync.RWMutex
	users map[int][]*Client
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		users: make(map[int][]*Client),
	}
}

// add admits a connection. It returns true when this is the user's first
// live connection (the 0→1 transition).
func (r *connRegistry) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[c.user.Id]
	for _, existing := range conns {
		if existing.id == c.id {
			return false
		}
	}

	r.users[c.user.Id] = append(conns, c)
	return len(conns) == 0
}

// remove drops one connection. wentOffline is true only when this call
// removed the user's last connection, so it fires exactly once per
// 1→0 transition no matter how many times teardown paths race.
func (r *connRegistry) remove(userId int, connId string) (removed, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userId]
	if !ok {
		return false, false
	}

	for i, c := range conns {
		if c.id == connId {
			conns = append(conns[:i], conns[i+1:]...)
			if len(conns) == 0 {
				delete(r.users, userId)
				return true, true
			}
			r.users[userId] = conns
			return true, false
		}
	}

	return false, false
}

// removeAll evicts every connection of a user, returning the evicted set.
// Used by forced-offline flows where stale entries must not linger.
func (r *connRegistry) removeAll(userId int) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[userId]
	delete(r.users, userId)
	return conns
}

func (r *connRegistry) isOnline(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userId]) > 0
}

func (r *connRegistry) onlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *connRegistry) onlineUserIds() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// connectionsOf returns a copy of the user's connections in admit order.
func (r *connRegistry) connectionsOf(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userId]
	if len(conns) == 0 {
		return nil
	}

	out := make([]*Client, len(conns))
	copy(out, conns)
	return out
}

func (r *connRegistry) allClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, conns := range r.users {
		out = append(out, conns...)
	}
	return out
}

// snapshot copies the whole table for the liveness sweeper, which must not
// hold the lock while probing connections.
func (r *connRegistry) snapshot() map[int][]*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int][]*Client, len(r.users))
	for id, conns := range r.users {
		copied := make([]*Client, len(conns))
		copy(copied, conns)
		out[id] = copied
	}
	return out
}
