package websocket

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry is the presence map: user id to that user's live connections.
// A user is online while at least one connection is registered.
type Registry struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]map[string]*Client)}
}

// Register adds c and reports whether it is the user's first connection.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		r.handles[c.UserID] = set
	}
	set[c.ID] = c
	return len(set) == 1
}

// Unregister removes c only if c itself is the registered handle. removed is
// false for a handle that was never registered or already replaced; last
// reports that the user has no connections left.
func (r *Registry) Unregister(c *Client) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[c.UserID]
	if !ok || set[c.ID] != c {
		return false, false
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(r.handles, c.UserID)
		return true, true
	}
	return true, false
}

// Lookup returns a snapshot of the user's connections.
func (r *Registry) Lookup(userID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.handles[userID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles[userID]) > 0
}

// Online lists online users in a stable order.
func (r *Registry) Online() []uuid.UUID {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// All returns every registered connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, set := range r.handles {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.handles {
		n += len(set)
	}
	return n
}
