package signaling

import (
	"sync"

	"github.com/openmeet/signal-relay/internal/room"
)

// Registry tracks live connections and their room-scoped addressing groups.
// Group membership is transport-level bookkeeping and deliberately separate
// from the room store's participant mapping: a connection is added to a
// group when its join is accepted and removed when it leaves or drops.
type Registry struct {
	mu      sync.Mutex
	clients map[room.ConnID]*client
	groups  map[string]map[room.ConnID]struct{}
	joined  map[room.ConnID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[room.ConnID]*client),
		groups:  make(map[string]map[room.ConnID]struct{}),
		joined:  make(map[room.ConnID]map[string]struct{}),
	}
}

func (r *Registry) register(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
}

// unregister removes the connection from every group and closes it.
func (r *Registry) unregister(id room.ConnID) {
	r.mu.Lock()
	c := r.clients[id]
	delete(r.clients, id)
	for roomID := range r.joined[id] {
		r.leaveGroupLocked(roomID, id)
	}
	delete(r.joined, id)
	r.mu.Unlock()

	if c != nil {
		c.close()
	}
}

func (r *Registry) JoinGroup(roomID string, id room.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[roomID]
	if !ok {
		g = make(map[room.ConnID]struct{})
		r.groups[roomID] = g
	}
	g[id] = struct{}{}
	j, ok := r.joined[id]
	if !ok {
		j = make(map[string]struct{})
		r.joined[id] = j
	}
	j[roomID] = struct{}{}
}

func (r *Registry) LeaveGroup(roomID string, id room.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveGroupLocked(roomID, id)
	delete(r.joined[id], roomID)
}

func (r *Registry) leaveGroupLocked(roomID string, id room.ConnID) {
	g, ok := r.groups[roomID]
	if !ok {
		return
	}
	delete(g, id)
	if len(g) == 0 {
		delete(r.groups, roomID)
	}
}

// Send delivers a frame to one connection. Unknown connections are ignored.
func (r *Registry) Send(id room.ConnID, data []byte) {
	r.mu.Lock()
	c := r.clients[id]
	r.mu.Unlock()
	if c != nil {
		c.enqueue(data)
	}
}

// Broadcast delivers a frame to every group member except the sender.
func (r *Registry) Broadcast(roomID string, except room.ConnID, data []byte) {
	r.mu.Lock()
	targets := make([]*client, 0, len(r.groups[roomID]))
	for id := range r.groups[roomID] {
		if id == except {
			continue
		}
		if c := r.clients[id]; c != nil {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}
