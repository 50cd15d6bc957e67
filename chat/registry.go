package chat

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Handle is the outbound side of a chat connection. Sessions implement it;
// tests substitute fakes.
type Handle interface {
	SendRaw(data []byte)
}

// Registry tracks which connections are in which room and fans messages out
// to them. Rooms are keyed by name and exist exactly while they have members.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[Handle]struct{}
	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]map[Handle]struct{}),
		logger: logger,
	}
}

// Join adds a connection to a room, creating the room on first join.
func (r *Registry) Join(room string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[Handle]struct{})
		r.rooms[room] = members
	}
	members[h] = struct{}{}
}

// Leave removes a connection from a room and prunes the room when it empties.
// Leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(room string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, h)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast sends a frame to every connection in the room, the sender
// included. Delivery is best-effort per connection.
func (r *Registry) Broadcast(room string, f *Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		r.logger.Error("broadcast frame marshal failed", zap.Error(err))
		return
	}
	r.BroadcastRaw(room, data)
}

// BroadcastRaw sends pre-encoded bytes to every connection in the room.
func (r *Registry) BroadcastRaw(room string, data []byte) {
	r.mu.RLock()
	members := make([]Handle, 0, len(r.rooms[room]))
	for h := range r.rooms[room] {
		members = append(members, h)
	}
	r.mu.RUnlock()

	for _, h := range members {
		h.SendRaw(data)
	}
}

// Count returns the number of connections in a room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns a snapshot of the open room names.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		out = append(out, name)
	}
	return out
}
