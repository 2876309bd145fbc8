// Package server tracks which identity and room each active connection is
// registered under, and derives per-room online-user lists from that state.
package server

import "sync"

// Session is the identity/room pair a registered connection resolved to.
type Session struct {
	Identity Identity
	Room     string
}

// ConnectionRegistry maps connection identifiers to sessions. Entries exist
// only between authentication and disconnect; nothing is persisted. Online
// lists preserve registration order, so the registry keeps an ordered index
// next to the lookup map. All methods are safe for concurrent use.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	order    []string
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[string]Session),
	}
}

// Register stores the identity and room for the connection. Re-registering
// an existing connection updates it in place and keeps its original position
// in the registration order. Duplicate identities are accepted.
func (r *ConnectionRegistry) Register(connID string, identity Identity, room string) {
	if room == "" {
		room = DefaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connID]; !exists {
		r.order = append(r.order, connID)
	}
	r.sessions[connID] = Session{Identity: identity, Room: room}
}

// Unregister removes the connection's entry. Unregistering an unknown
// connection is a no-op.
func (r *ConnectionRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connID]; !exists {
		return
	}
	delete(r.sessions, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the session registered for the connection.
func (r *ConnectionRegistry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[connID]
	return session, ok
}

// SetRoom moves the connection into another room and returns the room it
// left, so the caller can recompute online lists for both rooms.
func (r *ConnectionRegistry) SetRoom(connID, room string) (string, bool) {
	if room == "" {
		room = DefaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	oldRoom := session.Room
	session.Room = room
	r.sessions[connID] = session
	return oldRoom, true
}

// OnlineUsers returns the identities registered in the room, in registration
// order. Duplicate identities are reported as often as they are connected.
func (r *ConnectionRegistry) OnlineUsers(room string) []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]Identity, 0, len(r.order))
	for _, connID := range r.order {
		if session, ok := r.sessions[connID]; ok && session.Room == room {
			users = append(users, session.Identity)
		}
	}
	return users
}

// ConnectionsInRoom returns the connection identifiers registered in the
// room, in registration order.
func (r *ConnectionRegistry) ConnectionsInRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.order))
	for _, connID := range r.order {
		if session, ok := r.sessions[connID]; ok && session.Room == room {
			conns = append(conns, connID)
		}
	}
	return conns
}

// Len reports the number of registered connections.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
