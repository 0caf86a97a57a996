// Package registry tracks the currently open tracking sockets: user
// connections partitioned by user id and a flat set of admin connections.
// It is the single shared view of live sessions; handlers get it injected
// rather than reaching into globals.
package registry

import "sync"

// Conn is the write side of one live socket tracked by the registry.
type Conn interface {
	// Send queues a frame for delivery. It must not block; implementations
	// return an error when the connection is closed or its buffer is full.
	Send(data []byte) error
	Close() error
}

// Registry holds all live connections. Safe for concurrent use from any
// number of session handlers.
type Registry struct {
	mu     sync.RWMutex
	users  map[int64]map[Conn]bool
	admins map[Conn]bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		users:  make(map[int64]map[Conn]bool),
		admins: make(map[Conn]bool),
	}
}

// ConnectUser adds a connection to the user's set, creating it if needed.
// A user may hold any number of simultaneous connections.
func (r *Registry) ConnectUser(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.users[userID] == nil {
		r.users[userID] = make(map[Conn]bool)
	}
	r.users[userID][conn] = true
}

// DisconnectUser removes a connection from the user's set. Removing a
// non-member is a no-op; empty sets are pruned.
func (r *Registry) DisconnectUser(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
}

// ConnectAdmin adds a connection to the admin set.
func (r *Registry) ConnectAdmin(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[conn] = true
}

// DisconnectAdmin removes a connection from the admin set. Removing a
// non-member is a no-op.
func (r *Registry) DisconnectAdmin(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins, conn)
}

// AdminConnections returns a snapshot of the admin set. Callers fan out over
// the snapshot without holding the registry lock, so slow sends never block
// connects or disconnects.
func (r *Registry) AdminConnections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.admins))
	for conn := range r.admins {
		conns = append(conns, conn)
	}
	return conns
}

// AdminCount returns the number of live admin connections.
func (r *Registry) AdminCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.admins)
}

// UserCount returns the total number of live user connections.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conns := range r.users {
		n += len(conns)
	}
	return n
}

// UserConnections returns a snapshot of one user's connections.
func (r *Registry) UserConnections(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.users[userID]))
	for conn := range r.users[userID] {
		conns = append(conns, conn)
	}
	return conns
}
