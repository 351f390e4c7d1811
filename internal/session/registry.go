package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Conn is the slice of a duplex connection the registry needs.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Registry tracks live duplex connections so lifecycle and broadcast
// operations have somewhere to go. It is passed explicitly to whoever needs
// it; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	logger *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Add registers a connection and returns its registry id.
func (r *Registry) Add(conn Conn) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	return id
}

// Remove drops a connection from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast writes v to every live connection. Write failures are logged and
// skipped; the failing connection's own read loop handles teardown.
func (r *Registry) Broadcast(v interface{}) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(v); err != nil {
			r.logger.Warn("broadcast write failed", "error", err)
		}
	}
}
