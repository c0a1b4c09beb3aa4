package websocket

import (
	"log"
	"sync"
	"time"

	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Registry tracks every live connection and its identity and enforces the
// global connection budget.
// ARCHITECTURAL DISCOVERY: Connections are the map keys (not user IDs): the
// same user may hold several sockets, and interventions reference their
// owning connection, not the user
type Registry struct {
	mu             sync.RWMutex
	connections    map[interfaces.Connection]*types.ConnectionInfo
	maxConnections int
}

// NewRegistry creates a registry capped at maxConnections live connections
func NewRegistry(maxConnections int) *Registry {
	return &Registry{
		connections:    make(map[interfaces.Connection]*types.ConnectionInfo),
		maxConnections: maxConnections,
	}
}

// AtCapacity reports whether the connection budget is exhausted.
// FUNCTIONAL DISCOVERY: Checked before authentication so a full server never
// spends an auth-service call on a connection it cannot admit
func (r *Registry) AtCapacity() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections) >= r.maxConnections
}

// Register admits an authenticated connection. The capacity check repeats
// under the lock so racing admissions cannot overshoot the budget.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.connections) >= r.maxConnections {
		return ErrRegistryFull
	}

	r.connections[conn] = &types.ConnectionInfo{
		Identity:    conn.Identity(),
		ConnectedAt: time.Now(),
	}

	return nil
}

// Remove deletes a connection from the registry.
// Idempotent: removing an unknown connection is a no-op, since disconnects
// can race with cleanup.
func (r *Registry) Remove(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	delete(r.connections, conn)
	r.mu.Unlock()
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Lookup returns the stored info for a connection
func (r *Registry) Lookup(conn interfaces.Connection) (*types.ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.connections[conn]
	if !exists {
		return nil, false
	}
	copied := *info
	return &copied, true
}

// CloseAll closes every registered connection with the given close code and
// empties the registry. Used for full shutdown only.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]interfaces.Connection, 0, len(r.connections))
	for conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[interfaces.Connection]*types.ConnectionInfo)
	r.mu.Unlock()

	for _, conn := range conns {
		if err := conn.CloseWithCode(code, reason); err != nil {
			log.Printf("Failed to close connection during shutdown: %v", err)
		}
	}
}
