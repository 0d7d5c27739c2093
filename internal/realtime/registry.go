// Package realtime keeps track of connected push clients and routes frames
// to them by role and identity.
package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// ErrChannelClosed is returned when sending on a closed connection
var ErrChannelClosed = errors.New("channel closed")

// ErrBufferFull is returned when a slow client cannot take another frame
var ErrBufferFull = errors.New("send buffer full")

// Channel is one live push connection
type Channel interface {
	Send(msg []byte) error
	Close()
}

type identity struct {
	role   models.Role
	userID uuid.UUID
}

// Registry maps (role, userID) to the single live channel of that identity.
// It lives in memory only and is rebuilt as clients reconnect.
type Registry struct {
	mu      sync.RWMutex
	clients map[identity]Channel
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[identity]Channel)}
}

// Register binds ch to the identity. An older channel for the same identity
// is replaced and closed.
func (r *Registry) Register(role models.Role, userID uuid.UUID, ch Channel) {
	key := identity{role: role, userID: userID}

	r.mu.Lock()
	old, existed := r.clients[key]
	r.clients[key] = ch
	r.mu.Unlock()

	if existed && old != ch {
		old.Close()
	}
}

// Unregister removes whatever channel the identity holds
func (r *Registry) Unregister(role models.Role, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, identity{role: role, userID: userID})
}

// UnregisterChannel removes the identity only while ch is still its current
// channel, so a replaced connection's teardown cannot evict its successor.
func (r *Registry) UnregisterChannel(role models.Role, userID uuid.UUID, ch Channel) bool {
	key := identity{role: role, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[key]; ok && cur == ch {
		delete(r.clients, key)
		return true
	}
	return false
}

// FindByIdentity returns the live channel of one identity
func (r *Registry) FindByIdentity(role models.Role, userID uuid.UUID) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.clients[identity{role: role, userID: userID}]
	return ch, ok
}

// FindAllByRole returns a snapshot of every channel registered under role
func (r *Registry) FindAllByRole(role models.Role) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Channel
	for key, ch := range r.clients {
		if key.role == role {
			out = append(out, ch)
		}
	}
	return out
}

// Count returns the number of registered identities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll empties the registry and closes every channel it held
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[identity]Channel)
	r.mu.Unlock()

	for _, ch := range clients {
		ch.Close()
	}
}
