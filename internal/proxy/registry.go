package proxy

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dialport/hookbridge/internal/domain"
)

// Registry hands out at most one Session per (endpoint, tenant, room) so
// re-renders and repeated lookups never open duplicate live connections.
// Entries live for the registry's lifetime; there is no eviction because the
// key space is one entry per room under test.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for the key, creating it on first miss.
// The secret is only used at construction; an existing session keeps the
// credentials it was created with.
func (r *Registry) GetOrCreate(endpoint, secret string, conference domain.RoomName, tenant domain.Tenant) *Session {
	key := endpoint + "_" + string(tenant) + "_" + string(conference)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		log.Debug().Str("module", "proxy.registry").Str("room", s.FQN().String()).Msg("reusing session")
		return s
	}
	s := newSession(endpoint, secret, conference, tenant)
	r.sessions[key] = s
	log.Info().Str("module", "proxy.registry").Str("room", s.FQN().String()).Msg("created session")
	return s
}

// Replace disconnects and forgets the session for the key, if any. The next
// GetOrCreate builds a fresh one; callers use this after a config change.
func (r *Registry) Replace(endpoint string, conference domain.RoomName, tenant domain.Tenant) {
	key := endpoint + "_" + string(tenant) + "_" + string(conference)

	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if ok {
		s.Disconnect()
		log.Info().Str("module", "proxy.registry").Str("room", s.FQN().String()).Msg("replaced session")
	}
}

// Len reports how many sessions are alive, mostly for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
