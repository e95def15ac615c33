package queue

import (
	"context"
	"sync"
	"time"
)

// Registry owns at most one live Session per guild. A destroyed session is
// removed and never reused; the next GetOrCreate builds a fresh one.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	source      MediaSource
	store       SettingsStore
	idleTimeout time.Duration
}

func NewRegistry(source MediaSource, store SettingsStore, idleTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		source:      source,
		store:       store,
		idleTimeout: idleTimeout,
	}
}

// Get returns the live session for the guild, or nil.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// GetOrCreate returns the live session for the guild, creating one with
// persisted settings loaded when none exists.
func (r *Registry) GetOrCreate(ctx context.Context, guildID string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[guildID]; ok {
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	// settings load can block; build outside the lock
	s := newSession(guildID, r.source, r.store, r.idleTimeout, r.remove)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[guildID]; ok {
		return existing
	}
	r.sessions[guildID] = s
	return s
}

// Remove destroys the guild's session, if any, and drops it from the table.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	s := r.sessions[guildID]
	r.mu.Unlock()
	if s != nil {
		s.Destroy() // calls back into remove
	}
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	if r.sessions[s.GuildID] == s {
		delete(r.sessions, s.GuildID)
	}
	r.mu.Unlock()
}

// Guilds lists guild ids with a live session.
func (r *Registry) Guilds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Shutdown destroys every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Destroy()
	}
}
