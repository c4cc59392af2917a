package room

import (
	"sort"
	"sync"
)

// Info describes a live session for the debug listing.
type Info struct {
	ID          string `json:"id"`
	Enemies     int    `json:"enemies"`
	Projectiles int    `json:"projectiles"`
	Running     bool   `json:"running"`
}

// Factory builds and starts a session for a connection id.
type Factory func(id string) *Session

// Registry holds at most one session per connection id. Sessions are created
// on first use and replaced if their loop has already ended.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	newSession Factory
}

func NewRegistry(newSession Factory) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		newSession: newSession,
	}
}

// GetOrCreate returns the live session for id, creating it if needed.
// Concurrent callers for the same id get the same session.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.Running() {
		return s
	}
	s := r.newSession(id)
	r.sessions[id] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes the session for id and stops it. It reports whether a
// session was present.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Stop()
	}
	return ok
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns all tracked sessions ordered by id.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		enemies, projectiles := s.Counts()
		out = append(out, Info{ID: s.ID, Enemies: enemies, Projectiles: projectiles, Running: s.Running()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
