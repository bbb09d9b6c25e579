package services

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session bundles the services built over one opened pool image. The
// registry hands out sessions by id so callers can hold several images
// open at once.
type Session struct {
	ID        string
	Image     string
	OpenedAt  time.Time
	Pool      *PoolReader
	Objects   *ObjectService
	Zaps      *ZapService
	Spacemaps *SpacemapService
	Datasets  *DatasetService
	Graph     *GraphService
	Blocks    *BlockService

	// closer releases the underlying device when the session closes.
	closer io.Closer
}

// NewSession assigns a fresh id to a service bundle. closer may be nil
// for devices the caller owns.
func NewSession(image string, pool *PoolReader, closer io.Closer) *Session {
	return &Session{
		ID:       uuid.New().String(),
		Image:    image,
		OpenedAt: time.Now(),
		Pool:     pool,
		closer:   closer,
	}
}

// Registry tracks open sessions by id. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add stores a session and returns its id.
func (r *Registry) Add(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s.ID
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns every open session in no particular order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Close removes a session and releases its device.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
