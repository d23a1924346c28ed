// Package repository keeps the live game sessions in memory
package repository

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/game"
)

// ErrSessionNotFound is returned when no game exists for a session id
var ErrSessionNotFound = errors.New("game not found")

// Entry is a point in time view of one stored session
type Entry struct {
	ID         string
	Session    *game.Session
	LastAccess time.Time
}

// InMemorySessionRepository maps session ids to their game and to the time
// they were last used. Both maps are always updated together.
type InMemorySessionRepository struct {
	sessions   map[string]*game.Session
	lastAccess map[string]time.Time
	now        func() time.Time
	mu         sync.RWMutex
	logger     *zap.Logger
}

// Option customises the repository
type Option func(*InMemorySessionRepository)

// WithClock sets the time source used for access tracking
func WithClock(now func() time.Time) Option {
	return func(r *InMemorySessionRepository) { r.now = now }
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger, opts ...Option) *InMemorySessionRepository {
	r := &InMemorySessionRepository{
		sessions:   make(map[string]*game.Session),
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session stored under id, creating it with create
// when there is none. The access time is refreshed either way.
func (r *InMemorySessionRepository) GetOrCreate(
	id string,
	create func() *game.Session,
) (*game.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastAccess[id] = r.now()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	s := create()
	r.sessions[id] = s
	r.logger.Debug("created game session", zap.String("session_id", id))
	return s, true
}

// GetSession retrieves a session by id without touching it
func (r *InMemorySessionRepository) GetSession(id string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

// SaveSession stores s under id, replacing any previous session, and
// refreshes the access time
func (r *InMemorySessionRepository) SaveSession(id string, s *game.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = s
	r.lastAccess[id] = r.now()
}

// Touch records an access to id. Unknown ids are ignored so the two maps
// never drift apart.
func (r *InMemorySessionRepository) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		r.lastAccess[id] = r.now()
	}
}

// LastAccess returns when id was last used
func (r *InMemorySessionRepository) LastAccess(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.lastAccess[id]
	return t, ok
}

// RemoveSession deletes the session and its access record. It reports
// whether a session was stored.
func (r *InMemorySessionRepository) RemoveSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	delete(r.lastAccess, id)
	return ok
}

// Entries returns every stored session with its access time
func (r *InMemorySessionRepository) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		entries = append(entries, Entry{ID: id, Session: s, LastAccess: r.lastAccess[id]})
	}
	return entries
}

// ListActiveGames returns the sessions whose game is in progress
func (r *InMemorySessionRepository) ListActiveGames() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*game.Session
	for _, s := range r.sessions {
		if s.Active() {
			active = append(active, s)
		}
	}
	return active
}

// Counts returns the number of stored sessions and of tracked access times
func (r *InMemorySessionRepository) Counts() (sessions, tracked int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions), len(r.lastAccess)
}

// Now returns the repository's current time
func (r *InMemorySessionRepository) Now() time.Time {
	return r.now()
}
