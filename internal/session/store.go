package session

import (
	"log/slog"
	"sync"
	"time"
)

// Store manages live sessions. Expired sessions are treated as absent, not
// resumed: carriers reuse phone numbers and session ids, and a stale menu
// position must never leak to a new caller.
//
// Mutation of a given session is serialized by Lock(id), a per-key mutex;
// a single global lock would serialize unrelated callers. The map holds
// snapshots that are never mutated in place: GetOrCreate hands callers a
// detached copy, and Save stores a fresh snapshot, so Sweep and List only
// need mu to read session state.
type Store struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*Session

	lockMu sync.Mutex
	locks  map[string]*keyLock

	now func() time.Time // test hook
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		locks:    make(map[string]*keyLock),
		now:      time.Now,
	}
}

// Lock serializes all work on one session id. It returns the unlock func.
// Callers must hold the lock across getOrCreate/mutate/save so overlapping
// carrier retries for the same caller cannot interleave.
func (s *Store) Lock(id string) func() {
	s.lockMu.Lock()
	kl, ok := s.locks[id]
	if !ok {
		kl = &keyLock{}
		s.locks[id] = kl
	}
	kl.refs++
	s.lockMu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		s.lockMu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(s.locks, id)
		}
		s.lockMu.Unlock()
	}
}

// GetOrCreate returns the live session for id, or a fresh one pinned to
// rootNode if none exists or the existing one has expired.
func (s *Store) GetOrCreate(id, phone, rootNode string) (sess *Session, created bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok && !existing.Expired(s.ttl, now) {
		return existing.Clone(), false
	}

	sess = &Session{
		ID:         id,
		Phone:      phone,
		NodeID:     rootNode,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[id] = sess.Clone()
	return sess, true
}

// Save stores a snapshot of the session and refreshes its activity
// deadline. The caller keeps working on its own copy.
func (s *Store) Save(sess *Session) {
	cp := sess.Clone()
	s.mu.Lock()
	cp.LastActive = s.now()
	s.sessions[cp.ID] = cp
	s.mu.Unlock()
}

// Expire removes a session immediately (terminal screen, cancel).
func (s *Store) Expire(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep removes all sessions past their TTL and returns how many it
// removed. Runs on a schedule independent of request latency.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(s.ttl, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("session sweep", "removed", removed, "live", len(s.sessions))
	}
	return removed
}

// List returns value snapshots of live sessions, detached from anything
// a concurrent callback is working on.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess.Clone())
	}
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
