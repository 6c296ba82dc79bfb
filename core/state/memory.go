package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
)

type entry struct {
	mu   sync.Mutex
	sess Session
	// dropped is set under mu once the entry left the map.
	dropped bool
}

// Store is the in-memory session registry. Each session carries its own lock,
// so events of one user are applied one at a time while users proceed in
// parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*entry
	// genFloor is the highest timer generation of any dropped session. New
	// sessions start from it so a timer of a dropped session never matches.
	genFloor uint64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (s *Store) entry(userID int64) *entry {
	s.mu.RLock()
	e, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[userID]; ok {
		return e
	}
	e = &entry{sess: Session{State: StateIdle, gen: s.genFloor}}
	s.sessions[userID] = e
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	logger.Debug(context.Background(), logger.ComponentStore, "session.create",
		slog.Int64("user_id", userID),
	)
	return e
}

// Do runs fn with exclusive access to the user's session, creating it lazily.
// fn must not retain the pointer after returning.
func (s *Store) Do(userID int64, fn func(*Session) error) error {
	for {
		e := s.entry(userID)
		e.mu.Lock()
		if e.dropped {
			e.mu.Unlock()
			continue
		}
		defer e.mu.Unlock()
		return fn(&e.sess)
	}
}

// GetOrCreate returns a copy of the user's session.
func (s *Store) GetOrCreate(userID int64) Session {
	var cp Session
	_ = s.Do(userID, func(sess *Session) error {
		cp = sess.snapshot()
		return nil
	})
	return cp
}

// Reset clears the user's session and returns the artifacts it owned so the
// caller can delete them. The cleared session holds nothing a fresh one would
// not, so it is dropped from memory.
func (s *Store) Reset(userID int64) []string {
	for {
		e := s.entry(userID)
		e.mu.Lock()
		if e.dropped {
			e.mu.Unlock()
			continue
		}
		artifacts := e.sess.Clear()
		s.drop(userID, e)
		e.mu.Unlock()
		return artifacts
	}
}

// drop removes e from the map. The caller holds e.mu.
func (s *Store) drop(userID int64, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == e {
		delete(s.sessions, userID)
	}
	e.dropped = true
	if e.sess.gen > s.genFloor {
		s.genFloor = e.sess.gen
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

// SetState moves the session to st. The mode changes only when mode is not
// ModeNone.
func (s *Store) SetState(userID int64, st State, mode Mode) {
	_ = s.Do(userID, func(sess *Session) error {
		sess.State = st
		if mode != ModeNone {
			sess.Mode = mode
		}
		return nil
	})
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
