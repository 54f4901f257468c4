// Package session gives each conversation exclusive, serialized access to
// its own durable history.
//
// The store exposes no raw get/set for mutation. All writes go through
// With, which holds the session's per-key exclusion for the duration of the
// caller's function, so two flows touching the same conversation can never
// interleave, while distinct conversations proceed fully in parallel.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
	"github.com/kestrelworks/switchboard/internal/store"
)

// PersistError marks a durable-write failure, distinct from a failure of
// the caller's own function. Callers may retry the flush without repeating
// the work that produced the turns.
type PersistError struct {
	Key domain.SessionKey
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("session %s: persist failed: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Config tunes the in-memory cache.
type Config struct {
	IdleTTL       time.Duration // evict cache entries idle longer than this
	SweepInterval time.Duration // how often the eviction sweep runs
}

// Store owns one serialized execution context per session key.
type Store struct {
	driver store.Driver
	cfg    Config
	log    *logging.Logger

	mu      chan struct{} // guards entries; channel so tests can reuse acquire helpers
	entries map[domain.SessionKey]*entry
}

// entry is the cached state for one session key. Its fields are only
// touched while the entry's semaphore is held.
type entry struct {
	sem chan struct{} // size 1; blocked acquirers wake in FIFO order

	loaded       bool
	turns        []domain.Turn
	revision     uint64
	lastActivity time.Time
}

// New creates a session store over the given driver.
func New(driver store.Driver, cfg Config, log *logging.Logger) *Store {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	s := &Store{
		driver:  driver,
		cfg:     cfg,
		log:     log.Sub("session"),
		mu:      make(chan struct{}, 1),
		entries: make(map[domain.SessionKey]*entry),
	}
	return s
}

// With runs fn with exclusive access to the session for key. No other
// caller's fn for the same key runs concurrently; callers for different
// keys proceed in parallel.
//
// Turns appended through the Session handle are staged: they become
// visible and durable only when fn returns nil. On success the revision
// counter increments and the snapshot is flushed before With returns; a
// flush failure surfaces as *PersistError and the staged turns are rolled
// back so a retried call re-applies them cleanly. fn's own error is
// returned unchanged.
func (s *Store) With(ctx context.Context, key domain.SessionKey, fn func(*Session) error) error {
	if err := key.Validate(); err != nil {
		return err
	}

	e, err := s.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer s.release(e)

	if err := s.ensureLoaded(ctx, key, e); err != nil {
		return err
	}

	sess := &Session{key: key, turns: e.turns, revision: e.revision, lastActivity: e.lastActivity}
	if err := fn(sess); err != nil {
		e.lastActivity = time.Now()
		return err
	}

	e.lastActivity = time.Now()
	if len(sess.staged) == 0 {
		return nil
	}

	merged := applyTurns(e.turns, sess.staged)
	rec := &store.Record{
		Key:       key,
		Turns:     merged,
		Revision:  e.revision + 1,
		UpdatedAt: e.lastActivity,
	}
	if err := s.driver.Save(ctx, rec); err != nil {
		return &PersistError{Key: key, Err: err}
	}

	e.turns = merged
	e.revision++
	s.log.Debug().
		Str("key", key.String()).
		Uint64("revision", e.revision).
		Int("turns", len(merged)).
		Msg("session flushed")
	return nil
}

// Peek returns a copy of the session's committed turns and its revision
// without mutating anything. It still takes the per-key exclusion, so it
// observes a consistent snapshot.
func (s *Store) Peek(ctx context.Context, key domain.SessionKey) ([]domain.Turn, uint64, error) {
	var turns []domain.Turn
	var revision uint64
	err := s.With(ctx, key, func(sess *Session) error {
		turns = sess.Turns()
		revision = sess.Revision()
		return nil
	})
	return turns, revision, err
}

// Sweep evicts idle sessions from the in-memory cache until ctx ends.
// Durable records are untouched; an evicted session reloads lazily on its
// next reference.
func (s *Store) Sweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

// CachedSessions returns the number of sessions currently in memory.
func (s *Store) CachedSessions() int {
	s.mu <- struct{}{}
	defer func() { <-s.mu }()
	return len(s.entries)
}

// evictIdle removes cache entries idle beyond IdleTTL. Eviction takes the
// per-key exclusion first, so it can never race an in-flight With.
func (s *Store) evictIdle() {
	cutoff := time.Now().Add(-s.cfg.IdleTTL)

	s.mu <- struct{}{}
	candidates := make(map[domain.SessionKey]*entry, len(s.entries))
	for k, e := range s.entries {
		candidates[k] = e
	}
	<-s.mu

	for key, e := range candidates {
		select {
		case e.sem <- struct{}{}:
		default:
			continue // busy, skip this sweep
		}

		if e.lastActivity.Before(cutoff) {
			s.mu <- struct{}{}
			if s.entries[key] == e {
				delete(s.entries, key)
				s.log.Debug().Str("key", key.String()).Msg("session evicted from cache")
			}
			<-s.mu
		}
		<-e.sem
	}
}

// acquire takes the per-key exclusion, creating the entry on first
// reference. If the entry was evicted between lookup and acquisition, the
// acquisition retries against the current entry.
func (s *Store) acquire(ctx context.Context, key domain.SessionKey) (*entry, error) {
	for {
		s.mu <- struct{}{}
		e, ok := s.entries[key]
		if !ok {
			e = &entry{sem: make(chan struct{}, 1), lastActivity: time.Now()}
			s.entries[key] = e
		}
		<-s.mu

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		s.mu <- struct{}{}
		current := s.entries[key]
		<-s.mu
		if current == e {
			return e, nil
		}
		// Entry was evicted while we waited; release the orphan and retry.
		<-e.sem
	}
}

func (s *Store) release(e *entry) { <-e.sem }

// ensureLoaded lazily loads the durable record on first access.
func (s *Store) ensureLoaded(ctx context.Context, key domain.SessionKey, e *entry) error {
	if e.loaded {
		return nil
	}
	rec, err := s.driver.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", key, err)
	}
	if rec != nil {
		e.turns = rec.Turns
		e.revision = rec.Revision
	}
	e.loaded = true
	return nil
}

// applyTurns merges staged turns into the committed sequence, replacing by
// turn id instead of blindly appending. Replaying a message after a crash
// therefore cannot double-append its turns.
func applyTurns(committed, staged []domain.Turn) []domain.Turn {
	index := make(map[string]int, len(committed))
	for i, t := range committed {
		index[t.ID] = i
	}

	merged := make([]domain.Turn, len(committed), len(committed)+len(staged))
	copy(merged, committed)
	for _, t := range staged {
		if i, ok := index[t.ID]; ok && t.ID != "" {
			merged[i] = t
			continue
		}
		if t.ID != "" {
			index[t.ID] = len(merged)
		}
		merged = append(merged, t)
	}
	return merged
}

// Session is the handle fn receives inside With. It is only valid for the
// duration of that call.
type Session struct {
	key          domain.SessionKey
	turns        []domain.Turn // committed view, shared; never mutated in place
	staged       []domain.Turn
	revision     uint64
	lastActivity time.Time
}

// Key returns the session's key.
func (s *Session) Key() domain.SessionKey { return s.key }

// Revision returns the committed revision counter.
func (s *Session) Revision() uint64 { return s.revision }

// LastActivity returns when the session was last touched before this call.
func (s *Session) LastActivity() time.Time { return s.lastActivity }

// Turns returns a copy of the committed turns followed by any staged ones.
func (s *Session) Turns() []domain.Turn {
	out := make([]domain.Turn, 0, len(s.turns)+len(s.staged))
	out = append(out, s.turns...)
	out = append(out, s.staged...)
	return out
}

// Len returns the number of committed plus staged turns.
func (s *Session) Len() int { return len(s.turns) + len(s.staged) }

// Append stages a turn for commit when the enclosing With succeeds.
func (s *Session) Append(t domain.Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.staged = append(s.staged, t)
}
