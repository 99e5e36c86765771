// Package store holds the in-memory conversation thread table. Threads are
// process-lifetime only: nothing is persisted and everything is lost on
// restart.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crediflex-agent/internal/domain"
)

const (
	// DefaultTTL is how long a thread survives without activity.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxMessages caps how many messages a thread retains. Older
	// messages are dropped first.
	DefaultMaxMessages = 20
)

// Store is a concurrency-safe in-memory thread table. All operations take a
// whole-store lock, so readers always observe a thread either fully present
// or fully absent, never mid-mutation.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*domain.Thread

	ttl         time.Duration
	maxMessages int
	now         func() time.Time
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the inactivity window after which threads expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxMessages overrides the per-thread message retention cap.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithClock injects the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator injects the thread id generator. Intended for tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New creates an empty Store with a 24h TTL and a 20-message cap unless
// overridden.
func New(opts ...Option) *Store {
	s := &Store{
		threads:     make(map[string]*domain.Thread),
		ttl:         DefaultTTL,
		maxMessages: DefaultMaxMessages,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a fresh thread under a newly generated id and returns the id.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.createLocked(id)
	return id
}

// CreateWithID initializes a thread under a caller-chosen id. Any existing
// thread under that id is silently reset, not merged; callers present ids the
// store no longer knows (e.g. after a restart) and expect a working thread
// back.
func (s *Store) CreateWithID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createLocked(id)
}

func (s *Store) createLocked(id string) {
	now := s.now()
	s.threads[id] = &domain.Thread{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Get returns a copy of the thread, or false if the id is unknown. The copy
// is detached: callers may not mutate store state through it.
func (s *Store) Get(id string) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return domain.Thread{}, false
	}
	return copyThread(t), true
}

// Append adds a message with the current timestamp and bumps the thread's
// last activity, then trims retention to the newest maxMessages entries.
// Appending to an unknown id is a documented no-op: callers needing strict
// semantics resolve existence through Get or Create first.
func (s *Store) Append(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return
	}
	now := s.now()
	t.Messages = append(t.Messages, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	if len(t.Messages) > s.maxMessages {
		t.Messages = t.Messages[len(t.Messages)-s.maxMessages:]
	}
	t.LastActivity = now
}

// SetContext replaces the thread's business-data snapshot wholesale.
// No-op on an unknown id.
func (s *Store) SetContext(id string, snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return
	}
	t.Context = &snap
}

// Delete removes the thread and reports whether it existed. The id becomes
// free for reuse by a future thread.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.threads[id]
	if ok {
		delete(s.threads, id)
	}
	return ok
}

// ListAll sweeps expired threads, then returns a summary per live thread
// ordered by creation time (ties broken by id) so output is deterministic.
func (s *Store) ListAll() []domain.ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(s.now())

	out := make([]domain.ThreadSummary, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, domain.ThreadSummary{
			ID:           t.ID,
			CreatedAt:    t.CreatedAt,
			LastActivity: t.LastActivity,
			MessageCount: len(t.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SweepExpired removes every thread whose last activity is older than the TTL
// measured against now, and returns how many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for id, t := range s.threads {
		if now.Sub(t.LastActivity) > s.ttl {
			delete(s.threads, id)
			removed++
		}
	}
	return removed
}

// ActiveCount returns the number of live threads without sweeping.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.threads)
}

func copyThread(t *domain.Thread) domain.Thread {
	out := *t
	out.Messages = make([]domain.Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	if t.Context != nil {
		snap := *t.Context
		out.Context = &snap
	}
	return out
}
