package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/metrics"
	"virtual-fitting-room/internal/tryon"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID         string
	Controller *tryon.Controller
	CreatedAt  time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

type Options struct {
	// Controller is the template every new session's controller is built
	// from. Its OnChange is replaced by the store.
	Controller tryon.Options
	// OnChange receives every state change along with the session ID.
	OnChange func(id string, st tryon.State)
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	template tryon.Options
	onChange func(string, tryon.State)
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		template: opts.Controller,
		onChange: opts.OnChange,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// NewID returns a fresh random session ID.
func NewID() string {
	return uuid.NewString()
}

// Open starts a session for id with p selected. A previous session under the
// same id is closed first so its in-flight outcome is discarded.
func (s *Store) Open(id string, p catalog.Product) *Session {
	ctrlOpts := s.template
	if s.onChange != nil {
		ctrlOpts.OnChange = func(st tryon.State) { s.onChange(id, st) }
	} else {
		ctrlOpts.OnChange = nil
	}

	now := s.now()
	sess := &Session{
		ID:           id,
		Controller:   tryon.Open(p, ctrlOpts),
		CreatedAt:    now,
		lastActivity: now,
	}

	s.mu.Lock()
	prev := s.sessions[id]
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	if prev != nil {
		prev.Controller.Close()
	}
	s.metrics.SetSessionsActive(n)
	return sess
}

// Get returns the session and marks it active.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

func (s *Store) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	sess.Controller.Close()
	s.metrics.SetSessionsActive(n)
	return nil
}

// Sweep closes sessions idle for longer than maxIdle. Sessions with a
// generation in flight are kept.
func (s *Store) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastActivity().After(cutoff) {
			continue
		}
		if sess.Controller.State().Status == tryon.StatusGenerating {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, id)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Controller.Close()
	}
	if len(expired) > 0 {
		s.metrics.SetSessionsActive(n)
	}
	return len(expired)
}

// RunSweeper evicts sessions idle for longer than maxIdle until ctx is done.
// A non-positive maxIdle disables eviction.
func (s *Store) RunSweeper(ctx context.Context, maxIdle time.Duration, logger *slog.Logger) {
	if maxIdle <= 0 {
		return
	}
	interval := maxIdle / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(maxIdle); n > 0 && logger != nil {
				logger.Info("idle sessions evicted", "count", n, "active", s.Len())
			}
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.Controller.Close()
	}
	s.metrics.SetSessionsActive(0)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
