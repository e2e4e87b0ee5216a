package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/metrics"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// ErrSessionClosed is returned by DB after Shutdown.
var ErrSessionClosed = errors.New("database: session shut down")

// Opener establishes a new database handle.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// Session owns the single database handle used for writes. The handle is
// opened on first use and closed once it has been idle for longer than the
// idle window. Closing is only evaluated when CloseIfIdle is called; there is
// no background timer.
type Session struct {
	mu           sync.Mutex
	open         Opener
	db           *sqlx.DB
	idle         time.Duration
	lastActivity time.Time
	now          func() time.Time
	shutdown     bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a closed Session.
func NewSession(open Opener, idle time.Duration, opts ...SessionOption) *Session {
	s := &Session{
		open: open,
		idle: idle,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the open handle, opening it if the session is closed.
func (s *Session) DB(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, ErrSessionClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.lastActivity = s.now()
	metrics.DBSessionOpens.Inc()
	metrics.DBSessionOpen.Set(1)
	log.Debug().Msg("Db opened")
	return db, nil
}

// Touch records write activity, pushing the idle deadline out. It is a no-op
// while the session is closed.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.lastActivity = s.now()
	}
}

// CloseIfIdle closes the handle if now is past lastActivity + idle window.
// It reports whether the session was closed by this call.
func (s *Session) CloseIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false
	}
	if !s.now().After(s.lastActivity.Add(s.idle)) {
		return false
	}
	s.closeLocked()
	log.Debug().Msg("Db closed")
	return true
}

// State reports whether the handle is currently open.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return StateOpen
	}
	return StateClosed
}

// LastActivity returns the time of the last recorded write.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Shutdown closes the handle and refuses further opens.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.db != nil {
		s.closeLocked()
	}
}

func (s *Session) closeLocked() {
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing database session")
	}
	s.db = nil
	metrics.DBSessionCloses.Inc()
	metrics.DBSessionOpen.Set(0)
}
