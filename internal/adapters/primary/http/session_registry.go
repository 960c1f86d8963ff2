package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	"github.com/lorrc/accounts/internal/auth"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/lorrc/accounts/internal/infrastructure/metrics"
)

type session struct {
	provider ports.AccountProvider
	watch    ports.VerificationWatch
	lastSeen time.Time
}

// SessionRegistry keeps one signed-in account provider per API session.
// Sessions idle for longer than the TTL are signed out and forgotten.
type SessionRegistry struct {
	factory ports.AccountProviderFactory
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessionRegistry creates an empty registry. m may be nil.
func NewSessionRegistry(factory ports.AccountProviderFactory, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		factory:  factory,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.With("component", "session_registry"),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// NewProvider returns a fresh, signed-out provider that is not yet tracked.
func (s *SessionRegistry) NewProvider() ports.AccountProvider {
	return s.factory.AuthProvider()
}

// Add starts tracking a signed-in provider and returns its session ID.
func (s *SessionRegistry) Add(provider ports.AccountProvider) string {
	id := auth.NewSessionID()

	s.mu.Lock()
	s.sessions[id] = &session{provider: provider, lastSeen: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.setGauge(n)
	return id
}

// Get returns the provider of a live session and marks it as used.
func (s *SessionRegistry) Get(id string) (ports.AccountProvider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.provider, true
}

// SetWatch attaches a verification watch to a session, cancelling any
// previous one. It reports false, cancelling w, when the session is gone.
func (s *SessionRegistry) SetWatch(id string, w ports.VerificationWatch) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	var prev ports.VerificationWatch
	if ok {
		prev, sess.watch = sess.watch, w
	}
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	if !ok {
		w.Cancel()
	}
	return ok
}

// Close ends a session: its watch is cancelled and its provider signed out.
func (s *SessionRegistry) Close(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.setGauge(n)
	s.release(id, sess)
	return true
}

// Forget stops tracking a session whose identity no longer exists. The
// provider is not signed out again.
func (s *SessionRegistry) Forget(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if ok {
		s.setGauge(n)
		if sess.watch != nil {
			sess.watch.Cancel()
		}
	}
}

// Evict closes every session idle for longer than the TTL and returns how
// many were closed.
func (s *SessionRegistry) Evict() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	expired := make(map[string]*session)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired[id] = sess
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if len(expired) > 0 {
		s.setGauge(n)
		s.logger.Info("evicted idle sessions", "count", len(expired))
	}
	for id, sess := range expired {
		s.release(id, sess)
	}
	return len(expired)
}

// Run evicts idle sessions every interval until ctx is done, then closes
// all remaining sessions.
func (s *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

// Len returns the number of live sessions.
func (s *SessionRegistry) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionRegistry) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	s.setGauge(0)
	for id, sess := range all {
		s.release(id, sess)
	}
}

func (s *SessionRegistry) release(id string, sess *session) {
	if sess.watch != nil {
		sess.watch.Cancel()
	}
	if err := sess.provider.Logout(); err != nil {
		s.logger.Warn("failed to sign out session", "session_id", id, "error", err)
	}
}

func (s *SessionRegistry) setGauge(n int) {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(n))
	}
}

// FromRequest resolves the session named by the claims SessionAuth stored
// on the request.
func (s *SessionRegistry) FromRequest(r *http.Request) (string, ports.AccountProvider, error) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		return "", nil, apperrors.NewUnauthorizedError("Authentication required")
	}
	provider, ok := s.Get(claims.SessionID)
	if !ok {
		return "", nil, apperrors.NewUnauthorizedError("Session expired, sign in again")
	}
	return claims.SessionID, provider, nil
}
