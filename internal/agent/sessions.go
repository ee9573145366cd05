package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/observability"
)

var ErrSessionNotFound = errors.New("no parked session with that id")

// ParkedSession describes a browser left open for a human to finish a
// verification challenge.
type ParkedSession struct {
	ID     string    `json:"id"`
	TaskID string    `json:"task_id"`
	URL    string    `json:"url"`
	Since  time.Time `json:"since"`
}

type parked struct {
	info    ParkedSession
	session browser.Session
}

// Sessions keeps paused browser sessions until they are released, swept
// after their TTL, or closed at shutdown.
type Sessions struct {
	mu      sync.Mutex
	parked  map[string]parked
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewSessions returns a registry. A zero ttl keeps sessions until released.
func NewSessions(ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Sessions {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Sessions{
		parked:  make(map[string]parked),
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Sessions) Park(taskID, url string, sess browser.Session) {
	s.mu.Lock()
	s.parked[sess.ID()] = parked{
		info:    ParkedSession{ID: sess.ID(), TaskID: taskID, URL: url, Since: s.now()},
		session: sess,
	}
	n := len(s.parked)
	s.mu.Unlock()

	s.metrics.SetParkedSessions(n)
	s.logger.Info("session parked for human verification",
		zap.String("session_id", sess.ID()), zap.String("task_id", taskID), zap.String("url", url))
}

// Release closes a parked session and forgets it.
func (s *Sessions) Release(id string) error {
	s.mu.Lock()
	p, ok := s.parked[id]
	delete(s.parked, id)
	n := len(s.parked)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.metrics.SetParkedSessions(n)
	return p.session.Close()
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parked)
}

// List returns the parked sessions, oldest first.
func (s *Sessions) List() []ParkedSession {
	s.mu.Lock()
	out := make([]ParkedSession, 0, len(s.parked))
	for _, p := range s.parked {
		out = append(out, p.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Sweep closes sessions parked for longer than the TTL and returns how many
// it closed.
func (s *Sessions) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []parked
	for id, p := range s.parked {
		if !p.info.Since.After(cutoff) {
			expired = append(expired, p)
			delete(s.parked, id)
		}
	}
	n := len(s.parked)
	s.mu.Unlock()

	for _, p := range expired {
		if err := p.session.Close(); err != nil {
			s.logger.Warn("failed to close expired session", zap.String("session_id", p.info.ID), zap.Error(err))
		}
		s.logger.Info("parked session expired", zap.String("session_id", p.info.ID), zap.String("task_id", p.info.TaskID))
	}
	if len(expired) > 0 {
		s.metrics.SetParkedSessions(n)
	}
	return len(expired)
}

// Start sweeps expired sessions until ctx is done.
func (s *Sessions) Start(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	every := s.ttl / 2
	if every > 30*time.Second {
		every = 30 * time.Second
	}
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.logger.Info("parked session sweeper started", zap.Duration("ttl", s.ttl))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CloseAll closes every parked session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.parked
	s.parked = make(map[string]parked)
	s.mu.Unlock()

	for _, p := range all {
		if err := p.session.Close(); err != nil {
			s.logger.Warn("failed to close session", zap.String("session_id", p.info.ID), zap.Error(err))
		}
	}
	s.metrics.SetParkedSessions(0)
}
