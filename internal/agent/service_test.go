package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/scout/internal/observability"
)

func TestSessions_ParkAndRelease(t *testing.T) {
	metrics := observability.NewMetrics()
	s := NewSessions(0, nil, metrics)
	web := newFakeWeb()
	a, b := web.newSession(false), web.newSession(false)

	s.Park("task-a", "https://a", a)
	s.Park("task-b", "https://b", b)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Release(a.ID()))
	assert.Equal(t, 1, a.closeCount())
	assert.ErrorIs(t, s.Release(a.ID()), ErrSessionNotFound)

	assert.Zero(t, s.Sweep(), "no ttl")
	s.CloseAll()
	assert.Equal(t, 1, b.closeCount())
	assert.Zero(t, s.Len())
}

func TestSessions_Sweep(t *testing.T) {
	s := NewSessions(time.Minute, nil, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	web := newFakeWeb()
	old, fresh := web.newSession(false), web.newSession(false)

	s.Park("t1", "", old)
	now = now.Add(45 * time.Second)
	s.Park("t2", "", fresh)

	now = now.Add(15 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, old.closeCount())
	assert.Zero(t, fresh.closeCount())

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].TaskID)
}

func TestSessions_StartStopsWithContext(t *testing.T) {
	s := NewSessions(time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestService_Execute(t *testing.T) {
	h := newHarness(t)
	h.web.serve("https://www.github.com", articlePage("GitHub", "Where the world builds software."))
	svc := NewService(h.exec)

	resp, err := svc.Execute(context.Background(), Request{Query: "open github", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.Data.OverallSuccess)
	assert.Equal(t, StatusSucceeded, resp.Data.Status)
	assert.Equal(t, "open github", resp.Data.Query)
	assert.Equal(t, "u1", resp.Data.UserID)
	assert.Regexp(t, `^agent_[0-9a-f]{8}$`, resp.Data.AgentID)
	assert.NotEmpty(t, resp.Data.Steps)
}

func TestService_EmptyQuery(t *testing.T) {
	svc := NewService(newHarness(t).exec)
	_, err := svc.Execute(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestService_Health(t *testing.T) {
	h := newHarness(t, withReasoner(&fakeReasoner{}))
	svc := NewService(h.exec)

	health := svc.Health(context.Background())
	assert.True(t, health.Healthy)
	assert.True(t, health.Reasoner)
	assert.True(t, health.Browser)
	assert.Empty(t, health.Errors)

	h.web.pingErr = errors.New("chrome not found")
	health = svc.Health(context.Background())
	assert.False(t, health.Healthy)
	assert.False(t, health.Browser)
	assert.Equal(t, "chrome not found", health.Errors["browser"])

	noReasoner := NewService(newHarness(t).exec).Health(context.Background())
	assert.False(t, noReasoner.Reasoner)
	assert.Contains(t, noReasoner.Errors, "reasoner")
}

func TestService_ReleaseParkedSession(t *testing.T) {
	h := newHarness(t, withWait(0))
	h.web.serve("https://www.github.com", challengePage)
	svc := NewService(h.exec)

	resp, err := svc.Execute(context.Background(), Request{Query: "open github"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, StatusAwaitingUser, resp.Data.Status)

	parked := svc.ParkedSessions()
	require.Len(t, parked, 1)
	require.NoError(t, svc.ReleaseSession(parked[0].ID))
	assert.ErrorIs(t, svc.ReleaseSession(parked[0].ID), ErrSessionNotFound)
}
