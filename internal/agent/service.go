package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/observability"
	"github.com/rahul/scout/internal/reasoner"
)

var ErrEmptyQuery = errors.New("query is required")

// Health reports whether the collaborators of the service are reachable.
type Health struct {
	Reasoner       bool              `json:"reasoner"`
	Browser        bool              `json:"browser"`
	Healthy        bool              `json:"healthy"`
	ParkedSessions int               `json:"parked_sessions"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// Service is the request/response face of the agent shared by the HTTP
// API and the chat gateways.
type Service struct {
	executor *Executor
	driver   browser.Driver
	reasoner reasoner.Reasoner
	sessions *Sessions
	logger   *observability.Logger
	metrics  *observability.Metrics
}

func NewService(executor *Executor) *Service {
	return &Service{
		executor: executor,
		driver:   executor.driver,
		reasoner: executor.reasoner,
		sessions: executor.sessions,
		logger:   executor.logger,
		metrics:  executor.metrics,
	}
}

func (s *Service) Execute(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, ErrEmptyQuery
	}
	task := NewTask(req)
	start := time.Now()
	s.logger.Info("task started",
		zap.String("task_id", task.ID), zap.String("agent_id", task.AgentID), zap.String("query", task.Query))

	out := s.executor.Run(ctx, task)

	status := out.History.Status()
	overall := out.History.OverallSuccess()
	s.metrics.RecordTask(string(status), time.Since(start))
	s.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.String("state", string(out.State)),
		zap.String("status", string(status)),
		zap.Int("steps", out.History.Len()),
		zap.Duration("duration", time.Since(start)),
	)

	return Response{
		Success: overall,
		Data: ResponseData{
			Query:          task.Query,
			AgentID:        task.AgentID,
			UserID:         task.UserID,
			TaskID:         task.ID,
			OverallSuccess: overall,
			Status:         status,
			Steps:          out.History.Steps(),
		},
	}, nil
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{ParkedSessions: s.sessions.Len()}
	errs := make(map[string]string)

	if err := reasoner.Ping(ctx, s.reasoner); err != nil {
		errs["reasoner"] = err.Error()
	} else {
		h.Reasoner = true
	}
	if s.driver == nil {
		errs["browser"] = "no browser driver configured"
	} else if err := s.driver.Ping(ctx); err != nil {
		errs["browser"] = err.Error()
	} else {
		h.Browser = true
	}

	h.Healthy = h.Reasoner && h.Browser
	if len(errs) > 0 {
		h.Errors = errs
	}
	return h
}

func (s *Service) ReleaseSession(id string) error {
	return s.sessions.Release(id)
}

func (s *Service) ParkedSessions() []ParkedSession {
	return s.sessions.List()
}

// Start runs background upkeep until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.sessions.Start(ctx)
}

// Close releases every parked browser session.
func (s *Service) Close() {
	s.sessions.CloseAll()
}
