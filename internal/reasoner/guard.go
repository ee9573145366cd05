package reasoner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/scout/internal/observability"
)

type GuardConfig struct {
	// Component labels transcripts and metrics, e.g. "planner".
	Component string
	Timeout   time.Duration
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Guard bounds a provider call: it enforces the timeout, turns panics into
// errors, validates the answer against the schema, and records the call.
type Guard struct {
	next Reasoner
	cfg  GuardConfig
}

func NewGuard(next Reasoner, cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNop()
	}
	return &Guard{next: next, cfg: cfg}
}

type reply struct {
	obj map[string]any
	err error
}

func (g *Guard) Reason(ctx context.Context, prompt Prompt, schema Schema) (map[string]any, error) {
	if g.next == nil {
		g.record(prompt, nil, ErrUnavailable)
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: &Error{Op: "reason", Err: fmt.Errorf("provider panic: %v", r)}}
			}
		}()
		obj, err := g.next.Reason(ctx, prompt, schema)
		done <- reply{obj: obj, err: err}
	}()

	var res reply
	select {
	case res = <-done:
	case <-ctx.Done():
		res = reply{err: &Error{Op: "reason", Err: ctx.Err()}}
	}

	if res.err == nil {
		res.err = schema.Validate(res.obj)
	}
	g.record(prompt, res.obj, res.err)
	if res.err != nil {
		return nil, res.err
	}
	return res.obj, nil
}

func (g *Guard) record(prompt Prompt, obj map[string]any, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, ErrInvalidOutput):
		outcome = "invalid"
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	g.cfg.Metrics.RecordReasonerCall(g.cfg.Component, outcome)
	g.cfg.Logger.LogLLM(g.cfg.Component, prompt, obj, err)
}

func (g *Guard) Ping(ctx context.Context) error {
	return Ping(ctx, g.next)
}
