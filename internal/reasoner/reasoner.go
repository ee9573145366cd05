// Package reasoner defines the structured-decision capability the agent
// consumes: a prompt plus a data-shape contract in, a validated object out.
package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when no provider is configured or the
	// provider cannot be reached.
	ErrUnavailable = errors.New("reasoner unavailable")
	// ErrInvalidOutput is returned when the provider answer does not satisfy
	// the requested schema.
	ErrInvalidOutput = errors.New("reasoner output does not match schema")
)

type Prompt struct {
	System string
	User   string
}

type Reasoner interface {
	Reason(ctx context.Context, prompt Prompt, schema Schema) (map[string]any, error)
}

// Pinger is implemented by providers that can report readiness without
// side effects.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Error wraps a provider failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reasoner %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Decode runs the reasoner and converts the validated object into T.
func Decode[T any](ctx context.Context, r Reasoner, prompt Prompt, schema Schema) (T, error) {
	var out T
	if r == nil {
		return out, ErrUnavailable
	}
	obj, err := r.Reason(ctx, prompt, schema)
	if err != nil {
		return out, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return out, &Error{Op: "decode", Err: err}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{Op: "decode", Err: fmt.Errorf("%w: %v", ErrInvalidOutput, err)}
	}
	return out, nil
}

// Ping reports whether r is ready. A nil reasoner is unavailable.
func Ping(ctx context.Context, r Reasoner) error {
	if r == nil {
		return ErrUnavailable
	}
	if p, ok := r.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
