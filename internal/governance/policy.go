package governance

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a navigation the agent is about to perform.
type Request struct {
	Action string
	Target string
	TaskID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// PolicyEngine evaluates navigations against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies non-web schemes, listed hosts, and targets
// matching any configured pattern.
type DefaultPolicyEngine struct {
	AllowedSchemes map[string]bool
	DeniedHosts    map[string]bool
	DeniedRegex    []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		AllowedSchemes: map[string]bool{"http": true, "https": true},
		DeniedHosts:    make(map[string]bool),
		DeniedRegex:    make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured deny lists.
func NewPolicyEngine(patterns, hosts []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, h := range hosts {
		e.DenyHost(h)
	}
	for _, p := range patterns {
		if err := e.DenyPattern(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyHost(host string) {
	e.DeniedHosts[strings.ToLower(strings.TrimPrefix(host, "www."))] = true
}

func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	u, err := url.Parse(req.Target)
	if err != nil {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Target '%s' is not a valid URL", req.Target),
		}, nil
	}

	scheme := strings.ToLower(u.Scheme)
	if !e.AllowedSchemes[scheme] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Scheme '%s' is restricted by system policy", scheme),
		}, nil
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Target '%s' has no host", req.Target),
		}, nil
	}
	if e.DeniedHosts[host] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Host '%s' is restricted by system policy", host),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Target) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Target matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
