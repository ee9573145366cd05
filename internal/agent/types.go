package agent

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionOpenURL  ActionKind = "OPEN_URL"
	ActionSearch   ActionKind = "SEARCH"
	ActionReadPage ActionKind = "READ_PAGE"
	ActionFixIssue ActionKind = "FIX_ISSUE"
)

var actionKinds = []ActionKind{ActionOpenURL, ActionSearch, ActionReadPage, ActionFixIssue}

func (a ActionKind) Valid() bool {
	for _, k := range actionKinds {
		if a == k {
			return true
		}
	}
	return false
}

type PlanSource string

const (
	SourceReasoner PlanSource = "reasoner"
	SourceRules    PlanSource = "rules"
)

// ActionPlan is one decision of the planner. Target is never empty.
type ActionPlan struct {
	Action          ActionKind `json:"action"`
	Target          string     `json:"target"`
	Reason          string     `json:"reason"`
	ExpectedOutcome string     `json:"expected_outcome"`
	Source          PlanSource `json:"source"`
}

type FallbackKind string

const (
	FallbackRetrySearch       FallbackKind = "retry_search"
	FallbackSiteScopedSearch  FallbackKind = "site_scoped_search"
	FallbackAlternatePhrasing FallbackKind = "alternate_phrasing"
)

var fallbackKinds = []FallbackKind{FallbackRetrySearch, FallbackSiteScopedSearch, FallbackAlternatePhrasing}

func (k FallbackKind) Valid() bool {
	for _, v := range fallbackKinds {
		if k == v {
			return true
		}
	}
	return false
}

type FallbackStrategy struct {
	Kind        FallbackKind `json:"kind"`
	Engine      string       `json:"engine,omitempty"`
	Site        string       `json:"site,omitempty"`
	Query       string       `json:"query"`
	Description string       `json:"description"`
}

type ErrorKind string

const (
	ErrChallengeDetected   ErrorKind = "CHALLENGE_DETECTED"
	ErrReasonerUnavailable ErrorKind = "REASONER_UNAVAILABLE"
	ErrNavigationFailed    ErrorKind = "NAVIGATION_FAILED"
	ErrExtractionFailed    ErrorKind = "EXTRACTION_FAILED"
	ErrDriverUnavailable   ErrorKind = "DRIVER_UNAVAILABLE"
)

type StepResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Error   *ErrorKind     `json:"error"`
}

// Step is one history entry. Satisfies marks successes that fulfil the
// task, as opposed to intermediate progress such as planning.
type Step struct {
	Description string     `json:"step"`
	Success     bool       `json:"success"`
	Result      StepResult `json:"result"`
	Satisfies   bool       `json:"-"`
}

// IsChallenge reports whether the step records a challenge pause.
func (s Step) IsChallenge() bool {
	return s.Result.Error != nil && *s.Result.Error == ErrChallengeDetected
}

type OverallStatus string

const (
	StatusSucceeded    OverallStatus = "succeeded"
	StatusFailed       OverallStatus = "failed"
	StatusAwaitingUser OverallStatus = "awaiting_user"
)

// Task is the immutable unit of work.
type Task struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

const DefaultUserID = "default_user"

func NewTask(req Request) Task {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = "agent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = DefaultUserID
	}
	return Task{
		ID:        uuid.NewString(),
		Query:     strings.TrimSpace(req.Query),
		AgentID:   agentID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
}

type Request struct {
	Query   string `json:"query"`
	AgentID string `json:"agent_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

type Response struct {
	Success bool         `json:"success"`
	Data    ResponseData `json:"data"`
}

type ResponseData struct {
	Query          string        `json:"query"`
	AgentID        string        `json:"agent_id"`
	UserID         string        `json:"user_id"`
	TaskID         string        `json:"task_id"`
	OverallSuccess bool          `json:"overall_success"`
	Status         OverallStatus `json:"status"`
	Steps          []Step        `json:"steps"`
}
