package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/scout/internal/observability"
	"github.com/rahul/scout/internal/reasoner"
)

var ActionPlanSchema = reasoner.Schema{
	Name:        "action_plan",
	Description: "Propose the next browser action for the request.",
	Fields: []reasoner.Field{
		{
			Name:        "action",
			Description: "The action to take.",
			Type:        reasoner.TypeString,
			Required:    true,
			Enum:        []string{"OPEN_URL", "SEARCH", "READ_PAGE", "FIX_ISSUE"},
		},
		{Name: "target", Description: "URL for OPEN_URL/READ_PAGE, query for SEARCH, problem for FIX_ISSUE.", Type: reasoner.TypeString},
		{Name: "reason", Description: "Why this action fits the request.", Type: reasoner.TypeString},
		{Name: "expected_outcome", Description: "What the action should produce.", Type: reasoner.TypeString},
	},
}

type planAnswer struct {
	Action          string `json:"action"`
	Target          string `json:"target"`
	Reason          string `json:"reason"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// Planner turns a query into one ActionPlan. It asks the reasoner first
// and falls back to lexicon rules, so it always returns a usable plan.
type Planner struct {
	reasoner reasoner.Reasoner
	lexicon  Lexicon
	prompts  *PromptManager
	logger   *observability.Logger
}

func NewPlanner(r reasoner.Reasoner, lex Lexicon, prompts *PromptManager, logger *observability.Logger) *Planner {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Planner{reasoner: r, lexicon: lex, prompts: prompts, logger: logger}
}

func (p *Planner) Plan(ctx context.Context, query string, taskContext map[string]any) ActionPlan {
	query = p.lexicon.CorrectTypos(strings.TrimSpace(query))

	if p.reasoner != nil {
		answer, err := reasoner.Decode[planAnswer](ctx, p.reasoner, p.prompt(query, taskContext), ActionPlanSchema)
		if err == nil {
			return p.validate(answer, query)
		}
		p.logger.Info("planner falling back to rules", zap.Error(err))
	}
	return p.Rules(query)
}

func (p *Planner) prompt(query string, taskContext map[string]any) reasoner.Prompt {
	user := "Request: " + query
	if len(taskContext) > 0 {
		if b, err := json.Marshal(taskContext); err == nil {
			user += "\nContext: " + string(b)
		}
	}
	return reasoner.Prompt{System: p.prompts.PromptOrEmpty(PromptPlanner), User: user}
}

func (p *Planner) validate(a planAnswer, query string) ActionPlan {
	action := ActionKind(strings.ToUpper(strings.TrimSpace(a.Action)))
	if !action.Valid() {
		action = ActionSearch
	}

	plan := ActionPlan{
		Action:          action,
		Target:          strings.TrimSpace(a.Target),
		Reason:          strings.TrimSpace(a.Reason),
		ExpectedOutcome: strings.TrimSpace(a.ExpectedOutcome),
		Source:          SourceReasoner,
	}
	if plan.Target == "" {
		plan.Target = query
	}

	if plan.Action == ActionOpenURL {
		if target, ok := p.openTarget(plan.Target); ok {
			plan.Target = target
		} else {
			plan.Action = ActionSearch
		}
	}

	if plan.Reason == "" {
		plan.Reason = "Planned by reasoner"
	}
	if plan.ExpectedOutcome == "" {
		plan.ExpectedOutcome = expectedOutcome(plan.Action)
	}
	return plan
}

// openTarget gives an OPEN_URL target a scheme. Site names resolve to their
// canonical URL; text that is neither a site nor a host is rejected.
func (p *Planner) openTarget(target string) (string, bool) {
	if s, ok := p.lexicon.Site(target); ok {
		return s.URL, true
	}
	if strings.ContainsAny(target, " \t") {
		return "", false
	}
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return target, true
	}
	if strings.Contains(target, ".") {
		return "https://" + target, true
	}
	return "", false
}

// Rules plans without a reasoner.
func (p *Planner) Rules(query string) ActionPlan {
	plan := ActionPlan{Source: SourceRules}

	if site, ok := p.lexicon.NavigatedSite(query); ok {
		plan.Action = ActionOpenURL
		plan.Target = site.URL
		plan.Reason = fmt.Sprintf("Request asks to go to %s", site.Name)
	} else if u, ok := p.lexicon.URLToken(query); ok {
		plan.Action = ActionOpenURL
		plan.Target = u
		plan.Reason = "Request contains a URL"
	} else if sites := p.lexicon.MentionedSites(query); len(sites) > 0 {
		plan.Action = ActionOpenURL
		plan.Target = sites[0].URL
		plan.Reason = fmt.Sprintf("Request names %s", sites[0].Name)
	} else {
		plan.Action = ActionSearch
		plan.Target = p.lexicon.StripStopPhrases(query)
		plan.Reason = "Request asks for information"
	}

	if plan.Target == "" {
		plan.Target = query
	}
	plan.ExpectedOutcome = expectedOutcome(plan.Action)
	return plan
}

func expectedOutcome(a ActionKind) string {
	switch a {
	case ActionOpenURL:
		return "The requested website is open"
	case ActionReadPage:
		return "The page content is extracted"
	case ActionFixIssue:
		return "A suggested fix for the problem"
	default:
		return "Search results relevant to the request"
	}
}
