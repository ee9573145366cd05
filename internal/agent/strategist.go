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

const DefaultMaxStrategies = 4

var FallbackPlanSchema = reasoner.Schema{
	Name:        "fallback_plan",
	Description: "Propose alternative strategies after a failed attempt.",
	Fields: []reasoner.Field{
		{
			Name:        "strategies",
			Description: "Strategies to try, best first.",
			Type:        reasoner.TypeArray,
			Required:    true,
			Items: &reasoner.Field{
				Type: reasoner.TypeObject,
				Fields: []reasoner.Field{
					{
						Name:     "kind",
						Type:     reasoner.TypeString,
						Required: true,
						Enum:     []string{"retry_search", "site_scoped_search", "alternate_phrasing"},
					},
					{Name: "engine", Description: "duckduckgo, bing or google.", Type: reasoner.TypeString},
					{Name: "site", Description: "Domain for site_scoped_search.", Type: reasoner.TypeString},
					{Name: "query", Type: reasoner.TypeString},
					{Name: "description", Type: reasoner.TypeString},
				},
			},
		},
	},
}

type fallbackAnswer struct {
	Strategies []struct {
		Kind        string `json:"kind"`
		Engine      string `json:"engine"`
		Site        string `json:"site"`
		Query       string `json:"query"`
		Description string `json:"description"`
	} `json:"strategies"`
}

var kindAliases = map[string]FallbackKind{
	"search_engine": FallbackRetrySearch,
	"cache":         FallbackRetrySearch,
	"site_search":   FallbackSiteScopedSearch,
}

type Strategist struct {
	reasoner reasoner.Reasoner
	lexicon  Lexicon
	prompts  *PromptManager
	logger   *observability.Logger
	max      int
}

func NewStrategist(r reasoner.Reasoner, lex Lexicon, prompts *PromptManager, logger *observability.Logger, max int) *Strategist {
	if logger == nil {
		logger = observability.NewNop()
	}
	if max <= 0 {
		max = DefaultMaxStrategies
	}
	return &Strategist{reasoner: r, lexicon: lex, prompts: prompts, logger: logger, max: max}
}

// Propose returns an ordered, deduplicated list of strategies. It is never
// empty for a non-empty query.
func (s *Strategist) Propose(ctx context.Context, query string, failure map[string]any) []FallbackStrategy {
	query = strings.TrimSpace(query)

	if s.reasoner != nil {
		answer, err := reasoner.Decode[fallbackAnswer](ctx, s.reasoner, s.prompt(query, failure), FallbackPlanSchema)
		if err == nil {
			if out := s.validate(answer, query); len(out) > 0 {
				return out
			}
		} else {
			s.logger.Info("strategist falling back to rules", zap.Error(err))
		}
	}
	return s.Rules(query, failure)
}

func (s *Strategist) prompt(query string, failure map[string]any) reasoner.Prompt {
	user := "Request: " + query
	if len(failure) > 0 {
		if b, err := json.Marshal(failure); err == nil {
			user += "\nFailure: " + string(b)
		}
	}
	return reasoner.Prompt{System: s.prompts.PromptOrEmpty(PromptFallback), User: user}
}

func (s *Strategist) validate(a fallbackAnswer, query string) []FallbackStrategy {
	var out []FallbackStrategy
	seen := make(map[string]bool)

	for _, raw := range a.Strategies {
		kind := FallbackKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
		if !kind.Valid() {
			if alias, ok := kindAliases[string(kind)]; ok {
				kind = alias
			} else {
				kind = FallbackRetrySearch
			}
		}

		st := FallbackStrategy{
			Kind:        kind,
			Engine:      strings.ToLower(strings.TrimSpace(raw.Engine)),
			Query:       strings.TrimSpace(raw.Query),
			Description: strings.TrimSpace(raw.Description),
		}
		if _, ok := s.lexicon.Engine(st.Engine); !ok {
			st.Engine = s.lexicon.DefaultEngine
		}
		if st.Kind == FallbackSiteScopedSearch {
			st.Site = s.lexicon.normalizeSite(raw.Site)
			if st.Site == "" {
				st.Kind = FallbackRetrySearch
			}
		}
		if st.Query == "" {
			st.Query = query
		}
		if st.Description == "" {
			st.Description = s.describe(st)
		}

		key := strings.Join([]string{string(st.Kind), st.Engine, st.Site, strings.ToLower(st.Query)}, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, st)
		if len(out) == s.max {
			break
		}
	}
	return out
}

// Rules retries the search on the failed or default engine, then scopes it
// to each website the query names.
func (s *Strategist) Rules(query string, failure map[string]any) []FallbackStrategy {
	engine := s.lexicon.DefaultEngine
	if e, ok := failure["engine"].(string); ok {
		if _, known := s.lexicon.Engine(e); known {
			engine = e
		}
	}

	retry := FallbackStrategy{Kind: FallbackRetrySearch, Engine: engine, Query: query}
	retry.Description = s.describe(retry)
	out := []FallbackStrategy{retry}

	for _, site := range s.lexicon.MentionedSites(query) {
		if len(out) == s.max {
			break
		}
		st := FallbackStrategy{Kind: FallbackSiteScopedSearch, Engine: engine, Site: site.Domain, Query: query}
		st.Description = s.describe(st)
		out = append(out, st)
	}
	return out
}

func (s *Strategist) describe(st FallbackStrategy) string {
	label := s.lexicon.EngineLabel(st.Engine)
	switch st.Kind {
	case FallbackSiteScopedSearch:
		return fmt.Sprintf("Search %s for '%s' on %s", label, st.Query, st.Site)
	case FallbackAlternatePhrasing:
		return fmt.Sprintf("Search %s for rephrased '%s'", label, st.Query)
	default:
		return fmt.Sprintf("Search %s for '%s'", label, st.Query)
	}
}

// SearchURL is where a strategy navigates.
func (s *Strategist) SearchURL(st FallbackStrategy) string {
	q := st.Query
	if st.Kind == FallbackSiteScopedSearch && st.Site != "" {
		q = "site:" + st.Site + " " + q
	}
	return s.lexicon.SearchURL(st.Engine, q)
}
