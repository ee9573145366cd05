package agent

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rahul/scout/internal/challenge"
)

// Site is a website the agent recognises by name.
type Site struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Domain  string   `yaml:"domain"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Engine builds search URLs. QueryURL contains a {query} placeholder.
type Engine struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	QueryURL string `yaml:"query_url"`
}

// Lexicon holds the word lists behind rule-based planning, fallback
// proposals and challenge detection. Loading a file over the defaults
// replaces lists and merges the typo table.
type Lexicon struct {
	Version       string            `yaml:"version"`
	Sites         []Site            `yaml:"sites"`
	Typos         map[string]string `yaml:"typos"`
	NavKeywords   []string          `yaml:"nav_keywords"`
	StopPhrases   []string          `yaml:"stop_phrases"`
	Fillers       []string          `yaml:"fillers"`
	TLDs          []string          `yaml:"tlds"`
	SearchBoxes   []string          `yaml:"search_boxes"`
	Engines       []Engine          `yaml:"engines"`
	DefaultEngine string            `yaml:"default_engine"`
	Challenge     challenge.Signals `yaml:"challenge"`
}

func DefaultLexicon() Lexicon {
	site := func(name string) Site {
		return Site{Name: name, URL: "https://www." + name + ".com", Domain: name + ".com"}
	}
	sites := []Site{
		site("linkedin"),
		site("facebook"),
		site("youtube"),
		site("github"),
		site("reddit"),
		site("twitter"),
		site("instagram"),
		site("stackoverflow"),
		site("medium"),
		site("techcrunch"),
		site("bbc"),
		site("cnn"),
		site("reuters"),
		site("theverge"),
		site("arstechnica"),
		{Name: "dev.to", URL: "https://dev.to", Domain: "dev.to", Aliases: []string{"devto"}},
		{Name: "wikipedia", URL: "https://www.wikipedia.org", Domain: "wikipedia.org"},
		{Name: "hackernews", URL: "https://news.ycombinator.com", Domain: "news.ycombinator.com", Aliases: []string{"hacker news", "hn"}},
	}
	for i := range sites {
		switch sites[i].Name {
		case "stackoverflow":
			sites[i].Aliases = []string{"stack overflow"}
		case "theverge":
			sites[i].Aliases = []string{"the verge"}
		case "arstechnica":
			sites[i].Aliases = []string{"ars technica"}
		case "twitter":
			sites[i].Aliases = []string{"x.com"}
		}
	}

	return Lexicon{
		Version: "1",
		Sites:   sites,
		Typos: map[string]string{
			"linkdin":      "linkedin",
			"linkedn":      "linkedin",
			"facbook":      "facebook",
			"facebok":      "facebook",
			"youtub":       "youtube",
			"yotube":       "youtube",
			"githb":        "github",
			"gihub":        "github",
			"redit":        "reddit",
			"twiter":       "twitter",
			"instagarm":    "instagram",
			"stackoverflw": "stackoverflow",
			"wikipedea":    "wikipedia",
			"techcrunh":    "techcrunch",
		},
		NavKeywords: []string{
			"on", "from", "at", "visit", "vist", "open", "go to", "goto",
			"navigate to", "check", "browse", "read",
		},
		StopPhrases: []string{
			"search for", "search", "find me", "find", "look for", "look up",
			"show me", "tell me about", "please", "can you",
		},
		Fillers: []string{"for", "about", "on", "in", "at", "to", "the", "a", "an", "me", "and"},
		TLDs: []string{
			"com", "org", "net", "io", "dev", "ai", "co", "edu", "gov", "to",
			"uk", "de", "fr", "in", "app", "info", "me", "news", "tv", "xyz",
		},
		SearchBoxes: []string{
			`input[name="q"]`,
			`input[name="search_query"]`,
			`input[type="search"]`,
			`input[name="search"]`,
			`input[aria-label*="Search"]`,
			`input[placeholder*="Search"]`,
			`#search`,
		},
		Engines: []Engine{
			{Name: "duckduckgo", Label: "DuckDuckGo", QueryURL: "https://duckduckgo.com/?q={query}"},
			{Name: "bing", Label: "Bing", QueryURL: "https://www.bing.com/search?q={query}"},
			{Name: "google", Label: "Google", QueryURL: "https://www.google.com/search?q={query}"},
		},
		DefaultEngine: "duckduckgo",
		Challenge:     challenge.DefaultSignals(),
	}
}

// LoadLexicon overlays the YAML file at path on the defaults.
func LoadLexicon(path string) (Lexicon, error) {
	lex := DefaultLexicon()
	data, err := os.ReadFile(path)
	if err != nil {
		return lex, fmt.Errorf("failed to read lexicon: %w", err)
	}
	typos := lex.Typos
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return lex, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	if lex.Typos == nil {
		lex.Typos = make(map[string]string)
	}
	for k, v := range typos {
		if _, ok := lex.Typos[k]; !ok {
			lex.Typos[k] = v
		}
	}
	if err := lex.Validate(); err != nil {
		return lex, err
	}
	return lex, nil
}

func (l Lexicon) Validate() error {
	if len(l.Engines) == 0 {
		return fmt.Errorf("lexicon: no search engines")
	}
	for _, e := range l.Engines {
		if e.Name == "" || !strings.Contains(e.QueryURL, "{query}") {
			return fmt.Errorf("lexicon: engine %q needs a name and a {query} placeholder", e.Name)
		}
	}
	if _, ok := l.Engine(l.DefaultEngine); !ok {
		return fmt.Errorf("lexicon: default engine %q is not defined", l.DefaultEngine)
	}
	for _, s := range l.Sites {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("lexicon: site %q needs a name and a url", s.Name)
		}
	}
	return nil
}

func (l Lexicon) Engine(name string) (Engine, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range l.Engines {
		if e.Name == name {
			return e, true
		}
	}
	return Engine{}, false
}

// SearchURL builds the results URL of the named engine, falling back to
// the default engine for unknown names.
func (l Lexicon) SearchURL(engine, query string) string {
	e, ok := l.Engine(engine)
	if !ok {
		e, _ = l.Engine(l.DefaultEngine)
	}
	return strings.ReplaceAll(e.QueryURL, "{query}", url.QueryEscape(query))
}

func (l Lexicon) EngineLabel(engine string) string {
	if e, ok := l.Engine(engine); ok && e.Label != "" {
		return e.Label
	}
	return engine
}

func (l Lexicon) Site(name string) (Site, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range l.Sites {
		for _, n := range s.names() {
			if strings.Join(n, " ") == name {
				return s, true
			}
		}
	}
	return Site{}, false
}

// SiteForHost finds the site served from host, ignoring a www prefix.
func (l Lexicon) SiteForHost(host string) (Site, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, s := range l.Sites {
		if strings.EqualFold(s.Domain, host) {
			return s, true
		}
	}
	return Site{}, false
}

func (s Site) names() [][]string {
	out := [][]string{{strings.ToLower(s.Name)}}
	if s.Domain != "" {
		d := strings.ToLower(s.Domain)
		out = append(out, []string{d}, []string{"www." + d})
	}
	for _, a := range s.Aliases {
		out = append(out, strings.Fields(strings.ToLower(a)))
	}
	return out
}

const punct = `.,;:!?()[]{}"'<>`

func words(query string) []string {
	var out []string
	for _, f := range strings.Fields(query) {
		if w := strings.Trim(strings.ToLower(f), punct); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func phrases(list []string) [][]string {
	out := make([][]string, 0, len(list))
	for _, p := range list {
		if f := strings.Fields(strings.ToLower(p)); len(f) > 0 {
			out = append(out, f)
		}
	}
	// longest first so "search for" wins over "search"
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func matchAt(ws []string, i int, phrase []string) bool {
	if i < 0 || i+len(phrase) > len(ws) {
		return false
	}
	for j, p := range phrase {
		if ws[i+j] != p {
			return false
		}
	}
	return true
}

// CorrectTypos rewrites misspelled words using the typo table.
func (l Lexicon) CorrectTypos(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		core := strings.Trim(strings.ToLower(f), punct)
		if fix, ok := l.Typos[core]; ok {
			fields[i] = strings.Replace(strings.ToLower(f), core, fix, 1)
		}
	}
	return strings.Join(fields, " ")
}

type siteMention struct {
	site  Site
	index int
	size  int
}

func (l Lexicon) mentions(query string) []siteMention {
	ws := words(query)
	var out []siteMention
	for _, s := range l.Sites {
		found := false
		for i := range ws {
			for _, n := range s.names() {
				if matchAt(ws, i, n) {
					out = append(out, siteMention{site: s, index: i, size: len(n)})
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// MentionedSites lists the recognised websites named in query, in order of
// appearance.
func (l Lexicon) MentionedSites(query string) []Site {
	var out []Site
	for _, m := range l.mentions(query) {
		out = append(out, m.site)
	}
	return out
}

// NavigatedSite finds a recognised website directly preceded by a
// navigation keyword, as in "open github" or "news on techcrunch".
func (l Lexicon) NavigatedSite(query string) (Site, bool) {
	ws := words(query)
	nav := phrases(l.NavKeywords)
	for _, m := range l.mentions(query) {
		for _, kw := range nav {
			if matchAt(ws, m.index-len(kw), kw) {
				return m.site, true
			}
		}
	}
	return Site{}, false
}

var hostToken = regexp.MustCompile(`^([a-z0-9-]+\.)+([a-z]{2,})(:\d+)?(/\S*)?$`)

// URLToken returns the first URL-shaped token of query with a scheme.
// Bare hosts only count when their top-level domain is known.
func (l Lexicon) URLToken(query string) (string, bool) {
	for _, f := range strings.Fields(query) {
		tok := strings.TrimRight(strings.Trim(f, `,;!?()[]{}"'<>`), ".")
		lower := strings.ToLower(tok)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			if u, err := url.Parse(tok); err == nil && u.Host != "" {
				return tok, true
			}
			continue
		}
		m := hostToken.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if strings.HasPrefix(lower, "www.") || l.knownTLD(m[2]) {
			return "https://" + tok, true
		}
	}
	return "", false
}

func (l Lexicon) knownTLD(tld string) bool {
	for _, t := range l.TLDs {
		if strings.EqualFold(t, tld) {
			return true
		}
	}
	return false
}

// StripStopPhrases removes search verbs and politeness from query. It
// returns query unchanged when nothing would remain.
func (l Lexicon) StripStopPhrases(query string) string {
	if out := dropPhrases(strings.Fields(query), phrases(l.StopPhrases)); len(out) > 0 {
		return strings.Join(out, " ")
	}
	return strings.TrimSpace(query)
}

// SearchTerms is what query asks for beyond naming and opening site.
func (l Lexicon) SearchTerms(query string, site Site) string {
	drop := append(site.names(), phrases(l.NavKeywords)...)
	drop = append(drop, phrases(l.StopPhrases)...)
	drop = append(drop, phrases(l.Fillers)...)
	sort.SliceStable(drop, func(i, j int) bool { return len(drop[i]) > len(drop[j]) })
	return strings.Join(dropPhrases(strings.Fields(query), drop), " ")
}

func dropPhrases(fields []string, drop [][]string) []string {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = strings.Trim(strings.ToLower(f), punct)
	}
	var out []string
	for i := 0; i < len(fields); {
		matched := 0
		for _, p := range drop {
			if matchAt(norm, i, p) {
				matched = len(p)
				break
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		if norm[i] != "" {
			out = append(out, fields[i])
		}
		i++
	}
	return out
}

// normalizeSite reduces a site given as a name, URL or host to its domain.
func (l Lexicon) normalizeSite(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if s, ok := l.Site(raw); ok {
		return s.Domain
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || !strings.Contains(u.Hostname(), ".") {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
