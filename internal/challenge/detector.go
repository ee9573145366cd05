// Package challenge recognises human-verification gates on loaded pages and
// waits for a human to clear them. Nothing here interacts with a challenge.
package challenge

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/rahul/scout/internal/browser"
)

// Signals are the lookup tables the detector runs against a page.
type Signals struct {
	// Markers are CSS selectors of verification widgets.
	Markers []string `yaml:"markers" json:"markers"`
	// Phrases are matched against the lower-cased visible text.
	Phrases []string `yaml:"phrases" json:"phrases"`
	// URLPatterns are regular expressions matched against the lower-cased
	// path and query of the page URL.
	URLPatterns []string `yaml:"url_patterns" json:"url_patterns"`
}

func DefaultSignals() Signals {
	return Signals{
		Markers: []string{
			`iframe[src*="recaptcha"]`,
			`div[class*="recaptcha"]:not(.grecaptcha-badge)`,
			`div[id*="recaptcha"]`,
			`.g-recaptcha`,
			`[data-sitekey]`,
			`iframe[src*="hcaptcha"]`,
			`div[id*="hcaptcha"]`,
			`.h-captcha`,
			`iframe[src*="challenges.cloudflare.com"]`,
			`div[class*="cf-turnstile"]`,
			`form#challenge-form`,
			`#challenge-stage`,
			`#cf-challenge-running`,
			`div[class*="captcha"]:not(.grecaptcha-badge)`,
			`div[id*="captcha"]`,
			`input[name*="captcha"]`,
		},
		Phrases: []string{
			"verify you are human",
			"verify that you are human",
			"prove you are not a robot",
			"i'm not a robot",
			"i am not a robot",
			"security check",
			"human verification",
			"checking your browser",
			"unusual traffic from your computer",
		},
		URLPatterns: []string{
			`^/sorry/`,
			`^[^?]*captcha`,
			`^/cdn-cgi/challenge-platform`,
			`^/challenge(/|\?|$)`,
			`[?&]__cf_chl_`,
		},
	}
}

type SignalClass string

const (
	ClassMarker SignalClass = "marker"
	ClassPhrase SignalClass = "phrase"
	ClassURL    SignalClass = "url"
)

// Signal is the first piece of evidence that fired.
type Signal struct {
	Class SignalClass `json:"class"`
	Match string      `json:"match"`
}

func (s Signal) String() string {
	return fmt.Sprintf("%s: %s", s.Class, s.Match)
}

type marker struct {
	selector string
	matcher  cascadia.Selector
}

// Detector is a pure classifier over page snapshots.
type Detector struct {
	markers  []marker
	phrases  []string
	patterns []*regexp.Regexp
}

func NewDetector(s Signals) (*Detector, error) {
	d := &Detector{}
	for _, sel := range s.Markers {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid challenge marker %q: %w", sel, err)
		}
		d.markers = append(d.markers, marker{selector: sel, matcher: m})
	}
	for _, p := range s.Phrases {
		if p = normalizeText(p); p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	for _, p := range s.URLPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid challenge url pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// MustDetector is NewDetector for signal tables known to be valid.
func MustDetector(s Signals) *Detector {
	d, err := NewDetector(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Detector) Detect(snap browser.Snapshot) bool {
	_, ok := d.Explain(snap)
	return ok
}

// Explain runs the URL, structural and lexical checks in that order and
// returns the first signal that fires.
func (d *Detector) Explain(snap browser.Snapshot) (Signal, bool) {
	if p, ok := d.MatchesURL(snap.URL); ok {
		return Signal{Class: ClassURL, Match: p}, true
	}
	if strings.TrimSpace(snap.HTML) == "" {
		return Signal{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return d.scanText(snap.HTML)
	}

	for _, m := range d.markers {
		if doc.FindMatcher(m.matcher).Length() > 0 {
			return Signal{Class: ClassMarker, Match: m.selector}, true
		}
	}

	return d.scanText(VisibleText(doc))
}

func (d *Detector) scanText(text string) (Signal, bool) {
	text = normalizeText(text)
	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			return Signal{Class: ClassPhrase, Match: p}, true
		}
	}
	return Signal{}, false
}

// MatchesURL reports whether the URL looks like a challenge redirect and
// which pattern matched.
func (d *Detector) MatchesURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	target := strings.ToLower(u.EscapedPath())
	if u.RawQuery != "" {
		target += "?" + strings.ToLower(u.RawQuery)
	}
	for _, re := range d.patterns {
		if re.MatchString(target) {
			return re.String(), true
		}
	}
	return "", false
}

// VisibleText returns the body text with non-rendered elements removed.
func VisibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(apostrophes.Replace(s)), " "))
}
