package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/reasoner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeWeb serves scripted pages. Each URL maps to successive snapshots; the
// last one repeats.
type fakeWeb struct {
	mu       sync.Mutex
	pages    map[string][]browser.Snapshot
	openErr  error
	pingErr  error
	sessions []*fakeSession

	// delays slow down navigation to a URL; loaded records finished
	// navigations in completion order.
	delays map[string]time.Duration
	loaded []string
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{pages: make(map[string][]browser.Snapshot), delays: make(map[string]time.Duration)}
}

func (w *fakeWeb) serve(u string, htmls ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range htmls {
		w.pages[u] = append(w.pages[u], browser.Snapshot{URL: u, Title: titleOf(h), HTML: h, ReadyState: "complete"})
	}
}

func (w *fakeWeb) Open(ctx context.Context) (browser.Session, error) {
	if w.openErr != nil {
		return nil, w.openErr
	}
	return w.newSession(false), nil
}

func (w *fakeWeb) slow(u string, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delays[u] = d
}

func (w *fakeWeb) loadOrder() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.loaded...)
}

func (w *fakeWeb) Ping(ctx context.Context) error { return w.pingErr }

func (w *fakeWeb) newSession(tab bool) *fakeSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &fakeSession{web: w, id: fmt.Sprintf("session-%d", len(w.sessions)+1), tab: tab, reads: make(map[string]int)}
	w.sessions = append(w.sessions, s)
	return s
}

func (w *fakeWeb) main() *fakeSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sessions {
		if !s.tab {
			return s
		}
	}
	return nil
}

type fakeSession struct {
	web *fakeWeb
	id  string
	tab bool

	mu        sync.Mutex
	current   string
	reads     map[string]int
	closed    int
	submitted []string
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(ctx context.Context, u string) error {
	s.web.mu.Lock()
	_, ok := s.web.pages[u]
	delay := s.web.delays[u]
	s.web.mu.Unlock()
	if !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.web.mu.Lock()
	s.web.loaded = append(s.web.loaded, u)
	s.web.mu.Unlock()

	s.mu.Lock()
	s.current = u
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Snapshot(ctx context.Context) (browser.Snapshot, error) {
	s.mu.Lock()
	cur := s.current
	n := s.reads[cur]
	s.reads[cur]++
	s.mu.Unlock()

	if cur == "" {
		return browser.Snapshot{URL: "about:blank", ReadyState: "complete"}, nil
	}
	s.web.mu.Lock()
	defer s.web.mu.Unlock()
	snaps := s.web.pages[cur]
	if n >= len(snaps) {
		n = len(snaps) - 1
	}
	return snaps[n], nil
}

func (s *fakeSession) Submit(ctx context.Context, selectors []string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.current + "/search?q=" + url.QueryEscape(text)
	s.web.mu.Lock()
	_, ok := s.web.pages[target]
	s.web.mu.Unlock()
	if !ok {
		return browser.ErrNoElement
	}
	s.submitted = append(s.submitted, text)
	s.current = target
	return nil
}

func (s *fakeSession) NewTab(ctx context.Context) (browser.Session, error) {
	return s.web.newSession(true), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeReasoner answers by schema name; unknown schemas are unavailable.
type fakeReasoner struct {
	mu      sync.Mutex
	answers map[string]map[string]any
	calls   []string
	prompts []reasoner.Prompt
}

func (f *fakeReasoner) Reason(ctx context.Context, p reasoner.Prompt, schema reasoner.Schema) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, schema.Name)
	f.prompts = append(f.prompts, p)
	if obj, ok := f.answers[schema.Name]; ok {
		return obj, nil
	}
	return nil, reasoner.ErrUnavailable
}

func titleOf(html string) string {
	_, rest, ok := strings.Cut(html, "<title>")
	if !ok {
		return ""
	}
	title, _, _ := strings.Cut(rest, "</title>")
	return title
}

const challengePage = `<html><head><title>Just a moment...</title></head><body>
<div class="cf-turnstile" data-sitekey="x"></div><p>Verify you are human by completing the action below.</p>
</body></html>`

func articlePage(title, body string) string {
	return `<html><head><title>` + title + `</title></head><body><article><h1>` + title + `</h1><p>` +
		body + ` This paragraph is long enough to be treated as the main article region of the page.</p></article></body></html>`
}

func listingPage(links ...string) string {
	h := `<html><head><title>Results</title></head><body><div id="links">`
	for i, l := range links {
		h += fmt.Sprintf(`<div class="result"><a class="result__a" href="%s">Result %d</a><a class="result__snippet">Snippet %d</a></div>`, l, i+1, i+1)
	}
	return h + `</div></body></html>`
}
