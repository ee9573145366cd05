package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
)

type ChromedpConfig struct {
	Headless          bool
	ExecPath          string
	UserAgent         string
	Width             int
	Height            int
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// Chromedp launches a local Chrome per session.
type Chromedp struct {
	cfg ChromedpConfig
}

func NewChromedp(cfg ChromedpConfig) *Chromedp {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	return &Chromedp{cfg: cfg}
}

var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// Ping checks that a browser executable can be found. It does not start one.
func (c *Chromedp) Ping(ctx context.Context) error {
	if c.cfg.ExecPath != "" {
		if _, err := os.Stat(c.cfg.ExecPath); err != nil {
			return fmt.Errorf("browser executable: %w", err)
		}
		return nil
	}
	for _, name := range chromeNames {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no Chrome or Chromium executable found in PATH")
}

func (c *Chromedp) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(c.cfg.Width, c.cfg.Height),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser; a timeout here would kill it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		id:  uuid.NewString(),
		cfg: c.cfg,
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

type chromeSession struct {
	id  string
	cfg ChromedpConfig

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func (s *chromeSession) ID() string { return s.id }

// actionCtx derives a bounded context from the browser context that is also
// cancelled when the caller's context ends.
func (s *chromeSession) actionCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	base := s.ctx
	s.mu.Unlock()

	actx, cancel := context.WithTimeout(base, s.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() {
		stop()
		cancel()
	}, nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	actx, cancel, err := s.actionCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if s.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
	}
	if err := chromedp.Run(actx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Snapshot(ctx context.Context) (Snapshot, error) {
	actx, cancel, err := s.actionCtx(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer cancel()

	var snap Snapshot
	err = chromedp.Run(actx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate(`document.readyState`, &snap.ReadyState),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			snap.HTML, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func (s *chromeSession) Submit(ctx context.Context, selectors []string, text string) error {
	actx, cancel, err := s.actionCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	for _, sel := range selectors {
		quoted, err := json.Marshal(sel)
		if err != nil {
			continue
		}
		var present bool
		js := fmt.Sprintf(`document.querySelector(%s) !== null`, quoted)
		if err := chromedp.Run(actx, chromedp.Evaluate(js, &present)); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		if !present {
			continue
		}

		actions := []chromedp.Action{
			chromedp.Focus(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, text+kb.Enter, chromedp.ByQuery),
		}
		if s.cfg.SettleDelay > 0 {
			actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
		}
		if err := chromedp.Run(actx, actions...); err != nil {
			return fmt.Errorf("submit into %s: %w", sel, err)
		}
		return nil
	}
	return ErrNoElement
}

func (s *chromeSession) NewTab(ctx context.Context) (Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	base := s.ctx
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(base)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &chromeSession{
		id:     s.id + "/" + uuid.NewString()[:8],
		cfg:    s.cfg,
		ctx:    tabCtx,
		cancel: tabCancel,
	}, nil
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
