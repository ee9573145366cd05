package challenge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/observability"
)

type Outcome string

const (
	Resolved Outcome = "RESOLVED"
	TimedOut Outcome = "TIMED_OUT"
)

func (o Outcome) Resolved() bool { return o == Resolved }

// Source is anything that can re-read the current page.
type Source interface {
	Snapshot(ctx context.Context) (browser.Snapshot, error)
}

const (
	DefaultMaxWait  = 300 * time.Second
	DefaultInterval = 3 * time.Second

	// confirmations is how many consecutive clean reads count as resolved.
	confirmations = 2
)

// Waiter polls a page until a challenge clears or the deadline passes.
type Waiter struct {
	Detector *Detector
	MaxWait  time.Duration
	Interval time.Duration
	Logger   *observability.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter returns a waiter on the wall clock. A zero maxWait makes Wait
// return TimedOut immediately.
func NewWaiter(d *Detector, maxWait, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxWait < 0 {
		maxWait = 0
	}
	return &Waiter{
		Detector: d,
		MaxWait:  maxWait,
		Interval: interval,
		Logger:   observability.NewNop(),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until two consecutive reads are clean (Resolved) or MaxWait
// has elapsed (TimedOut). Cancelling ctx counts as a timeout. A read is
// clean when no challenge is detected, the URL is not a challenge redirect,
// and the page has finished loading. Reads failing with an error are not
// clean.
func (w *Waiter) Wait(ctx context.Context, src Source) Outcome {
	start := w.now()
	deadline := start.Add(w.MaxWait)
	expired := func() bool { return !w.now().Before(deadline) }

	clean := 0
	for tick := 1; ; tick++ {
		if expired() {
			return TimedOut
		}

		pause := w.Interval
		if remaining := deadline.Sub(w.now()); remaining < pause {
			pause = remaining
		}
		if err := w.sleep(ctx, pause); err != nil {
			return TimedOut
		}
		if expired() {
			return TimedOut
		}

		snap, err := src.Snapshot(ctx)
		if expired() {
			return TimedOut
		}
		if err != nil {
			w.Logger.Debug("challenge poll failed", zap.Int("tick", tick), zap.Error(err))
			clean = 0
			continue
		}

		if w.isClean(snap) {
			clean++
		} else {
			clean = 0
		}
		w.Logger.Debug("challenge poll",
			zap.Int("tick", tick),
			zap.String("url", snap.URL),
			zap.Int("clean_reads", clean),
			zap.Duration("elapsed", w.now().Sub(start)),
		)
		if clean >= confirmations {
			return Resolved
		}
	}
}

func (w *Waiter) isClean(snap browser.Snapshot) bool {
	if !snap.Loaded() {
		return false
	}
	if _, ok := w.Detector.MatchesURL(snap.URL); ok {
		return false
	}
	return !w.Detector.Detect(snap)
}
