// Package browser is the page-automation boundary of the agent. The agent
// only ever sees Driver, Session and Snapshot; the chromedp implementation
// lives next to them.
package browser

import (
	"context"
	"errors"
)

var (
	ErrClosed    = errors.New("browser session closed")
	ErrNoElement = errors.New("no matching element on page")
)

// Snapshot is the state of a page at one instant.
type Snapshot struct {
	URL        string
	Title      string
	HTML       string
	ReadyState string
}

// Loaded reports whether the page finished loading.
func (s Snapshot) Loaded() bool {
	return s.ReadyState == "complete"
}

type Driver interface {
	Open(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
}

// Session is one browser owned by one task. Tabs opened with NewTab share
// the browser and are closed with it.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (Snapshot, error)
	// Submit types text followed by Enter into the first selector present.
	Submit(ctx context.Context, selectors []string, text string) error
	NewTab(ctx context.Context) (Session, error)
	Close() error
}
