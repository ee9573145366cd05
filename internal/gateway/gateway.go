// Package gateway exposes the agent over HTTP and chat platforms.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/scout/internal/agent"
)

// Messenger defines the interface for chat gateways (Telegram, Discord).
type Messenger interface {
	// Start runs the message loop until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Agent is what the gateways need from the agent service.
type Agent interface {
	Execute(ctx context.Context, req agent.Request) (agent.Response, error)
	Health(ctx context.Context) agent.Health
	ReleaseSession(id string) error
	ParkedSessions() []agent.ParkedSession
}

const helpText = "Send me something to do in the browser, for example \"open github\" or \"latest AI news\"."

// answer runs one chat message through the agent and renders the reply.
func answer(ctx context.Context, a Agent, userID, text string) string {
	text = strings.TrimSpace(text)
	if text == "" || text == "/start" || text == "/help" {
		return helpText
	}
	resp, err := a.Execute(ctx, agent.Request{Query: text, UserID: userID})
	if errors.Is(err, agent.ErrEmptyQuery) {
		return helpText
	}
	if err != nil {
		return "I couldn't run that task: " + err.Error()
	}
	return FormatReply(resp)
}

const maxReplyResults = 3

// FormatReply renders a response as compact plain text.
func FormatReply(resp agent.Response) string {
	var b strings.Builder
	d := resp.Data

	switch d.Status {
	case agent.StatusSucceeded:
		fmt.Fprintf(&b, "✅ Done: %s\n", d.Query)
	case agent.StatusAwaitingUser:
		fmt.Fprintf(&b, "⏸ Waiting for you: %s\n", d.Query)
	default:
		fmt.Fprintf(&b, "❌ Failed: %s\n", d.Query)
	}

	for i, s := range d.Steps {
		mark := "✓"
		if !s.Success {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%d. %s %s", i+1, mark, s.Description)
		if !s.Success && s.Result.Message != "" {
			fmt.Fprintf(&b, " (%s)", s.Result.Message)
		}
		b.WriteString("\n")
	}

	if n := len(d.Steps); n > 0 {
		data := d.Steps[n-1].Result.Data
		if summary, ok := data["aggregate_summary"].(string); ok && summary != "" {
			fmt.Fprintf(&b, "\n%s\n", summary)
		}
		if top, ok := data["top_results"].([]map[string]any); ok && len(top) > 0 {
			b.WriteString("\nTop results:\n")
			for i, r := range top {
				if i == maxReplyResults {
					break
				}
				fmt.Fprintf(&b, "• %v\n  %v\n", r["title"], r["url"])
			}
		}
		if solution, ok := data["solution"].(string); ok && solution != "" {
			fmt.Fprintf(&b, "\n%s\n", solution)
			if steps, ok := data["steps"].([]string); ok {
				for _, s := range steps {
					fmt.Fprintf(&b, "• %s\n", s)
				}
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
