package agent

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// Prompt names, one markdown file each.
const (
	PromptPlanner   = "planner"
	PromptFallback  = "fallback"
	PromptKeyPoints = "key_points"
	PromptSummary   = "summary"
	PromptFixIssue  = "fix_issue"
)

// shared fragments are prepended to every prompt in this order
var sharedPrompts = []string{"identity.md", "guidelines.md"}

// PromptManager reads system prompts. Files in Directory take precedence
// over the built-in defaults, one file at a time.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) read(file string) (string, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, file))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt %s: %w", file, err)
		}
	}
	data, err := fs.ReadFile(defaultPrompts, "prompts/"+file)
	if err != nil {
		return "", fmt.Errorf("no prompt named %s: %w", file, err)
	}
	return string(data), nil
}

// Prompt returns the shared fragments followed by the named prompt.
func (pm *PromptManager) Prompt(name string) (string, error) {
	body, err := pm.read(name + ".md")
	if err != nil {
		return "", err
	}

	var contents []string
	for _, f := range sharedPrompts {
		if text, err := pm.read(f); err == nil && strings.TrimSpace(text) != "" {
			contents = append(contents, strings.TrimSpace(text))
		}
	}
	contents = append(contents, strings.TrimSpace(body))
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// PromptOrEmpty is Prompt without the error; an unknown or unreadable
// prompt yields "".
func (pm *PromptManager) PromptOrEmpty(name string) string {
	p, _ := pm.Prompt(name)
	return p
}
