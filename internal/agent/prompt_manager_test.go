package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager("")

	for _, name := range []string{PromptPlanner, PromptFallback, PromptKeyPoints, PromptSummary, PromptFixIssue} {
		prompt, err := pm.Prompt(name)
		if err != nil {
			t.Fatalf("prompt %s: %v", name, err)
		}
		if !strings.Contains(prompt, "You are Scout") {
			t.Errorf("prompt %s is missing the identity preamble", name)
		}
	}

	if _, err := pm.Prompt("missing"); err == nil {
		t.Error("expected an error for an unknown prompt")
	}
	if p := pm.PromptOrEmpty("missing"); p != "" {
		t.Errorf("expected an empty prompt, got %q", p)
	}
	if p := pm.PromptOrEmpty(PromptSummary); !strings.Contains(p, "You are Scout") {
		t.Error("PromptOrEmpty should return built-in prompts")
	}
}

func TestPromptManager_DirectoryOverrides(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md": "Identity Content",
		"planner.md":  "Planner Content",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.Prompt(PromptPlanner)
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{"Identity Content", "Planner Content", "Never attempt to solve"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}

	// Verify order
	if strings.Index(prompt, "Identity Content") >= strings.Index(prompt, "Never attempt to solve") {
		t.Error("Identity should be before guidelines")
	}
	if strings.Index(prompt, "Never attempt to solve") >= strings.Index(prompt, "Planner Content") {
		t.Error("Guidelines should be before the planner prompt")
	}

	fallback, err := pm.Prompt(PromptFallback)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fallback, "site_scoped_search") {
		t.Error("fallback prompt should come from the built-in defaults")
	}
}
