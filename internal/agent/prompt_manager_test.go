package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePrompts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPromptManager_GetPlannerPrompt(t *testing.T) {
	dir := writePrompts(t, map[string]string{
		"identity.md": "Identity Content",
		"tools.md":    "Tools Content",
		"planner.md":  "Planner Content",
		"extra.md":    "Extra Content",
		"judge.md":    "Judge Content",
	})

	pm := NewPromptManager(dir)
	prompt, err := pm.GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}

	expectedParts := []string{
		"Identity Content",
		"Tools Content",
		"Planner Content",
		"Extra Content",
	}
	for _, part := range expectedParts {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}

	if strings.Contains(prompt, "Judge Content") {
		t.Error("Planner prompt must not include the judge prompt")
	}

	// Verify order
	if strings.Index(prompt, "Identity Content") >= strings.Index(prompt, "Tools Content") {
		t.Error("Identity should be before Tools")
	}
	if strings.Index(prompt, "Tools Content") >= strings.Index(prompt, "Planner Content") {
		t.Error("Tools should be before Planner")
	}
	if strings.Index(prompt, "Planner Content") >= strings.Index(prompt, "Extra Content") {
		t.Error("Planner should be before alphabetical extras")
	}
}

func TestPromptManager_GetJudgePrompt(t *testing.T) {
	dir := writePrompts(t, map[string]string{
		"identity.md": "Identity Content",
		"judge.md":    "Judge Content",
	})

	pm := NewPromptManager(dir)
	prompt, err := pm.GetJudgePrompt()
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "Judge Content" {
		t.Errorf("Judge prompt = %q", prompt)
	}
}

func TestPromptManager_EmptyDirectory(t *testing.T) {
	pm := NewPromptManager(t.TempDir())
	if _, err := pm.GetPlannerPrompt(); err == nil {
		t.Error("Expected error for empty prompts directory")
	}
	if _, err := pm.GetJudgePrompt(); err == nil {
		t.Error("Expected error for missing judge prompt")
	}
}
