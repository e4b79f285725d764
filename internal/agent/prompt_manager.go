package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PromptManager assembles oracle prompts from a directory of markdown
// files, so operators can tune planner and judge behavior without a
// rebuild.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetPlannerPrompt concatenates every prompt file except the judge's, in a
// deterministic order: identity first, then tool guidance, then the
// planner directive, then anything else alphabetically.
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %v", err)
	}

	var contents []string

	order := map[string]int{
		"identity.md": 1,
		"tools.md":    2,
		"planner.md":  3,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".md") && f.Name() != "judge.md" {
			path := filepath.Join(pm.Directory, f.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
				continue
			}
			contents = append(contents, string(data))
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) GetJudgePrompt() (string, error) {
	path := filepath.Join(pm.Directory, "judge.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read judge prompt: %v", err)
	}
	return string(data), nil
}
