package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// MutateTool edits the live page in place: hiding or removing elements
// matched by a CSS selector, optionally narrowed to specific match indices.
// It shares the browser session and its action budget, since every mutation
// is a browser action like any other.
type MutateTool struct {
	Browser *BrowserTool
}

func NewMutateTool(browser *BrowserTool) *MutateTool {
	return &MutateTool{Browser: browser}
}

func (m *MutateTool) Name() string {
	return NameMutate
}

func (m *MutateTool) Description() string {
	return "Modify the current page: 'hide' or 'remove' elements matching a CSS selector, optionally limited to specific match indices."
}

func (m *MutateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"hide", "remove"},
				"description": "What to do with the matched elements",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the elements to modify",
			},
			"indices": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Zero-based match indices to act on; all matches when omitted",
			},
		},
		"required": []string{"action", "selector"},
	}
}

func (m *MutateTool) IsAvailable() bool {
	return m.Browser != nil
}

func (m *MutateTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	action := strParam(params, "action")
	if action != "hide" && action != "remove" {
		return Fail(fmt.Sprintf("invalid action %q", action)), nil
	}
	selector := strParam(params, "selector")
	if selector == "" {
		return Fail("selector is required"), nil
	}

	if err := m.Browser.spendAction(); err != nil {
		return Result{}, err
	}
	if err := m.Browser.initBrowser(ctx); err != nil {
		return Result{}, &Error{Message: fmt.Sprintf("failed to initialize browser: %v", err), Recoverable: false}
	}

	var indices []int
	for _, raw := range listParam(params, "indices") {
		switch n := raw.(type) {
		case float64:
			indices = append(indices, int(n))
		case int:
			indices = append(indices, n)
		}
	}

	script, err := mutateScript(action, selector, indices)
	if err != nil {
		return Fail(err.Error()), nil
	}

	m.Browser.mu.Lock()
	browserCtx := m.Browser.browserCtx
	m.Browser.mu.Unlock()

	actionCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var removed int
	if err := chromedp.Run(actionCtx, chromedp.Evaluate(script, &removed)); err != nil {
		return Fail(fmt.Sprintf("mutation failed: %v", err)), nil
	}

	return OK(map[string]any{
		"status":   action,
		"selector": selector,
		"removed":  removed,
	}), nil
}

// mutateScript builds a page-side function that hides or removes the
// matched elements and reports how many it touched.
func mutateScript(action, selector string, indices []int) (string, error) {
	selJSON, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("invalid selector: %v", err)
	}
	idxJSON, err := json.Marshal(indices)
	if err != nil {
		return "", fmt.Errorf("invalid indices: %v", err)
	}

	var apply string
	if action == "hide" {
		apply = `el.style.display = "none";`
	} else {
		apply = `el.remove();`
	}

	return fmt.Sprintf(`(function() {
	const nodes = Array.from(document.querySelectorAll(%s));
	const indices = %s;
	const targets = (indices && indices.length > 0)
		? indices.filter(i => i >= 0 && i < nodes.length).map(i => nodes[i])
		: nodes;
	let count = 0;
	for (const el of targets) {
		%s
		count++;
	}
	return count;
})()`, selJSON, idxJSON, apply), nil
}
