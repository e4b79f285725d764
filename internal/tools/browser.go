package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// DefaultActionLimit bounds browser actions within one run so a looping
// plan cannot drive the browser forever.
const DefaultActionLimit = 100

// BrowserTool drives a real browser. The browser stays open across steps;
// every action draws from a per-run budget, and exhausting it is a fatal
// failure for the whole chain.
type BrowserTool struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	Headless    bool
	ActionLimit int
	actionsUsed int
}

func NewBrowserTool(headless bool, actionLimit int) *BrowserTool {
	if actionLimit <= 0 {
		actionLimit = DefaultActionLimit
	}
	return &BrowserTool{Headless: headless, ActionLimit: actionLimit}
}

func (b *BrowserTool) Name() string {
	return NameBrowser
}

func (b *BrowserTool) Description() string {
	return "Control a browser to interact with websites. Actions: 'navigate', 'click', 'content', 'type', 'press', 'scroll', 'wait', 'back', 'reload', 'close'."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"navigate", "click", "content", "type", "press",
					"scroll", "wait", "back", "reload", "close",
				},
				"description": "The action to perform.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to navigate to (required for 'navigate')",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the target element (required for 'click', 'type', 'press', 'scroll', 'wait')",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to type or key to press (required for 'type', 'press')",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Time to wait in seconds (used with 'wait')",
			},
			"region": map[string]any{
				"type":        "string",
				"description": "Country/region code to localize the session",
			},
		},
		"required": []string{"action"},
	}
}

func (b *BrowserTool) IsAvailable() bool {
	return true
}

// ResetBudget restores the full action budget for a new run.
func (b *BrowserTool) ResetBudget() {
	b.mu.Lock()
	b.actionsUsed = 0
	b.mu.Unlock()
}

func (b *BrowserTool) initBrowser(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserTool) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

func (b *BrowserTool) spendAction() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.actionsUsed >= b.ActionLimit {
		return &BudgetError{Limit: b.ActionLimit}
	}
	b.actionsUsed++
	return nil
}

func (b *BrowserTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	action := strParam(params, "action")

	if action == "close" {
		b.mu.Lock()
		b.cleanup()
		b.mu.Unlock()
		return OK("browser closed"), nil
	}

	if err := b.spendAction(); err != nil {
		return Result{}, err
	}

	if err := b.initBrowser(ctx); err != nil {
		return Result{}, &Error{Message: fmt.Sprintf("failed to initialize browser: %v", err), Recoverable: false}
	}

	actionCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	selector := strParam(params, "selector")
	text := strParam(params, "text")

	var result any
	var err error

	switch action {
	case "navigate":
		url := strParam(params, "url")
		if url == "" {
			return Fail("url is required for 'navigate'"), nil
		}
		err = chromedp.Run(actionCtx, chromedp.Navigate(url))
		result = map[string]any{"status": "navigated", "url": url}

	case "content":
		var html string
		err = chromedp.Run(actionCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				node, err := dom.GetDocument().Do(ctx)
				if err != nil {
					return err
				}
				html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
				return err
			}),
		)
		if len(html) > 50000 {
			html = html[:50000] + "\n... (truncated)"
		}
		result = map[string]any{"data": html}

	case "click":
		if selector == "" {
			return Fail("selector required for 'click'"), nil
		}
		err = chromedp.Run(actionCtx, chromedp.Click(selector, chromedp.ByQuery))
		result = map[string]any{"status": "clicked", "selector": selector}

	case "type":
		if selector == "" || text == "" {
			return Fail("selector and text required for 'type'"), nil
		}
		err = chromedp.Run(actionCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
		result = map[string]any{"status": "typed", "selector": selector}

	case "press":
		if text == "" {
			return Fail("text (key) required for 'press'"), nil
		}
		err = chromedp.Run(actionCtx, chromedp.KeyEvent(text))
		result = map[string]any{"status": "pressed", "key": text}

	case "scroll":
		if selector != "" {
			err = chromedp.Run(actionCtx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
		} else {
			err = chromedp.Run(actionCtx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
		}
		result = map[string]any{"status": "scrolled"}

	case "wait":
		if selector != "" {
			err = chromedp.Run(actionCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
		} else if secs := int(numParam(params, "wait_seconds", 0)); secs > 0 {
			select {
			case <-time.After(time.Duration(secs) * time.Second):
			case <-actionCtx.Done():
				err = actionCtx.Err()
			}
		}
		result = map[string]any{"status": "waited"}

	case "back":
		err = chromedp.Run(actionCtx, chromedp.NavigateBack())
		result = map[string]any{"status": "navigated back"}

	case "reload":
		err = chromedp.Run(actionCtx, chromedp.Reload())
		result = map[string]any{"status": "reloaded"}

	default:
		return Fail(fmt.Sprintf("invalid action %q", action)), nil
	}

	if err != nil {
		return Fail(fmt.Sprintf("browser action failed: %v", err)), nil
	}

	return OK(result), nil
}

// CaptureSnapshot implements the engine's snapshot hook: a best-effort
// screenshot of the current tab. It consumes no action budget.
func (b *BrowserTool) CaptureSnapshot(ctx context.Context, handle string) ([]byte, error) {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("no browser session")
	}

	captureCtx, cancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}
