package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// ScrapeTool fetches a page over plain HTTP and extracts its main content
// as sanitized text. For pages that need a live session, plans use the
// browser tool's 'content' action instead.
type ScrapeTool struct {
	UserAgent string
	Client    *http.Client
}

func NewScrapeTool() *ScrapeTool {
	return &ScrapeTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ScrapeTool) Name() string {
	return NameScrape
}

func (s *ScrapeTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *ScrapeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the webpage to scrape (e.g., https://example.com/article)",
			},
			"region": map[string]any{
				"type":        "string",
				"description": "Country/region code sent as Accept-Language hint",
			},
		},
		"required": []string{"url"},
	}
}

func (s *ScrapeTool) IsAvailable() bool {
	return true
}

func (s *ScrapeTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	target := strParam(params, "url")
	if target == "" {
		return Fail("url is required"), nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return Fail(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	req.Header.Set("User-Agent", s.UserAgent)
	if region := strParam(params, "region"); region != "" {
		req.Header.Set("Accept-Language", region)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Fail(fmt.Sprintf("failed to fetch URL: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fail(fmt.Sprintf("failed to fetch URL: status code %d", resp.StatusCode)), nil
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return Fail(fmt.Sprintf("failed to parse URL: %v", err)), nil
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Fail(fmt.Sprintf("failed to parse article: %v", err)), nil
	}

	// Strip any remaining markup or scripts
	p := bluemonday.StrictPolicy()
	content := p.Sanitize(article.TextContent)
	if len(content) > 50000 {
		content = content[:50000] + "\n... (content truncated) ..."
	}

	return OK(map[string]any{
		"data": map[string]any{
			"title":   article.Title,
			"excerpt": article.Excerpt,
			"content": content,
			"url":     target,
		},
	}), nil
}
