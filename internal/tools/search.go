package tools

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// SearchTool answers "find me pages about X" steps with live web results.
type SearchTool struct {
	client *duckduckgo.Tool
}

func NewSearchTool() (*SearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg}, nil
}

func (s *SearchTool) Name() string {
	return NameSearch
}

func (s *SearchTool) Description() string {
	return "Search the web using DuckDuckGo for real-time information."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) IsAvailable() bool {
	return s.client != nil
}

func (s *SearchTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	query := strParam(params, "query")
	if query == "" {
		return Fail("query is required"), nil
	}

	res, err := s.client.Call(ctx, query)
	if err != nil {
		return Fail(fmt.Sprintf("search failed: %v", err)), nil
	}
	return OK(map[string]any{"data": res}), nil
}
