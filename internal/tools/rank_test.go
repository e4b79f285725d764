package tools

import (
	"context"
	"testing"
)

func TestRankTool_LexicalFallbackOrdering(t *testing.T) {
	tool := NewRankTool(nil)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "celebrity gossip news",
		"items": []any{
			"quarterly earnings report",
			"celebrity gossip roundup",
			"gossip about the news anchor",
		},
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Failed() {
		t.Fatalf("Rank failed: %s", res.Error)
	}

	results, ok := res.Payload().([]any)
	if !ok || len(results) != 3 {
		t.Fatalf("Unexpected payload: %v", res.Payload())
	}
	top := results[0].(map[string]any)
	if top["item"] != "celebrity gossip roundup" {
		t.Errorf("Top item = %v", top["item"])
	}
	bottom := results[2].(map[string]any)
	if bottom["item"] != "quarterly earnings report" {
		t.Errorf("Bottom item = %v", bottom["item"])
	}
}

func TestRankTool_Limit(t *testing.T) {
	tool := NewRankTool(nil)
	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "a",
		"items": []any{"a one", "a two", "b three"},
		"limit": float64(2),
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	results := res.Payload().([]any)
	if len(results) != 2 {
		t.Errorf("Limit ignored: got %d results", len(results))
	}
}
