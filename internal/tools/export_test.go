package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportTool_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	tool := NewExportTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"data":     []any{map[string]any{"title": "a", "price": 9.5}},
		"filename": "items.json",
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Failed() {
		t.Fatalf("Export failed: %s", res.Error)
	}

	data, err := os.ReadFile(filepath.Join(dir, "items.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded []any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Exported file is not valid JSON: %v", err)
	}
	if len(decoded) != 1 {
		t.Errorf("Decoded %d rows, expected 1", len(decoded))
	}
}

func TestExportTool_WritesCSVWithHeaders(t *testing.T) {
	dir := t.TempDir()
	tool := NewExportTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"data": []any{
			map[string]any{"title": "a", "price": 9.5},
			map[string]any{"title": "b", "price": 12.0},
		},
		"format":   "csv",
		"filename": "items.csv",
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Failed() {
		t.Fatalf("Export failed: %s", res.Error)
	}

	data, err := os.ReadFile(filepath.Join(dir, "items.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("CSV has %d lines, expected header + 2 rows", len(lines))
	}
	if lines[0] != "price,title" {
		t.Errorf("Header = %q, expected sorted columns", lines[0])
	}
}

func TestExportTool_RefusesPathEscape(t *testing.T) {
	tool := NewExportTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{
		"data":     "x",
		"filename": "../outside.json",
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Failed() {
		t.Fatal("Path escape must fail the call")
	}
	if !strings.Contains(res.Error, "unsafe path") {
		t.Errorf("Unexpected error: %s", res.Error)
	}
}

func TestReportTool_RendersSanitizedHTML(t *testing.T) {
	dir := t.TempDir()
	tool := NewReportTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"title": "Weekly Summary",
		"sections": []any{
			"Plain intro text",
			map[string]any{"heading": "Findings", "body": `fine <script>alert(1)</script> text`},
		},
		"table": []any{
			map[string]any{"item": "a", "score": 0.9},
		},
		"filename": "summary.html",
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Failed() {
		t.Fatalf("Report failed: %s", res.Error)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.html"))
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	if !strings.Contains(html, "Weekly Summary") || !strings.Contains(html, "Findings") {
		t.Error("Report missing title or section heading")
	}
	if strings.Contains(html, "<script>") {
		t.Error("Script tags must be sanitized out")
	}
	if !strings.Contains(html, "<table>") {
		t.Error("Table rows were not rendered")
	}
}
