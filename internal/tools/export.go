package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExportTool writes gathered data to a file in the run workspace as JSON or
// CSV. Paths are confined to the workspace root.
type ExportTool struct {
	Root string
}

func NewExportTool(root string) *ExportTool {
	absRoot, _ := filepath.Abs(root)
	return &ExportTool{Root: absRoot}
}

func (e *ExportTool) Name() string {
	return NameExport
}

func (e *ExportTool) Description() string {
	return "Save collected data to a workspace file as JSON or CSV."
}

func (e *ExportTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{
				"description": "The data to export",
			},
			"format": map[string]any{
				"type":        "string",
				"enum":        []string{"json", "csv"},
				"description": "Output format, default json",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target file name; a timestamped name is generated when omitted",
			},
		},
		"required": []string{"data"},
	}
}

func (e *ExportTool) IsAvailable() bool {
	return e.Root != ""
}

func (e *ExportTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	data, ok := params["data"]
	if !ok || data == nil {
		return Fail("data is required"), nil
	}

	format := strParam(params, "format")
	if format == "" {
		format = "json"
	}

	filename := strParam(params, "filename")
	if filename == "" {
		filename = fmt.Sprintf("export-%s.%s", time.Now().Format("20060102-150405"), format)
	}

	targetPath := filepath.Join(e.Root, filename)
	rel, err := filepath.Rel(e.Root, targetPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Fail(fmt.Sprintf("unsafe path attempt: %s", filename)), nil
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return Fail(fmt.Sprintf("failed to prepare workspace: %v", err)), nil
	}

	var size int
	switch format {
	case "json":
		size, err = writeJSON(targetPath, data)
	case "csv":
		size, err = writeCSV(targetPath, data)
	default:
		return Fail(fmt.Sprintf("unsupported format %q", format)), nil
	}
	if err != nil {
		return Fail(fmt.Sprintf("export failed: %v", err)), nil
	}

	return OK(map[string]any{
		"status":   "exported",
		"filename": filename,
		"path":     targetPath,
		"bytes":    size,
	}), nil
}

func writeJSON(path string, data any) (int, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return 0, err
	}
	return len(encoded), nil
}

// writeCSV flattens a list of uniform objects into rows; scalar lists become
// a single-column file.
func writeCSV(path string, data any) (int, error) {
	rows, ok := data.([]any)
	if !ok {
		rows = []any{data}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := csvHeaders(rows)
	if headers != nil {
		if err := w.Write(headers); err != nil {
			return 0, err
		}
		for _, row := range rows {
			m, _ := row.(map[string]any)
			record := make([]string, len(headers))
			for i, h := range headers {
				record[i] = textOf(m[h])
			}
			if err := w.Write(record); err != nil {
				return 0, err
			}
		}
	} else {
		for _, row := range rows {
			if err := w.Write([]string{textOf(row)}); err != nil {
				return 0, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, nil
	}
	return int(info.Size()), nil
}

func csvHeaders(rows []any) []string {
	keys := map[string]bool{}
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			return nil
		}
		for k := range m {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		return nil
	}
	headers := make([]string, 0, len(keys))
	for k := range keys {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}
