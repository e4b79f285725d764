package tools

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// ReportTool renders gathered data as an HTML page in the workspace. This is
// the user-facing surface of a run, so its output is what the verdict's UI
// assessment looks at.
type ReportTool struct {
	Root     string
	sanitize *bluemonday.Policy
}

func NewReportTool(root string) *ReportTool {
	absRoot, _ := filepath.Abs(root)
	return &ReportTool{Root: absRoot, sanitize: bluemonday.UGCPolicy()}
}

func (r *ReportTool) Name() string {
	return NameReport
}

func (r *ReportTool) Description() string {
	return "Generate an HTML report page from collected data: a title, sections of text, and optional tabular data."
}

func (r *ReportTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Report heading",
			},
			"sections": map[string]any{
				"type":        "array",
				"description": "Content blocks; strings or {heading, body} objects",
			},
			"table": map[string]any{
				"type":        "array",
				"description": "Optional rows of uniform objects rendered as a table",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target file name; a timestamped name is generated when omitted",
			},
		},
		"required": []string{"title"},
	}
}

func (r *ReportTool) IsAvailable() bool {
	return r.Root != ""
}

type reportSection struct {
	Heading string
	Body    template.HTML
}

type reportModel struct {
	Title     string
	Generated string
	Sections  []reportSection
	Headers   []string
	Rows      [][]string
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem auto; max-width: 860px; color: #1a1a2e; }
h1 { border-bottom: 2px solid #4361ee; padding-bottom: .4rem; }
h2 { color: #4361ee; margin-top: 1.6rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #d0d0e0; padding: .45rem .7rem; text-align: left; }
th { background: #eef1fb; }
footer { margin-top: 2rem; color: #888; font-size: .8rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}{{if .Heading}}<h2>{{.Heading}}</h2>{{end}}<p>{{.Body}}</p>
{{end}}{{if .Headers}}<table><thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody></table>{{end}}
<footer>Generated {{.Generated}}</footer>
</body>
</html>
`))

func (r *ReportTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	title := strParam(params, "title")
	if title == "" {
		return Fail("title is required"), nil
	}

	model := reportModel{
		Title:     title,
		Generated: time.Now().Format("2006-01-02 15:04"),
	}

	for _, raw := range listParam(params, "sections") {
		switch s := raw.(type) {
		case string:
			model.Sections = append(model.Sections, reportSection{
				Body: template.HTML(r.sanitize.Sanitize(s)),
			})
		case map[string]any:
			model.Sections = append(model.Sections, reportSection{
				Heading: strParam(s, "heading"),
				Body:    template.HTML(r.sanitize.Sanitize(textOf(s["body"]))),
			})
		default:
			model.Sections = append(model.Sections, reportSection{
				Body: template.HTML(r.sanitize.Sanitize(textOf(raw))),
			})
		}
	}

	if rows := listParam(params, "table"); len(rows) > 0 {
		model.Headers = csvHeaders(rows)
		for _, raw := range rows {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			record := make([]string, len(model.Headers))
			for i, h := range model.Headers {
				record[i] = textOf(m[h])
			}
			model.Rows = append(model.Rows, record)
		}
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, model); err != nil {
		return Fail(fmt.Sprintf("failed to render report: %v", err)), nil
	}

	filename := strParam(params, "filename")
	if filename == "" {
		filename = fmt.Sprintf("report-%s.html", time.Now().Format("20060102-150405"))
	}
	targetPath := filepath.Join(r.Root, filename)
	rel, err := filepath.Rel(r.Root, targetPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Fail(fmt.Sprintf("unsafe path attempt: %s", filename)), nil
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return Fail(fmt.Sprintf("failed to prepare workspace: %v", err)), nil
	}
	if err := os.WriteFile(targetPath, buf.Bytes(), 0644); err != nil {
		return Fail(fmt.Sprintf("failed to write report: %v", err)), nil
	}

	return OK(map[string]any{
		"status":   "generated",
		"filename": filename,
		"path":     targetPath,
		"bytes":    buf.Len(),
	}), nil
}
