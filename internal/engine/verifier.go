package engine

import (
	"context"
	"strings"

	"github.com/rahul/loom/internal/observability"
	"github.com/rahul/loom/internal/tools"
)

// SuggestedFix is a corrective step proposed by the judge.
type SuggestedFix struct {
	Tool    string `json:"tool"`
	Purpose string `json:"purpose"`
	Params  Value  `json:"params"`
}

// UIAssessment is the judge's visual scoring of a generated UI, 0-10.
type UIAssessment struct {
	Score     *float64 `json:"score,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	Strengths []string `json:"strengths,omitempty"`
}

// Verdict is the judged assessment of a run's primary output.
type Verdict struct {
	Valid           bool           `json:"valid"`
	Issues          []string       `json:"issues,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	SuggestedFixes  []SuggestedFix `json:"suggestedFixes,omitempty"`
	UIAssessment    *UIAssessment  `json:"uiAssessment,omitempty"`
	Head100         string         `json:"head100,omitempty"`
	Tail100         string         `json:"tail100,omitempty"`
}

// JudgeRequest is what the verification oracle receives: excerpts rather
// than the full output, a per-step status summary, and a few screenshots.
type JudgeRequest struct {
	ExpectedOutput string
	OutputHead     string
	OutputTail     string
	OutputLength   int
	StepSummary    string
	Screenshots    [][]byte
}

// Judge is the external verification oracle.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (*Verdict, error)
}

// Verifier selects the run's primary output, packages it, and obtains a
// verdict from the judge.
type Verifier struct {
	Judge  Judge
	Logger *observability.Logger
}

// outputTools are the capabilities whose raw results count as run output.
var outputTools = []string{tools.NameReport, tools.NameExport, tools.NameMutate}

// RequiresStrictVerification reports whether a plan's final success must be
// gated on a valid verdict: only plans that actually produce output are.
func RequiresStrictVerification(plan *Plan) bool {
	return plan.ContainsTool(outputTools...)
}

// Verify judges a successful report against the plan's expected output.
func (v *Verifier) Verify(ctx context.Context, plan *Plan, report *Report, runID string) (*Verdict, error) {
	primary := PrimaryOutput(report)
	head, tail := excerpt(primary, 100)
	shots := selectScreenshots(report, 3)

	verdict, err := v.Judge.Judge(ctx, JudgeRequest{
		ExpectedOutput: plan.ExpectedOutput,
		OutputHead:     head,
		OutputTail:     tail,
		OutputLength:   len(primary),
		StepSummary:    report.Summary(),
		Screenshots:    shots,
	})
	if err != nil {
		return nil, err
	}
	verdict.Head100 = head
	verdict.Tail100 = tail

	applyUIRule(plan, verdict, len(shots))

	if v.Logger != nil {
		v.Logger.LogVerify(runID, verdict.Valid, verdict.Issues)
	}
	return verdict, nil
}

// applyUIRule forces a failed verdict for UI-producing plans whose visual
// evidence is missing or scored below 7.
func applyUIRule(plan *Plan, verdict *Verdict, screenshotCount int) {
	if !plan.ContainsTool(tools.NameReport) {
		return
	}
	forced := false
	if screenshotCount == 0 {
		verdict.Valid = false
		verdict.Issues = append(verdict.Issues, "no screenshots were captured for the generated UI; its state cannot be confirmed")
		forced = true
	}
	if verdict.UIAssessment != nil && verdict.UIAssessment.Score != nil && *verdict.UIAssessment.Score < 7 {
		verdict.Valid = false
		forced = true
	}
	if forced && !hasFixFor(verdict.SuggestedFixes, tools.NameReport) {
		verdict.SuggestedFixes = append(verdict.SuggestedFixes, SuggestedFix{
			Tool:    tools.NameReport,
			Purpose: "regenerate the report with the issues above addressed",
			Params:  Map(nil),
		})
	}
}

func hasFixFor(fixes []SuggestedFix, tool string) bool {
	for _, fix := range fixes {
		if fix.Tool == tool {
			return true
		}
	}
	return false
}

// PrimaryOutput picks the single value that represents what the run
// produced. The selection order is fixed:
//
//  1. newest successful step whose stored notepad value is substantive
//  2. newest successful output-producing step's raw result
//  3. highest-scoring notepad entry by key/length heuristics
//  4. last successful step's raw result
//  5. empty text
func PrimaryOutput(report *Report) string {
	// 1. stored values, newest first, skipping metadata-only objects
	for i := len(report.Results) - 1; i >= 0; i-- {
		res := report.Results[i]
		if !res.Success || res.StoreAs == "" {
			continue
		}
		v, ok := report.Notepad[res.StoreAs]
		if !ok {
			continue
		}
		text := v.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if v.Kind() == KindMap && isMetadataOnly(v) {
			continue
		}
		return text
	}

	// 2. raw result of the newest output-producing step
	for i := len(report.Results) - 1; i >= 0; i-- {
		res := report.Results[i]
		if !res.Success {
			continue
		}
		for _, name := range outputTools {
			if res.Tool == name {
				return FromAny(res.Result).Text()
			}
		}
	}

	// 3. best-scoring notepad entry; ties break on key order so the
	// choice is reproducible
	best, bestKey := "", ""
	bestScore := -1
	for key, v := range report.Notepad {
		text := v.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		score := scoreEntry(key, text)
		if score > bestScore || (score == bestScore && key < bestKey) {
			bestScore, bestKey, best = score, key, text
		}
	}
	if best != "" {
		return best
	}

	// 4. last successful step's raw result
	for i := len(report.Results) - 1; i >= 0; i-- {
		if report.Results[i].Success {
			return FromAny(report.Results[i].Result).Text()
		}
	}

	return ""
}

// metadataKeys are the fields that mark a stored object as bookkeeping
// rather than run output.
var metadataKeys = map[string]bool{
	"success": true, "tabId": true, "tab_id": true, "template": true,
	"templateType": true, "pageId": true, "page_id": true, "duration": true,
	"status": true, "message": true, "timestamp": true, "createdAt": true,
	"created_at": true,
}

var dataKeywords = []string{"price", "rating", "availability", "title", "summary", "comparison", "table"}

// isMetadataOnly judges a stored object: every key in the fixed metadata
// set, or a short stringification with no data-suggestive content.
func isMetadataOnly(v Value) bool {
	allMeta := true
	for _, key := range v.Keys() {
		if !metadataKeys[key] {
			allMeta = false
			break
		}
	}
	if allMeta {
		return true
	}
	text := strings.ToLower(v.Text())
	if len(text) >= 180 {
		return false
	}
	for _, kw := range dataKeywords {
		if strings.Contains(text, kw) {
			return false
		}
	}
	if strings.Contains(text, "[") {
		return false
	}
	return true
}

// scoreEntry ranks a notepad entry by how output-like its key and size are.
func scoreEntry(key, text string) int {
	k := strings.ToLower(key)
	score := 0
	switch {
	case strings.Contains(k, "markdown") || isMarkdownKey(k):
		score += 6
	case strings.Contains(k, "html") || strings.Contains(k, "page") ||
		strings.Contains(k, "report") || strings.Contains(k, "summary"):
		score += 5
	case strings.Contains(k, "content") || strings.Contains(k, "output") ||
		strings.Contains(k, "result") || strings.Contains(k, "export"):
		score += 4
	case strings.Contains(k, "data") || strings.Contains(k, "rows") ||
		strings.Contains(k, "items") || strings.Contains(k, "list"):
		score += 2
	}
	lengthScore := len(text) / 800
	if lengthScore > 5 {
		lengthScore = 5
	}
	return score + lengthScore
}

// isMarkdownKey matches "md" only as a standalone segment, so keys like
// "command" or "removed" do not score as markdown.
func isMarkdownKey(k string) bool {
	return k == "md" || strings.HasSuffix(k, "_md") || strings.HasSuffix(k, "-md") ||
		strings.HasSuffix(k, ".md")
}

// selectScreenshots picks up to max screenshots: up to two from the
// UI-generating step first, then the most recent captures, de-duplicated.
func selectScreenshots(report *Report, max int) [][]byte {
	var chosen [][]byte
	seen := make(map[*Screenshot]bool)

	uiTaken := 0
	for i := range report.Screenshots {
		shot := &report.Screenshots[i]
		if shot.Tool == tools.NameReport && uiTaken < 2 {
			chosen = append(chosen, shot.Data)
			seen[shot] = true
			uiTaken++
		}
	}
	for i := len(report.Screenshots) - 1; i >= 0 && len(chosen) < max; i-- {
		shot := &report.Screenshots[i]
		if seen[shot] {
			continue
		}
		chosen = append(chosen, shot.Data)
		seen[shot] = true
	}
	return chosen
}

func excerpt(s string, n int) (head, tail string) {
	runes := []rune(s)
	if len(runes) <= n {
		return s, s
	}
	return string(runes[:n]), string(runes[len(runes)-n:])
}
