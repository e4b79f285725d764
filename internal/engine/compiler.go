package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rahul/loom/internal/tools"
)

// FunctionInput is one named parameter of a compiled function.
type FunctionInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// CompiledFunction is a verified run distilled into a replayable artifact:
// the plan with its literals generalized into named inputs.
type CompiledFunction struct {
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Inputs           []FunctionInput `json:"inputs"`
	URLApplicability []string        `json:"urlApplicability,omitempty"`
	Plan             Plan            `json:"embeddedPlan"`
	Iterative        bool            `json:"iterative"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// FunctionLibrary persists compiled functions. Save must refuse to
// overwrite an existing name.
type FunctionLibrary interface {
	GetAll() (map[string]*CompiledFunction, error)
	Save(fn *CompiledFunction) error
}

// Compiler turns a successful, verification-passed plan into a compiled
// function. It only ever sees plans the pipeline already gated.
type Compiler struct {
	Library    FunctionLibrary
	NamePrefix string
}

const defaultNamePrefix = "Run"

// inputs the compiler may introduce
const (
	inputSemanticQuery  = "semanticQuery"
	inputExcludedTopics = "excludedTopics"
	inputRegion         = "regionPreference"
	inputMaxPasses      = "maxPasses"
)

var exclusionWords = []string{"ban", "exclude", "hide", "remove"}
var regionWords = []string{"country", "region", "locale", "geo"}
var quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'|“([^”]+)”`)

// Compile generalizes the plan's literals into inputs, derives a unique
// name from the task text, and persists the artifact.
func (c *Compiler) Compile(ctx context.Context, taskText string, plan *Plan) (*CompiledFunction, error) {
	existing := map[string]*CompiledFunction{}
	if c.Library != nil {
		all, err := c.Library.GetAll()
		if err != nil {
			return nil, fmt.Errorf("load function library: %w", err)
		}
		existing = all
	}

	fn := &CompiledFunction{
		Name:        uniqueName(c.baseName(taskText), existing),
		Description: strings.TrimSpace(taskText),
		Plan:        *plan.Clone(),
		CreatedAt:   time.Now(),
	}

	c.parameterize(taskText, fn)
	fn.URLApplicability = applicableHosts(&fn.Plan)

	if c.Library != nil {
		if err := c.Library.Save(fn); err != nil {
			return nil, fmt.Errorf("persist function %s: %w", fn.Name, err)
		}
	}
	return fn, nil
}

// baseName title-cases up to the first 8 alphanumeric words of the task.
func (c *Compiler) baseName(taskText string) string {
	prefix := c.NamePrefix
	if prefix == "" {
		prefix = defaultNamePrefix
	}
	var b strings.Builder
	b.WriteString(prefix)
	words := splitWords(taskText)
	if len(words) > 8 {
		words = words[:8]
	}
	for _, w := range words {
		b.WriteString(titleWord(w))
	}
	return b.String()
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func uniqueName(base string, existing map[string]*CompiledFunction) string {
	if _, taken := existing[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + strconv.Itoa(i)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

// parameterize rewrites the embedded plan's literals into input references
// and records the corresponding input declarations.
func (c *Compiler) parameterize(taskText string, fn *CompiledFunction) {
	lower := strings.ToLower(taskText)
	quoted := quotedStrings(taskText)

	topicInput := inputSemanticQuery
	topicDesc := "Semantic query to rank or search items by"
	if containsAny(lower, exclusionWords) {
		topicInput = inputExcludedTopics
		topicDesc = "Comma-separated topics to exclude or hide"
	}

	topicUsed := false
	for i := range fn.Plan.Steps {
		step := &fn.Plan.Steps[i]
		if step.ToolName != tools.NameRank || step.Params.Kind() != KindMap {
			continue
		}
		m := step.Params.MapVal()
		q, ok := m["query"]
		if !ok || q.Kind() != KindString || hasToken(parseTemplate(q.StringVal())) {
			continue
		}
		def := q.StringVal()
		if len(quoted) > 0 {
			def = strings.Join(quoted, ", ")
		}
		if !topicUsed {
			fn.Inputs = append(fn.Inputs, FunctionInput{
				Name:         topicInput,
				Type:         "string",
				Description:  topicDesc,
				DefaultValue: def,
			})
			topicUsed = true
		}
		m["query"] = String(tokenFor(topicInput))
		step.Params = Map(m)
	}

	if mentionsRegion(lower, &fn.Plan) {
		fn.Inputs = append(fn.Inputs, FunctionInput{
			Name:         inputRegion,
			Type:         "string",
			Description:  "Country/region code for scraping and automation",
			DefaultValue: "us",
		})
		for i := range fn.Plan.Steps {
			step := &fn.Plan.Steps[i]
			if step.ToolName != tools.NameScrape && step.ToolName != tools.NameBrowser {
				continue
			}
			if step.Params.Kind() != KindMap {
				continue
			}
			m := step.Params.MapVal()
			m["region"] = String(tokenFor(inputRegion))
			step.Params = Map(m)
		}
	}

	if fn.Plan.ContainsTool(tools.NameRank) && fn.Plan.ContainsTool(tools.NameMutate) {
		fn.Iterative = true
		fn.Inputs = append(fn.Inputs, FunctionInput{
			Name:         inputMaxPasses,
			Type:         "number",
			Description:  "Upper bound on full-sequence passes",
			DefaultValue: 5,
		})
	}

	// Keep inference instructions consistent with the topic input so a
	// caller overriding it changes classification too.
	if topicUsed {
		for i := range fn.Plan.Steps {
			step := &fn.Plan.Steps[i]
			if step.ToolName != tools.NameInfer || step.Params.Kind() != KindMap {
				continue
			}
			m := step.Params.MapVal()
			instr, ok := m["instruction"]
			if !ok || instr.Kind() != KindString {
				continue
			}
			text := instr.StringVal()
			if !strings.Contains(strings.ToLower(text), "topic") {
				continue
			}
			rewritten := text
			for _, q := range quoted {
				rewritten = strings.ReplaceAll(rewritten, q, tokenFor(topicInput))
			}
			if rewritten == text {
				rewritten = text + " Topics: " + tokenFor(topicInput)
			}
			m["instruction"] = String(rewritten)
			step.Params = Map(m)
		}
	}
}

func tokenFor(input string) string {
	return tokenOpen + "input:" + input + tokenClose
}

func quotedStrings(s string) []string {
	var out []string
	for _, match := range quotedRe.FindAllStringSubmatch(s, -1) {
		for _, group := range match[1:] {
			if group != "" {
				out = append(out, group)
			}
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func mentionsRegion(taskLower string, plan *Plan) bool {
	if containsAny(taskLower, regionWords) {
		return true
	}
	for _, step := range plan.Steps {
		text := strings.ToLower(step.Purpose + " " + step.ToolName + " " + step.Params.Text())
		if containsAny(text, regionWords) {
			return true
		}
	}
	return false
}

// applicableHosts collects the hosts the plan touches, for matching a
// function against a current page later.
func applicableHosts(plan *Plan) []string {
	seen := make(map[string]bool)
	var hosts []string
	for _, step := range plan.Steps {
		if step.Params.Kind() != KindMap {
			continue
		}
		u, ok := step.Params.MapVal()["url"]
		if !ok || u.Kind() != KindString {
			continue
		}
		parsed, err := url.Parse(u.StringVal())
		if err != nil || parsed.Host == "" {
			continue
		}
		if !seen[parsed.Host] {
			seen[parsed.Host] = true
			hosts = append(hosts, parsed.Host)
		}
	}
	return hosts
}
