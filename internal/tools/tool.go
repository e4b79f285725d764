package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Canonical tool names. The engine keys its failure-handling policy on
// these, so they are constants rather than free strings.
const (
	NameBrowser = "browser"
	NameScrape  = "scrape"
	NameInfer   = "infer"
	NameLLM     = "llm"
	NameRank    = "rank"
	NameSearch  = "search"
	NameExport  = "export"
	NameReport  = "report"
	NameMutate  = "mutate"
)

// RunContext carries the per-run identity a tool may need: the controlled
// tab, the caller's credential, and the workspace for file-producing tools.
type RunContext struct {
	RunID      string
	TabHandle  string
	Credential string
	Workspace  string
}

// Result is what a tool hands back on a structurally completed call. Success
// is a three-state flag: nil means "no opinion" and counts as success.
type Result struct {
	Success *bool  `json:"success,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Result {
	ok := true
	return Result{Success: &ok, Data: data}
}

func Fail(msg string) Result {
	ok := false
	return Result{Success: &ok, Error: msg}
}

// Failed reports whether the result carries an explicit failure flag.
func (r Result) Failed() bool {
	return r.Success != nil && !*r.Success
}

// Payload extracts the value a chain step should store: tools historically
// wrap their payload under data/result/results, and callers want the
// innermost value.
func (r Result) Payload() any {
	m, ok := r.Data.(map[string]any)
	if !ok {
		return r.Data
	}
	for _, key := range []string{"data", "result", "results"} {
		if v, present := m[key]; present {
			return v
		}
	}
	return r.Data
}

// Error is a tool failure that tells the engine whether substituting another
// capability could help. Tools that know their failure mode should return
// this instead of a bare error.
type Error struct {
	Message     string
	Recoverable bool
}

func (e *Error) Error() string { return e.Message }

// BudgetError signals that the browser tool exhausted its per-invocation
// action budget. The engine treats it as fatal for the whole run.
type BudgetError struct {
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("action limit exceeded (%d actions)", e.Limit)
}

// Tool is the interface every capability implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	IsAvailable() bool
	Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error)
}

// Registry manages the set of available tools.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary renders one line per tool for the planning oracle.
func (r *Registry) Summary() string {
	var lines []string
	for _, name := range r.Names() {
		t := r.tools[name]
		state := ""
		if !t.IsAvailable() {
			state = " (currently unavailable)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s%s", t.Name(), t.Description(), state))
	}
	return strings.Join(lines, "\n")
}
