package engine

import (
	"fmt"
	"strings"
)

// Step is one tool invocation in a plan. String leaves of Params may carry
// template tokens (see template.go).
type Step struct {
	StepNumber int    `json:"stepNumber"`
	ToolName   string `json:"toolName"`
	Purpose    string `json:"purpose"`
	Params     Value  `json:"params"`
	StoreAs    string `json:"storeAs,omitempty"`
}

// Plan is an ordered list of steps plus a description of what the run
// should produce. A plan is immutable once execution starts; repair always
// produces a brand-new plan.
type Plan struct {
	Steps          []Step `json:"steps"`
	ExpectedOutput string `json:"expectedOutput"`
}

// Validate enforces the structural invariants: at least one step, step
// numbers contiguous from 1, and a tool name on every step.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, step := range p.Steps {
		if step.StepNumber != i+1 {
			return fmt.Errorf("step numbers must be contiguous from 1: position %d has stepNumber %d", i+1, step.StepNumber)
		}
		if strings.TrimSpace(step.ToolName) == "" {
			return fmt.Errorf("step %d has no tool name", step.StepNumber)
		}
	}
	return nil
}

// ContainsTool reports whether any step dispatches one of the given tools.
func (p *Plan) ContainsTool(names ...string) bool {
	for _, step := range p.Steps {
		for _, name := range names {
			if step.ToolName == name {
				return true
			}
		}
	}
	return false
}

// Clone deep-copies the plan so the compiler can rewrite parameters without
// touching the executed original.
func (p *Plan) Clone() *Plan {
	out := &Plan{ExpectedOutput: p.ExpectedOutput, Steps: make([]Step, len(p.Steps))}
	for i, step := range p.Steps {
		step.Params = step.Params.Clone()
		out.Steps[i] = step
	}
	return out
}

// StepResult records one step's outcome.
type StepResult struct {
	Step    int    `json:"step"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	StoreAs string `json:"storeAs,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Screenshot is a best-effort capture of the controlled surface taken after
// a step.
type Screenshot struct {
	Step    int    `json:"step"`
	Tool    string `json:"tool"`
	Failure bool   `json:"failure"`
	Data    []byte `json:"-"`
}

// Report is the ledger of one chain execution.
type Report struct {
	Results     []StepResult     `json:"steps"`
	Screenshots []Screenshot     `json:"screenshots,omitempty"`
	Notepad     map[string]Value `json:"notepad"`
	Success     bool             `json:"success"`
	Aborted     bool             `json:"aborted,omitempty"`
	AbortReason string           `json:"abortReason,omitempty"`
}

// Summary renders one line per step for the verification oracle.
func (r *Report) Summary() string {
	var lines []string
	for _, res := range r.Results {
		status := "ok"
		if !res.Success {
			status = "failed: " + res.Error
		}
		stored := ""
		if res.StoreAs != "" {
			stored = " -> " + res.StoreAs
		}
		lines = append(lines, fmt.Sprintf("step %d [%s]%s: %s", res.Step, res.Tool, stored, status))
	}
	return strings.Join(lines, "\n")
}
