package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rahul/loom/internal/observability"
	"github.com/rahul/loom/internal/tools"
)

// FailureContext is what a failed verdict feeds back to the planning oracle
// for the corrected plan.
type FailureContext struct {
	Issues         []string       `json:"issues,omitempty"`
	OutputHead     string         `json:"outputHead,omitempty"`
	OutputTail     string         `json:"outputTail,omitempty"`
	PriorTools     []string       `json:"priorTools,omitempty"`
	SuggestedFixes []SuggestedFix `json:"suggestedFixes,omitempty"`
	UIAssessment   *UIAssessment  `json:"uiAssessment,omitempty"`
}

// Planner is the external planning oracle.
type Planner interface {
	Plan(ctx context.Context, taskText, toolSummary, currentURL string, failure *FailureContext) (*Plan, error)
}

// maxRepairAttempts bounds re-planning after failed verdicts.
const maxRepairAttempts = 2

// PipelineOptions carries the optional per-run inputs of the entry point.
type PipelineOptions struct {
	TabHandle  string
	CurrentURL string
}

// RunResult is the full ledger the entry point returns. Success is false
// for every non-fatal failure kind; only planning failure and user abort
// surface as errors.
type RunResult struct {
	Success        bool              `json:"success"`
	Plan           *Plan             `json:"plan"`
	ExpectedOutput string            `json:"expectedOutput"`
	Report         *Report           `json:"steps"`
	Verification   *Verdict          `json:"verification,omitempty"`
	SavedFunction  *CompiledFunction `json:"savedFunction,omitempty"`
	FailureKind    string            `json:"failureKind,omitempty"`
	Attempts       int               `json:"attempts"`
}

// Pipeline wires planning, execution, verification, repair and compilation
// into one run. All collaborators are explicit instances: two pipelines
// never share run state.
type Pipeline struct {
	Planner   Planner
	Engine    *Engine
	Verifier  *Verifier
	Compiler  *Compiler
	Logger    *observability.Logger
	Workspace string
}

// Run carries a natural-language task through plan, execute, verify, and
// bounded repair, compiling a reusable function when the run passes.
func (p *Pipeline) Run(ctx context.Context, taskText, credential string, opts PipelineOptions) (*RunResult, error) {
	if strings.TrimSpace(taskText) == "" {
		return nil, fmt.Errorf("%w: empty task", ErrNoPlan)
	}

	run := &tools.RunContext{
		RunID:      uuid.NewString(),
		TabHandle:  opts.TabHandle,
		Credential: credential,
		Workspace:  p.Workspace,
	}

	// One notepad per run: repair attempts see earlier attempts' writes.
	notepad := NewNotepad()

	observability.SetPhase(observability.PhasePlanning, taskText, 1)
	plan, err := p.requestPlan(ctx, taskText, opts.CurrentURL, nil, run.RunID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Plan: plan, ExpectedOutput: plan.ExpectedOutput}
	repairs := 0

	for {
		result.Attempts++
		if p.Logger != nil {
			p.Logger.LogPlan(run.RunID, result.Attempts, len(plan.Steps), plan.ExpectedOutput)
		}

		observability.SetPhase(observability.PhaseExecuting, taskText, result.Attempts)
		report, err := p.Engine.ExecuteChain(ctx, plan, notepad, run)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
		}
		result.Plan = plan
		result.ExpectedOutput = plan.ExpectedOutput
		result.Report = report

		if !report.Success {
			if report.Aborted {
				result.FailureKind = "aborted:" + report.AbortReason
			} else {
				result.FailureKind = "step-failure"
			}
			return result, nil
		}

		observability.SetPhase(observability.PhaseVerifying, taskText, result.Attempts)
		verdict := p.verify(ctx, plan, report, run.RunID)
		result.Verification = verdict

		strict := RequiresStrictVerification(plan)
		if verdict == nil || verdict.Valid || !strict {
			result.Success = true
			result.FailureKind = ""
			observability.SetPhase(observability.PhaseCompiling, taskText, result.Attempts)
			p.compile(ctx, taskText, plan, result, run.RunID)
			return result, nil
		}

		if repairs >= maxRepairAttempts {
			result.FailureKind = "repair-exhausted"
			return result, nil
		}

		failure := &FailureContext{
			Issues:         verdict.Issues,
			OutputHead:     verdict.Head100,
			OutputTail:     verdict.Tail100,
			PriorTools:     toolSequence(plan),
			SuggestedFixes: verdict.SuggestedFixes,
			UIAssessment:   verdict.UIAssessment,
		}
		repairs++
		observability.SetPhase(observability.PhaseRepairing, taskText, repairs)
		if p.Logger != nil {
			p.Logger.LogRepair(run.RunID, repairs, verdict.Issues)
		}

		repaired, err := p.requestPlan(ctx, taskText, opts.CurrentURL, failure, run.RunID)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return nil, err
			}
			result.FailureKind = "verification-failed"
			return result, nil
		}
		plan = repaired
	}
}

func (p *Pipeline) requestPlan(ctx context.Context, taskText, currentURL string, failure *FailureContext, runID string) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStopped, err)
	}
	summary := ""
	if p.Engine != nil && p.Engine.Registry != nil {
		summary = p.Engine.Registry.Summary()
	}
	plan, err := p.Planner.Plan(ctx, taskText, summary, currentURL, failure)
	if err != nil {
		// A cancellation arriving mid-call is a user abort, not a
		// planning failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStopped, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}
	if plan == nil || len(plan.Steps) == 0 {
		return nil, ErrNoPlan
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}
	if p.Logger != nil {
		if err := plan.ValidateReferences(); err != nil {
			// Dangling references degrade to literal pass-through at
			// resolution time, so this is diagnostic only.
			p.Logger.Log(observability.Event{
				Type:  observability.EventTypePlan,
				RunID: runID,
				Data:  map[string]string{"warning": err.Error()},
			})
		}
	}
	return plan, nil
}

// verify runs the judge when one is wired. Verification failures of the
// transport kind are swallowed into a nil verdict: a plan with no
// output-producing step still passes, and a strict plan fails closed later.
func (p *Pipeline) verify(ctx context.Context, plan *Plan, report *Report, runID string) *Verdict {
	if p.Verifier == nil || p.Verifier.Judge == nil {
		return nil
	}
	verdict, err := p.Verifier.Verify(ctx, plan, report, runID)
	if err != nil {
		if RequiresStrictVerification(plan) {
			return &Verdict{Valid: false, Issues: []string{"verification oracle unreachable: " + err.Error()}}
		}
		return nil
	}
	return verdict
}

func (p *Pipeline) compile(ctx context.Context, taskText string, plan *Plan, result *RunResult, runID string) {
	if p.Compiler == nil {
		return
	}
	fn, err := p.Compiler.Compile(ctx, taskText, plan)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Log(observability.Event{
				Type:  observability.EventTypeCompile,
				RunID: runID,
				Data:  map[string]string{"error": err.Error()},
			})
		}
		return
	}
	result.SavedFunction = fn
	if p.Logger != nil {
		p.Logger.LogCompile(runID, fn.Name, len(fn.Inputs), fn.Iterative)
	}
}

func toolSequence(plan *Plan) []string {
	out := make([]string, len(plan.Steps))
	for i, step := range plan.Steps {
		out[i] = step.ToolName
	}
	return out
}
