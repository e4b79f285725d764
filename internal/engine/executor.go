package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/loom/internal/governance"
	"github.com/rahul/loom/internal/observability"
	"github.com/rahul/loom/internal/tools"
)

// Snapshotter captures an image of the controlled surface. Capture is
// best-effort and may fail when the surface is not visible.
type Snapshotter interface {
	CaptureSnapshot(ctx context.Context, handle string) ([]byte, error)
}

// Engine executes plans against a tool registry. All collaborators are
// injected; the engine holds no run state of its own, so one Engine can
// serve many sequential runs.
type Engine struct {
	Registry *tools.Registry
	Policy   governance.PolicyEngine
	Snapshot Snapshotter
	Logger   *observability.Logger
}

// ExecuteChain runs every step of the plan in order and returns the full
// execution report. It returns an error only for an empty plan or when the
// run's cancellation signal fires; every ordinary step failure is recorded
// in the report and execution continues with the next step.
func (e *Engine) ExecuteChain(ctx context.Context, plan *Plan, notepad *Notepad, run *tools.RunContext) (*Report, error) {
	return e.executeChain(ctx, plan, notepad, run, nil)
}

// executeChain is ExecuteChain plus the input bindings a compiled-function
// replay supplies for {{input:K}} references.
func (e *Engine) executeChain(ctx context.Context, plan *Plan, notepad *Notepad, run *tools.RunContext, inputs map[string]Value) (*Report, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, ErrEmptyPlan
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStopped, err)
	}
	if notepad == nil {
		notepad = NewNotepad()
	}
	if run == nil {
		run = &tools.RunContext{}
	}

	rc := &ResolveContext{
		Notepad:    notepad,
		Inputs:     inputs,
		TabHandle:  run.TabHandle,
		Credential: run.Credential,
	}

	report := &Report{Success: true}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStopped, err)
		}

		result := e.executeStep(ctx, step, rc, run)
		report.Results = append(report.Results, result)
		report.Success = report.Success && result.Success

		if e.Logger != nil {
			e.Logger.LogStep(run.RunID, result.Step, result.Tool, result.Success, result.Error)
		}

		if result.Success && step.StoreAs != "" {
			notepad.Write(step.StoreAs, FromAny(result.Result))
		}

		e.captureAfterStep(ctx, report, step, !result.Success, run)

		if !result.Success && isActionBudgetFailure(step.ToolName, result.Error) {
			report.Aborted = true
			report.AbortReason = AbortReasonActionLimit
			report.Success = false
			break
		}
	}

	report.Notepad = notepad.ReadAll()
	return report, nil
}

func (e *Engine) executeStep(ctx context.Context, step Step, rc *ResolveContext, run *tools.RunContext) StepResult {
	sr := StepResult{Step: step.StepNumber, Tool: step.ToolName, StoreAs: step.StoreAs}

	resolved := canonicalize(step.ToolName, Resolve(step.Params, rc))
	params, _ := resolved.Interface().(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	if e.Policy != nil {
		args, _ := json.Marshal(params)
		verdict, err := e.Policy.Evaluate(ctx, governance.Request{
			Tool:      step.ToolName,
			Arguments: string(args),
			RunID:     run.RunID,
		})
		if err == nil && verdict.Effect == governance.EffectDeny {
			if e.Logger != nil {
				e.Logger.LogPolicyCheck(run.RunID, step.ToolName, false, verdict.Reason)
			}
			sr.Error = verdict.Reason
			return sr
		}
	}

	tool := e.Registry.Get(step.ToolName)
	if tool == nil {
		sr.Error = fmt.Sprintf("unknown tool: %s", step.ToolName)
		return sr
	}

	res, err := tool.Execute(ctx, params, run)
	payload := res.Payload()

	failed := err != nil || res.Failed()
	errText := res.Error
	if err != nil {
		errText = err.Error()
	}

	// The local-inference tool lies sometimes: a structurally fine call
	// with nothing in it is still a failure.
	if !failed && step.ToolName == tools.NameInfer && isEmptyInference(payload, resolved) {
		failed = true
		errText = "inference returned an empty result"
	}

	if failed && step.ToolName == tools.NameInfer && isAvailabilityFailure(step.ToolName, err, errText) {
		if fallback, ok := e.runFallback(ctx, step, resolved, run, errText); ok {
			return fallback
		}
		errText = fmt.Sprintf("local inference failed (%s) and remote fallback produced no usable data", errText)
	}

	if failed {
		sr.Error = errText
		return sr
	}

	sr.Success = true
	sr.Result = payload
	return sr
}

// runFallback retries an inference step through the remote model by
// reconstructing an equivalent instruction from the step's action kind.
func (e *Engine) runFallback(ctx context.Context, step Step, resolved Value, run *tools.RunContext, reason string) (StepResult, bool) {
	remote := e.Registry.Get(tools.NameLLM)
	if remote == nil || !remote.IsAvailable() {
		return StepResult{}, false
	}

	action, prompt := buildFallbackInstruction(resolved)
	if strings.TrimSpace(prompt) == "" {
		return StepResult{}, false
	}
	if e.Logger != nil {
		e.Logger.LogFallback(run.RunID, step.StepNumber, action, reason)
	}

	res, err := remote.Execute(ctx, map[string]any{"prompt": prompt}, run)
	if err != nil || res.Failed() {
		return StepResult{}, false
	}
	parsed, ok := parseFallbackResult(action, res.Payload())
	if !ok {
		return StepResult{}, false
	}
	return StepResult{
		Step:    step.StepNumber,
		Tool:    step.ToolName,
		StoreAs: step.StoreAs,
		Success: true,
		Result:  parsed,
	}, true
}

// isEmptyInference applies the empty-result heuristic: a nil payload, or an
// empty collection where the step's input collection was non-empty.
func isEmptyInference(payload any, params Value) bool {
	switch t := payload.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0 && inputCollectionLen(params) > 0
	case map[string]any:
		return len(t) == 0 && inputCollectionLen(params) > 0
	}
	return false
}

func inputCollectionLen(params Value) int {
	if params.Kind() != KindMap {
		return 0
	}
	for _, key := range []string{"items", "data"} {
		if v, ok := params.MapVal()[key]; ok && (v.Kind() == KindList || v.Kind() == KindMap) {
			return v.Len()
		}
	}
	return 0
}

func isActionBudgetFailure(toolName, errText string) bool {
	// The mutate tool drives the same browser session and draws from the
	// same budget.
	if toolName != tools.NameBrowser && toolName != tools.NameMutate {
		return false
	}
	return strings.Contains(strings.ToLower(errText), "action limit")
}

func (e *Engine) captureAfterStep(ctx context.Context, report *Report, step Step, failed bool, run *tools.RunContext) {
	if e.Snapshot == nil {
		return
	}
	data, err := e.Snapshot.CaptureSnapshot(ctx, run.TabHandle)
	if err != nil || len(data) == 0 {
		return // snapshots never escalate
	}
	report.Screenshots = append(report.Screenshots, Screenshot{
		Step:    step.StepNumber,
		Tool:    step.ToolName,
		Failure: failed,
		Data:    data,
	})
}
