package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/rahul/loom/internal/governance"
	"github.com/rahul/loom/internal/tools"
)

type denyAllPolicy struct{}

func (denyAllPolicy) Evaluate(ctx context.Context, req governance.Request) (governance.Result, error) {
	return governance.Result{Effect: governance.EffectDeny, Reason: "denied by test policy"}, nil
}

// fakeTool scripts a tool's behavior per call.
type fakeTool struct {
	name      string
	available bool
	execute   func(params map[string]any) (tools.Result, error)
	calls     []map[string]any
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "fake " + f.name }
func (f *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (f *fakeTool) IsAvailable() bool          { return f.available }

func (f *fakeTool) Execute(ctx context.Context, params map[string]any, run *tools.RunContext) (tools.Result, error) {
	f.calls = append(f.calls, params)
	return f.execute(params)
}

func newFakeRegistry(fakes ...*fakeTool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, f := range fakes {
		reg.Register(f)
	}
	return reg
}

func echoTool(name string) *fakeTool {
	return &fakeTool{
		name:      name,
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.OK(map[string]any{"data": params}), nil
		},
	}
}

func planOf(steps ...Step) *Plan {
	for i := range steps {
		steps[i].StepNumber = i + 1
	}
	return &Plan{Steps: steps, ExpectedOutput: "test output"}
}

func TestExecuteChain_RunsStepsInOrder(t *testing.T) {
	var order []string
	mk := func(name string) *fakeTool {
		return &fakeTool{
			name:      name,
			available: true,
			execute: func(params map[string]any) (tools.Result, error) {
				order = append(order, name)
				return tools.OK(map[string]any{"data": name + "-out"}), nil
			},
		}
	}
	eng := &Engine{Registry: newFakeRegistry(mk("scrape"), mk("infer"), mk("export"))}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "scrape", Params: Map(nil), StoreAs: "page"},
		Step{ToolName: "infer", Params: Map(nil), StoreAs: "facts"},
		Step{ToolName: "export", Params: Map(nil)},
	), NewNotepad(), &tools.RunContext{RunID: "r1"})
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	want := []string{"scrape", "infer", "export"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("Execution order %v, expected %v", order, want)
	}
	if !report.Success {
		t.Error("Report should be successful")
	}
	if got := report.Notepad["page"].StringVal(); got != "scrape-out" {
		t.Errorf("Stored payload %q, expected scrape-out", got)
	}
}

func TestExecuteChain_ContinuesPastFailures(t *testing.T) {
	failing := &fakeTool{
		name:      "scrape",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.Fail("fetch refused"), nil
		},
	}
	eng := &Engine{Registry: newFakeRegistry(failing, echoTool("export"))}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "scrape", Params: Map(nil), StoreAs: "page"},
		Step{ToolName: "export", Params: Map(nil)},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	if report.Success {
		t.Error("Report should not be successful after a step failure")
	}
	if len(report.Results) != 2 {
		t.Fatalf("Expected both steps to run, got %d results", len(report.Results))
	}
	if report.Results[0].Success || !report.Results[1].Success {
		t.Errorf("Unexpected per-step outcomes: %+v", report.Results)
	}
	if _, ok := report.Notepad["page"]; ok {
		t.Error("Failed step must not store its result")
	}
}

func TestExecuteChain_EmptyPlan(t *testing.T) {
	eng := &Engine{Registry: newFakeRegistry()}
	if _, err := eng.ExecuteChain(context.Background(), &Plan{}, nil, nil); err != ErrEmptyPlan {
		t.Errorf("Expected ErrEmptyPlan, got %v", err)
	}
}

func TestExecuteChain_CancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := &Engine{Registry: newFakeRegistry(echoTool("scrape"))}
	_, err := eng.ExecuteChain(ctx, planOf(Step{ToolName: "scrape", Params: Map(nil)}), nil, nil)
	if err == nil {
		t.Fatal("Expected stop error for canceled context")
	}
}

func TestExecuteChain_BudgetExhaustionAborts(t *testing.T) {
	browser := &fakeTool{
		name:      "browser",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.Result{}, &tools.BudgetError{Limit: 100}
		},
	}
	eng := &Engine{Registry: newFakeRegistry(browser, echoTool("export"))}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "browser", Params: Map(nil)},
		Step{ToolName: "export", Params: Map(nil)},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	if !report.Aborted {
		t.Fatal("Budget exhaustion must abort the run")
	}
	if report.AbortReason != AbortReasonActionLimit {
		t.Errorf("AbortReason = %q", report.AbortReason)
	}
	if len(report.Results) != 1 {
		t.Errorf("Steps after the abort must not run, got %d results", len(report.Results))
	}
}

func TestExecuteChain_FallbackSubstitutesRemoteModel(t *testing.T) {
	infer := &fakeTool{
		name:      "infer",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.Result{}, &tools.Error{Message: "endpoint down", Recoverable: true}
		},
	}
	llm := &fakeTool{
		name:      "llm",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.OK(map[string]any{"result": "true"}), nil
		},
	}
	eng := &Engine{Registry: newFakeRegistry(infer, llm)}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "infer", Params: Map(map[string]Value{
			"action":      String("check"),
			"instruction": String("is the price under 50"),
			"data":        String("price: 42"),
		}), StoreAs: "verdict"},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	if !report.Success {
		t.Fatalf("Fallback should have rescued the step: %+v", report.Results)
	}
	if len(llm.calls) != 1 {
		t.Fatalf("Remote model called %d times, expected 1", len(llm.calls))
	}
	prompt, _ := llm.calls[0]["prompt"].(string)
	if prompt == "" {
		t.Fatal("Fallback sent no prompt")
	}
	if v := report.Notepad["verdict"]; v.Kind() != KindBool || !v.BoolVal() {
		t.Errorf("Check fallback should store boolean true, got %v", v.Interface())
	}
}

func TestExecuteChain_FallbackOnlyForRecoverableFailures(t *testing.T) {
	infer := &fakeTool{
		name:      "infer",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.Result{}, &tools.Error{Message: "model rejected the input", Recoverable: false}
		},
	}
	llm := echoTool("llm")
	eng := &Engine{Registry: newFakeRegistry(infer, llm)}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "infer", Params: Map(map[string]Value{
			"action":      String("generate"),
			"instruction": String("summarize"),
		})},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	if report.Success {
		t.Error("Non-recoverable failure must not be rescued")
	}
	if len(llm.calls) != 0 {
		t.Errorf("Remote model called %d times for a non-recoverable failure", len(llm.calls))
	}
}

func TestExecuteChain_EmptyInferenceIsFailure(t *testing.T) {
	infer := &fakeTool{
		name:      "infer",
		available: true,
		execute: func(params map[string]any) (tools.Result, error) {
			return tools.OK(map[string]any{"results": []any{}}), nil
		},
	}
	eng := &Engine{Registry: newFakeRegistry(infer)}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "infer", Params: Map(map[string]Value{
			"action": String("filter"),
			"items":  List(String("a"), String("b")),
		})},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}

	if report.Success {
		t.Error("Empty collection from a non-empty input must count as failure")
	}
}

func TestExecuteChain_PolicyDenyFailsStep(t *testing.T) {
	eng := &Engine{
		Registry: newFakeRegistry(echoTool("browser")),
		Policy:   denyAllPolicy{},
	}

	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "browser", Params: Map(nil)},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}
	if report.Success {
		t.Error("Denied step should fail the report")
	}
	if report.Results[0].Error == "" {
		t.Error("Denied step should carry the denial reason")
	}
}

func TestExecuteChain_UnknownTool(t *testing.T) {
	eng := &Engine{Registry: newFakeRegistry()}
	report, err := eng.ExecuteChain(context.Background(), planOf(
		Step{ToolName: "teleport", Params: Map(nil)},
	), NewNotepad(), nil)
	if err != nil {
		t.Fatalf("ExecuteChain failed: %v", err)
	}
	if report.Success {
		t.Error("Unknown tool should fail its step, not the whole call")
	}
	if report.Results[0].Error != fmt.Sprintf("unknown tool: %s", "teleport") {
		t.Errorf("Unexpected error text: %q", report.Results[0].Error)
	}
}
