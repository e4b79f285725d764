package engine

import (
	"context"
	"fmt"

	"github.com/rahul/loom/internal/tools"
)

// RunFunction replays a compiled function: the embedded plan executes with
// the same resolution, dispatch and fallback rules as a fresh run, with
// {{input:K}} references bound to the supplied values or the declared
// defaults. An iterative function repeats the sequence until a pass stops
// removing items or maxPasses is reached.
func (e *Engine) RunFunction(ctx context.Context, fn *CompiledFunction, inputs map[string]any, run *tools.RunContext) (*Report, error) {
	if fn == nil || len(fn.Plan.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	bound := make(map[string]Value, len(fn.Inputs))
	for _, decl := range fn.Inputs {
		if v, ok := inputs[decl.Name]; ok {
			bound[decl.Name] = FromAny(v)
		} else if decl.DefaultValue != nil {
			bound[decl.Name] = FromAny(decl.DefaultValue)
		}
	}
	for name, v := range inputs {
		if _, ok := bound[name]; !ok {
			bound[name] = FromAny(v)
		}
	}

	notepad := NewNotepad()

	if !fn.Iterative {
		return e.executeChain(ctx, &fn.Plan, notepad, run, bound)
	}

	passes := 5
	if v, ok := bound[inputMaxPasses]; ok && v.Kind() == KindNumber && int(v.NumberVal()) > 0 {
		passes = int(v.NumberVal())
	}

	var last *Report
	for i := 0; i < passes; i++ {
		report, err := e.executeChain(ctx, &fn.Plan, notepad, run, bound)
		if err != nil {
			return last, err
		}
		last = report
		if !report.Success {
			break
		}
		if removedThisPass(report) == 0 {
			break
		}
	}
	if last == nil {
		return nil, fmt.Errorf("function %s produced no report", fn.Name)
	}
	return last, nil
}

// removedThisPass sums how many items the pass's mutation steps removed or
// hid. Mutation results report the count under removed/hidden, or as the
// affected list itself.
func removedThisPass(report *Report) int {
	total := 0
	for _, res := range report.Results {
		if !res.Success || res.Tool != tools.NameMutate {
			continue
		}
		switch t := res.Result.(type) {
		case float64:
			total += int(t)
		case int:
			total += t
		case []any:
			total += len(t)
		case map[string]any:
			for _, key := range []string{"removed", "hidden", "count"} {
				if n, ok := t[key].(float64); ok {
					total += int(n)
					break
				}
			}
		}
	}
	return total
}
