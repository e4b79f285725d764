package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// InferTool runs inference on a locally hosted model. It is the cheap
// default for classification and extraction steps; when the local endpoint
// is unreachable the engine substitutes the remote model transparently.
type InferTool struct {
	Model   llms.Model
	Enabled bool
}

func NewInferTool(model llms.Model, enabled bool) *InferTool {
	return &InferTool{Model: model, Enabled: enabled}
}

func (t *InferTool) Name() string {
	return NameInfer
}

func (t *InferTool) Description() string {
	return "Run a local model over step data: boolean checks, extraction, sentiment, filtering, comparison, scoring, or free-form generation."
}

func (t *InferTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"check", "extract", "sentiment", "filter", "generate", "compare", "score"},
				"description": "The kind of inference to run",
			},
			"instruction": map[string]any{
				"type":        "string",
				"description": "What to check, extract, compare or generate",
			},
			"data": map[string]any{
				"description": "The input value the instruction applies to",
			},
			"items": map[string]any{
				"type":        "array",
				"description": "Input collection for batch actions (sentiment, filter, score)",
			},
			"weights": map[string]any{
				"type":        "object",
				"description": "Criteria weights for the score action",
			},
		},
		"required": []string{"action"},
	}
}

func (t *InferTool) IsAvailable() bool {
	return t.Enabled && t.Model != nil
}

func (t *InferTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	if !t.IsAvailable() {
		return Result{}, &Error{Message: "local inference is not available", Recoverable: true}
	}

	prompt := buildInferPrompt(params)
	if strings.TrimSpace(prompt) == "" {
		return Fail("instruction is required"), nil
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, t.Model, prompt)
	if err != nil {
		// Endpoint trouble is recoverable through the remote model;
		// the engine decides.
		return Result{}, &Error{Message: fmt.Sprintf("infer call failed: %v", err), Recoverable: isEndpointError(err)}
	}

	return OK(map[string]any{"result": strings.TrimSpace(text)}), nil
}

func buildInferPrompt(params map[string]any) string {
	action := strParam(params, "action")
	instruction := strParam(params, "instruction")
	data := textOf(params["data"])
	items := textOf(params["items"])
	if data == "" {
		data = items
	}

	var b strings.Builder
	switch action {
	case "check":
		fmt.Fprintf(&b, "Answer strictly with true or false.\n\nQuestion: %s\n", instruction)
	case "extract":
		fmt.Fprintf(&b, "Extract the requested structure and reply with JSON only.\n\nTask: %s\n", instruction)
	case "sentiment":
		b.WriteString("Classify sentiment as positive, negative or neutral. For multiple items reply with a JSON array of labels in input order.\n")
	case "filter":
		fmt.Fprintf(&b, "Keep only items matching the criteria; reply with a JSON array of the kept items.\n\nCriteria: %s\n", instruction)
	case "compare":
		fmt.Fprintf(&b, "Compare the texts as instructed and state your conclusion.\n\nInstruction: %s\n", instruction)
	case "score":
		fmt.Fprintf(&b, "Score each item using the weighted criteria; reply with a JSON array of {item, score}.\n\nWeights: %s\n", textOf(params["weights"]))
	default:
		b.WriteString(instruction)
		if b.Len() > 0 {
			b.WriteString("\n")
		}
	}
	if data != "" {
		fmt.Fprintf(&b, "\nData:\n%s", data)
	}
	return b.String()
}

func isEndpointError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "timeout", "404", "403", "forbidden", "not available"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
