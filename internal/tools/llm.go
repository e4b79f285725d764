package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LLMTool calls the hosted model directly. The engine also uses it as the
// substitution target when local inference fails mid-chain.
type LLMTool struct {
	Model llms.Model
}

func NewLLMTool(model llms.Model) *LLMTool {
	return &LLMTool{Model: model}
}

func (t *LLMTool) Name() string {
	return NameLLM
}

func (t *LLMTool) Description() string {
	return "Send a prompt to the hosted model and return its answer. Use for reasoning over gathered data when local inference cannot handle it."
}

func (t *LLMTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "The full prompt, including any data it should reason over",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *LLMTool) IsAvailable() bool {
	return t.Model != nil
}

func (t *LLMTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	prompt := strParam(params, "prompt")
	if prompt == "" {
		return Fail("prompt is required"), nil
	}
	if t.Model == nil {
		return Result{}, &Error{Message: "hosted model is not configured", Recoverable: false}
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, t.Model, prompt)
	if err != nil {
		return Fail(fmt.Sprintf("llm call failed: %v", err)), nil
	}
	return OK(map[string]any{"result": strings.TrimSpace(text)}), nil
}
