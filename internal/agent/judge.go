package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/loom/internal/engine"
	"github.com/rahul/loom/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// JudgeOracle asks a hosted model whether a run's primary output satisfies
// the plan's expected output, returning a structured verdict through a
// submit_verdict function call. Screenshots travel as binary parts so the
// judge can assess generated UIs visually.
type JudgeOracle struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewJudgeOracle(model llms.Model, prompts *PromptManager, logger *observability.Logger) *JudgeOracle {
	return &JudgeOracle{Model: model, Prompts: prompts, Logger: logger}
}

func (j *JudgeOracle) Judge(ctx context.Context, req engine.JudgeRequest) (*engine.Verdict, error) {
	systemPrompt, err := j.Prompts.GetJudgePrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load judge prompt: %v", err)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "EXPECTED OUTPUT: %s\n\n", req.ExpectedOutput)
	fmt.Fprintf(&user, "ACTUAL OUTPUT (%d chars total)\nFIRST 100: %s\nLAST 100: %s\n\n", req.OutputLength, req.OutputHead, req.OutputTail)
	fmt.Fprintf(&user, "STEP SUMMARY:\n%s\n", req.StepSummary)

	parts := []llms.ContentPart{llms.TextPart(user.String())}
	for _, shot := range req.Screenshots {
		parts = append(parts, llms.BinaryPart("image/png", shot))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: parts,
		},
	}

	resp, err := j.Model.GenerateContent(ctx, messages, llms.WithTools(judgeTools()))
	if err != nil {
		return nil, err
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall.Name != "submit_verdict" {
			continue
		}
		if j.Logger != nil {
			j.Logger.LogLLM("", "judge", user.String(), tc.FunctionCall.Arguments)
		}
		var verdict engine.Verdict
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &verdict); err != nil {
			return nil, fmt.Errorf("failed to parse submit_verdict arguments: %v", err)
		}
		return &verdict, nil
	}

	// Some models answer in plain JSON instead of calling the function.
	content := strings.TrimSpace(choice.Content)
	if start := strings.Index(content, "{"); start >= 0 {
		var verdict engine.Verdict
		if err := json.Unmarshal([]byte(content[start:]), &verdict); err == nil {
			return &verdict, nil
		}
	}

	return nil, fmt.Errorf("judge did not submit a verdict")
}

func judgeTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "submit_verdict",
				Description: "Submit the structured assessment of the run's output.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"valid": map[string]any{
							"type":        "boolean",
							"description": "Whether the output satisfies the expected output",
						},
						"issues": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"recommendations": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"suggestedFixes": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"tool":    map[string]any{"type": "string"},
									"purpose": map[string]any{"type": "string"},
									"params":  map[string]any{"type": "object"},
								},
								"required": []string{"tool", "purpose"},
							},
						},
						"uiAssessment": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"score": map[string]any{
									"type":        "number",
									"description": "Visual quality 0-10, only for generated UIs",
								},
								"issues":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"strengths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							},
						},
					},
					"required": []string{"valid"},
				},
			},
		},
	}
}
