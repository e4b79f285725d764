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

// PlannerOracle obtains structured plans from a hosted model through a
// propose_plan function call, so the model's free text never has to be
// parsed.
type PlannerOracle struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewPlannerOracle(model llms.Model, prompts *PromptManager, logger *observability.Logger) *PlannerOracle {
	return &PlannerOracle{Model: model, Prompts: prompts, Logger: logger}
}

func (p *PlannerOracle) Plan(ctx context.Context, taskText, toolSummary, currentURL string, failure *engine.FailureContext) (*engine.Plan, error) {
	systemPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load planner prompt: %v", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\n## Available Tools:\n%s", systemPrompt, toolSummary)

	var user strings.Builder
	fmt.Fprintf(&user, "TASK: %s\n", taskText)
	if currentURL != "" {
		fmt.Fprintf(&user, "CURRENT URL: %s\n", currentURL)
	}
	if failure != nil {
		failureJSON, _ := json.Marshal(failure)
		fmt.Fprintf(&user, "\nA previous attempt failed verification. Produce a corrected plan.\nFAILURE CONTEXT: %s\n", failureJSON)
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(fullPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user.String())},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools(plannerTools()))
	if err != nil {
		return nil, err
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		if p.Logger != nil {
			p.Logger.LogLLM("", "planner", user.String(), tc.FunctionCall.Arguments)
		}
		var plan engine.Plan
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &plan); err != nil {
			return nil, fmt.Errorf("failed to parse propose_plan arguments: %v", err)
		}
		return &plan, nil
	}

	return nil, fmt.Errorf("planner did not propose a plan")
}

func plannerTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "propose_plan",
				Description: "Submit an ordered plan of tool invocations that fulfills the task.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"steps": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"stepNumber": map[string]any{
										"type":        "integer",
										"description": "1-based position, contiguous",
									},
									"toolName": map[string]any{
										"type": "string",
									},
									"purpose": map[string]any{
										"type":        "string",
										"description": "What this step accomplishes",
									},
									"params": map[string]any{
										"type":        "object",
										"description": "Tool parameters; string values may use {{notepad:key}} templates",
									},
									"storeAs": map[string]any{
										"type":        "string",
										"description": "Notepad key to store this step's result under",
									},
								},
								"required": []string{"stepNumber", "toolName", "purpose", "params"},
							},
						},
						"expectedOutput": map[string]any{
							"type":        "string",
							"description": "Description of what the finished run should produce",
						},
					},
					"required": []string{"steps", "expectedOutput"},
				},
			},
		},
	}
}
