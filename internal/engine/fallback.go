package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/loom/internal/tools"
)

// The local-inference tool fails in two distinct ways: it is genuinely
// wrong about the data, or it simply is not reachable (model not pulled,
// endpoint down, access denied). Only the second kind is eligible for a
// transparent retry through the remote model.

// isAvailabilityFailure classifies a local-inference failure. A typed tool
// error is authoritative; untyped errors fall back to message sniffing.
func isAvailabilityFailure(toolName string, err error, errText string) bool {
	var terr *tools.Error
	if errors.As(err, &terr) {
		return terr.Recoverable
	}
	lower := strings.ToLower(errText)
	markers := []string{"not available", strings.ToLower(toolName), "403", "forbidden"}
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Inference action kinds. The fallback does not replay the local call
// verbatim; it reconstructs an equivalent instruction for the remote model
// from the step's declared action.
const (
	actionCheck     = "check"
	actionExtract   = "extract"
	actionSentiment = "sentiment"
	actionFilter    = "filter"
	actionGenerate  = "generate"
	actionCompare   = "compare"
	actionScore     = "score"
)

func paramText(params Value, key string) string {
	if params.Kind() != KindMap {
		return ""
	}
	if v, ok := params.MapVal()[key]; ok {
		return v.Text()
	}
	return ""
}

func paramJSON(params Value, key string) string {
	if params.Kind() != KindMap {
		return ""
	}
	v, ok := params.MapVal()[key]
	if !ok {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v.Text()
	}
	return string(data)
}

// buildFallbackInstruction turns an inference step's parameters into a
// self-contained prompt for the remote model.
func buildFallbackInstruction(params Value) (action string, prompt string) {
	action = strings.ToLower(strings.TrimSpace(paramText(params, "action")))
	instruction := paramText(params, "instruction")
	data := paramJSON(params, "data")
	items := paramJSON(params, "items")
	if data == "" {
		data = items
	}

	switch action {
	case actionCheck:
		prompt = fmt.Sprintf("Answer strictly with true or false.\n\nQuestion: %s\n\nData:\n%s", instruction, data)
	case actionExtract:
		prompt = fmt.Sprintf("Extract the requested structure and reply with JSON only, no prose.\n\nTask: %s\n\nSource:\n%s", instruction, data)
	case actionSentiment:
		if items != "" {
			prompt = fmt.Sprintf("Classify the sentiment of each item as positive, negative or neutral. Reply with a JSON array of labels in input order.\n\nItems:\n%s", items)
		} else {
			prompt = fmt.Sprintf("Classify the sentiment of the following text as positive, negative or neutral. Reply with the single label only.\n\nText:\n%s", data)
		}
	case actionFilter:
		prompt = fmt.Sprintf("Filter the items below. Keep only those matching the criteria and reply with a JSON array of the kept items.\n\nCriteria: %s\n\nItems:\n%s", instruction, items)
	case actionCompare:
		prompt = fmt.Sprintf("Compare the following texts as instructed and reply with your conclusion.\n\nInstruction: %s\n\nTexts:\n%s", instruction, data)
	case actionScore:
		weights := paramJSON(params, "weights")
		prompt = fmt.Sprintf("Score each item using the weighted criteria and reply with a JSON array of {item, score} objects.\n\nCriteria weights: %s\n\nItems:\n%s", weights, items)
	default:
		action = actionGenerate
		prompt = instruction
		if data != "" {
			prompt = fmt.Sprintf("%s\n\nData:\n%s", instruction, data)
		}
	}
	return action, prompt
}

// parseFallbackResult shapes the remote model's text back into what the
// local tool would have produced for the given action kind.
func parseFallbackResult(action string, payload any) (any, bool) {
	text, ok := payload.(string)
	if !ok {
		if payload == nil {
			return nil, false
		}
		return payload, true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	switch action {
	case actionCheck:
		lower := strings.ToLower(text)
		if strings.HasPrefix(lower, "true") || strings.HasPrefix(lower, "yes") {
			return true, true
		}
		return false, true
	case actionExtract, actionFilter, actionScore, actionSentiment:
		if parsed := tryParseJSON(text); parsed != nil {
			return parsed, true
		}
		return text, true
	default:
		return text, true
	}
}

// tryParseJSON extracts the first JSON value in a response, tolerating the
// prose some models wrap around it.
func tryParseJSON(text string) any {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
