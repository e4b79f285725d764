package tools

import (
	"encoding/json"
	"fmt"
)

// Param extraction helpers. Step parameters arrive as resolved JSON-shaped
// maps; tools read them leniently and report missing required fields as
// result errors, not panics.

func strParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func numParam(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func listParam(params map[string]any, key string) []any {
	if v, ok := params[key].([]any); ok {
		return v
	}
	return nil
}

// textOf renders any parameter value as text for prompt assembly.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
