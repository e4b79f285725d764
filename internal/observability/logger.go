package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypeFallback    EventType = "fallback"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeVerify      EventType = "verify"
	EventTypeRepair      EventType = "repair"
	EventTypeCompile     EventType = "compile"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger is safe to log through.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "logs"
	}
	return &Logger{
		llmLogPath: filepath.Join(dir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(runID string, attempt int, stepCount int, expected string) {
	l.Log(Event{
		Type:  EventTypePlan,
		RunID: runID,
		Data: map[string]any{
			"attempt":         attempt,
			"steps":           stepCount,
			"expected_output": expected,
		},
	})
}

func (l *Logger) LogStep(runID string, step int, tool string, success bool, errText string) {
	l.Log(Event{
		Type:  EventTypeStep,
		RunID: runID,
		Data: map[string]any{
			"step":    step,
			"tool":    tool,
			"success": success,
			"error":   errText,
		},
	})
}

func (l *Logger) LogFallback(runID string, step int, action string, reason string) {
	l.Log(Event{
		Type:  EventTypeFallback,
		RunID: runID,
		Data: map[string]any{
			"step":   step,
			"action": action,
			"reason": reason,
		},
	})
}

func (l *Logger) LogPolicyCheck(runID string, tool string, allowed bool, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Data: map[string]any{
			"tool":    tool,
			"allowed": allowed,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogVerify(runID string, valid bool, issues []string) {
	l.Log(Event{
		Type:  EventTypeVerify,
		RunID: runID,
		Data: map[string]any{
			"valid":  valid,
			"issues": issues,
		},
	})
}

func (l *Logger) LogRepair(runID string, attempt int, issues []string) {
	l.Log(Event{
		Type:  EventTypeRepair,
		RunID: runID,
		Data: map[string]any{
			"attempt": attempt,
			"issues":  issues,
		},
	})
}

func (l *Logger) LogCompile(runID string, name string, inputs int, iterative bool) {
	l.Log(Event{
		Type:  EventTypeCompile,
		RunID: runID,
		Data: map[string]any{
			"name":      name,
			"inputs":    inputs,
			"iterative": iterative,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(runID string, role string, prompt any, response string) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"role":     role,
			"prompt":   prompt,
			"response": response,
		},
	})
}
