package observability

import (
	"sync"
	"time"
)

// Phase names the stage of the run loop currently in flight.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseVerifying Phase = "VERIFYING"
	PhaseRepairing Phase = "REPAIRING"
	PhaseCompiling Phase = "COMPILING"
	PhaseReplaying Phase = "REPLAYING"
)

type runStatus struct {
	mu            sync.RWMutex
	currentPhase  Phase
	activeTask    string
	attempt       int
	lastHeartbeat time.Time
}

var globalStatus = &runStatus{
	currentPhase:  PhaseIdle,
	lastHeartbeat: time.Now(),
}

// SetPhase updates the global run status shown in the live status line.
func SetPhase(phase Phase, task string, attempt int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.currentPhase = phase
	globalStatus.activeTask = task
	globalStatus.attempt = attempt
}

// GetPhase retrieves a copy of the global run status.
func GetPhase() (Phase, string, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.currentPhase, globalStatus.activeTask, globalStatus.attempt, globalStatus.lastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.lastHeartbeat = time.Now()
}
