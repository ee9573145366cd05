package observability

import (
	"sync"
	"time"
)

// Phase mirrors the executor state shown on the dashboard.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhasePlanning   Phase = "PLANNING"
	PhaseExecuting  Phase = "EXECUTING"
	PhaseChallenged Phase = "CHALLENGED"
	PhaseWaiting    Phase = "WAITING"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseSummary    Phase = "SUMMARIZING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentPhase  Phase
	ActiveTask    string
	ActiveTasks   int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentPhase:  PhaseIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(phase Phase, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentPhase = phase
	globalStatus.ActiveTask = task
}

// TaskStarted and TaskFinished track how many tasks are in flight; the
// phase falls back to idle when the last one ends.
func TaskStarted(task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveTasks++
	globalStatus.ActiveTask = task
	globalStatus.CurrentPhase = PhasePlanning
}

func TaskFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.ActiveTasks > 0 {
		globalStatus.ActiveTasks--
	}
	if globalStatus.ActiveTasks == 0 {
		globalStatus.CurrentPhase = PhaseIdle
		globalStatus.ActiveTask = ""
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentPhase, globalStatus.ActiveTask, globalStatus.ActiveTasks, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
