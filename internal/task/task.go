package task

import (
	"time"
)

// Kind categorizes a background task for display purposes.
type Kind string

const (
	KindFileOperation Kind = "file_operation"
	KindCodeExecution Kind = "code_execution"
	KindResearch      Kind = "research"
	KindAnalysis      Kind = "analysis"
	KindInstallation  Kind = "installation"
	KindGeneric       Kind = "generic"
)

// Status is the task state machine: running → completed | failed | cancelled.
// Tasks are created already running; the terminal statuses are one-way.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one background operation owned by a session. Progress is advisory
// telemetry: it never decreases, never exceeds 100, and consumers must
// tolerate gaps. Once Status is terminal the task is immutable.
type Task struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	TotalSteps  int        `json:"totalSteps,omitempty"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Output      []string   `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// StepIndex maps progress onto the step count: ceil(progress/100 * totalSteps).
// Returns 0 when TotalSteps is unset.
func (t *Task) StepIndex() int {
	if t.TotalSteps <= 0 {
		return 0
	}
	return (t.Progress*t.TotalSteps + 99) / 100
}

// clone returns a deep copy so callers never hold a mutable reference into
// registry state.
func (t *Task) clone() Task {
	c := *t
	if t.Output != nil {
		c.Output = append([]string(nil), t.Output...)
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return c
}
