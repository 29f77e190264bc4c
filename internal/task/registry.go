package task

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for operations on unknown task ids.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a mutation is attempted on a task
	// already in a terminal state. This is a caller bug, not a retryable error.
	ErrInvalidTransition = errors.New("task is in a terminal state")

	// ErrTaskStillActive is returned when removing a task that has not yet
	// reached a terminal state.
	ErrTaskStillActive = errors.New("task still active")
)

// Registry owns all background tasks for one session. All mutation goes
// through its methods; callers only ever see copies. A single producer owns
// each task, but the registry itself is safe for concurrent use across tasks.
type Registry struct {
	SessionID string

	mu       sync.Mutex
	tasks    map[string]*Task
	order    []string
	onChange func(Task)
}

func NewRegistry(sessionID string) *Registry {
	return &Registry{
		SessionID: sessionID,
		tasks:     make(map[string]*Task),
	}
}

// OnChange registers a listener invoked with a snapshot copy after every
// state change. Called outside the registry lock.
func (r *Registry) OnChange(fn func(Task)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Create registers a new task. Tasks are created already running; there is
// no observable queued state. A positive totalSteps sets the step count up
// front so creation is a single transition.
func (r *Registry) Create(title, description string, kind Kind, totalSteps int) Task {
	if kind == "" {
		kind = KindGeneric
	}
	t := &Task{
		ID:          uuid.New().String()[:8],
		SessionID:   r.SessionID,
		Title:       title,
		Description: description,
		Kind:        kind,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if totalSteps > 0 {
		t.TotalSteps = totalSteps
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	snap, fn := t.clone(), r.onChange
	r.mu.Unlock()

	notify(fn, snap)
	return snap
}

// Load inserts a task restored from persistence, keeping its id and state.
// No change notification is emitted.
func (r *Registry) Load(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return
	}
	c := t.clone()
	r.tasks[t.ID] = &c
	r.order = append(r.order, t.ID)
}

// SetTotalSteps sets the step count used for step-index display. Valid only
// while the task is running.
func (r *Registry) SetTotalSteps(id string, total int) error {
	return r.mutateRunning(id, func(t *Task) {
		t.TotalSteps = total
	})
}

// Advance moves progress to an absolute value, valid only while running.
// Progress is monotone: values below the current one are ignored, values
// above 100 are clamped.
func (r *Registry) Advance(id string, progress int, currentStep string) error {
	return r.mutateRunning(id, func(t *Task) {
		if progress > t.Progress {
			t.Progress = min(progress, 100)
		}
		if currentStep != "" {
			t.CurrentStep = currentStep
		}
	})
}

// AdvanceBy moves progress by a non-negative delta, valid only while running.
func (r *Registry) AdvanceBy(id string, delta int, currentStep string) error {
	return r.mutateRunning(id, func(t *Task) {
		if delta > 0 {
			t.Progress = min(t.Progress+delta, 100)
		}
		if currentStep != "" {
			t.CurrentStep = currentStep
		}
	})
}

// AppendOutput appends one output line. Valid for any non-terminal status.
func (r *Registry) AppendOutput(id, line string) error {
	return r.mutateRunning(id, func(t *Task) {
		t.Output = append(t.Output, line)
	})
}

// Complete transitions the task to completed. Progress is left as-is;
// completion does not imply 100.
func (r *Registry) Complete(id string) error {
	return r.finish(id, StatusCompleted, "")
}

// Fail transitions the task to failed with an error message.
func (r *Registry) Fail(id, message string) error {
	return r.finish(id, StatusFailed, message)
}

// Cancel transitions the task to cancelled. This is the only way to stop a
// task's logical progress; closing the channel does not cancel anything.
func (r *Registry) Cancel(id string) error {
	return r.finish(id, StatusCancelled, "")
}

// Get returns a snapshot copy of one task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.clone(), nil
}

// List returns snapshot copies in insertion order (oldest first). With
// includeTerminal false, only running tasks are returned.
func (r *Registry) List(includeTerminal bool) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		t := r.tasks[id]
		if !includeTerminal && t.Status.Terminal() {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

// Remove deletes a task. Permitted only once the task is in a terminal state.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskStillActive, id, t.Status)
	}
	delete(r.tasks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) mutateRunning(id string, mutate func(*Task)) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	mutate(t)
	snap, fn := t.clone(), r.onChange
	r.mu.Unlock()

	notify(fn, snap)
	return nil
}

func (r *Registry) finish(id string, status Status, message string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, t.Status)
	}
	t.Status = status
	if message != "" {
		t.Error = message
	}
	done := time.Now().UTC()
	t.CompletedAt = &done
	snap, fn := t.clone(), r.onChange
	r.mu.Unlock()

	notify(fn, snap)
	return nil
}

func notify(fn func(Task), snap Task) {
	if fn != nil {
		fn(snap)
	}
}
