package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/workroomhq/workroom/internal/task"
)

// SaveTask inserts or updates the persisted copy of a task. The registry is
// the single writer; this just mirrors every transition to disk.
func (s *Store) SaveTask(t *task.Task) error {
	var totalSteps *int
	if t.TotalSteps > 0 {
		totalSteps = &t.TotalSteps
	}
	var output *string
	if len(t.Output) > 0 {
		joined := strings.Join(t.Output, "\n")
		output = &joined
	}
	var completedAt *string
	if t.CompletedAt != nil {
		ts := t.CompletedAt.UTC().Format(timeFmt)
		completedAt = &ts
	}
	_, err := s.db.Exec(`INSERT INTO tasks
		(id, session_id, title, description, kind, status, progress, total_steps, current_step, output, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			total_steps = excluded.total_steps,
			current_step = excluded.current_step,
			output = excluded.output,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		t.ID, t.SessionID, t.Title, t.Description, string(t.Kind), string(t.Status),
		t.Progress, totalSteps, nullable(t.CurrentStep), output, nullable(t.Error),
		t.StartedAt.UTC().Format(timeFmt), completedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask returns one persisted task, or nil if unknown.
func (s *Store) GetTask(id string) (*task.Task, error) {
	row := s.db.QueryRow(`SELECT id, session_id, title, description, kind, status, progress,
		total_steps, current_step, output, error, started_at, completed_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a session's tasks in insertion order (oldest first).
func (s *Store) ListTasks(sessionID string) ([]*task.Task, error) {
	rows, err := s.db.Query(`SELECT id, session_id, title, description, kind, status, progress,
		total_steps, current_step, output, error, started_at, completed_at
		FROM tasks WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a persisted task. The caller enforces the
// terminal-status-only rule before calling.
func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*task.Task, error) {
	t := &task.Task{}
	var kind, status, startedAt string
	var description, currentStep, output, errMsg, completedAt *string
	var totalSteps *int
	err := row.Scan(&t.ID, &t.SessionID, &t.Title, &description, &kind, &status, &t.Progress,
		&totalSteps, &currentStep, &output, &errMsg, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	if description != nil {
		t.Description = *description
	}
	if totalSteps != nil {
		t.TotalSteps = *totalSteps
	}
	if currentStep != nil {
		t.CurrentStep = *currentStep
	}
	if output != nil && *output != "" {
		t.Output = strings.Split(*output, "\n")
	}
	if errMsg != nil {
		t.Error = *errMsg
	}
	t.StartedAt = parseTime(startedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	return t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
