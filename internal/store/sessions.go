package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session is the persisted view of one session: created on first client
// contact, touched on every inbound message, marked ended on teardown.
// Never hard-deleted while tasks are pending.
type Session struct {
	ID           string
	Status       string // "active" or "ended"
	CreatedAt    time.Time
	LastActivity time.Time
}

// EnsureSession creates the session record on first contact; a repeat call
// only refreshes the activity timestamp.
func (s *Store) EnsureSession(id string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec(`INSERT INTO sessions (id, status, created_at, last_activity)
		VALUES (?, 'active', ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_activity = excluded.last_activity`,
		id, now, now)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// TouchSession updates the last-activity timestamp.
func (s *Store) TouchSession(id string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec("UPDATE sessions SET last_activity = ? WHERE id = ?", now, id)
	return err
}

// EndSession marks the session ended. History is kept.
func (s *Store) EndSession(id string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec("UPDATE sessions SET status = 'ended', last_activity = ? WHERE id = ?", now, id)
	return err
}

// GetSession returns the session record, or nil if unknown.
func (s *Store) GetSession(id string) (*Session, error) {
	sess := &Session{}
	var created, activity string
	err := s.db.QueryRow("SELECT id, status, created_at, last_activity FROM sessions WHERE id = ?", id).
		Scan(&sess.ID, &sess.Status, &created, &activity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = parseTime(created)
	sess.LastActivity = parseTime(activity)
	return sess, nil
}
