package store

import "fmt"

// Preview is one session-scoped application preview. Clients poll this list
// independently of the event channel.
type Preview struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Port      int    `json:"port"`
}

// SavePreview inserts or updates a preview record.
func (s *Store) SavePreview(p *Preview) error {
	_, err := s.db.Exec(`INSERT INTO previews (id, session_id, name, status, port)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status, port = excluded.port`,
		p.ID, p.SessionID, p.Name, p.Status, p.Port)
	if err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// ListPreviews returns a session's previews in insertion order.
func (s *Store) ListPreviews(sessionID string) ([]*Preview, error) {
	rows, err := s.db.Query(`SELECT id, session_id, name, status, port
		FROM previews WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	defer rows.Close()

	var previews []*Preview
	for rows.Next() {
		p := &Preview{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Name, &p.Status, &p.Port); err != nil {
			return nil, fmt.Errorf("scan preview: %w", err)
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// DeletePreview removes a preview record.
func (s *Store) DeletePreview(id string) error {
	_, err := s.db.Exec("DELETE FROM previews WHERE id = ?", id)
	return err
}
