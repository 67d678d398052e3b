package repository

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("repository: not found")

// SessionRepository persists serialized walk-session snapshots. It implements
// the session.Store boundary.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save upserts the serialized state for a session
func (r *SessionRepository) Save(sessionID string, state []byte) error {
	query := `
		INSERT INTO sessions (id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.Exec(query, sessionID, string(state)); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Load retrieves the serialized state for a session
func (r *SessionRepository) Load(sessionID string) ([]byte, error) {
	var state string
	err := r.db.QueryRow("SELECT state FROM sessions WHERE id = ?", sessionID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return []byte(state), nil
}

// Delete removes a persisted session
func (r *SessionRepository) Delete(sessionID string) error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}
