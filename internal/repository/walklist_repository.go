package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

// WalkListRepository handles database operations for walk lists
type WalkListRepository struct {
	db *sql.DB
}

// NewWalkListRepository creates a new walk list repository
func NewWalkListRepository(db *sql.DB) *WalkListRepository {
	return &WalkListRepository{db: db}
}

// Create stores a walk list; targets are serialized as JSON
func (r *WalkListRepository) Create(wl *models.WalkList) error {
	targetsJSON, err := json.Marshal(wl.Targets)
	if err != nil {
		return fmt.Errorf("failed to serialize targets: %w", err)
	}

	query := `INSERT INTO walk_lists (id, name, targets_json) VALUES (?, ?, ?)`
	if _, err := r.db.Exec(query, wl.ID, wl.Name, string(targetsJSON)); err != nil {
		return fmt.Errorf("failed to create walk list: %w", err)
	}
	return nil
}

// GetByID retrieves a single walk list
func (r *WalkListRepository) GetByID(id string) (*models.WalkList, error) {
	var wl models.WalkList
	var targetsJSON string

	query := `SELECT id, name, targets_json, created_at FROM walk_lists WHERE id = ?`
	err := r.db.QueryRow(query, id).Scan(&wl.ID, &wl.Name, &targetsJSON, &wl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get walk list %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(targetsJSON), &wl.Targets); err != nil {
		return nil, fmt.Errorf("failed to parse targets for walk list %s: %w", id, err)
	}
	return &wl, nil
}

// List retrieves all walk lists, newest first
func (r *WalkListRepository) List() ([]models.WalkList, error) {
	query := `SELECT id, name, targets_json, created_at FROM walk_lists ORDER BY created_at DESC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list walk lists: %w", err)
	}
	defer rows.Close()

	var lists []models.WalkList
	for rows.Next() {
		var wl models.WalkList
		var targetsJSON string
		if err := rows.Scan(&wl.ID, &wl.Name, &targetsJSON, &wl.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan walk list: %w", err)
		}
		if err := json.Unmarshal([]byte(targetsJSON), &wl.Targets); err != nil {
			return nil, fmt.Errorf("failed to parse targets for walk list %s: %w", wl.ID, err)
		}
		lists = append(lists, wl)
	}
	return lists, rows.Err()
}
