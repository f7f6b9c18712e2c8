package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/tasknotify/internal/model"
)

// PermissionStore persists the user's native notification decision per
// platform, the way a browser remembers a site's notification permission.
type PermissionStore struct {
	db *sql.DB
}

func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// GetPermission returns PermissionDefault when nothing was recorded yet.
func (s *PermissionStore) GetPermission(platform string) (model.PermissionState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM permissions WHERE platform = ?`, platform).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PermissionDefault, nil
	}
	if err != nil {
		return "", fmt.Errorf("get permission %q: %w", platform, err)
	}
	return model.ParsePermissionState(raw)
}

func (s *PermissionStore) SetPermission(platform string, state model.PermissionState) error {
	_, err := s.db.Exec(
		`INSERT INTO permissions (platform, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(platform) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		platform, string(state), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set permission %q: %w", platform, err)
	}
	return nil
}

// ResetPermission forgets the decision so the next request prompts again.
func (s *PermissionStore) ResetPermission(platform string) error {
	if _, err := s.db.Exec(`DELETE FROM permissions WHERE platform = ?`, platform); err != nil {
		return fmt.Errorf("reset permission %q: %w", platform, err)
	}
	return nil
}
