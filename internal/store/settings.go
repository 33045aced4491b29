package store

import (
	"database/sql"
	"time"

	"github.com/yunseol/pyeongeo/internal/model"
)

// SetModelSettings upserts a user's model connection settings.
func (s *Store) SetModelSettings(userID int64, ms model.ModelSettings) error {
	_, err := s.db.Exec(
		`INSERT INTO model_settings (user_id, base_url, api_key, model, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET base_url = ?, api_key = ?, model = ?, updated_at = ?`,
		userID, ms.BaseURL, ms.APIKey, ms.Model, time.Now(),
		ms.BaseURL, ms.APIKey, ms.Model, time.Now(),
	)
	return err
}

// GetModelSettings returns a user's model settings.
// Returns zero settings and nil error when the user has never saved any.
func (s *Store) GetModelSettings(userID int64) (model.ModelSettings, error) {
	var ms model.ModelSettings
	err := s.db.QueryRow(
		`SELECT base_url, api_key, model FROM model_settings WHERE user_id = ?`, userID,
	).Scan(&ms.BaseURL, &ms.APIKey, &ms.Model)
	if err == sql.ErrNoRows {
		return model.ModelSettings{}, nil
	}
	return ms, err
}
