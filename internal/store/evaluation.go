package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yunseol/pyeongeo/internal/model"
)

// SaveEvaluation stores an extracted evaluation plan for later reuse.
func (s *Store) SaveEvaluation(userID int64, fileName string, data model.EvaluationData) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("encode evaluation data: %w", err)
	}
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO saved_evaluations (user_id, file_name, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, fileName, string(raw), now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEvaluations returns a user's saved evaluations, newest first.
func (s *Store) ListEvaluations(userID int64) ([]model.SavedEvaluation, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, file_name, data, created_at, updated_at
		 FROM saved_evaluations WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var evals []model.SavedEvaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows.Scan)
		if err != nil {
			return nil, err
		}
		evals = append(evals, ev)
	}
	return evals, rows.Err()
}

// GetEvaluation returns one saved evaluation, or nil if it does not exist or
// belongs to another user.
func (s *Store) GetEvaluation(userID, id int64) (*model.SavedEvaluation, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, file_name, data, created_at, updated_at
		 FROM saved_evaluations WHERE id = ? AND user_id = ?`, id, userID,
	)
	ev, err := scanEvaluation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// DeleteEvaluation removes one saved evaluation, scoped to its owner.
func (s *Store) DeleteEvaluation(userID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM saved_evaluations WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

func scanEvaluation(scan func(...any) error) (model.SavedEvaluation, error) {
	var ev model.SavedEvaluation
	var raw string
	if err := scan(&ev.ID, &ev.UserID, &ev.FileName, &raw, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return ev, err
	}
	if err := json.Unmarshal([]byte(raw), &ev.Data); err != nil {
		return ev, fmt.Errorf("decode evaluation data: %w", err)
	}
	return ev, nil
}
