package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geoproapp/geopro-server/internal/category"
)

// SaveMisses replaces the category misses recorded for a session.
func (s *Store) SaveMisses(ctx context.Context, sessionID string, misses []category.Miss) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_misses WHERE session_id = ?`, sessionID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category_misses (session_id, kind, key, count, record_ids)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range misses {
		ids, err := json.Marshal(m.RecordIDs)
		if err != nil {
			return fmt.Errorf("marshal record ids: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, string(m.Kind), m.Key, m.Count, string(ids)); err != nil {
			return fmt.Errorf("insert miss %s/%s: %w", m.Kind, m.Key, err)
		}
	}
	return tx.Commit()
}

// ListMisses returns a session's category misses, most frequent first.
func (s *Store) ListMisses(ctx context.Context, sessionID string) ([]category.Miss, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, key, count, record_ids FROM category_misses
		WHERE session_id = ? ORDER BY count DESC, kind, key`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var misses []category.Miss
	for rows.Next() {
		var (
			m    category.Miss
			kind string
			ids  string
		)
		if err := rows.Scan(&kind, &m.Key, &m.Count, &ids); err != nil {
			return nil, err
		}
		m.Kind = category.MissKind(kind)
		if err := json.Unmarshal([]byte(ids), &m.RecordIDs); err != nil {
			return nil, fmt.Errorf("unmarshal record ids: %w", err)
		}
		misses = append(misses, m)
	}
	return misses, rows.Err()
}
