package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/store"
)

const recordColumns = `id, seq, list_name, display_name, lat, lon, address, category_hint, notes,
	state, matches, outcome, rejected_reason, retrieval_error`

// Apply persists one record transition and its queue change in a single
// transaction. Returns store.ErrNotFound if the session does not exist.
func (s *Store) Apply(ctx context.Context, sessionID string, change decision.Change) error {
	e := change.Entry

	matchesJSON, err := marshalNullable(e.Matches, len(e.Matches) > 0)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	outcomeJSON, err := marshalNullable(e.Outcome, e.Outcome != nil)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return store.NotFound("session", sessionID)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (
			session_id, `+recordColumns+`, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, id) DO UPDATE SET
			state = excluded.state,
			matches = excluded.matches,
			outcome = excluded.outcome,
			rejected_reason = excluded.rejected_reason,
			retrieval_error = excluded.retrieval_error,
			updated_at = excluded.updated_at`,
		sessionID,
		e.Record.ID,
		e.Record.Seq,
		e.Record.ListName,
		e.Record.DisplayName,
		nullFloat(e.Record.Coordinates.Lat),
		nullFloat(e.Record.Coordinates.Lon),
		nullString(e.Record.Address),
		nullString(e.Record.CategoryHint),
		nullString(e.Record.Notes),
		string(e.State),
		matchesJSON,
		outcomeJSON,
		nullString(e.RejectedReason),
		nullString(e.RetrievalError),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", e.Record.ID, err)
	}

	switch change.Queue {
	case decision.QueuePush, decision.QueueRequeue:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO review_queue (session_id, record_id, position)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM review_queue WHERE session_id = ?))
			ON CONFLICT (session_id, record_id) DO UPDATE SET position = excluded.position`,
			sessionID, e.Record.ID, sessionID)
	case decision.QueueRemove:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM review_queue WHERE session_id = ? AND record_id = ?`,
			sessionID, e.Record.ID)
	}
	if err != nil {
		return fmt.Errorf("update review queue: %w", err)
	}

	return tx.Commit()
}

// LoadRecords returns a session's entries in source order and the review
// queue in FIFO order.
func (s *Store) LoadRecords(ctx context.Context, sessionID string) ([]domain.RecordEntry, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE session_id = ? ORDER BY seq, id`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var entries []domain.RecordEntry
	for rows.Next() {
		e, err := scanRecord(rows)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	qrows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM review_queue WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer qrows.Close()

	var queue []string
	for qrows.Next() {
		var id string
		if err := qrows.Scan(&id); err != nil {
			return nil, nil, err
		}
		queue = append(queue, id)
	}
	return entries, queue, qrows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (domain.RecordEntry, error) {
	var (
		e              domain.RecordEntry
		lat, lon       sql.NullFloat64
		address        sql.NullString
		categoryHint   sql.NullString
		notes          sql.NullString
		state          string
		matchesJSON    sql.NullString
		outcomeJSON    sql.NullString
		rejectedReason sql.NullString
		retrievalError sql.NullString
	)

	err := scanner.Scan(
		&e.Record.ID,
		&e.Record.Seq,
		&e.Record.ListName,
		&e.Record.DisplayName,
		&lat,
		&lon,
		&address,
		&categoryHint,
		&notes,
		&state,
		&matchesJSON,
		&outcomeJSON,
		&rejectedReason,
		&retrievalError,
	)
	if err != nil {
		return e, err
	}

	e.Record.Coordinates = domain.Coordinates{Lat: floatOrNaN(lat), Lon: floatOrNaN(lon)}
	e.Record.Address = address.String
	e.Record.CategoryHint = categoryHint.String
	e.Record.Notes = notes.String
	e.State = domain.RecordState(state)
	e.RejectedReason = rejectedReason.String
	e.RetrievalError = retrievalError.String

	if matchesJSON.Valid {
		if err := json.Unmarshal([]byte(matchesJSON.String), &e.Matches); err != nil {
			return e, fmt.Errorf("record %s: unmarshal matches: %w", e.Record.ID, err)
		}
	}
	if outcomeJSON.Valid {
		var o domain.Outcome
		if err := json.Unmarshal([]byte(outcomeJSON.String), &o); err != nil {
			return e, fmt.Errorf("record %s: unmarshal outcome: %w", e.Record.ID, err)
		}
		e.Outcome = &o
	}
	return e, nil
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
