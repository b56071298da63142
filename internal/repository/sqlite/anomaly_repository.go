package sqlite

import (
	"fmt"

	"imgacquisition/internal/model"
)

// AnomalyRepository implements repository.AnomalyRepository for SQLite.
type AnomalyRepository struct {
	db *DB
}

// NewAnomalyRepository creates a new SQLite anomaly repository.
func NewAnomalyRepository(db *DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// Insert adds a new anomaly to the journal.
func (r *AnomalyRepository) Insert(a *model.Anomaly) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO anomalies (session_id, stream_id, kind, sequence, last_sequence, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.SessionID, a.StreamID, string(a.Kind), int64(a.Sequence), int64(a.LastSequence), a.Message, a.OccurredAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert anomaly: %w", err)
	}

	return result.LastInsertId()
}

// ListByStream returns a stream's anomalies, newest first.
func (r *AnomalyRepository) ListByStream(streamID string, limit int) ([]model.Anomaly, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, session_id, stream_id, kind, sequence, last_sequence, message, occurred_at
		FROM anomalies WHERE stream_id = ?
		ORDER BY occurred_at DESC, id DESC
	`
	args := []interface{}{streamID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		var kind string
		var seq, last int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StreamID, &kind, &seq, &last, &a.Message, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Kind = model.AnomalyKind(kind)
		a.Sequence, a.LastSequence = uint64(seq), uint64(last)
		a.OccurredAt = a.OccurredAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByKind tallies a session's anomalies. An empty session counts all.
func (r *AnomalyRepository) CountByKind(sessionID string) (map[model.AnomalyKind]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT kind, COUNT(*) FROM anomalies`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY kind`

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.AnomalyKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly count: %w", err)
		}
		counts[model.AnomalyKind(kind)] = n
	}
	return counts, rows.Err()
}
