package sqlite

import (
	"database/sql"
	"fmt"

	"imgacquisition/internal/dto"
	"imgacquisition/internal/model"
)

// RecordingRepository implements repository.RecordingRepository for SQLite.
type RecordingRepository struct {
	db *DB
}

// NewRecordingRepository creates a new SQLite recording repository.
func NewRecordingRepository(db *DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

const recordingColumns = `id, session_id, stream_id, start_time, end_time, frames, video_path, timestamps_path, video_size`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(s scanner) (model.Recording, error) {
	var rec model.Recording
	err := s.Scan(&rec.ID, &rec.SessionID, &rec.StreamID, &rec.Start, &rec.End,
		&rec.Frames, &rec.VideoPath, &rec.TimestampsPath, &rec.VideoSize)
	rec.Start = rec.Start.UTC()
	rec.End = rec.End.UTC()
	return rec, err
}

// Insert adds a new recording to the catalog.
func (r *RecordingRepository) Insert(rec *model.Recording) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO recordings (session_id, stream_id, start_time, end_time, frames, video_path, timestamps_path, video_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.StreamID, rec.Start.UTC(), rec.End.UTC(), rec.Frames, rec.VideoPath, rec.TimestampsPath, rec.VideoSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert recording: %w", err)
	}

	return result.LastInsertId()
}

// InsertBatch adds recordings in a single transaction, skipping video paths
// already in the catalog. It returns how many rows were added.
func (r *RecordingRepository) InsertBatch(recs []model.Recording) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO recordings (session_id, stream_id, start_time, end_time, frames, video_path, timestamps_path, video_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, rec := range recs {
		result, err := stmt.Exec(rec.SessionID, rec.StreamID, rec.Start.UTC(), rec.End.UTC(), rec.Frames, rec.VideoPath, rec.TimestampsPath, rec.VideoSize)
		if err != nil {
			return 0, fmt.Errorf("failed to insert recording: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// GetByID retrieves a recording by its ID.
func (r *RecordingRepository) GetByID(id int64) (*model.Recording, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rec, err := scanRecording(r.db.Conn().QueryRow(`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return &rec, nil
}

func filterClause(filter *dto.RecordingFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.StreamID != "" {
		query += " AND stream_id = ?"
		args = append(args, filter.StreamID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if !filter.After.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.After.UTC())
	}
	if !filter.Before.IsZero() {
		query += " AND start_time < ?"
		args = append(args, filter.Before.UTC())
	}
	return query, args
}

// List retrieves recordings matching the filter, newest first.
func (r *RecordingRepository) List(filter *dto.RecordingFilter) ([]model.Recording, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)
	query := `SELECT ` + recordingColumns + ` FROM recordings` + where + ` ORDER BY start_time DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	var recs []model.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// Count returns the number of recordings matching the filter.
func (r *RecordingRepository) Count(filter *dto.RecordingFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM recordings`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recordings: %w", err)
	}
	return count, nil
}

// StreamIDs lists every stream with at least one recording.
func (r *RecordingRepository) StreamIDs() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT stream_id FROM recordings ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stream id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByStream removes every catalog row for a stream. Files are untouched.
func (r *RecordingRepository) DeleteByStream(streamID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM recordings WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("failed to delete recordings: %w", err)
	}
	return nil
}
