package repository

import (
	"imgacquisition/internal/dto"
	"imgacquisition/internal/model"
)

// RecordingRepository defines the catalog of finalized recordings.
type RecordingRepository interface {
	// Create operations
	Insert(rec *model.Recording) (int64, error)
	InsertBatch(recs []model.Recording) (int, error)

	// Read operations
	GetByID(id int64) (*model.Recording, error)
	List(filter *dto.RecordingFilter) ([]model.Recording, error)
	Count(filter *dto.RecordingFilter) (int, error)
	StreamIDs() ([]string, error)

	// Delete operations
	DeleteByStream(streamID string) error
}

// AnomalyRepository defines the journal of stream anomalies.
type AnomalyRepository interface {
	Insert(a *model.Anomaly) (int64, error)
	ListByStream(streamID string, limit int) ([]model.Anomaly, error)
	CountByKind(sessionID string) (map[model.AnomalyKind]int, error)
}
