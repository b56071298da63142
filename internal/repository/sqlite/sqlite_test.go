package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"imgacquisition/internal/dto"
	"imgacquisition/internal/model"
	"imgacquisition/internal/repository"
	"imgacquisition/internal/repository/sqlite"
)

var (
	_ repository.RecordingRepository = (*sqlite.RecordingRepository)(nil)
	_ repository.AnomalyRepository   = (*sqlite.AnomalyRepository)(nil)
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "catalog", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func recording(stream string, start time.Time, frames int) model.Recording {
	end := start.Add(time.Duration(frames) * time.Second)
	name := start.Format("20060102T150405")
	return model.Recording{
		SessionID:      "session-a",
		StreamID:       stream,
		Start:          start,
		End:            end,
		Frames:         frames,
		VideoPath:      filepath.Join("/out", stream, name+".mp4"),
		TimestampsPath: filepath.Join("/out", stream, name+".txt"),
		VideoSize:      int64(frames) * 1000,
	}
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_CreatesFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "recordings.db")

	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_MigrationIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		db, err := sqlite.New(dbPath)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		db.Close()
	}
}

// ========================================
// Recording Repository Tests
// ========================================

func TestRecordingRepository_InsertAndGet(t *testing.T) {
	repo := sqlite.NewRecordingRepository(openTestDB(t))

	start := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	rec := recording("cam0", start, 30)

	id, err := repo.Insert(&rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected recording, got nil")
	}
	if got.StreamID != "cam0" || got.Frames != 30 || got.VideoPath != rec.VideoPath {
		t.Errorf("Unexpected recording %+v", got)
	}
	if !got.Start.Equal(start) {
		t.Errorf("Start time mismatch: got %v, want %v", got.Start, start)
	}
}

func TestRecordingRepository_GetByIDMissing(t *testing.T) {
	repo := sqlite.NewRecordingRepository(openTestDB(t))

	got, err := repo.GetByID(42)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing id, got %+v", got)
	}
}

func TestRecordingRepository_ListFilterAndOrder(t *testing.T) {
	repo := sqlite.NewRecordingRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := recording("cam0", base.Add(time.Duration(i)*time.Hour), 10)
		if _, err := repo.Insert(&r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	other := recording("cam1", base, 10)
	repo.Insert(&other)

	recs, err := repo.List(&dto.RecordingFilter{StreamID: "cam0", Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(recs))
	}
	if !recs[0].Start.After(recs[1].Start) {
		t.Error("Expected newest first")
	}

	count, err := repo.Count(&dto.RecordingFilter{StreamID: "cam0"})
	if err != nil || count != 5 {
		t.Errorf("Expected 5 cam0 recordings, got %d (%v)", count, err)
	}

	after, _ := repo.Count(&dto.RecordingFilter{After: base.Add(3 * time.Hour)})
	if after != 2 {
		t.Errorf("Expected 2 recordings from 03:00, got %d", after)
	}

	all, _ := repo.Count(nil)
	if all != 6 {
		t.Errorf("Expected 6 recordings in total, got %d", all)
	}
}

func TestRecordingRepository_InsertBatchSkipsDuplicates(t *testing.T) {
	repo := sqlite.NewRecordingRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []model.Recording{
		recording("cam0", base, 3),
		recording("cam0", base.Add(time.Minute), 3),
	}

	added, err := repo.InsertBatch(batch)
	if err != nil || added != 2 {
		t.Fatalf("Expected 2 added, got %d (%v)", added, err)
	}

	batch = append(batch, recording("cam1", base, 3))
	added, err = repo.InsertBatch(batch)
	if err != nil || added != 1 {
		t.Errorf("Expected only the new recording to be added, got %d (%v)", added, err)
	}
}

func TestRecordingRepository_StreamIDsAndDelete(t *testing.T) {
	repo := sqlite.NewRecordingRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.InsertBatch([]model.Recording{
		recording("cam1", base, 1),
		recording("cam0", base, 1),
	})

	ids, err := repo.StreamIDs()
	if err != nil {
		t.Fatalf("StreamIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "cam0" || ids[1] != "cam1" {
		t.Errorf("Unexpected stream ids %v", ids)
	}

	if err := repo.DeleteByStream("cam0"); err != nil {
		t.Fatalf("DeleteByStream failed: %v", err)
	}
	ids, _ = repo.StreamIDs()
	if len(ids) != 1 || ids[0] != "cam1" {
		t.Errorf("Expected only cam1 left, got %v", ids)
	}
}

// ========================================
// Anomaly Repository Tests
// ========================================

func TestAnomalyRepository_InsertListCount(t *testing.T) {
	repo := sqlite.NewAnomalyRepository(openTestDB(t))

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	anomalies := []model.Anomaly{
		{SessionID: "s1", StreamID: "cam0", Kind: model.AnomalySequenceGap, Sequence: 4, LastSequence: 2, OccurredAt: now},
		{SessionID: "s1", StreamID: "cam0", Kind: model.AnomalySequenceGap, Sequence: 9, LastSequence: 7, OccurredAt: now.Add(time.Second)},
		{SessionID: "s1", StreamID: "cam1", Kind: model.AnomalyClockAhead, OccurredAt: now},
		{SessionID: "s2", StreamID: "cam0", Kind: model.AnomalyFinalize, OccurredAt: now},
	}
	for i := range anomalies {
		if _, err := repo.Insert(&anomalies[i]); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	list, err := repo.ListByStream("cam0", 2)
	if err != nil {
		t.Fatalf("ListByStream failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 anomalies, got %d", len(list))
	}
	if list[0].Sequence != 9 || list[0].LastSequence != 7 {
		t.Errorf("Expected newest gap first, got %+v", list[0])
	}

	counts, err := repo.CountByKind("s1")
	if err != nil {
		t.Fatalf("CountByKind failed: %v", err)
	}
	if counts[model.AnomalySequenceGap] != 2 || counts[model.AnomalyClockAhead] != 1 || counts[model.AnomalyFinalize] != 0 {
		t.Errorf("Unexpected counts %v", counts)
	}

	all, _ := repo.CountByKind("")
	if all[model.AnomalyFinalize] != 1 {
		t.Errorf("Expected finalize anomaly across sessions, got %v", all)
	}
}
