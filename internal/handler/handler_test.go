package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imgacquisition/internal/config"
	"imgacquisition/internal/dto"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/repository/sqlite"
)

// ========================================
// Helper Function Tests
// ========================================

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"1", 0, 1},
		{"", 5, 5},
		{"abc", 10, 10},
		{"-1", 5, 5},
		{"0", 5, 5},
		{"12.5", 5, 5},
	}

	for _, tt := range tests {
		result := atoiDefault(tt.input, tt.def)
		if result != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, result, tt.expected)
		}
	}
}

func TestParseTime(t *testing.T) {
	if got := parseTime("2026-02-03"); !got.Equal(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected date parse %v", got)
	}
	if got := parseTime("2026-02-03T04:05:06.5+01:00"); !got.Equal(time.Date(2026, 2, 3, 3, 5, 6, 500000000, time.UTC)) {
		t.Errorf("Unexpected RFC 3339 parse %v", got)
	}
	if got := parseTime("yesterday"); !got.IsZero() {
		t.Errorf("Expected zero time for garbage, got %v", got)
	}
}

// ========================================
// Handler Tests
// ========================================

type staticStatus dto.Status

func (s staticStatus) Status() dto.Status { return dto.Status(s) }

func TestStatusHandler(t *testing.T) {
	src := staticStatus{
		SessionID: "abc",
		Streams:   []dto.StreamStatus{{ID: "cam0", Queued: 3, Capacity: 10}},
	}
	rec := httptest.NewRecorder()
	StatusHandler(src, logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got dto.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.SessionID != "abc" || len(got.Streams) != 1 || got.Streams[0].Queued != 3 {
		t.Errorf("Unexpected status %+v", got)
	}
}

func TestRecordingsHandler(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewRecordingRepository(db)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * time.Minute)
		repo.Insert(&model.Recording{
			StreamID: "cam0", Start: start, End: start.Add(time.Minute), Frames: 360,
			VideoPath: filepath.Join("/out/cam0", start.Format(time.RFC3339)+".mp4"),
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/recordings?stream=cam0&limit=2&page=2", nil)
	RecordingsHandler(repo, logger.Discard())(rec, req)

	var page dto.RecordingsPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if page.Total != 3 || page.Limit != 2 || page.Offset != 2 {
		t.Errorf("Unexpected page header %+v", page)
	}
	if len(page.Recordings) != 1 || !page.Recordings[0].Start.Equal(base) {
		t.Errorf("Expected the oldest recording on page 2, got %+v", page.Recordings)
	}

	rec = httptest.NewRecorder()
	RecordingsHandler(repo, logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/api/recordings?stream=none", nil))
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if page.Recordings == nil || len(page.Recordings) != 0 {
		t.Errorf("Expected an empty list, got %+v", page.Recordings)
	}
}

func TestAnomaliesHandler_RequiresStream(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	rec := httptest.NewRecorder()
	AnomaliesHandler(sqlite.NewAnomalyRepository(db), logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/api/anomalies", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestLogHandlers(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDirectory: dir}

	rec := httptest.NewRecorder()
	ShowErrorLogsHandler(cfg)(rec, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing log, got %d", rec.Code)
	}

	if err := os.WriteFile(filepath.Join(dir, "info.log"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	rec = httptest.NewRecorder()
	ShowInfoLogsHandler(cfg)(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "hello\n" {
		t.Errorf("Unexpected log response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	ClearLogsHandler(logger.Discard(), "info.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/info/clear", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET clear, got %d", rec.Code)
	}
}
