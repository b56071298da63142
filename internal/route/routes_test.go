package route

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"imgacquisition/internal/config"
	"imgacquisition/internal/dto"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/repository/sqlite"
	"imgacquisition/internal/service/websocket"
)

type fixedStatus struct{}

func (fixedStatus) Status() dto.Status {
	return dto.Status{SessionID: "s1"}
}

func setup(t *testing.T, token string) http.Handler {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.Discard()
	return SetupRoutes(Deps{
		Config:     &config.Config{LogDirectory: t.TempDir(), StatusToken: token},
		Logger:     log,
		Status:     fixedStatus{},
		Hub:        websocket.NewHubService(1, log),
		Recordings: sqlite.NewRecordingRepository(db),
		Anomalies:  sqlite.NewAnomalyRepository(db),
	})
}

func TestSetupRoutes_TokenRequired(t *testing.T) {
	h := setup(t, "secret")

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no token", "/api/status", "", http.StatusUnauthorized},
		{"wrong token", "/api/status", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "/api/status", "Bearer secret", http.StatusOK},
		{"query", "/api/recordings?token=secret", "", http.StatusOK},
		{"anomalies need a stream", "/api/anomalies?token=secret", "", http.StatusBadRequest},
		{"unknown path", "/nothing?token=secret", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s: expected %d, got %d", tt.path, tt.want, rec.Code)
			}
		})
	}
}

func TestSetupRoutes_OpenWithoutToken(t *testing.T) {
	h := setup(t, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
