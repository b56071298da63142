package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"imgacquisition/internal/dto"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/repository"
)

// StatusSource reports the live state of the recorder.
type StatusSource interface {
	Status() dto.Status
}

// StatusHandler returns queue and watchdog state as JSON.
func StatusHandler(src StatusSource, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, src.Status())
	}
}

// RecordingsHandler lists cataloged recordings filtered by stream, session
// and start time, newest first.
func RecordingsHandler(repo repository.RecordingRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 50)
		if limit > 1000 {
			limit = 1000
		}

		filter := &dto.RecordingFilter{
			StreamID:  q.Get("stream"),
			SessionID: q.Get("session"),
			After:     parseTime(q.Get("after")),
			Before:    parseTime(q.Get("before")),
			Limit:     limit,
			Offset:    (page - 1) * limit,
		}

		recs, err := repo.List(filter)
		if err != nil {
			logger.Error("Error querying recordings: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		total, err := repo.Count(filter)
		if err != nil {
			logger.Error("Error counting recordings: %v", err)
			total = len(recs)
		}
		if recs == nil {
			recs = []model.Recording{}
		}

		writeJSON(w, logger, dto.RecordingsPage{
			Recordings: recs,
			Total:      total,
			Limit:      limit,
			Offset:     filter.Offset,
		})
	}
}

// AnomaliesHandler lists one stream's journaled anomalies.
func AnomaliesHandler(repo repository.AnomalyRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		stream := q.Get("stream")
		if stream == "" {
			http.Error(w, "stream is required", http.StatusBadRequest)
			return
		}

		list, err := repo.ListByStream(stream, atoiDefault(q.Get("limit"), 100))
		if err != nil {
			logger.Error("Error querying anomalies: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Anomaly{}
		}
		writeJSON(w, logger, list)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseTime accepts RFC 3339 or a plain "2006-01-02" date, both as UTC.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	return time.Time{}
}
