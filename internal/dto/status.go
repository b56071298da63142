package dto

import (
	"time"

	"imgacquisition/internal/model"
)

// StreamStatus is one stream's queue view for /api/status.
type StreamStatus struct {
	ID            string `json:"id"`
	Camera        string `json:"camera"`
	Encoder       string `json:"encoder"`
	Queued        int    `json:"queued"`
	Capacity      int    `json:"capacity"`
	Pushed        uint64 `json:"pushed"`
	Popped        uint64 `json:"popped"`
	HighWater     int64  `json:"high_water"`
	BacklogBytes  int64  `json:"backlog_bytes"`
	FramesPerFile int    `json:"frames_per_file"`
}

// UnitStatus is one watchdog entry.
type UnitStatus struct {
	Name      string    `json:"name"`
	LastPulse time.Time `json:"last_pulse"`
	AgeMillis int64     `json:"age_ms"`
	Alive     bool      `json:"alive"`
}

// Status is the /api/status response.
type Status struct {
	SessionID string         `json:"session_id"`
	StartedAt time.Time      `json:"started_at"`
	Uptime    string         `json:"uptime"`
	Streams   []StreamStatus `json:"streams"`
	Units     []UnitStatus   `json:"units"`
	Journal   JournalStatus  `json:"journal"`
}

// JournalStatus reports the journal queue.
type JournalStatus struct {
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
}

// RecordingsPage is the /api/recordings response.
type RecordingsPage struct {
	Recordings []model.Recording `json:"recordings"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}
