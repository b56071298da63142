package dto

import "time"

// RecordingFilter narrows catalog queries.
type RecordingFilter struct {
	StreamID  string
	SessionID string
	After     time.Time
	Before    time.Time
	Limit     int
	Offset    int
}
