package dto

import "time"

// EventType names a status event pushed to websocket clients.
type EventType string

const (
	EventRecording EventType = "recording"
	EventAnomaly   EventType = "anomaly"
	EventStarted   EventType = "started"
	EventStopping  EventType = "stopping"
)

// Event is the JSON envelope broadcast over /api/events.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	StreamID  string      `json:"stream_id,omitempty"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload,omitempty"`
}
