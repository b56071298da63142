package model

import "time"

// AnomalyKind classifies a logged irregularity.
type AnomalyKind string

const (
	AnomalySequenceGap     AnomalyKind = "sequence_gap"
	AnomalyClockAhead      AnomalyKind = "clock_ahead"
	AnomalyUnexpectedSize  AnomalyKind = "unexpected_size"
	AnomalyRetrieveTimeout AnomalyKind = "retrieve_timeout"
	AnomalySlowIteration   AnomalyKind = "slow_iteration"
	AnomalyEncoderOpen     AnomalyKind = "encoder_open"
	AnomalyFinalize        AnomalyKind = "finalize"
)

// Anomaly is a warning-level event about one stream.
type Anomaly struct {
	ID           int64       `json:"id"`
	SessionID    string      `json:"session_id"`
	StreamID     string      `json:"stream_id"`
	Kind         AnomalyKind `json:"kind"`
	Sequence     uint64      `json:"sequence,omitempty"`
	LastSequence uint64      `json:"last_sequence,omitempty"`
	Message      string      `json:"message"`
	OccurredAt   time.Time   `json:"occurred_at"`
}
