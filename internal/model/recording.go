package model

import "time"

// Recording is one finalized video/timestamp file pair in the output tree.
type Recording struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	StreamID       string    `json:"stream_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Frames         int       `json:"frames"`
	VideoPath      string    `json:"video_path"`
	TimestampsPath string    `json:"timestamps_path"`
	VideoSize      int64     `json:"video_size"`
}

// Duration is the wall-clock span covered by the file pair.
func (r Recording) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
