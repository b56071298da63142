// Package frame defines the captured-frame value passed from capture units to
// writer units.
package frame

import "time"

// TimestampLayout is the UTC microsecond format used in file names and
// timestamp logs.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Captured is one grayscale frame, one byte per pixel. It is not modified
// after construction; whoever holds it owns it.
type Captured struct {
	Width     uint
	Height    uint
	Timestamp time.Time
	Data      []byte
}

// New copies data into a freshly allocated frame. The timestamp is truncated
// to microseconds and converted to UTC.
func New(width, height uint, ts time.Time, data []byte) Captured {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Captured{
		Width:     width,
		Height:    height,
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		Data:      buf,
	}
}

// Wrap is New without the copy. The caller gives up data.
func Wrap(width, height uint, ts time.Time, data []byte) Captured {
	return Captured{
		Width:     width,
		Height:    height,
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		Data:      data,
	}
}

// EndOfStream returns the sentinel that tells the consumer no more frames follow.
func EndOfStream() Captured {
	return Captured{}
}

// IsEndOfStream reports whether f is the sentinel.
func (f Captured) IsEndOfStream() bool {
	return len(f.Data) == 0
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
