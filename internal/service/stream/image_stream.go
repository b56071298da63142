// Package stream implements the bounded frame channel between one capture
// unit and one writer unit.
package stream

import (
	"sync/atomic"
	"time"

	"imgacquisition/internal/config"
	"imgacquisition/internal/frame"
)

// ImageStream is a FIFO of captured frames with a fixed capacity. Push blocks
// while the queue is full, Pop blocks while it is empty. There is exactly one
// producer and one consumer.
type ImageStream struct {
	id     string
	config config.StreamConfig
	queue  chan frame.Captured
	wake   atomic.Pointer[chan struct{}]

	pushed    atomic.Uint64
	popped    atomic.Uint64
	highWater atomic.Int64
}

// Stats is a point-in-time view of a stream's counters.
type Stats struct {
	ID        string `json:"id"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Pushed    uint64 `json:"pushed"`
	Popped    uint64 `json:"popped"`
	HighWater int64  `json:"high_water"`
}

// New creates a stream whose capacity comes from the stream's queue byte budget.
func New(cfg config.StreamConfig) *ImageStream {
	return NewWithCapacity(cfg, cfg.QueueFrames())
}

// NewWithCapacity creates a stream holding at most capacity frames.
func NewWithCapacity(cfg config.StreamConfig, capacity int) *ImageStream {
	if capacity < 1 {
		capacity = 1
	}
	return &ImageStream{
		id:     cfg.ID,
		config: cfg,
		queue:  make(chan frame.Captured, capacity),
	}
}

func (s *ImageStream) ID() string {
	return s.id
}

// Config returns the stream's immutable configuration.
func (s *ImageStream) Config() config.StreamConfig {
	return s.config
}

// Push appends f, blocking while the stream is full. Ownership of f passes to
// the stream.
func (s *ImageStream) Push(f frame.Captured) {
	s.queue <- f
	s.pushed.Add(1)

	if n := int64(len(s.queue)); n > s.highWater.Load() {
		s.highWater.Store(n)
	}

	if wake := s.wake.Load(); wake != nil {
		select {
		case *wake <- struct{}{}:
		default:
		}
	}
}

// Pop removes and returns the oldest frame, blocking while the stream is empty.
func (s *ImageStream) Pop() frame.Captured {
	f := <-s.queue
	s.popped.Add(1)
	return f
}

// PopTimeout is Pop with a deadline. The boolean is false on timeout.
func (s *ImageStream) PopTimeout(d time.Duration) (frame.Captured, bool) {
	select {
	case f := <-s.queue:
		s.popped.Add(1)
		return f, true
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case f := <-s.queue:
		s.popped.Add(1)
		return f, true
	case <-timer.C:
		return frame.Captured{}, false
	}
}

// Size is the number of queued frames. It is only a snapshot and may be stale
// by the time the caller reads it.
func (s *ImageStream) Size() int {
	return len(s.queue)
}

// Capacity is the maximum number of queued frames.
func (s *ImageStream) Capacity() int {
	return cap(s.queue)
}

// BacklogBytes is Size times the configured frame area.
func (s *ImageStream) BacklogBytes() int64 {
	return int64(s.Size()) * int64(s.config.ROI.Width) * int64(s.config.ROI.Height)
}

// Wake registers a channel that receives a non-blocking signal on every push.
// A writer shares one channel across all the streams it drains.
func (s *ImageStream) Wake(ch chan struct{}) {
	s.wake.Store(&ch)
}

func (s *ImageStream) Stats() Stats {
	return Stats{
		ID:        s.id,
		Queued:    s.Size(),
		Capacity:  s.Capacity(),
		Pushed:    s.pushed.Load(),
		Popped:    s.popped.Load(),
		HighWater: s.highWater.Load(),
	}
}
