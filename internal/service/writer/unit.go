// Package writer drains image streams into rotating video files.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imgacquisition/internal/config"
	"imgacquisition/internal/encoder"
	"imgacquisition/internal/frame"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/service/stream"
	"imgacquisition/internal/service/watchdog"
)

const (
	// IdlePoll bounds the wait when every stream is empty.
	IdlePoll = 500 * time.Microsecond
	// framePoll bounds each wait for the next frame inside a file so the
	// writer keeps pulsing while a stream is quiet.
	framePoll = 100 * time.Millisecond

	VideoExt      = ".mp4"
	TimestampsExt = ".txt"
)

// Publisher receives finished recordings and finalization anomalies. It must
// not block.
type Publisher interface {
	RecordRecording(r model.Recording)
	RecordAnomaly(a model.Anomaly)
}

// Unit owns every stream that shares one encoder identity and writes one file
// at a time, always from the stream with the largest backlog.
type Unit struct {
	name     string
	encoder  config.EncoderConfig
	factory  encoder.Factory
	streams  []*stream.ImageStream
	ended    []bool
	started  []time.Time
	tempDir  string
	outDir   string
	wake     chan struct{}
	watchdog *watchdog.Watchdog
	handle   watchdog.Handle
	journal  Publisher
	logger   *logger.Logger
	now      func() time.Time

	files int
}

// New creates a Unit draining streams in registration order. The watchdog and
// journal may be nil.
func New(name string, enc config.EncoderConfig, factory encoder.Factory, streams []*stream.ImageStream,
	tempDir, outDir string, wd *watchdog.Watchdog, journal Publisher, logger *logger.Logger) *Unit {
	u := &Unit{
		name:     name,
		encoder:  enc,
		factory:  factory,
		streams:  streams,
		ended:    make([]bool, len(streams)),
		started:  make([]time.Time, len(streams)),
		tempDir:  tempDir,
		outDir:   outDir,
		wake:     make(chan struct{}, 1),
		watchdog: wd,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
	for _, s := range streams {
		s.Wake(u.wake)
	}
	if wd != nil {
		u.handle = wd.Watch("writer/" + name)
	}
	return u
}

// Run writes files until every stream has delivered its end-of-stream
// sentinel. Frames queued before a sentinel are always drained, so Run keeps
// going after ctx is cancelled until the capture side has finished.
func (u *Unit) Run(ctx context.Context) error {
	u.logger.Info("🎞️ Writer %s: draining %d stream(s)", u.name, len(u.streams))
	defer func() {
		if u.watchdog != nil {
			u.watchdog.Unwatch(u.handle)
		}
		u.logger.Info("Writer %s: stopped after %d file(s)", u.name, u.files)
	}()

	idle := time.NewTimer(IdlePoll)
	defer idle.Stop()

	done := ctx.Done()

	for {
		u.pulse()
		if u.allEnded() {
			return nil
		}

		i := u.pick()
		if i < 0 {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(IdlePoll)
			select {
			case <-u.wake:
			case <-idle.C:
			case <-done:
				done = nil
				u.logger.Info("Writer %s: shutdown requested, draining until every stream ends", u.name)
			}
			continue
		}

		u.rotate(i)
	}
}

// pick returns the index of the live stream with the largest backlog, the
// first registered on ties, or -1 when all are empty.
func (u *Unit) pick() int {
	best, bestBacklog := -1, int64(0)
	for i, s := range u.streams {
		if u.ended[i] {
			continue
		}
		if b := s.BacklogBytes(); b > bestBacklog {
			best, bestBacklog = i, b
		}
	}
	return best
}

func (u *Unit) allEnded() bool {
	for _, e := range u.ended {
		if !e {
			return false
		}
	}
	return true
}

// next blocks for the next frame of stream i, pulsing while it waits.
func (u *Unit) next(i int) frame.Captured {
	for {
		u.pulse()
		if f, ok := u.streams[i].PopTimeout(framePoll); ok {
			return f
		}
	}
}

func (u *Unit) endStream(i int) {
	u.ended[i] = true
	u.logger.Info("Writer %s: stream %s ended", u.name, u.streams[i].ID())
}

// rotate writes one file from stream i.
func (u *Unit) rotate(i int) {
	s := u.streams[i]
	cfg := s.Config()

	first := s.Pop()
	u.pulse()
	if first.IsEndOfStream() {
		u.endStream(i)
		return
	}

	// Files are named by wall-clock time at both ends; frame timestamps only
	// go to the timestamp log.
	start := u.now().UTC().Truncate(time.Microsecond)
	if !start.After(u.started[i]) {
		start = u.started[i].Add(time.Microsecond)
	}
	u.started[i] = start
	base := frame.FormatTimestamp(start)
	dir := filepath.Join(u.tempDir, s.ID())
	videoTmp := filepath.Join(dir, base+VideoExt)
	stampsTmp := filepath.Join(dir, base+TimestampsExt)

	w, stamps, err := u.open(dir, videoTmp, stampsTmp, cfg)
	if err != nil {
		u.logger.Critical("Writer %s: stream %s: %v; discarding %d frame(s)", u.name, s.ID(), err, cfg.FramesPerFile)
		u.record(model.Anomaly{StreamID: s.ID(), Kind: model.AnomalyEncoderOpen, Message: err.Error()})
		u.discard(i, cfg.FramesPerFile-1)
		return
	}

	consumed, frames, interrupted := 0, 0, false
	for f := first; ; {
		consumed++
		if err := w.Write(f.Data); err != nil {
			u.logger.Error("Writer %s: stream %s: %v", u.name, s.ID(), err)
		} else {
			if _, err := stamps.WriteString(frame.FormatTimestamp(f.Timestamp) + "\n"); err != nil {
				u.logger.Error("Writer %s: stream %s: timestamp log: %v", u.name, s.ID(), err)
			}
			frames++
		}

		if consumed >= cfg.FramesPerFile {
			break
		}
		f = u.next(i)
		if f.IsEndOfStream() {
			interrupted = true
			u.endStream(i)
			break
		}
	}

	if err := w.Close(); err != nil {
		u.logger.Critical("Writer %s: stream %s: %v", u.name, s.ID(), err)
	}
	if err := stamps.Close(); err != nil {
		u.logger.Critical("Writer %s: stream %s: closing %s: %v", u.name, s.ID(), stampsTmp, err)
	}
	u.logger.Info("Writer %s: wrote %d frame(s) to %s", u.name, frames, videoTmp)

	if interrupted {
		u.logger.Warning("Writer %s: stream %s ended mid-file, leaving %s in %s", u.name, s.ID(), base, dir)
		return
	}

	u.finalize(s.ID(), base, videoTmp, stampsTmp, start, frames)
}

func (u *Unit) open(dir, videoPath, stampsPath string, cfg config.StreamConfig) (encoder.Writer, *os.File, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, nil, fmt.Errorf("create temp directory: %w", err)
	}
	w, err := u.factory.Open(encoder.ParamsFor(videoPath, u.encoder, cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open encoder: %w", err)
	}
	stamps, err := os.Create(stampsPath)
	if err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("open timestamp log: %w", err)
	}
	return w, stamps, nil
}

// discard drops up to n frames of stream i, stopping at the sentinel.
func (u *Unit) discard(i, n int) {
	for ; n > 0; n-- {
		if f := u.next(i); f.IsEndOfStream() {
			u.endStream(i)
			return
		}
	}
}

// finalize moves a finished pair into the output tree. A failed move leaves
// the pair in the temp directory and the loop carries on.
func (u *Unit) finalize(streamID, base, videoTmp, stampsTmp string, start time.Time, frames int) {
	end := u.now().UTC().Truncate(time.Microsecond)
	if end.Before(start) {
		end = start
	}
	name := base + "--" + frame.FormatTimestamp(end)
	dir := filepath.Join(u.outDir, streamID)
	video := filepath.Join(dir, name+VideoExt)
	stamps := filepath.Join(dir, name+TimestampsExt)

	fail := func(err error) {
		u.logger.Critical("Writer %s: stream %s: finalizing %s: %v", u.name, streamID, base, err)
		u.record(model.Anomaly{StreamID: streamID, Kind: model.AnomalyFinalize, Message: err.Error()})
	}

	if err := os.MkdirAll(dir, 0775); err != nil {
		fail(err)
		return
	}
	if err := os.Rename(videoTmp, video); err != nil {
		fail(err)
		return
	}
	if err := os.Rename(stampsTmp, stamps); err != nil {
		fail(err)
		return
	}

	var size int64
	if info, err := os.Stat(video); err == nil {
		size = info.Size()
	}
	u.files++
	u.logger.Info("Writer %s: stream %s finalized %s", u.name, streamID, name)

	if u.journal != nil {
		u.journal.RecordRecording(model.Recording{
			StreamID:       streamID,
			Start:          start,
			End:            end,
			Frames:         frames,
			VideoPath:      video,
			TimestampsPath: stamps,
			VideoSize:      size,
		})
	}
}

func (u *Unit) record(a model.Anomaly) {
	if u.journal == nil {
		return
	}
	u.journal.RecordAnomaly(a)
}

func (u *Unit) pulse() {
	if u.watchdog != nil {
		u.watchdog.Pulse(u.handle)
	}
}

func (u *Unit) Name() string {
	return u.name
}
