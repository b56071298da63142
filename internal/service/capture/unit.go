// Package capture runs the per-camera acquisition loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imgacquisition/internal/camera"
	"imgacquisition/internal/config"
	"imgacquisition/internal/frame"
	"imgacquisition/internal/imaging"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/service/stream"
	"imgacquisition/internal/service/timestamp"
	"imgacquisition/internal/service/watchdog"
)

// FlushFrames is how many frames after start are reconciled but dropped,
// clearing whatever the driver buffered before acquisition began.
const FlushFrames = 10

// AnomalySink receives warning-level events. It must not block.
type AnomalySink interface {
	RecordAnomaly(a model.Anomaly)
}

// Unit owns one camera, its Reconciler and the stream it feeds.
type Unit struct {
	config     config.StreamConfig
	backend    camera.Backend
	stream     *stream.ImageStream
	reconciler *timestamp.Reconciler
	watchdog   *watchdog.Watchdog
	handle     watchdog.Handle
	journal    AnomalySink
	logger     *logger.Logger
	now        func() time.Time

	flushed  int
	mismatch [2]int
}

// New creates a Unit. The watchdog and journal may be nil.
func New(cfg config.StreamConfig, backend camera.Backend, s *stream.ImageStream,
	wd *watchdog.Watchdog, journal AnomalySink, logger *logger.Logger) *Unit {
	u := &Unit{
		config:     cfg,
		backend:    backend,
		stream:     s,
		reconciler: timestamp.New(),
		watchdog:   wd,
		journal:    journal,
		logger:     logger,
		now:        time.Now,
	}
	if wd != nil {
		u.handle = wd.Watch("capture/" + cfg.ID)
	}
	return u
}

// Start applies the stream's camera parameters and begins acquisition.
func (u *Unit) Start() error {
	if err := u.backend.Configure(camera.ParamsFromConfig(u.config)); err != nil {
		return fmt.Errorf("stream %s: configure %s %s: %w", u.config.ID, u.config.Camera, u.config.Serial, err)
	}
	if err := u.backend.StartCapture(); err != nil {
		return fmt.Errorf("stream %s: start %s %s: %w", u.config.ID, u.config.Camera, u.config.Serial, err)
	}
	u.logger.Info("📷 Stream %s: %s %s capturing %dx%d (trigger %s)",
		u.config.ID, u.config.Camera, u.config.Serial, u.config.ROI.Width, u.config.ROI.Height, u.config.Trigger.Mode)
	return nil
}

// Run acquires frames until ctx is cancelled or the camera faults. The
// end-of-stream sentinel is pushed on every exit path.
func (u *Unit) Run(ctx context.Context) error {
	defer func() {
		// Writers may take longer than the watchdog timeout to drain what
		// this unit queued.
		if u.watchdog != nil {
			u.watchdog.Unwatch(u.handle)
		}
		u.stream.Push(frame.EndOfStream())
		if cerr := u.backend.Close(); cerr != nil {
			u.logger.Error("Stream %s: closing camera: %v", u.config.ID, cerr)
		}
		u.logger.Info("Stream %s: capture stopped after %d frames", u.config.ID, u.reconciler.Frames())
	}()

	timeout := u.config.RetrieveTimeout
	slow := 2 * u.config.FramePeriod()

	for {
		if ctx.Err() != nil {
			return nil
		}
		u.pulse()

		raw, err := u.backend.RetrieveFrame(timeout)
		if errors.Is(err, camera.ErrTimeout) {
			if !u.config.HardwareTriggered() {
				u.logger.Warning("Stream %s: no frame within %v", u.config.ID, timeout)
				u.record(model.Anomaly{Kind: model.AnomalyRetrieveTimeout, Message: fmt.Sprintf("no frame within %v", timeout)})
			}
			continue
		}
		if err != nil {
			u.logger.Critical("Stream %s: camera fault: %v", u.config.ID, err)
			return fmt.Errorf("stream %s: %w", u.config.ID, err)
		}

		began := u.now()
		hw := timestamp.TicksToDuration(raw.Ticks, u.backend.TicksToNanoseconds())
		ts, anomalies := u.reconciler.Reconcile(raw.Sequence, hw, began)
		u.report(anomalies)

		if u.flushed < FlushFrames {
			u.flushed++
			continue
		}

		data, ok := u.fit(raw)
		if !ok {
			continue
		}
		u.stream.Push(frame.Wrap(uint(u.config.ROI.Width), uint(u.config.ROI.Height), ts, data))

		if elapsed := u.now().Sub(began); elapsed > slow {
			u.logger.Warning("Stream %s: frame took %v to process (budget %v)", u.config.ID, elapsed, slow)
			u.record(model.Anomaly{Kind: model.AnomalySlowIteration, Message: fmt.Sprintf("processing took %v", elapsed)})
		}
	}
}

// fit returns a freshly allocated buffer of the configured size.
func (u *Unit) fit(raw camera.RawFrame) ([]byte, bool) {
	w, h := u.config.ROI.Width, u.config.ROI.Height

	if raw.Width == w && raw.Height == h {
		if len(raw.Data) < w*h {
			u.logger.Critical("Stream %s: frame holds %d bytes, %dx%d needs %d", u.config.ID, len(raw.Data), w, h, w*h)
			return nil, false
		}
		data := make([]byte, w*h)
		copy(data, raw.Data)
		return data, true
	}

	if imaging.Fits(raw.Width, raw.Height, w, h) {
		data, err := imaging.CenterCrop(raw.Data, raw.Width, raw.Height, w, h)
		if err != nil {
			u.logger.Critical("Stream %s: %v", u.config.ID, err)
			return nil, false
		}
		return data, true
	}

	if u.mismatch != [2]int{raw.Width, raw.Height} {
		u.mismatch = [2]int{raw.Width, raw.Height}
		u.logger.Critical("Stream %s: camera delivered %dx%d, expected %dx%d; resizing",
			u.config.ID, raw.Width, raw.Height, w, h)
		u.record(model.Anomaly{Kind: model.AnomalyUnexpectedSize,
			Message: fmt.Sprintf("delivered %dx%d, expected %dx%d", raw.Width, raw.Height, w, h)})
	}
	data, err := imaging.Resize(raw.Data, raw.Width, raw.Height, w, h)
	if err != nil {
		u.logger.Critical("Stream %s: %v", u.config.ID, err)
		return nil, false
	}
	return data, true
}

func (u *Unit) report(a timestamp.Anomalies) {
	if a.SequenceGap {
		missing := a.Sequence - a.LastSequence - 1
		if a.Sequence <= a.LastSequence {
			missing = 0
		}
		msg := fmt.Sprintf("frame %d after %d (%d missing)", a.Sequence, a.LastSequence, missing)
		if lc, ok := u.backend.(camera.LossCounter); ok {
			if transport, api, err := lc.SkippedFrames(); err == nil {
				msg += fmt.Sprintf(", skipped transport=%d api=%d", transport, api)
			}
		}
		u.logger.Warning("Stream %s: sequence gap, %s", u.config.ID, msg)
		u.record(model.Anomaly{
			Kind:         model.AnomalySequenceGap,
			Sequence:     a.Sequence,
			LastSequence: a.LastSequence,
			Message:      msg,
		})
	}
	if a.ClockAhead {
		msg := fmt.Sprintf("camera clock ran %v ahead of wall clock", a.Drift)
		u.logger.Warning("Stream %s: %s", u.config.ID, msg)
		u.record(model.Anomaly{Kind: model.AnomalyClockAhead, Message: msg})
	}
}

func (u *Unit) record(a model.Anomaly) {
	if u.journal == nil {
		return
	}
	a.StreamID = u.config.ID
	if a.OccurredAt.IsZero() {
		a.OccurredAt = u.now().UTC()
	}
	u.journal.RecordAnomaly(a)
}

func (u *Unit) pulse() {
	if u.watchdog != nil {
		u.watchdog.Pulse(u.handle)
	}
}

func (u *Unit) ID() string {
	return u.config.ID
}

func (u *Unit) Stream() *stream.ImageStream {
	return u.stream
}

// Close releases the camera of a unit that never ran. Run closes it otherwise.
func (u *Unit) Close() error {
	return u.backend.Close()
}
