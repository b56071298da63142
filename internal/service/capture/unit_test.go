package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imgacquisition/internal/camera"
	"imgacquisition/internal/config"
	"imgacquisition/internal/frame"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/service/stream"
	"imgacquisition/internal/service/watchdog"
)

// fakeBackend replays scripted frames, then times out until closed.
type fakeBackend struct {
	mu         sync.Mutex
	frames     []camera.RawFrame
	failAfter  error
	configured camera.Params
	started    bool
	closed     bool
	skipped    uint64
}

func (b *fakeBackend) Configure(p camera.Params) error {
	b.configured = p
	return nil
}

func (b *fakeBackend) StartCapture() error {
	b.started = true
	return nil
}

func (b *fakeBackend) RetrieveFrame(timeout time.Duration) (camera.RawFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		if b.failAfter != nil {
			return camera.RawFrame{}, b.failAfter
		}
		time.Sleep(time.Millisecond)
		return camera.RawFrame{}, camera.ErrTimeout
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	return f, nil
}

func (b *fakeBackend) TicksToNanoseconds() float64 {
	return 1000
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBackend) SkippedFrames() (uint64, uint64, error) {
	return b.skipped, 0, nil
}

func (b *fakeBackend) drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames) == 0
}

type collectingSink struct {
	mu        sync.Mutex
	anomalies []model.Anomaly
}

func (s *collectingSink) RecordAnomaly(a model.Anomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, a)
}

func (s *collectingSink) byKind(kind model.AnomalyKind) []model.Anomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Anomaly
	for _, a := range s.anomalies {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func streamConfig(w, h int) config.StreamConfig {
	return config.StreamConfig{
		ID:              "cam0",
		Camera:          "sim",
		ROI:             config.ROI{Width: w, Height: h},
		Trigger:         config.Trigger{Mode: config.TriggerHardware},
		FPS:             6,
		FramesPerFile:   10,
		RetrieveTimeout: 10 * time.Millisecond,
	}
}

// scripted builds n frames with consecutive sequence numbers 1..n and
// microsecond ticks 100ms apart.
func scripted(n, w, h int, fill func(i int) byte) []camera.RawFrame {
	out := make([]camera.RawFrame, n)
	for i := range out {
		data := make([]byte, w*h)
		for j := range data {
			data[j] = fill(i)
		}
		out[i] = camera.RawFrame{
			Width:    w,
			Height:   h,
			Data:     data,
			Sequence: uint64(i + 1),
			Ticks:    uint64(i+1) * 100_000,
		}
	}
	return out
}

// runUntilDrained runs u until the backend has nothing left, then cancels.
func runUntilDrained(t *testing.T, u *Unit, b *fakeBackend) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !b.drained() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
		return nil
	}
}

func drain(s *stream.ImageStream) []frame.Captured {
	var out []frame.Captured
	for s.Size() > 0 {
		out = append(out, s.Pop())
	}
	return out
}

func TestUnit_StartConfiguresBackend(t *testing.T) {
	cfg := streamConfig(8, 4)
	cfg.ROI.OffsetX = 16
	b := &fakeBackend{}
	u := New(cfg, b, stream.NewWithCapacity(cfg, 4), nil, nil, logger.Discard())

	if err := u.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !b.started || b.configured.OffsetX != 16 || !b.configured.Trigger.Hardware {
		t.Errorf("Backend not configured from stream: %+v", b.configured)
	}
}

func TestUnit_FlushesStartupFramesAndPushesSentinel(t *testing.T) {
	cfg := streamConfig(8, 4)
	b := &fakeBackend{frames: scripted(15, 8, 4, func(i int) byte { return byte(i) })}
	s := stream.NewWithCapacity(cfg, 64)
	u := New(cfg, b, s, nil, nil, logger.Discard())

	if err := runUntilDrained(t, u, b); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	frames := drain(s)
	if len(frames) != 6 {
		t.Fatalf("Expected 5 frames plus sentinel, got %d", len(frames))
	}
	for i, f := range frames[:5] {
		if f.IsEndOfStream() {
			t.Fatalf("Frame %d is a premature sentinel", i)
		}
		if f.Data[0] != byte(FlushFrames+i) {
			t.Errorf("Frame %d: expected scripted frame %d, got %d", i, FlushFrames+i, f.Data[0])
		}
		if f.Width != 8 || f.Height != 4 || len(f.Data) != 32 {
			t.Errorf("Frame %d: unexpected geometry", i)
		}
	}
	if !frames[5].IsEndOfStream() {
		t.Error("Expected sentinel last")
	}
	if !b.closed {
		t.Error("Backend should be closed on exit")
	}
}

func TestUnit_TimestampsFollowHardwareClock(t *testing.T) {
	cfg := streamConfig(2, 2)
	b := &fakeBackend{frames: scripted(13, 2, 2, func(int) byte { return 1 })}
	s := stream.NewWithCapacity(cfg, 64)
	u := New(cfg, b, s, nil, nil, logger.Discard())

	runUntilDrained(t, u, b)
	frames := drain(s)

	for i := 1; i < 3; i++ {
		delta := frames[i].Timestamp.Sub(frames[i-1].Timestamp)
		if delta != 100*time.Millisecond {
			t.Errorf("Frame %d: expected 100ms after previous, got %v", i, delta)
		}
	}
}

func TestUnit_CropsLargerFrames(t *testing.T) {
	cfg := streamConfig(4, 2)
	frames := scripted(FlushFrames+1, 6, 4, func(int) byte { return 0 })
	last := frames[FlushFrames].Data
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			last[y*6+x] = byte(y*10 + x)
		}
	}
	b := &fakeBackend{frames: frames}
	s := stream.NewWithCapacity(cfg, 8)
	u := New(cfg, b, s, nil, nil, logger.Discard())

	runUntilDrained(t, u, b)
	out := drain(s)
	if len(out) != 2 {
		t.Fatalf("Expected 1 frame plus sentinel, got %d", len(out))
	}

	want := []byte{11, 12, 13, 14, 21, 22, 23, 24}
	got := out[0].Data
	if len(got) != len(want) {
		t.Fatalf("Expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected centered window %v, got %v", want, got)
		}
	}
}

func TestUnit_ReportsSequenceGap(t *testing.T) {
	cfg := streamConfig(2, 2)
	frames := scripted(12, 2, 2, func(int) byte { return 1 })
	frames[11].Sequence = 14
	b := &fakeBackend{frames: frames, skipped: 2}
	sink := &collectingSink{}
	u := New(cfg, b, stream.NewWithCapacity(cfg, 16), nil, sink, logger.Discard())

	runUntilDrained(t, u, b)

	gaps := sink.byKind(model.AnomalySequenceGap)
	if len(gaps) != 1 {
		t.Fatalf("Expected one gap, got %d", len(gaps))
	}
	if gaps[0].Sequence != 14 || gaps[0].LastSequence != 11 || gaps[0].StreamID != "cam0" {
		t.Errorf("Unexpected gap %+v", gaps[0])
	}
}

func TestUnit_SoftwareTimeoutIsWarned(t *testing.T) {
	cfg := streamConfig(2, 2)
	cfg.Trigger.Mode = config.TriggerSoftware
	b := &fakeBackend{}
	sink := &collectingSink{}
	u := New(cfg, b, stream.NewWithCapacity(cfg, 4), nil, sink, logger.Discard())

	runUntilDrained(t, u, b)
	if len(sink.byKind(model.AnomalyRetrieveTimeout)) == 0 {
		t.Error("Expected retrieve timeouts to be reported in software mode")
	}
}

func TestUnit_HardwareTimeoutIsSilent(t *testing.T) {
	cfg := streamConfig(2, 2)
	b := &fakeBackend{}
	sink := &collectingSink{}
	u := New(cfg, b, stream.NewWithCapacity(cfg, 4), nil, sink, logger.Discard())

	runUntilDrained(t, u, b)
	if n := len(sink.byKind(model.AnomalyRetrieveTimeout)); n != 0 {
		t.Errorf("Hardware-triggered timeouts must be silent, got %d", n)
	}
}

func TestUnit_FaultIsFatalAndStillEndsStream(t *testing.T) {
	cfg := streamConfig(2, 2)
	fault := errors.New("driver wedged")
	b := &fakeBackend{frames: scripted(FlushFrames+2, 2, 2, func(int) byte { return 1 }), failAfter: fault}
	s := stream.NewWithCapacity(cfg, 8)
	u := New(cfg, b, s, nil, nil, logger.Discard())

	err := u.Run(context.Background())
	if !errors.Is(err, fault) {
		t.Fatalf("Expected wrapped fault, got %v", err)
	}

	out := drain(s)
	if len(out) != 3 || !out[2].IsEndOfStream() {
		t.Errorf("Expected 2 frames and a sentinel, got %d entries", len(out))
	}
}

func TestUnit_ResizesMismatchedFramesAndReportsOnce(t *testing.T) {
	cfg := streamConfig(8, 4)
	// Narrower than the region, so cropping is impossible.
	b := &fakeBackend{frames: scripted(FlushFrames+5, 6, 4, func(int) byte { return 90 })}
	sink := &collectingSink{}
	s := stream.NewWithCapacity(cfg, 16)
	u := New(cfg, b, s, nil, sink, logger.Discard())

	if err := runUntilDrained(t, u, b); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	out := drain(s)
	if len(out) != 6 {
		t.Fatalf("Expected 5 frames plus sentinel, got %d", len(out))
	}
	for i, f := range out[:5] {
		if f.Width != 8 || f.Height != 4 || len(f.Data) != 32 {
			t.Fatalf("Frame %d: expected 8x4 (32 bytes), got %dx%d (%d bytes)", i, f.Width, f.Height, len(f.Data))
		}
		if v := f.Data[12]; v < 89 || v > 91 {
			t.Errorf("Frame %d: uniform input should stay uniform, got %d", i, v)
		}
	}

	if n := len(sink.byKind(model.AnomalyUnexpectedSize)); n != 1 {
		t.Errorf("Expected one unexpected_size report for one geometry, got %d", n)
	}
}

func TestUnit_RetiresWatchdogHandleOnExit(t *testing.T) {
	cfg := streamConfig(2, 2)
	wd := watchdog.New(time.Second, 10*time.Second, logger.Discard(), watchdog.WithExit(func(int) {}))
	b := &fakeBackend{frames: scripted(FlushFrames+1, 2, 2, func(int) byte { return 1 })}
	u := New(cfg, b, stream.NewWithCapacity(cfg, 8), wd, nil, logger.Discard())

	if snap := wd.Snapshot(); len(snap) != 1 || snap[0].Name != "capture/cam0" {
		t.Fatalf("Expected capture/cam0 registered, got %+v", snap)
	}
	runUntilDrained(t, u, b)
	if snap := wd.Snapshot(); len(snap) != 0 {
		t.Errorf("Expected no watched units after Run, got %+v", snap)
	}
}
