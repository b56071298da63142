package camera

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Simulator is a free-running synthetic camera. It paces frames at the
// configured rate and stamps them with a nanosecond tick counter. Drops,
// counter resets and faults can be injected while it runs.
type Simulator struct {
	sensorWidth, sensorHeight int

	mu        sync.Mutex
	params    Params
	started   bool
	start     time.Time
	next      time.Time
	sequence  uint64
	tickBase  time.Duration
	skipped   uint64
	dropNext  int
	fault     error
	buf       []byte
	sleep     func(time.Duration)
	now       func() time.Time
	delivered uint64
}

// openSim parses an optional "WxH" sensor size. Without one the sensor matches
// the configured region.
func openSim(serial string) (Backend, error) {
	return NewSimulator(serial)
}

// NewSimulator is openSim with the concrete type, for callers that inject
// anomalies.
func NewSimulator(serial string) (*Simulator, error) {
	s := &Simulator{sleep: time.Sleep, now: time.Now}
	if serial == "" {
		return s, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(serial), "x")
	if !ok {
		return nil, fmt.Errorf("sim: %w: serial %q is not WxH", ErrEnumerationFailed, serial)
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("sim: %w: serial %q is not WxH", ErrEnumerationFailed, serial)
	}
	s.sensorWidth, s.sensorHeight = width, height
	return s, nil
}

func (s *Simulator) Configure(p Params) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("sim: invalid region %dx%d", p.Width, p.Height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	return nil
}

func (s *Simulator) StartCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params.Width == 0 {
		return fmt.Errorf("sim: %w: not configured", ErrNotStarted)
	}
	w, h := s.frameSize()
	s.buf = make([]byte, w*h)
	s.start = s.now()
	s.next = s.start
	s.started = true
	return nil
}

func (s *Simulator) frameSize() (int, int) {
	if s.sensorWidth > 0 {
		return s.sensorWidth, s.sensorHeight
	}
	return s.params.Width, s.params.Height
}

func (s *Simulator) period() time.Duration {
	fps := s.params.Trigger.FPS
	if fps <= 0 {
		fps = 6
	}
	return time.Duration(float64(time.Second) / fps)
}

// RetrieveFrame waits for the next frame slot. A slot further away than
// timeout yields ErrTimeout after sleeping for timeout.
func (s *Simulator) RetrieveFrame(timeout time.Duration) (RawFrame, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return RawFrame{}, ErrNotStarted
	}
	if s.fault != nil {
		err := s.fault
		s.mu.Unlock()
		return RawFrame{}, err
	}
	wait := s.next.Sub(s.now())
	if wait > timeout {
		s.mu.Unlock()
		s.sleep(timeout)
		return RawFrame{}, ErrTimeout
	}
	s.mu.Unlock()

	if wait > 0 {
		s.sleep(wait)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	period := s.period()
	for s.dropNext > 0 {
		s.dropNext--
		s.sequence++
		s.skipped++
		s.next = s.next.Add(period)
	}
	s.sequence++
	ticks := s.next.Sub(s.start) - s.tickBase
	if ticks <= 0 {
		ticks = time.Nanosecond
	}
	s.next = s.next.Add(period)

	w, h := s.frameSize()
	shade := byte(s.sequence)
	for y := 0; y < h; y++ {
		row := s.buf[y*w : (y+1)*w]
		for x := range row {
			row[x] = byte(x+y) + shade
		}
	}
	s.delivered++

	return RawFrame{
		Width:    w,
		Height:   h,
		Data:     s.buf,
		Sequence: s.sequence,
		Ticks:    uint64(ticks),
	}, nil
}

func (s *Simulator) TicksToNanoseconds() float64 {
	return 1
}

// SkippedFrames reports injected drops as transport losses.
func (s *Simulator) SkippedFrames() (transport, api uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped, 0, nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.buf = nil
	return nil
}

// Drop makes the next n frames disappear before delivery, leaving a gap in
// the sequence numbers.
func (s *Simulator) Drop(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext += n
}

// ResetCounter restarts the tick counter near zero, as a camera power cycle
// or counter wrap would.
func (s *Simulator) ResetCounter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickBase = s.next.Sub(s.start) - time.Microsecond
}

// Fail makes every following RetrieveFrame return err.
func (s *Simulator) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Delivered is the number of frames handed out so far.
func (s *Simulator) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}
