package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EncoderOpenCV    = "opencv"
	EncoderGStreamer = "gstreamer"

	TriggerHardware = "hardware"
	TriggerSoftware = "software"

	// DefaultQueueBytes caps each stream's queue at roughly 2 GiB of pixels.
	DefaultQueueBytes = int64(2) << 30
	// MinQueueFrames is the smallest queue allowed regardless of frame size.
	MinQueueFrames = 2
)

// EncoderConfig describes one encoder identity shared by a group of streams.
type EncoderConfig struct {
	Backend string            `yaml:"backend"`
	Codec   string            `yaml:"codec"`
	Options map[string]string `yaml:"options"`
}

// StreamConfig is one camera and the stream it feeds.
type StreamConfig struct {
	ID              string            `yaml:"id"`
	Camera          string            `yaml:"camera"`
	Serial          string            `yaml:"serial"`
	ROI             ROI               `yaml:"roi"`
	Trigger         Trigger           `yaml:"trigger"`
	Exposure        Setting           `yaml:"exposure"`
	Gain            Setting           `yaml:"gain"`
	BlackLevel      Setting           `yaml:"black_level"`
	BufferDepth     int               `yaml:"buffer_depth"`
	FPS             float64           `yaml:"fps"`
	FramesPerFile   int               `yaml:"frames_per_file"`
	Encoder         string            `yaml:"encoder"`
	EncoderOptions  map[string]string `yaml:"encoder_options"`
	QueueBytes      int64             `yaml:"queue_bytes"`
	RetrieveTimeout time.Duration     `yaml:"retrieve_timeout"`
}

// ROI is the sensor region read out of the camera. Width and Height are also
// the output frame size.
type ROI struct {
	OffsetX int `yaml:"offset_x"`
	OffsetY int `yaml:"offset_y"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
}

type Trigger struct {
	Mode   string `yaml:"mode"`
	Source string `yaml:"source"`
}

// Setting is an exposure/gain/blacklevel value. The zero value means auto.
type Setting struct {
	Manual bool
	Value  float64
}

// UnmarshalYAML accepts "auto" or a number.
func (s *Setting) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected auto or a number", value.Line)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" || strings.EqualFold(raw, "auto") {
		*s = Setting{}
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("line %d: expected auto or a number, got %q", value.Line, raw)
	}
	*s = Setting{Manual: true, Value: v}
	return nil
}

func (s Setting) String() string {
	if !s.Manual {
		return "auto"
	}
	return strconv.FormatFloat(s.Value, 'g', -1, 64)
}

// HardwareTriggered reports whether frames arrive on an external trigger.
func (s StreamConfig) HardwareTriggered() bool {
	return s.Trigger.Mode == TriggerHardware
}

// FrameBytes is the size of one output frame.
func (s StreamConfig) FrameBytes() int {
	return s.ROI.Width * s.ROI.Height
}

// QueueFrames converts the queue byte budget into a frame capacity.
func (s StreamConfig) QueueFrames() int {
	frameBytes := int64(s.FrameBytes())
	if frameBytes <= 0 {
		return MinQueueFrames
	}
	n := s.QueueBytes / frameBytes
	if n < MinQueueFrames {
		return MinQueueFrames
	}
	return int(n)
}

func (s *StreamConfig) applyDefaults(watchdogTimeout time.Duration) {
	if s.Trigger.Mode == "" {
		s.Trigger.Mode = TriggerSoftware
	}
	if s.QueueBytes == 0 {
		s.QueueBytes = DefaultQueueBytes
	}
	if s.BufferDepth == 0 {
		s.BufferDepth = 8
	}
	if s.RetrieveTimeout == 0 {
		if s.HardwareTriggered() {
			s.RetrieveTimeout = watchdogTimeout / 2
		} else {
			s.RetrieveTimeout = time.Second
		}
	}
}

func (s StreamConfig) validate() error {
	var errs []error

	switch s.Camera {
	case "basler", "flea3", "ximea", "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown camera backend %q", s.Camera))
	}
	if s.Serial == "" && s.Camera != "sim" {
		errs = append(errs, errors.New("serial is required"))
	}
	if s.ROI.Width <= 0 || s.ROI.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid resolution %dx%d", s.ROI.Width, s.ROI.Height))
	} else if s.ROI.Width%2 != 0 || s.ROI.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("resolution %dx%d must be even for the encoder", s.ROI.Width, s.ROI.Height))
	}
	if s.ROI.OffsetX < 0 || s.ROI.OffsetY < 0 {
		errs = append(errs, errors.New("roi offsets must not be negative"))
	}
	if s.FramesPerFile < 1 {
		errs = append(errs, fmt.Errorf("frames_per_file must be at least 1, got %d", s.FramesPerFile))
	}
	switch s.Trigger.Mode {
	case TriggerHardware:
	case TriggerSoftware:
		if s.FPS <= 0 {
			errs = append(errs, errors.New("software trigger needs fps > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trigger mode %q", s.Trigger.Mode))
	}
	if s.FPS < 0 {
		errs = append(errs, errors.New("fps must not be negative"))
	} else if s.FPS > 0 && s.FPS < MinFPS {
		errs = append(errs, fmt.Errorf("fps %g is below the minimum %g", s.FPS, MinFPS))
	}

	return errors.Join(errs...)
}

// FallbackFPS is assumed for timing and container framerate when a
// hardware-triggered stream does not declare its rate.
const FallbackFPS = 6

// MinFPS is the smallest non-zero rate Framerate can express; rates are
// kept to millihertz.
const MinFPS = 0.001

// Framerate returns the container framerate as a reduced fraction.
func (s StreamConfig) Framerate() (num, den int) {
	if s.FPS <= 0 {
		return FallbackFPS, 1
	}
	num, den = int(s.FPS*1000+0.5), 1000
	a, b := num, den
	for b != 0 {
		a, b = b, a%b
	}
	return num / a, den / a
}

// FramePeriod is the expected time between frames.
func (s StreamConfig) FramePeriod() time.Duration {
	fps := s.FPS
	if fps <= 0 {
		fps = FallbackFPS
	}
	return time.Duration(float64(time.Second) / fps)
}
