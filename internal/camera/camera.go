// Package camera adapts vendor camera backends to one frame-retrieval contract.
package camera

import (
	"errors"
	"fmt"
	"time"

	"imgacquisition/internal/config"
)

var (
	ErrNotFound          = errors.New("camera not found")
	ErrEnumerationFailed = errors.New("camera enumeration failed")
	ErrTimeout           = errors.New("frame retrieval timed out")
	ErrNotStarted        = errors.New("capture not started")
)

// Kind selects a backend implementation.
type Kind string

const (
	Basler Kind = "basler"
	Flea3  Kind = "flea3"
	Ximea  Kind = "ximea"
	Sim    Kind = "sim"
)

// Trigger selects how frames are started.
type Trigger struct {
	Hardware bool
	Source   string  // hardware trigger line, e.g. "Line1"
	FPS      float64 // software/free-run rate
}

// Params is everything Configure applies before StartCapture.
type Params struct {
	OffsetX, OffsetY int
	Width, Height    int
	Trigger          Trigger
	Exposure         config.Setting
	Gain             config.Setting
	BlackLevel       config.Setting
	BufferDepth      int
}

// RawFrame is one frame as delivered by the backend. Data may be reused by the
// next RetrieveFrame call, so callers copy what they keep.
type RawFrame struct {
	Width    int
	Height   int
	Data     []byte
	Sequence uint64
	Ticks    uint64
}

// Backend is one opened camera.
type Backend interface {
	Configure(p Params) error
	StartCapture() error
	// RetrieveFrame blocks for at most timeout. ErrTimeout means no frame
	// arrived; any other error is a driver fault.
	RetrieveFrame(timeout time.Duration) (RawFrame, error)
	// TicksToNanoseconds is the length of one hardware tick.
	TicksToNanoseconds() float64
	Close() error
}

// LossCounter is implemented by backends that expose skipped-frame counters.
type LossCounter interface {
	SkippedFrames() (transport, api uint64, err error)
}

// Open creates and opens the backend of the given kind.
func Open(kind Kind, serial string) (Backend, error) {
	switch kind {
	case Basler:
		return openBasler(serial)
	case Flea3:
		return openFlea3(serial)
	case Ximea:
		return openXimea(serial)
	case Sim:
		return openSim(serial)
	default:
		return nil, fmt.Errorf("unknown camera backend %q", kind)
	}
}

// ParamsFromConfig maps a stream entry onto backend parameters.
func ParamsFromConfig(s config.StreamConfig) Params {
	return Params{
		OffsetX: s.ROI.OffsetX,
		OffsetY: s.ROI.OffsetY,
		Width:   s.ROI.Width,
		Height:  s.ROI.Height,
		Trigger: Trigger{
			Hardware: s.HardwareTriggered(),
			Source:   s.Trigger.Source,
			FPS:      s.FPS,
		},
		Exposure:    s.Exposure,
		Gain:        s.Gain,
		BlackLevel:  s.BlackLevel,
		BufferDepth: s.BufferDepth,
	}
}
