package camera

import (
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// Point Grey Flea3 cameras on the IEEE 1394 bus, opened through libdc1394.
// The cycle timer counts microseconds.
const (
	apiFirewire       gocv.VideoCaptureAPI = 300
	flea3NanosPerTick                      = 1000

	// DC1394 feature modes as exposed by videoio.
	dc1394ModeAuto = -2
)

func openFlea3(serial string) (Backend, error) {
	index, err := strconv.Atoi(serial)
	if err != nil || index < 0 {
		return nil, fmt.Errorf("flea3: %w: serial %q is not a bus index", ErrEnumerationFailed, serial)
	}
	return &videoDevice{
		name:         "flea3",
		serial:       serial,
		api:          apiFirewire,
		nanosPerTick: flea3NanosPerTick,
		source:       func(*videoDevice) interface{} { return index },
		validate:     validateFlea3,
		apply:        applyFlea3,
	}, nil
}

// validateFlea3 rejects offsets; Format7 placement is not reachable through videoio.
func validateFlea3(p Params) error {
	if p.OffsetX != 0 || p.OffsetY != 0 {
		return fmt.Errorf("flea3: roi offsets %d,%d are not supported", p.OffsetX, p.OffsetY)
	}
	return nil
}

func applyFlea3(c *gocv.VideoCapture, p Params) {
	if p.Trigger.Hardware {
		c.Set(propTrigger, 1)
	} else {
		c.Set(propTrigger, 0)
	}

	if p.Exposure.Manual {
		c.Set(gocv.VideoCaptureExposure, p.Exposure.Value)
	} else {
		c.Set(gocv.VideoCaptureExposure, dc1394ModeAuto)
	}
	if p.Gain.Manual {
		c.Set(gocv.VideoCaptureGain, p.Gain.Value)
	} else {
		c.Set(gocv.VideoCaptureGain, dc1394ModeAuto)
	}
	// Black level is the DC1394 "brightness" feature.
	if p.BlackLevel.Manual {
		c.Set(gocv.VideoCaptureBrightness, p.BlackLevel.Value)
	} else {
		c.Set(gocv.VideoCaptureBrightness, dc1394ModeAuto)
	}
}
