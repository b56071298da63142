package camera

import (
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// XIMEA cameras through the XiAPI videoio backend. Timestamps are in
// microseconds.
const (
	apiXiAPI          gocv.VideoCaptureAPI = 1100
	ximeaNanosPerTick                      = 1000
)

// XiAPI property ids from OpenCV's videoio.
const (
	xiDataFormat      gocv.VideoCaptureProperties = 401
	xiOffsetX         gocv.VideoCaptureProperties = 402
	xiOffsetY         gocv.VideoCaptureProperties = 403
	xiTriggerSource   gocv.VideoCaptureProperties = 404
	xiAutoExposure    gocv.VideoCaptureProperties = 415
	xiExposure        gocv.VideoCaptureProperties = 421
	xiGain            gocv.VideoCaptureProperties = 424
	xiBuffersQueue    gocv.VideoCaptureProperties = 548
	xiFramerate       gocv.VideoCaptureProperties = 535
	xiAcqTimingMode   gocv.VideoCaptureProperties = 538
	xiMono8                                       = 0
	xiTriggerOff                                  = 0
	xiTriggerRising                               = 1
	xiTimingFrameRate                             = 1
)

func openXimea(serial string) (Backend, error) {
	index, err := strconv.Atoi(serial)
	if err != nil || index < 0 {
		return nil, fmt.Errorf("ximea: %w: serial %q is not a device index", ErrEnumerationFailed, serial)
	}
	return &videoDevice{
		name:         "ximea",
		serial:       serial,
		api:          apiXiAPI,
		nanosPerTick: ximeaNanosPerTick,
		source:       func(*videoDevice) interface{} { return index },
		apply:        applyXimea,
	}, nil
}

func applyXimea(c *gocv.VideoCapture, p Params) {
	c.Set(xiDataFormat, xiMono8)
	c.Set(xiOffsetX, float64(p.OffsetX))
	c.Set(xiOffsetY, float64(p.OffsetY))
	if p.BufferDepth > 0 {
		c.Set(xiBuffersQueue, float64(p.BufferDepth))
	}

	if p.Trigger.Hardware {
		c.Set(xiTriggerSource, xiTriggerRising)
	} else {
		c.Set(xiTriggerSource, xiTriggerOff)
		c.Set(xiAcqTimingMode, xiTimingFrameRate)
		c.Set(xiFramerate, p.Trigger.FPS)
	}

	// XiAPI couples auto exposure and auto gain.
	auto := !p.Exposure.Manual || !p.Gain.Manual
	if auto {
		c.Set(xiAutoExposure, 1)
	} else {
		c.Set(xiAutoExposure, 0)
	}
	if p.Exposure.Manual {
		c.Set(xiExposure, p.Exposure.Value)
	}
	if p.Gain.Manual {
		c.Set(xiGain, p.Gain.Value)
	}
	if p.BlackLevel.Manual {
		c.Set(gocv.VideoCaptureBrightness, p.BlackLevel.Value)
	}
}
