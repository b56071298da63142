package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// OpenCV videoio property ids without a named gocv constant.
const (
	propTrigger         gocv.VideoCaptureProperties = 24
	propReadTimeoutMsec gocv.VideoCaptureProperties = 54
)

// videoDevice drives a camera through OpenCV's videoio layer. The vendor
// variants differ only in API preference, how the source is named, how
// settings map to properties, and the native tick length.
type videoDevice struct {
	name         string
	serial       string
	api          gocv.VideoCaptureAPI
	nanosPerTick float64
	source       func(d *videoDevice) interface{}
	validate     func(p Params) error
	apply        func(c *gocv.VideoCapture, p Params)

	params   Params
	capture  *gocv.VideoCapture
	raw      gocv.Mat
	gray     gocv.Mat
	timeout  time.Duration
	sequence uint64
}

func (d *videoDevice) Configure(p Params) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%s %s: invalid region %dx%d", d.name, d.serial, p.Width, p.Height)
	}
	if !p.Trigger.Hardware && p.Trigger.FPS <= 0 {
		return fmt.Errorf("%s %s: software trigger needs a frame rate", d.name, d.serial)
	}
	if d.validate != nil {
		if err := d.validate(p); err != nil {
			return err
		}
	}
	d.params = p
	if d.capture != nil {
		d.applyAll()
	}
	return nil
}

func (d *videoDevice) StartCapture() error {
	if d.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(d.source(d), d.api)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", d.name, d.serial, ErrNotFound, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%s %s: %w", d.name, d.serial, ErrNotFound)
	}

	d.capture = capture
	d.raw = gocv.NewMat()
	d.gray = gocv.NewMat()
	d.applyAll()
	return nil
}

func (d *videoDevice) applyAll() {
	c, p := d.capture, d.params

	c.Set(gocv.VideoCaptureFrameWidth, float64(p.Width))
	c.Set(gocv.VideoCaptureFrameHeight, float64(p.Height))
	if p.BufferDepth > 0 {
		c.Set(gocv.VideoCaptureBufferSize, float64(p.BufferDepth))
	}
	if !p.Trigger.Hardware {
		c.Set(gocv.VideoCaptureFPS, p.Trigger.FPS)
	}
	if d.apply != nil {
		d.apply(c, p)
	}
}

func (d *videoDevice) RetrieveFrame(timeout time.Duration) (RawFrame, error) {
	if d.capture == nil {
		return RawFrame{}, ErrNotStarted
	}

	if timeout != d.timeout {
		d.capture.Set(propReadTimeoutMsec, float64(timeout.Milliseconds()))
		d.timeout = timeout
	}

	if !d.capture.Read(&d.raw) || d.raw.Empty() {
		if !d.capture.IsOpened() {
			return RawFrame{}, fmt.Errorf("%s %s: device closed by driver", d.name, d.serial)
		}
		return RawFrame{}, ErrTimeout
	}

	img := d.raw
	switch d.raw.Channels() {
	case 1:
	case 3:
		if err := gocv.CvtColor(d.raw, &d.gray, gocv.ColorBGRToGray); err != nil {
			return RawFrame{}, fmt.Errorf("%s %s: gray conversion: %w", d.name, d.serial, err)
		}
		img = d.gray
	case 4:
		if err := gocv.CvtColor(d.raw, &d.gray, gocv.ColorBGRAToGray); err != nil {
			return RawFrame{}, fmt.Errorf("%s %s: gray conversion: %w", d.name, d.serial, err)
		}
		img = d.gray
	default:
		return RawFrame{}, fmt.Errorf("%s %s: unsupported channel count %d", d.name, d.serial, d.raw.Channels())
	}

	d.sequence++
	seq := d.sequence
	if pos := d.capture.Get(gocv.VideoCapturePosFrames); pos > 0 {
		seq = uint64(pos)
	}

	msec := d.capture.Get(gocv.VideoCapturePosMsec)
	ticks := uint64(0)
	if msec > 0 {
		ticks = uint64(msec * float64(time.Millisecond) / d.nanosPerTick)
	}

	return RawFrame{
		Width:    img.Cols(),
		Height:   img.Rows(),
		Data:     img.ToBytes(),
		Sequence: seq,
		Ticks:    ticks,
	}, nil
}

func (d *videoDevice) TicksToNanoseconds() float64 {
	return d.nanosPerTick
}

func (d *videoDevice) Close() error {
	if d.capture == nil {
		return nil
	}
	err := d.capture.Close()
	d.raw.Close()
	d.gray.Close()
	d.capture = nil
	return err
}
