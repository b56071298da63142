package camera

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Basler cameras are reached through the GStreamer aravissrc element
// (GigE Vision / USB3 Vision), with GenICam features passed as a string.
const baslerNanosPerTick = 1

func openBasler(serial string) (Backend, error) {
	if strings.TrimSpace(serial) == "" {
		return nil, fmt.Errorf("basler: %w: empty serial", ErrEnumerationFailed)
	}
	return &videoDevice{
		name:         "basler",
		serial:       serial,
		api:          gocv.VideoCaptureGstreamer,
		nanosPerTick: baslerNanosPerTick,
		source:       baslerPipeline,
	}, nil
}

func baslerPipeline(d *videoDevice) interface{} {
	p := d.params

	var b strings.Builder
	fmt.Fprintf(&b, "aravissrc camera-name=\"Basler-%s\"", d.serial)
	fmt.Fprintf(&b, " offset-x=%d offset-y=%d", p.OffsetX, p.OffsetY)
	if p.BufferDepth > 0 {
		fmt.Fprintf(&b, " num-arv-buffers=%d", p.BufferDepth)
	}
	if p.Exposure.Manual {
		fmt.Fprintf(&b, " exposure-auto=off exposure=%g", p.Exposure.Value)
	} else {
		b.WriteString(" exposure-auto=continuous")
	}
	if p.Gain.Manual {
		fmt.Fprintf(&b, " gain-auto=off gain=%g", p.Gain.Value)
	} else {
		b.WriteString(" gain-auto=continuous")
	}
	if features := baslerFeatures(p); features != "" {
		fmt.Fprintf(&b, " features=\"%s\"", features)
	}

	fmt.Fprintf(&b, " ! video/x-raw,format=GRAY8,width=%d,height=%d", p.Width, p.Height)
	if !p.Trigger.Hardware {
		num, den := fpsFraction(p.Trigger.FPS)
		fmt.Fprintf(&b, ",framerate=%d/%d", num, den)
	}
	b.WriteString(" ! appsink sync=false")
	return b.String()
}

// baslerFeatures renders GenICam feature assignments for aravissrc.
func baslerFeatures(p Params) string {
	var features []string
	if p.Trigger.Hardware {
		source := p.Trigger.Source
		if source == "" {
			source = "Line1"
		}
		features = append(features,
			"TriggerSelector=FrameStart",
			"TriggerMode=On",
			"TriggerSource="+source,
			"TriggerActivation=RisingEdge")
	} else {
		features = append(features,
			"TriggerMode=Off",
			"AcquisitionFrameRateEnable=true",
			fmt.Sprintf("AcquisitionFrameRate=%g", p.Trigger.FPS))
	}
	if p.BlackLevel.Manual {
		features = append(features, fmt.Sprintf("BlackLevel=%g", p.BlackLevel.Value))
	}
	return strings.Join(features, " ")
}

func fpsFraction(fps float64) (int, int) {
	num, den := int(fps*1000+0.5), 1000
	a, b := num, den
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 0, 1
	}
	return num / a, den / a
}
