package encoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	defaultGstEncoder = "x264enc"
	defaultGstMuxer   = "mp4mux"
	// drainTimeout bounds how long Close waits for the muxer to finish.
	drainTimeout = 30 * time.Second
)

var gstInit sync.Once

type gstreamerFactory struct{}

func newGStreamerFactory() *gstreamerFactory {
	return &gstreamerFactory{}
}

func (f *gstreamerFactory) Open(p Params) (Writer, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	gstInit.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(gstPipeline(p))
	if err != nil {
		return nil, fmt.Errorf("gstreamer: build pipeline for %s: %w", p.Path, err)
	}
	elem, err := pipeline.GetElementByName("src")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstreamer: appsrc missing: %w", err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstreamer: start pipeline for %s: %w", p.Path, err)
	}

	return &gstreamerWriter{
		pipeline: pipeline,
		src:      app.SrcFromElement(elem),
		params:   p,
	}, nil
}

// gstPipeline renders the launch string. The codec names the encoder
// element, options become its properties, and the "muxer" option picks the
// container element.
func gstPipeline(p Params) string {
	encoder := p.Codec
	if encoder == "" {
		encoder = defaultGstEncoder
	}
	muxer := defaultGstMuxer

	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		if k == "muxer" {
			muxer = p.Options[k]
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("appsrc name=src format=bytes block=true")
	fmt.Fprintf(&b, " max-bytes=%d", 4*p.frameBytes())
	fmt.Fprintf(&b, " ! rawvideoparse format=gray8 width=%d height=%d framerate=%d/%d",
		p.Width, p.Height, p.FramerateNum, p.FramerateDen)
	b.WriteString(" ! videoconvert ! ")
	b.WriteString(encoder)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, p.Options[k])
	}
	fmt.Fprintf(&b, " ! %s ! filesink location=%q", muxer, p.Path)
	return b.String()
}

type gstreamerWriter struct {
	pipeline *gst.Pipeline
	src      *app.Source
	params   Params
	closed   bool
}

func (w *gstreamerWriter) Write(gray []byte) error {
	if len(gray) != w.params.frameBytes() {
		return fmt.Errorf("gstreamer: frame holds %d bytes, expected %d", len(gray), w.params.frameBytes())
	}
	if ret := w.src.PushBuffer(gst.NewBufferFromBytes(gray)); ret != gst.FlowOK {
		return fmt.Errorf("gstreamer: push to %s: flow %v", w.params.Path, ret)
	}
	return nil
}

// Close sends end-of-stream and waits for the muxer to write its trailer.
func (w *gstreamerWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.pipeline.SetState(gst.StateNull)

	w.src.EndStream()

	bus := w.pipeline.GetPipelineBus()
	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("gstreamer: finalize %s: %w", w.params.Path, gerr)
		}
	}
	return fmt.Errorf("gstreamer: finalize %s: no end-of-stream after %v", w.params.Path, drainTimeout)
}
