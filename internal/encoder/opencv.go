package encoder

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

const defaultFourCC = "avc1"

type openCVFactory struct{}

func (f *openCVFactory) Open(p Params) (Writer, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	fourcc, err := openCVFourCC(p)
	if err != nil {
		return nil, err
	}

	fps := float64(p.FramerateNum) / float64(p.FramerateDen)
	vw, err := gocv.VideoWriterFile(p.Path, fourcc, fps, p.Width, p.Height, true)
	if err != nil {
		return nil, fmt.Errorf("opencv: open %s: %w", p.Path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("opencv: open %s: writer did not open (fourcc %s)", p.Path, fourcc)
	}

	return &openCVWriter{
		writer: vw,
		params: p,
		bgr:    gocv.NewMat(),
	}, nil
}

// openCVFourCC maps a codec name to a fourcc. The "fourcc" option overrides
// the mapping; no other option is understood by this backend.
func openCVFourCC(p Params) (string, error) {
	for k := range p.Options {
		if k != "fourcc" {
			return "", fmt.Errorf("opencv: unsupported encoder option %q", k)
		}
	}
	if fourcc, ok := p.Options["fourcc"]; ok {
		if len(fourcc) != 4 {
			return "", fmt.Errorf("opencv: fourcc %q must be four characters", fourcc)
		}
		return fourcc, nil
	}

	switch strings.ToLower(p.Codec) {
	case "", "h264", "avc":
		return defaultFourCC, nil
	case "x264":
		return "X264", nil
	case "mjpeg", "mjpg":
		return "MJPG", nil
	case "mpeg4", "mp4v":
		return "mp4v", nil
	case "hevc", "h265":
		return "hvc1", nil
	}
	if len(p.Codec) == 4 {
		return p.Codec, nil
	}
	return "", fmt.Errorf("opencv: unknown codec %q", p.Codec)
}

type openCVWriter struct {
	writer *gocv.VideoWriter
	params Params
	bgr    gocv.Mat
}

func (w *openCVWriter) Write(gray []byte) error {
	if len(gray) != w.params.frameBytes() {
		return fmt.Errorf("opencv: frame holds %d bytes, expected %d", len(gray), w.params.frameBytes())
	}
	in, err := gocv.NewMatFromBytes(w.params.Height, w.params.Width, gocv.MatTypeCV8UC1, gray)
	if err != nil {
		return fmt.Errorf("opencv: %w", err)
	}
	defer in.Close()

	if err := gocv.CvtColor(in, &w.bgr, gocv.ColorGrayToBGR); err != nil {
		return fmt.Errorf("opencv: color conversion: %w", err)
	}
	if err := w.writer.Write(w.bgr); err != nil {
		return fmt.Errorf("opencv: write %s: %w", w.params.Path, err)
	}
	return nil
}

func (w *openCVWriter) Close() error {
	err := w.writer.Close()
	w.bgr.Close()
	if err != nil {
		return fmt.Errorf("opencv: close %s: %w", w.params.Path, err)
	}
	return nil
}
