// Package encoder turns sequences of grayscale frames into video files.
package encoder

import (
	"fmt"

	"imgacquisition/internal/config"
)

// Params describes one output file.
type Params struct {
	Path         string
	Width        int
	Height       int
	FramerateNum int
	FramerateDen int
	Codec        string
	Options      map[string]string
}

// Writer receives frames for one file. Write takes one byte per pixel,
// Width*Height bytes. Close finalizes the container; the file is not
// playable before Close returns.
type Writer interface {
	Write(gray []byte) error
	Close() error
}

// Factory opens Writers for one encoder identity.
type Factory interface {
	Open(p Params) (Writer, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(p Params) (Writer, error)

func (f FactoryFunc) Open(p Params) (Writer, error) {
	return f(p)
}

// NewFactory returns the Factory for an encoder configuration.
func NewFactory(cfg config.EncoderConfig) (Factory, error) {
	switch cfg.Backend {
	case config.EncoderOpenCV:
		return &openCVFactory{}, nil
	case config.EncoderGStreamer:
		return newGStreamerFactory(), nil
	default:
		return nil, fmt.Errorf("unknown encoder backend %q", cfg.Backend)
	}
}

// ParamsFor builds file parameters for a stream, merging the stream's
// encoder options over the shared ones.
func ParamsFor(path string, enc config.EncoderConfig, s config.StreamConfig) Params {
	num, den := s.Framerate()
	options := make(map[string]string, len(enc.Options)+len(s.EncoderOptions))
	for k, v := range enc.Options {
		options[k] = v
	}
	for k, v := range s.EncoderOptions {
		options[k] = v
	}
	return Params{
		Path:         path,
		Width:        s.ROI.Width,
		Height:       s.ROI.Height,
		FramerateNum: num,
		FramerateDen: den,
		Codec:        enc.Codec,
		Options:      options,
	}
}

func (p Params) validate() error {
	if p.Path == "" {
		return fmt.Errorf("encoder: empty output path")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("encoder: invalid frame size %dx%d", p.Width, p.Height)
	}
	if p.FramerateNum <= 0 || p.FramerateDen <= 0 {
		return fmt.Errorf("encoder: invalid framerate %d/%d", p.FramerateNum, p.FramerateDen)
	}
	return nil
}

func (p Params) frameBytes() int {
	return p.Width * p.Height
}
