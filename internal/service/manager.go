// Package service wires capture units, streams and writer units together and
// owns their lifecycle.
package service

import (
	"context"
	"fmt"
	"sync"

	"imgacquisition/internal/camera"
	"imgacquisition/internal/config"
	"imgacquisition/internal/dto"
	"imgacquisition/internal/encoder"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/service/capture"
	"imgacquisition/internal/service/journal"
	"imgacquisition/internal/service/stream"
	"imgacquisition/internal/service/watchdog"
	"imgacquisition/internal/service/writer"
)

// OpenFunc opens a camera backend. It is camera.Open outside tests.
type OpenFunc func(kind camera.Kind, serial string) (camera.Backend, error)

// FactoryFunc builds an encoder factory. It is encoder.NewFactory outside tests.
type FactoryFunc func(cfg config.EncoderConfig) (encoder.Factory, error)

type Manager struct {
	config   *config.Config
	watchdog *watchdog.Watchdog
	journal  *journal.Service
	logger   *logger.Logger

	streams  []*stream.ImageStream
	captures []*capture.Unit
	writers  []*writer.Unit
}

// NewManager opens every camera and encoder named by cfg. Any failure here is
// an initialization error and the caller should exit.
func NewManager(cfg *config.Config, wd *watchdog.Watchdog, j *journal.Service, logger *logger.Logger,
	open OpenFunc, newFactory FactoryFunc) (*Manager, error) {
	if open == nil {
		open = camera.Open
	}
	if newFactory == nil {
		newFactory = encoder.NewFactory
	}

	m := &Manager{
		config:   cfg,
		watchdog: wd,
		journal:  j,
		logger:   logger,
	}

	var sink capture.AnomalySink
	var publisher writer.Publisher
	if j != nil {
		sink, publisher = j, j
	}

	for _, sc := range cfg.Streams {
		backend, err := open(camera.Kind(sc.Camera), sc.Serial)
		if err != nil {
			m.closeBackends()
			return nil, fmt.Errorf("stream %s: open %s %s: %w", sc.ID, sc.Camera, sc.Serial, err)
		}
		s := stream.New(sc)
		u := capture.New(sc, backend, s, wd, sink, logger)
		m.streams = append(m.streams, s)
		m.captures = append(m.captures, u)
		if err := u.Start(); err != nil {
			m.closeBackends()
			return nil, err
		}
		logger.Info("Stream %s: queue holds %d frame(s)", sc.ID, s.Capacity())
	}

	order, groups := cfg.EncoderGroups()
	for _, name := range order {
		encCfg := cfg.Encoders[name]
		factory, err := newFactory(encCfg)
		if err != nil {
			m.closeBackends()
			return nil, fmt.Errorf("encoder %s: %w", name, err)
		}
		var owned []*stream.ImageStream
		for _, idx := range groups[name] {
			owned = append(owned, m.streams[idx])
		}
		m.writers = append(m.writers, writer.New(name, encCfg, factory, owned,
			cfg.TempDirectory, cfg.OutputDirectory, wd, publisher, logger))
	}

	return m, nil
}

func (m *Manager) closeBackends() {
	for _, u := range m.captures {
		if err := u.Close(); err != nil {
			m.logger.Error("Stream %s: closing camera: %v", u.ID(), err)
		}
	}
}

// Run blocks until ctx is cancelled or a capture unit fails. Capture units
// are joined first, so every stream has its sentinel before the writers are
// waited on. The first capture fault is returned.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.journal != nil {
		m.journal.Publish(dto.EventStarted, m.Streams())
	}

	errs := make(chan error, len(m.captures))
	var captures, writers sync.WaitGroup

	for _, u := range m.writers {
		writers.Add(1)
		go func(u *writer.Unit) {
			defer writers.Done()
			u.Run(ctx)
		}(u)
	}
	for _, u := range m.captures {
		captures.Add(1)
		go func(u *capture.Unit) {
			defer captures.Done()
			if err := u.Run(ctx); err != nil {
				errs <- err
				cancel()
			}
		}(u)
	}

	<-ctx.Done()
	m.logger.Info("🛑 Stopping: waiting for %d capture unit(s)", len(m.captures))
	if m.journal != nil {
		m.journal.Publish(dto.EventStopping, nil)
	}

	captures.Wait()
	m.logger.Info("Capture stopped, draining %d writer(s)", len(m.writers))
	writers.Wait()
	m.logger.Info("All writers finished")

	close(errs)
	return <-errs
}

// Streams reports every stream's queue state.
func (m *Manager) Streams() []dto.StreamStatus {
	out := make([]dto.StreamStatus, 0, len(m.streams))
	for _, s := range m.streams {
		st := s.Stats()
		cfg := s.Config()
		out = append(out, dto.StreamStatus{
			ID:            st.ID,
			Camera:        cfg.Camera,
			Encoder:       cfg.Encoder,
			Queued:        st.Queued,
			Capacity:      st.Capacity,
			Pushed:        st.Pushed,
			Popped:        st.Popped,
			HighWater:     st.HighWater,
			BacklogBytes:  s.BacklogBytes(),
			FramesPerFile: cfg.FramesPerFile,
		})
	}
	return out
}
