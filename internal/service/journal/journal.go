// Package journal moves anomalies and finished recordings off the real-time
// paths into the catalog and out to status clients.
package journal

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"imgacquisition/internal/dto"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/model"
	"imgacquisition/internal/repository"
)

// dropLogEvery limits queue-full warnings to the first drop and then one per
// this many drops.
const dropLogEvery = 1000

// Broadcaster delivers encoded events to status clients without blocking.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

type entry struct {
	anomaly   *model.Anomaly
	recording *model.Recording
	event     *dto.Event
}

// Service is a bounded queue drained by one worker goroutine. Producers never
// block: when the queue is full the entry is dropped and counted.
type Service struct {
	sessionID  string
	recordings repository.RecordingRepository
	anomalies  repository.AnomalyRepository
	hub        Broadcaster
	logger     *logger.Logger

	queue  chan entry
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
	written atomic.Uint64
	now     func() time.Time
}

// New creates a journal. Any of the repositories or the hub may be nil.
func New(sessionID string, recordings repository.RecordingRepository, anomalies repository.AnomalyRepository,
	hub Broadcaster, capacity int, logger *logger.Logger) *Service {
	if capacity < 1 {
		capacity = 1
	}
	return &Service{
		sessionID:  sessionID,
		recordings: recordings,
		anomalies:  anomalies,
		hub:        hub,
		logger:     logger,
		queue:      make(chan entry, capacity),
		now:        time.Now,
	}
}

// Start launches the worker.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.worker()
}

func (s *Service) SessionID() string {
	return s.sessionID
}

// RecordAnomaly queues a for persistence and broadcast.
func (s *Service) RecordAnomaly(a model.Anomaly) {
	a.SessionID = s.sessionID
	if a.OccurredAt.IsZero() {
		a.OccurredAt = s.now().UTC()
	}
	s.enqueue(entry{anomaly: &a})
}

// RecordRecording queues a finalized file pair for the catalog.
func (s *Service) RecordRecording(r model.Recording) {
	r.SessionID = s.sessionID
	s.enqueue(entry{recording: &r})
}

// Publish queues an event that is only broadcast, never persisted.
func (s *Service) Publish(eventType dto.EventType, payload interface{}) {
	s.enqueue(entry{event: &dto.Event{
		Type:      eventType,
		SessionID: s.sessionID,
		Time:      s.now().UTC(),
		Payload:   payload,
	}})
}

func (s *Service) enqueue(e entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
			s.logger.Warning("Journal queue full (%d), dropping entries (%d dropped so far)", cap(s.queue), n)
		}
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for e := range s.queue {
		switch {
		case e.anomaly != nil:
			s.persistAnomaly(e.anomaly)
		case e.recording != nil:
			s.persistRecording(e.recording)
		case e.event != nil:
			s.broadcast(*e.event)
		}
	}
}

func (s *Service) persistAnomaly(a *model.Anomaly) {
	if s.anomalies != nil {
		id, err := s.anomalies.Insert(a)
		if err != nil {
			s.logger.Error("Failed to journal %s anomaly for %s: %v", a.Kind, a.StreamID, err)
		} else {
			a.ID = id
			s.written.Add(1)
		}
	}
	s.broadcast(dto.Event{
		Type:      dto.EventAnomaly,
		SessionID: a.SessionID,
		StreamID:  a.StreamID,
		Time:      a.OccurredAt,
		Payload:   a,
	})
}

func (s *Service) persistRecording(r *model.Recording) {
	if s.recordings != nil {
		id, err := s.recordings.Insert(r)
		if err != nil {
			s.logger.Error("Failed to catalog recording %s: %v", r.VideoPath, err)
		} else {
			r.ID = id
			s.written.Add(1)
		}
	}
	s.broadcast(dto.Event{
		Type:      dto.EventRecording,
		SessionID: r.SessionID,
		StreamID:  r.StreamID,
		Time:      r.End,
		Payload:   r,
	})
}

func (s *Service) broadcast(evt dto.Event) {
	if s.hub == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("Failed to encode %s event: %v", evt.Type, err)
		return
	}
	s.hub.Broadcast(data)
}

// Close stops accepting entries and waits until everything queued has been
// written.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Status reports queue depth and counters.
func (s *Service) Status() dto.JournalStatus {
	return dto.JournalStatus{
		Queued:  len(s.queue),
		Dropped: s.dropped.Load(),
		Written: s.written.Load(),
	}
}
