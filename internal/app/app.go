package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/google/uuid"

	"imgacquisition/internal/config"
	"imgacquisition/internal/dto"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/repository/sqlite"
	"imgacquisition/internal/route"
	"imgacquisition/internal/service"
	"imgacquisition/internal/service/journal"
	"imgacquisition/internal/service/watchdog"
	"imgacquisition/internal/service/websocket"
)

const (
	hubBacklog      = 64
	notifyInterval  = time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	hub       *websocket.HubService
	journal   *journal.Service
	watchdog  *watchdog.Watchdog
	manager   *service.Manager
	server    *http.Server
	sessionID string
	startedAt time.Time
}

// NewApp opens the catalog and every configured camera and encoder.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
	}

	recordings := sqlite.NewRecordingRepository(db)
	anomalies := sqlite.NewAnomalyRepository(db)
	a.hub = websocket.NewHubService(hubBacklog, logger)
	a.journal = journal.New(a.sessionID, recordings, anomalies, a.hub, cfg.JournalCapacity, logger)
	a.watchdog = watchdog.New(cfg.WatchdogInterval, cfg.WatchdogTimeout, logger,
		watchdog.WithNotifier(systemdNotifier(logger)))

	a.manager, err = service.NewManager(cfg, a.watchdog, a.journal, logger, nil, nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.Port != 0 {
		a.server = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Port),
			Handler: route.SetupRoutes(route.Deps{
				Config:     cfg,
				Logger:     logger,
				Status:     a,
				Hub:        a.hub,
				Recordings: recordings,
				Anomalies:  anomalies,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// systemdNotifier pets the systemd watchdog at most once per second.
func systemdNotifier(logger *logger.Logger) func() {
	var last time.Time
	warned := false
	return func() {
		now := time.Now()
		if now.Sub(last) < notifyInterval {
			return
		}
		last = now
		if _, err := daemon.SdNotify(false, "WATCHDOG=1"); err != nil && !warned {
			logger.Warning("systemd watchdog notify failed: %v", err)
			warned = true
		}
	}
}

// Run records until ctx is cancelled or a camera fails, then drains the
// writers and closes the catalog. The error is the first fatal unit error.
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancelBg := context.WithCancel(context.Background())
	var bg sync.WaitGroup

	bg.Add(2)
	go func() {
		defer bg.Done()
		a.hub.Run(bgCtx)
	}()
	go func() {
		defer bg.Done()
		a.watchdog.Run(bgCtx)
	}()
	a.journal.Start()

	if a.server != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.logger.Info("🌐 Status surface on http://localhost%s", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status server failed: %v", err)
			}
		}()
	}

	a.logger.Info("🚀 Recorder session %s", a.sessionID)
	a.logger.Info("📁 Temp: %s", a.config.TempDirectory)
	a.logger.Info("📁 Output: %s", a.config.OutputDirectory)
	if ok, err := daemon.SdNotify(false, "READY=1"); err != nil {
		a.logger.Warning("systemd ready notify failed: %v", err)
	} else if ok {
		a.logger.Info("Notified systemd")
	}

	runErr := a.manager.Run(ctx)

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warning("Status server shutdown: %v", err)
		}
		cancel()
	}
	a.journal.Close()
	cancelBg()
	bg.Wait()

	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close catalog: %v", err)
	}

	status := a.journal.Status()
	a.logger.Info("Session %s finished: %d journal entries written, %d dropped",
		a.sessionID, status.Written, status.Dropped)
	return runErr
}

// Status implements handler.StatusSource.
func (a *App) Status() dto.Status {
	units := a.watchdog.Snapshot()
	st := dto.Status{
		SessionID: a.sessionID,
		StartedAt: a.startedAt,
		Uptime:    time.Since(a.startedAt).Round(time.Second).String(),
		Streams:   a.manager.Streams(),
		Units:     make([]dto.UnitStatus, 0, len(units)),
		Journal:   a.journal.Status(),
	}
	for _, u := range units {
		st.Units = append(st.Units, dto.UnitStatus{
			Name:      u.Name,
			LastPulse: u.LastPulse,
			AgeMillis: u.Age.Milliseconds(),
			Alive:     u.Alive,
		})
	}
	return st
}
