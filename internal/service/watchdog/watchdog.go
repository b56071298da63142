// Package watchdog terminates the process when a monitored unit stops pulsing.
package watchdog

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"imgacquisition/internal/logger"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// Handle identifies a registered unit.
type Handle int

type entry struct {
	name      string
	lastPulse time.Time
	retired   bool
}

// Watchdog is a registry of last-pulse times checked on a fixed interval.
// A stalled unit means a wedged driver or encoder; there is no recovery
// in-process, so Check exits and leaves the restart to the supervisor.
type Watchdog struct {
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	entries []entry

	now    func() time.Time
	exit   func(code int)
	notify func()
}

// UnitStatus reports one unit's pulse age.
type UnitStatus struct {
	Name      string        `json:"name"`
	LastPulse time.Time     `json:"last_pulse"`
	Age       time.Duration `json:"age_ns"`
	Alive     bool          `json:"alive"`
}

// Option customizes a Watchdog.
type Option func(*Watchdog)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) { w.now = now }
}

// WithExit replaces os.Exit.
func WithExit(exit func(code int)) Option {
	return func(w *Watchdog) { w.exit = exit }
}

// WithNotifier registers a hook called after every healthy check.
func WithNotifier(notify func()) Option {
	return func(w *Watchdog) { w.notify = notify }
}

// New creates a Watchdog. Zero interval or timeout selects the defaults.
func New(interval, timeout time.Duration, logger *logger.Logger, opts ...Option) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	w := &Watchdog{
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch registers a unit. Call it before the unit starts pulsing; the unit
// counts as pulsed at registration time.
func (w *Watchdog) Watch(name string) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, entry{name: name, lastPulse: w.now()})
	return Handle(len(w.entries) - 1)
}

// Pulse records that the unit behind h is alive.
func (w *Watchdog) Pulse(h Handle) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if int(h) < 0 || int(h) >= len(w.entries) {
		return
	}
	w.entries[h].lastPulse = now
}

// Unwatch retires the unit behind h. A unit that has finished its work calls
// it so the remaining units can run past the timeout without it.
func (w *Watchdog) Unwatch(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if int(h) < 0 || int(h) >= len(w.entries) {
		return
	}
	w.entries[h].retired = true
}

// Check exits the process if any unit has not pulsed within the timeout.
// It returns false after calling a non-terminating exit hook.
func (w *Watchdog) Check() bool {
	now := w.now()

	w.mu.Lock()
	var stalled *entry
	for i := range w.entries {
		if w.entries[i].retired {
			continue
		}
		if now.Sub(w.entries[i].lastPulse) > w.timeout {
			e := w.entries[i]
			stalled = &e
			break
		}
	}
	w.mu.Unlock()

	if stalled != nil {
		w.logger.Critical("watchdog: %s has not pulsed for %v (timeout %v), terminating",
			stalled.name, now.Sub(stalled.lastPulse).Round(time.Millisecond), w.timeout)
		w.exit(1)
		return false
	}

	if w.notify != nil {
		w.notify()
	}
	return true
}

// Run checks on every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Snapshot returns every active unit's status, sorted by name.
func (w *Watchdog) Snapshot() []UnitStatus {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]UnitStatus, 0, len(w.entries))
	for _, e := range w.entries {
		if e.retired {
			continue
		}
		age := now.Sub(e.lastPulse)
		out = append(out, UnitStatus{
			Name:      e.name,
			LastPulse: e.lastPulse,
			Age:       age,
			Alive:     age <= w.timeout,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *Watchdog) Interval() time.Duration {
	return w.interval
}

func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}
