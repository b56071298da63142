// Package timestamp turns camera tick counters into calendar time.
package timestamp

import "time"

// WarmupFrames is the number of frames reconciled before a clock-ahead
// re-anchor is reported.
const WarmupFrames = 10

// Anomalies describes what a single Reconcile call noticed. Nothing here
// changes the returned timestamp except Reanchored.
type Anomalies struct {
	// Reanchored is set when the wall clock replaced the accumulated time.
	Reanchored bool
	// ClockAhead is set when a re-anchor moved time backwards after warm-up,
	// meaning the camera clock ran faster than the wall clock.
	ClockAhead bool
	// Drift is how far back the re-anchor moved when ClockAhead is set.
	Drift time.Duration

	SequenceGap  bool
	Sequence     uint64
	LastSequence uint64
}

// Any reports whether a warning-worthy anomaly was seen.
func (a Anomalies) Any() bool {
	return a.ClockAhead || a.SequenceGap
}

// Reconciler holds per-camera state. It is not safe for concurrent use; each
// capture unit owns one.
type Reconciler struct {
	lastSequence uint64
	lastHardware time.Duration
	current      time.Time
	frames       uint64
}

// New returns a Reconciler with unset state.
func New() *Reconciler {
	return &Reconciler{}
}

// Reconcile accumulates hardware deltas onto the last wall-clock anchor.
// A zero hardware timestamp counts as unset, and a counter that goes backwards
// (wrap or camera reset) re-anchors to now.
func (r *Reconciler) Reconcile(sequence uint64, hardware time.Duration, now time.Time) (time.Time, Anomalies) {
	var a Anomalies

	if r.lastHardware == 0 || hardware < r.lastHardware {
		first := r.current.IsZero()
		if !first && now.Before(r.current) && r.frames >= WarmupFrames {
			a.ClockAhead = true
			a.Drift = r.current.Sub(now)
		}
		r.current = now
		a.Reanchored = true
	} else {
		r.current = r.current.Add(hardware - r.lastHardware)
	}
	r.lastHardware = hardware

	if sequence != 0 && r.lastSequence != 0 && sequence != r.lastSequence+1 {
		a.SequenceGap = true
		a.Sequence = sequence
		a.LastSequence = r.lastSequence
	}
	r.lastSequence = sequence
	r.frames++

	return r.current, a
}

// Current returns the last reconciled time.
func (r *Reconciler) Current() time.Time {
	return r.current
}

// Frames returns how many frames have been reconciled.
func (r *Reconciler) Frames() uint64 {
	return r.frames
}

// TicksToDuration converts a backend tick count using its nanoseconds-per-tick factor.
func TicksToDuration(ticks uint64, nanosPerTick float64) time.Duration {
	if nanosPerTick == 1 {
		return time.Duration(ticks)
	}
	return time.Duration(float64(ticks) * nanosPerTick)
}
