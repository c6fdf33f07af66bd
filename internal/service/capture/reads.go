package capture

import "time"

// DefaultMaxReadFailures is used when ReadTracker gets a non-positive limit.
const DefaultMaxReadFailures = 30

// ReadTracker decides, read by read, when a device counts as disconnected
// and which good frames are delivered under a target frame rate.
type ReadTracker struct {
	maxFailures int
	interval    time.Duration

	failures int
	last     time.Time
}

// NewReadTracker creates a tracker. targetFPS <= 0 delivers every frame.
func NewReadTracker(maxFailures int, targetFPS float64) *ReadTracker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxReadFailures
	}
	t := &ReadTracker{maxFailures: maxFailures}
	if targetFPS > 0 {
		t.interval = time.Duration(float64(time.Second) / targetFPS)
	}
	return t
}

// Failed records a failed read and reports whether the consecutive
// failure limit has been reached.
func (t *ReadTracker) Failed() bool {
	t.failures++
	return t.failures >= t.maxFailures
}

// Succeeded records a good read taken at now and reports whether the
// frame should be delivered.
func (t *ReadTracker) Succeeded(now time.Time) bool {
	t.failures = 0
	if t.interval > 0 && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Failures is the current run of consecutive failed reads.
func (t *ReadTracker) Failures() int {
	return t.failures
}
