// Package store owns the in-memory telemetry state: the bounded heart-rate
// and window-interval history buffers, the latest-submission pointer, the
// current-window pointer, and the submission counter. All access goes through
// a single mutex; readers receive copies and never hold the lock while
// processing.
package store

import (
	"sync"
	"time"

	"pulsebridge/pkg/pulsetypes"
)

// Default history buffer capacities.
const (
	DefaultHRCapacity     = 500
	DefaultWindowCapacity = 200
)

// Store is the single source of truth for recent telemetry state.
// The zero value is not usable; construct with New.
type Store struct {
	mu sync.Mutex

	samples   []pulsetypes.Sample
	windows   []pulsetypes.WindowInterval
	sampleCap int
	windowCap int

	latest        *pulsetypes.Submission
	currentWindow string
	dataCount     int64

	// lastSeq guards the monotonicity of ServerTimeMS when two submissions
	// land within the same millisecond.
	lastSeq int64

	now func() time.Time
}

// New creates an empty store with the given buffer capacities.
// Non-positive capacities fall back to the defaults.
func New(sampleCap, windowCap int) *Store {
	if sampleCap <= 0 {
		sampleCap = DefaultHRCapacity
	}
	if windowCap <= 0 {
		windowCap = DefaultWindowCapacity
	}
	return &Store{
		sampleCap: sampleCap,
		windowCap: windowCap,
		now:       time.Now,
	}
}

// RecordSample ingests one heart-rate submission: it stamps server time,
// overwrites the latest-submission pointer, updates the current-window
// pointer when a non-empty window is supplied, appends a sample built from
// the submission, and increments the submission counter. The whole update is
// applied as one unit under the lock so no reader observes partial state.
//
// When timestamp is empty the server receive time is used for the sample.
// The new counter value is returned.
func (s *Store) RecordSample(heartRate int, timestamp, window string) (pulsetypes.Submission, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	received := s.now()
	seq := received.UnixMilli()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq

	sub := pulsetypes.Submission{
		HeartRate:       heartRate,
		Timestamp:       timestamp,
		CurrentWindow:   window,
		ServerTimestamp: received.Format(time.RFC3339Nano),
		ServerTimeMS:    seq,
	}
	s.latest = &sub
	s.dataCount++

	if window != "" {
		s.currentWindow = window
	}

	sampleTime := timestamp
	if sampleTime == "" {
		sampleTime = sub.ServerTimestamp
	}
	s.samples = append(s.samples, pulsetypes.Sample{
		HeartRate: heartRate,
		Timestamp: sampleTime,
		Window:    window,
	})
	if len(s.samples) > s.sampleCap {
		s.samples = s.samples[len(s.samples)-s.sampleCap:]
	}

	return sub, s.dataCount
}

// RecordWindow appends a completed window interval verbatim and returns the
// new interval-buffer length. It deliberately does not touch the
// current-window pointer: the interval reports a window that has already
// ended, while the pointer tracks the live one fed by the sample path.
func (s *Store) RecordWindow(w pulsetypes.WindowInterval) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows = append(s.windows, w)
	if len(s.windows) > s.windowCap {
		s.windows = s.windows[len(s.windows)-s.windowCap:]
	}
	return len(s.windows)
}

// Latest returns a copy of the most recent submission, or false when nothing
// has been ingested since startup or the last reset.
func (s *Store) Latest() (pulsetypes.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return pulsetypes.Submission{}, false
	}
	return *s.latest, true
}

// CurrentWindow returns the most recent non-empty window title observed on
// the sample path.
func (s *Store) CurrentWindow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentWindow
}

// SnapshotSamples returns a copy of the sample buffer in insertion order.
func (s *Store) SnapshotSamples() []pulsetypes.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pulsetypes.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// SnapshotWindows returns a copy of the window-interval buffer in insertion order.
func (s *Store) SnapshotWindows() []pulsetypes.WindowInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pulsetypes.WindowInterval, len(s.windows))
	copy(out, s.windows)
	return out
}

// Counts returns the submission counter and both buffer lengths.
func (s *Store) Counts() (dataCount int64, sampleCount, windowCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataCount, len(s.samples), len(s.windows)
}

// Reset clears both buffers, the latest-submission pointer, the
// current-window pointer, and the submission counter as one atomic unit.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	s.windows = nil
	s.latest = nil
	s.currentWindow = ""
	s.dataCount = 0
}

// RestoreSamples replaces the sample buffer with persisted history, keeping
// only the most recent entries when the snapshot exceeds capacity.
func (s *Store) RestoreSamples(samples []pulsetypes.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(samples) > s.sampleCap {
		samples = samples[len(samples)-s.sampleCap:]
	}
	s.samples = append([]pulsetypes.Sample(nil), samples...)
}

// RestoreWindows replaces the window-interval buffer with persisted history,
// keeping only the most recent entries when the snapshot exceeds capacity.
func (s *Store) RestoreWindows(windows []pulsetypes.WindowInterval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(windows) > s.windowCap {
		windows = windows[len(windows)-s.windowCap:]
	}
	s.windows = append([]pulsetypes.WindowInterval(nil), windows...)
}
