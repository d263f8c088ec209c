package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsebridge/pkg/pulsetypes"
)

func TestStore_RecordSample_EvictsOldestBeyondCapacity(t *testing.T) {
	s := New(5, 5)

	for i := 0; i < 8; i++ {
		s.RecordSample(60+i, "", "editor")
	}

	samples := s.SnapshotSamples()
	require.Len(t, samples, 5)

	// The most recent 5 submissions survive, in order.
	for i, sample := range samples {
		assert.Equal(t, 60+3+i, sample.HeartRate)
	}
}

func TestStore_RecordSample_UpdatesPointersAsOneUnit(t *testing.T) {
	s := New(10, 10)

	sub, count := s.RecordSample(72, "2026-08-24T10:00:00Z", "browser")
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 72, sub.HeartRate)
	assert.NotZero(t, sub.ServerTimeMS)
	assert.NotEmpty(t, sub.ServerTimestamp)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, sub, latest)
	assert.Equal(t, "browser", s.CurrentWindow())

	// An empty window value leaves the current-window pointer untouched.
	s.RecordSample(75, "", "")
	assert.Equal(t, "browser", s.CurrentWindow())

	dataCount, sampleCount, _ := s.Counts()
	assert.Equal(t, int64(2), dataCount)
	assert.Equal(t, 2, sampleCount)
}

func TestStore_RecordSample_SequenceStrictlyIncreases(t *testing.T) {
	s := New(10, 10)

	var prev int64
	for i := 0; i < 50; i++ {
		sub, _ := s.RecordSample(70, "", "")
		assert.Greater(t, sub.ServerTimeMS, prev)
		prev = sub.ServerTimeMS
	}
}

func TestStore_RecordSample_UsesServerTimeWhenTimestampMissing(t *testing.T) {
	s := New(10, 10)

	sub, _ := s.RecordSample(68, "", "")
	samples := s.SnapshotSamples()
	require.Len(t, samples, 1)
	assert.Equal(t, sub.ServerTimestamp, samples[0].Timestamp)

	s.RecordSample(69, "2026-08-24T09:00:00Z", "")
	samples = s.SnapshotSamples()
	assert.Equal(t, "2026-08-24T09:00:00Z", samples[1].Timestamp)
}

func TestStore_RecordWindow_DoesNotTouchCurrentWindow(t *testing.T) {
	s := New(10, 10)
	s.RecordSample(70, "", "live window")

	count := s.RecordWindow(windowInterval("old window", 12.5))
	assert.Equal(t, 1, count)
	assert.Equal(t, "live window", s.CurrentWindow())
}

func TestStore_RecordWindow_EvictsOldestBeyondCapacity(t *testing.T) {
	s := New(5, 3)

	for i := 0; i < 5; i++ {
		s.RecordWindow(windowInterval(fmt.Sprintf("w%d", i), 1))
	}

	windows := s.SnapshotWindows()
	require.Len(t, windows, 3)
	assert.Equal(t, "w2", windows[0].Title)
	assert.Equal(t, "w4", windows[2].Title)
}

func TestStore_Reset_ClearsEverything(t *testing.T) {
	s := New(10, 10)
	s.RecordSample(80, "", "game")
	s.RecordWindow(windowInterval("game", 30))

	s.Reset()

	dataCount, sampleCount, windowCount := s.Counts()
	assert.Equal(t, int64(0), dataCount)
	assert.Equal(t, 0, sampleCount)
	assert.Equal(t, 0, windowCount)
	assert.Equal(t, "", s.CurrentWindow())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestStore_Restore_ReappliesCapacity(t *testing.T) {
	s := New(3, 3)

	samples := s.SnapshotSamples()
	assert.Empty(t, samples)

	big := New(10, 10)
	for i := 0; i < 6; i++ {
		big.RecordSample(60+i, "", "")
	}
	s.RestoreSamples(big.SnapshotSamples())

	restored := s.SnapshotSamples()
	require.Len(t, restored, 3)
	assert.Equal(t, 63, restored[0].HeartRate)
}

func TestStore_ConcurrentIngestAndSnapshot(t *testing.T) {
	s := New(50, 50)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.RecordSample(base+i, "", "window")
				s.RecordWindow(windowInterval("window", 1))
			}
		}(w * 1000)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.LessOrEqual(t, len(s.SnapshotSamples()), 50)
				assert.LessOrEqual(t, len(s.SnapshotWindows()), 50)
				if sub, ok := s.Latest(); ok {
					// A visible submission always carries its server stamps.
					assert.NotZero(t, sub.ServerTimeMS)
					assert.NotEmpty(t, sub.ServerTimestamp)
				}
			}
		}()
	}
	wg.Wait()

	dataCount, sampleCount, _ := s.Counts()
	assert.Equal(t, int64(800), dataCount)
	assert.Equal(t, 50, sampleCount)
}

func windowInterval(title string, duration float64) pulsetypes.WindowInterval {
	return pulsetypes.WindowInterval{Title: title, Duration: duration}
}
