// Package analytics provides read-only aggregate queries over the history
// store. Each query operates on a snapshot, never holding the store lock
// while computing, and returns its result as a JSON string suitable for use
// as a reasoning-engine tool result. Empty buffers produce a structured
// error payload, never a Go error.
package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"pulsebridge/internal/store"
)

// Trend labels for the heart-rate statistics query.
const (
	TrendStronglyRising  = "strongly rising"
	TrendRising          = "rising"
	TrendStable          = "stable"
	TrendFalling         = "falling"
	TrendStronglyFalling = "strongly falling"
	TrendInsufficient    = "insufficient data"
)

// trendWindow is the number of most recent samples considered for the trend,
// and trendMinSamples the minimum needed to classify one.
const (
	trendWindow     = 10
	trendMinSamples = 4
)

// HeartRateStats is the aggregate result of the heart-rate statistics query.
type HeartRateStats struct {
	Avg          float64 `json:"avg"`
	Max          int     `json:"max"`
	Min          int     `json:"min"`
	Latest       int     `json:"latest"`
	Count        int     `json:"count"`
	LatestWindow string  `json:"latest_window"`
	Trend        string  `json:"trend"`
}

// WindowGroupStats is the per-window aggregate of the correlation query.
type WindowGroupStats struct {
	Avg   float64 `json:"avg"`
	Max   int     `json:"max"`
	Min   int     `json:"min"`
	Count int     `json:"count"`
}

// RecentWindow is one entry of the recent-activity query.
type RecentWindow struct {
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds"`
	StartedAt       string  `json:"started_at"`
}

// ActivityReport is the result of the recent-activity query. It reports the
// raw data only; any slacking verdict is left to the reasoning layer.
type ActivityReport struct {
	CurrentWindow string         `json:"current_window"`
	RecentWindows []RecentWindow `json:"recent_windows"`
}

// AppUsage is one entry of the usage ranking, most-used first.
type AppUsage struct {
	Title        string  `json:"title"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalSeconds float64 `json:"total_seconds"`
}

// Service answers analytics queries over a history store.
type Service struct {
	store *store.Store
}

// NewService creates an analytics service reading from s.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// HeartRateStatsJSON returns mean/max/min/latest over all retained samples
// plus a trend label computed from the most recent samples. With no samples
// it returns a structured error payload.
func (s *Service) HeartRateStatsJSON() string {
	samples := s.store.SnapshotSamples()
	if len(samples) == 0 {
		return errorJSON("no heart rate data yet")
	}

	stats := HeartRateStats{
		Max:          samples[0].HeartRate,
		Min:          samples[0].HeartRate,
		Latest:       samples[len(samples)-1].HeartRate,
		Count:        len(samples),
		LatestWindow: samples[len(samples)-1].Window,
	}

	sum := 0
	rates := make([]int, len(samples))
	for i, sample := range samples {
		rates[i] = sample.HeartRate
		sum += sample.HeartRate
		if sample.HeartRate > stats.Max {
			stats.Max = sample.HeartRate
		}
		if sample.HeartRate < stats.Min {
			stats.Min = sample.HeartRate
		}
	}
	stats.Avg = round1(float64(sum) / float64(len(samples)))
	stats.Trend = trendLabel(rates)

	return mustJSON(stats)
}

// trendLabel classifies the recent heart-rate movement by splitting the most
// recent up-to-10 samples into two halves and banding the mean delta.
func trendLabel(rates []int) string {
	recent := rates
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}
	if len(recent) < trendMinSamples {
		return TrendInsufficient
	}

	half := len(recent) / 2
	firstMean := mean(recent[:half])
	secondMean := mean(recent[len(recent)-half:])
	diff := secondMean - firstMean

	switch {
	case diff > 5:
		return TrendStronglyRising
	case diff > 2:
		return TrendRising
	case diff < -5:
		return TrendStronglyFalling
	case diff < -2:
		return TrendFalling
	default:
		return TrendStable
	}
}

// HeartWindowCorrelationJSON groups all samples by window title and reports
// per-group mean/max/min/count.
func (s *Service) HeartWindowCorrelationJSON() string {
	samples := s.store.SnapshotSamples()
	if len(samples) == 0 {
		return errorJSON("no data yet")
	}

	groups := make(map[string][]int)
	for _, sample := range samples {
		title := sample.Window
		if title == "" {
			title = "unknown"
		}
		groups[title] = append(groups[title], sample.HeartRate)
	}

	result := make(map[string]WindowGroupStats, len(groups))
	for title, rates := range groups {
		g := WindowGroupStats{Max: rates[0], Min: rates[0], Count: len(rates)}
		sum := 0
		for _, r := range rates {
			sum += r
			if r > g.Max {
				g.Max = r
			}
			if r < g.Min {
				g.Min = r
			}
		}
		g.Avg = round1(float64(sum) / float64(len(rates)))
		result[title] = g
	}

	return mustJSON(result)
}

// ActivityReportJSON returns the current window title plus the most recent 20
// window intervals verbatim.
func (s *Service) ActivityReportJSON() string {
	current := s.store.CurrentWindow()
	windows := s.store.SnapshotWindows()
	if len(windows) == 0 {
		return mustJSON(map[string]string{
			"current_window": current,
			"history":        "no window activity recorded yet",
		})
	}

	if len(windows) > 20 {
		windows = windows[len(windows)-20:]
	}
	report := ActivityReport{
		CurrentWindow: current,
		RecentWindows: make([]RecentWindow, 0, len(windows)),
	}
	for _, w := range windows {
		report.RecentWindows = append(report.RecentWindows, RecentWindow{
			Title:           w.Title,
			DurationSeconds: w.Duration,
			StartedAt:       w.StartedAt,
		})
	}

	return mustJSON(report)
}

// AppUsageJSON sums interval durations per window title across the retained
// history and returns the top 15 by total duration, descending.
func (s *Service) AppUsageJSON() string {
	windows := s.store.SnapshotWindows()
	if len(windows) == 0 {
		return errorJSON("no window activity recorded yet")
	}

	totals := make(map[string]float64)
	for _, w := range windows {
		title := w.Title
		if title == "" {
			title = "unknown"
		}
		totals[title] += w.Duration
	}

	ranking := make([]AppUsage, 0, len(totals))
	for title, seconds := range totals {
		ranking = append(ranking, AppUsage{
			Title:        title,
			TotalMinutes: round1(seconds / 60),
			TotalSeconds: round1(seconds),
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].TotalSeconds > ranking[j].TotalSeconds
	})
	if len(ranking) > 15 {
		ranking = ranking[:15]
	}

	return mustJSON(ranking)
}

func mean(rates []int) float64 {
	sum := 0
	for _, r := range rates {
		sum += r
	}
	return float64(sum) / float64(len(rates))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func errorJSON(msg string) string {
	return mustJSON(map[string]string{"error": msg})
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
