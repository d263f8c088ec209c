package analytics

// Tool is one read-only query exposed to the reasoning engine. Run never
// fails: data problems are encoded in the returned JSON payload.
type Tool struct {
	Name        string
	Description string
	Run         func() string
}

// Tools returns the query set exposed to the reasoning engine. All tools are
// idempotent pure reads over store snapshots and take no arguments.
func (s *Service) Tools() []Tool {
	return []Tool{
		{
			Name: "get_heart_rate_stats",
			Description: "Get the wearer's heart rate statistics: average, max, min and " +
				"latest heart rate, sample count, and a recent trend label. Call this " +
				"when the user asks about heart rate, health, or physical state.",
			Run: s.HeartRateStatsJSON,
		},
		{
			Name: "get_heart_window_correlation",
			Description: "Analyze how heart rate relates to the active window. Groups heart " +
				"rate samples by window title with per-group average/max/min/count. Call " +
				"this for questions like 'when is their heart rate high' or 'what's their " +
				"heart rate while gaming'.",
			Run: s.HeartWindowCorrelationJSON,
		},
		{
			Name: "detect_slacking",
			Description: "Check what the wearer is doing right now: the current window title " +
				"plus the most recent window usage records with durations. Call this for " +
				"questions like 'are they slacking off' or 'what are they working on'.",
			Run: s.ActivityReportJSON,
		},
		{
			Name: "get_app_usage_stats",
			Description: "Get the cumulative usage-time ranking per application, aggregated " +
				"by window title. Call this for questions like 'how long have they used X' " +
				"or 'which apps do they use most'.",
			Run: s.AppUsageJSON,
		},
	}
}
