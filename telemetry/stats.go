package telemetry

import "log/slog"

// WindowStats aggregates crowd state over one stats window.
type WindowStats struct {
	WindowEnd    int32   `csv:"window_end"` // tick at window close
	Agents       int     `csv:"agents"`
	Seeking      int     `csv:"seeking"`
	Reached      int     `csv:"reached"`
	CacheEntries int     `csv:"cache_entries"`
	FlowBuilds   int     `csv:"flow_builds"` // builds completed this window
	AvgBuildUS   int64   `csv:"avg_build_us"`
	AvgSpeed     float64 `csv:"avg_speed"`
}

// LogStats logs the window via slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEnd,
		"agents", s.Agents,
		"seeking", s.Seeking,
		"reached", s.Reached,
		"cache_entries", s.CacheEntries,
		"flow_builds", s.FlowBuilds,
		"avg_build_us", s.AvgBuildUS,
		"avg_speed", s.AvgSpeed,
	)
}
