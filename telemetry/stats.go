package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated navigation statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Agent state counts at window end
	AgentCount int `csv:"agents"`
	Idle       int `csv:"idle"`
	Waiting    int `csv:"waiting"`
	Moving     int `csv:"moving"`
	Arrived    int `csv:"arrived"`
	Failed     int `csv:"failed"`

	// Path queries during window
	PathRequests int     `csv:"path_requests"`
	PathFailures int     `csv:"path_failures"`
	PathPartials int     `csv:"path_partials"`
	FailureRate  float64 `csv:"failure_rate"`
	PartialRate  float64 `csv:"partial_rate"`

	// Path length distribution (paths granted during window)
	PathLenMean float64 `csv:"path_len_mean"`
	PathLenStd  float64 `csv:"path_len_std"`
	PathLenP10  float64 `csv:"path_len_p10"`
	PathLenP50  float64 `csv:"path_len_p50"`
	PathLenP90  float64 `csv:"path_len_p90"`

	// Graph-search node usage per query
	SearchNodesMean float64 `csv:"search_nodes_mean"`
	SearchNodesMax  int     `csv:"search_nodes_max"`
}

// DistStats computes mean, std, and p10/p50/p90 percentiles of values.
// Returns zeros for an empty slice.
func DistStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)
	if n > 1 {
		std = stat.StdDev(values, nil)
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("agents", s.AgentCount),
		slog.Int("idle", s.Idle),
		slog.Int("waiting", s.Waiting),
		slog.Int("moving", s.Moving),
		slog.Int("arrived", s.Arrived),
		slog.Int("failed", s.Failed),
		slog.Int("path_requests", s.PathRequests),
		slog.Int("path_failures", s.PathFailures),
		slog.Int("path_partials", s.PathPartials),
		slog.Float64("failure_rate", s.FailureRate),
		slog.Float64("partial_rate", s.PartialRate),
		slog.Float64("path_len_mean", s.PathLenMean),
		slog.Float64("path_len_std", s.PathLenStd),
		slog.Float64("path_len_p10", s.PathLenP10),
		slog.Float64("path_len_p50", s.PathLenP50),
		slog.Float64("path_len_p90", s.PathLenP90),
		slog.Float64("search_nodes_mean", s.SearchNodesMean),
		slog.Int("search_nodes_max", s.SearchNodesMax),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"agents", s.AgentCount,
		"idle", s.Idle,
		"waiting", s.Waiting,
		"moving", s.Moving,
		"arrived", s.Arrived,
		"failed", s.Failed,
		"path_requests", s.PathRequests,
		"path_failures", s.PathFailures,
		"path_partials", s.PathPartials,
		"failure_rate", s.FailureRate,
		"partial_rate", s.PartialRate,
		"path_len_mean", s.PathLenMean,
		"path_len_p50", s.PathLenP50,
		"path_len_p90", s.PathLenP90,
		"search_nodes_mean", s.SearchNodesMean,
		"search_nodes_max", s.SearchNodesMax,
	)
}
