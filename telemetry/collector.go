package telemetry

import "math"

// StateCounts holds per-state agent counts sampled at a window boundary.
type StateCounts struct {
	Idle    int
	Waiting int
	Moving  int
	Arrived int
	Failed  int
}

// Total returns the number of agents across all states.
func (c StateCounts) Total() int {
	return c.Idle + c.Waiting + c.Moving + c.Arrived + c.Failed
}

// Collector accumulates navigation events within time windows and produces
// WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float32

	windowStartTick int32

	pathLengths []float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := int32(math.Round(windowDurationSec / float64(dt)))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
		windowStartTick:     0,
	}
}

// RecordPathLength records the length of a granted path.
func (c *Collector) RecordPathLength(length float64) {
	c.pathLengths = append(c.pathLengths, length)
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// counts is the per-state agent census at the current tick; requests,
// failures, and partials are the path query counters accumulated since the
// last flush, and nodeSum/nodeMax the search-node usage over those requests.
func (c *Collector) Flush(currentTick int32, counts StateCounts, requests, failures, partials, nodeSum, nodeMax int) WindowStats {
	var failureRate, partialRate, nodesMean float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
		partialRate = float64(partials) / float64(requests)
		nodesMean = float64(nodeSum) / float64(requests)
	}

	lenMean, lenStd, lenP10, lenP50, lenP90 := DistStats(c.pathLengths)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * float64(c.dt),

		AgentCount: counts.Total(),
		Idle:       counts.Idle,
		Waiting:    counts.Waiting,
		Moving:     counts.Moving,
		Arrived:    counts.Arrived,
		Failed:     counts.Failed,

		PathRequests: requests,
		PathFailures: failures,
		PathPartials: partials,
		FailureRate:  failureRate,
		PartialRate:  partialRate,

		PathLenMean: lenMean,
		PathLenStd:  lenStd,
		PathLenP10:  lenP10,
		PathLenP50:  lenP50,
		PathLenP90:  lenP90,

		SearchNodesMean: nodesMean,
		SearchNodesMax:  nodeMax,
	}

	c.windowStartTick = currentTick
	c.pathLengths = c.pathLengths[:0]

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
