package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestDistStats(t *testing.T) {
	values := []float64{3, 1, 4, 2, 5, 6, 8, 7, 10, 9}

	mean, std, p10, p50, p90 := DistStats(values)
	approx(t, "mean", mean, 5.5, 1e-9)
	approx(t, "std", std, 3.02765, 1e-4)
	approx(t, "p10", p10, 1, 1e-9)
	approx(t, "p50", p50, 5, 1e-9)
	approx(t, "p90", p90, 9, 1e-9)
}

func TestDistStatsEmpty(t *testing.T) {
	mean, std, p10, p50, p90 := DistStats(nil)
	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Errorf("empty input produced nonzero stats: %v %v %v %v %v", mean, std, p10, p50, p90)
	}
}

func TestDistStatsSingle(t *testing.T) {
	mean, std, _, p50, _ := DistStats([]float64{7})
	approx(t, "mean", mean, 7, 1e-9)
	approx(t, "std", std, 0, 1e-9)
	approx(t, "p50", p50, 7, 1e-9)
}

func TestCollectorWindow(t *testing.T) {
	c := NewCollector(5.0, 0.05)

	if got := c.WindowDurationTicks(); got != 100 {
		t.Fatalf("WindowDurationTicks = %d, want 100", got)
	}
	if c.ShouldFlush(99) {
		t.Error("ShouldFlush(99) = true before window elapsed")
	}
	if !c.ShouldFlush(100) {
		t.Error("ShouldFlush(100) = false at window boundary")
	}

	// dt values with no exact float32 representation must not lose a
	// tick to truncation.
	if got := NewCollector(0.5, 1.0/60).WindowDurationTicks(); got != 30 {
		t.Errorf("WindowDurationTicks(0.5, 1/60) = %d, want 30", got)
	}
	if got := NewCollector(1.0, 0.1).WindowDurationTicks(); got != 10 {
		t.Errorf("WindowDurationTicks(1.0, 0.1) = %d, want 10", got)
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(1.0, 0.1)

	c.RecordPathLength(10)
	c.RecordPathLength(20)
	c.RecordPathLength(30)

	counts := StateCounts{Idle: 2, Moving: 3, Failed: 1}
	stats := c.Flush(10, counts, 4, 1, 2, 200, 80)

	if stats.WindowStartTick != 0 || stats.WindowEndTick != 10 {
		t.Errorf("window = [%d, %d], want [0, 10]", stats.WindowStartTick, stats.WindowEndTick)
	}
	approx(t, "sim_time", stats.SimTimeSec, 1.0, 1e-6)
	if stats.AgentCount != 6 {
		t.Errorf("AgentCount = %d, want 6", stats.AgentCount)
	}
	if stats.PathRequests != 4 || stats.PathFailures != 1 || stats.PathPartials != 2 {
		t.Errorf("path counters = %d/%d/%d, want 4/1/2",
			stats.PathRequests, stats.PathFailures, stats.PathPartials)
	}
	approx(t, "failure_rate", stats.FailureRate, 0.25, 1e-9)
	approx(t, "partial_rate", stats.PartialRate, 0.5, 1e-9)
	approx(t, "path_len_mean", stats.PathLenMean, 20, 1e-9)
	approx(t, "search_nodes_mean", stats.SearchNodesMean, 50, 1e-9)
	if stats.SearchNodesMax != 80 {
		t.Errorf("SearchNodesMax = %d, want 80", stats.SearchNodesMax)
	}

	// Second window starts clean.
	stats2 := c.Flush(20, StateCounts{}, 0, 0, 0, 0, 0)
	if stats2.WindowStartTick != 10 {
		t.Errorf("second window start = %d, want 10", stats2.WindowStartTick)
	}
	if stats2.PathLenMean != 0 {
		t.Errorf("path lengths leaked across flush: mean = %v", stats2.PathLenMean)
	}
	if stats2.FailureRate != 0 {
		t.Errorf("FailureRate = %v with zero requests", stats2.FailureRate)
	}
}

func TestOutputManagerCSV(t *testing.T) {
	dir := t.TempDir()

	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	if err := om.WriteTelemetry(WindowStats{WindowEndTick: 100, AgentCount: 5}); err != nil {
		t.Fatalf("WriteTelemetry: %v", err)
	}
	if err := om.WriteTelemetry(WindowStats{WindowEndTick: 200, AgentCount: 5}); err != nil {
		t.Fatalf("WriteTelemetry: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatalf("reading telemetry.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 records", len(lines))
	}
	if !strings.Contains(lines[0], "window_end") {
		t.Errorf("header missing window_end: %q", lines[0])
	}
	if strings.Contains(lines[1], "window_end") {
		t.Errorf("header repeated in record row: %q", lines[1])
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}
	// Nil receiver methods are no-ops.
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Errorf("WriteTelemetry on nil manager: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("Close on nil manager: %v", err)
	}
}
