package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/config"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	meshPath := flag.String("mesh", "", "Path to a .navmesh file (empty = built-in demo mesh)")
	headless := flag.Bool("headless", false, "Run without graphics")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	mesh, err := loadMesh(*meshPath)
	if err != nil {
		slog.Error("failed to load mesh", "path", *meshPath, "error", err)
		os.Exit(1)
	}

	dir := *outputDir
	if dir == "" && cfg.Telemetry.Enabled && *headless {
		dir = cfg.Telemetry.OutputDir
	}

	s, err := sim.New(mesh, sim.Options{
		Cfg:            cfg,
		Seed:           rngSeed,
		StatsWindowSec: *statsWindow,
		OutputDir:      dir,
		LogStats:       *logStats,
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	spawnDemoAgents(s, rand.New(rand.NewSource(rngSeed)))

	slog.Info("starting simulation",
		"seed", rngSeed,
		"tiles", mesh.TileCount(),
		"polys", mesh.PolyCount(),
		"agents", s.AgentCount(),
		"headless", *headless,
		"max_ticks", *maxTicks,
	)

	if *headless {
		for {
			s.Step()
			if *maxTicks > 0 && int(s.Tick()) >= *maxTicks {
				slog.Info("max ticks reached", "tick", s.Tick())
				return
			}
		}
	}

	runViewer(s, cfg, *maxTicks)
}

// loadMesh reads a mesh file, or builds the demo courtyard when no
// path is given.
func loadMesh(path string) (*navmesh.Mesh, error) {
	if path == "" {
		return buildDemoMesh()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := navmesh.Load(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// spawnDemoAgents populates the world with one of each behavior.
func spawnDemoAgents(s *sim.Sim, rng *rand.Rand) {
	for i := 0; i < 6; i++ {
		pos := navmesh.Vec3{
			X: 4 + rng.Float32()*24,
			Z: 4 + rng.Float32()*24,
		}
		s.SpawnWanderer(pos, 8, 0.5, 2)
	}

	patrol := s.SpawnPatroller([]navmesh.Vec3{
		{X: 2, Z: 2},
		{X: 30, Z: 2},
		{X: 30, Z: 30},
		{X: 2, Z: 30},
	}, components.PatrolLoop, 1)

	s.SpawnFollower(navmesh.Vec3{X: 6, Z: 6}, patrol, 3, 0.5)
	s.SpawnFleer(navmesh.Vec3{X: 16, Z: 20}, navmesh.Vec3{X: 16, Z: 16}, 10)
}
