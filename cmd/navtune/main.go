// Package main tunes agent steering parameters with CMA-ES: it runs
// headless simulations over a benchmark courtyard and minimizes the
// mean time agents need to cross it.
//
// Usage: navtune -output results/ [-max-ticks 3000] [-seeds 3]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/config"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/sim"
	"github.com/pthm-cable/navkit/systems"
)

// paramSpec bounds one tunable steering parameter.
type paramSpec struct {
	Name     string
	Min, Max float64
}

var specs = []paramSpec{
	{Name: "acceleration", Min: 2, Max: 20},
	{Name: "deceleration", Min: 2, Max: 24},
	{Name: "corner_threshold", Min: 0.1, Max: 1.0},
	{Name: "stopping_distance", Min: 0.2, Max: 1.0},
}

// denormalize maps a unit-interval vector to raw parameter values,
// clamping out-of-range components.
func denormalize(x []float64) []float64 {
	raw := make([]float64, len(specs))
	for i, spec := range specs {
		v := x[i]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		raw[i] = spec.Min + v*(spec.Max-spec.Min)
	}
	return raw
}

func normalize(raw []float64) []float64 {
	x := make([]float64, len(specs))
	for i, spec := range specs {
		x[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return x
}

func applyToConfig(cfg *config.Config, raw []float64) {
	cfg.Agent.Acceleration = raw[0]
	cfg.Agent.Deceleration = raw[1]
	cfg.Agent.CornerThreshold = raw[2]
	cfg.Agent.StoppingDistance = raw[3]
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	outputDir := flag.String("output", "", "Output directory for results")
	maxTicks := flag.Int("max-ticks", 3000, "Tick cap per benchmark run")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 120, "Maximum number of evaluations")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("-output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mesh, err := buildBenchMesh()
	if err != nil {
		log.Fatalf("failed to build benchmark mesh: %v", err)
	}

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	logPath := filepath.Join(*outputDir, "tune_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness"}
	for _, spec := range specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	bestFitness := 1e18
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := denormalize(x)
			fitness := evaluate(mesh, raw, evalSeeds, *configPath, *maxTicks)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = append([]float64(nil), raw...)
			}

			row := []string{strconv.Itoa(evalCount), fmt.Sprintf("%.4f", fitness)}
			for _, v := range raw {
				row = append(row, fmt.Sprintf("%.4f", v))
			}
			logWriter.Write(row)
			logWriter.Flush()

			fmt.Printf("Eval %d/%d: mean crossing %.2fs (best %.2fs) | elapsed %s\n",
				evalCount, *maxEvals, fitness, bestFitness,
				time.Since(startTime).Round(time.Second))

			return fitness
		},
	}

	settings := &optimize.Settings{FuncEvaluations: *maxEvals}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   4 + 3*len(specs)/2,
	}

	baseRaw := []float64{
		config.Cfg().Agent.Acceleration,
		config.Cfg().Agent.Deceleration,
		config.Cfg().Agent.CornerThreshold,
		config.Cfg().Agent.StoppingDistance,
	}

	result, err := optimize.Minimize(problem, normalize(baseRaw), settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if bestParams == nil {
		bestParams = denormalize(result.X)
	}

	fmt.Printf("\nBest fitness: %.4f\n", bestFitness)
	for i, spec := range specs {
		fmt.Printf("  %s: %.4f\n", spec.Name, bestParams[i])
	}

	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	applyToConfig(bestCfg, bestParams)
	outPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(outPath); err != nil {
		log.Fatalf("failed to write best config: %v", err)
	}
	fmt.Printf("Best config saved to: %s\n", outPath)
}

// evaluate runs the crossing benchmark for each seed and returns the
// mean arrival time in seconds. Agents that fail or run out of ticks
// are charged double the cap.
func evaluate(mesh *navmesh.Mesh, raw []float64, seeds []int64, configPath string, maxTicks int) float64 {
	var total float64
	var runs int

	for _, seed := range seeds {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		applyToConfig(cfg, raw)

		s, err := sim.New(mesh, sim.Options{Cfg: cfg, Seed: seed})
		if err != nil {
			log.Fatalf("failed to build simulation: %v", err)
		}

		rng := rand.New(rand.NewSource(seed))
		agents := make([]ecs.Entity, 8)
		for i := range agents {
			start := navmesh.Vec3{X: 1 + rng.Float32()*6, Z: 1 + rng.Float32()*30}
			goal := navmesh.Vec3{X: 25 + rng.Float32()*6, Z: 1 + rng.Float32()*30}
			agents[i] = s.SpawnIdle(start)
			s.Agents().SetDestination(agents[i], goal)
		}

		arrivalTick := make(map[ecs.Entity]int32, len(agents))
		s.Agents().Subscribe(func(change systems.StateChange) {
			if change.To == components.StateArrived {
				if _, seen := arrivalTick[change.Entity]; !seen {
					arrivalTick[change.Entity] = s.Tick()
				}
			}
		})

		for tick := 0; tick < maxTicks && len(arrivalTick) < len(agents); tick++ {
			s.Step()
		}

		for _, e := range agents {
			if tick, ok := arrivalTick[e]; ok {
				total += float64(tick) * float64(s.DT())
			} else {
				total += 2 * float64(maxTicks) * float64(s.DT())
			}
			runs++
		}
		s.Close()
	}

	return total / float64(runs)
}

// buildBenchMesh assembles a single-tile 32x32 courtyard with a wall
// of missing quads through the middle, so crossing agents must steer
// around corners.
func buildBenchMesh() (*navmesh.Mesh, error) {
	const quads = 8
	const quadSize = 4

	var verts []navmesh.Vec3
	for ix := 0; ix <= quads; ix++ {
		for iz := 0; iz <= quads; iz++ {
			verts = append(verts, navmesh.Vec3{X: float32(ix) * quadSize, Z: float32(iz) * quadSize})
		}
	}
	v := func(ix, iz int) int { return ix*(quads+1) + iz }

	var polys []navmesh.TilePoly
	for qx := 0; qx < quads; qx++ {
		for qz := 0; qz < quads; qz++ {
			// Center wall with a gap at the south end.
			if qx == 4 && qz >= 2 {
				continue
			}
			polys = append(polys, navmesh.TilePoly{
				Verts: []int{v(qx, qz), v(qx, qz+1), v(qx+1, qz+1), v(qx+1, qz)},
				Flags: navmesh.FlagWalk,
			})
		}
	}

	data, err := navmesh.CreateTileData(navmesh.TileConfig{
		Bounds: navmesh.AABB{Max: navmesh.Vec3{X: quads * quadSize, Z: quads * quadSize}},
		Verts:  verts,
		Polys:  polys,
	})
	if err != nil {
		return nil, err
	}

	m, err := navmesh.New(navmesh.Params{TileWidth: quads * quadSize, TileHeight: quads * quadSize, MaxTiles: 1})
	if err != nil {
		return nil, err
	}
	if _, err := m.AddTile(data); err != nil {
		return nil, err
	}
	return m, nil
}
