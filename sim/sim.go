// Package sim composes the ECS world, navigation systems and
// telemetry into a runnable simulation.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/config"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/query"
	"github.com/pthm-cable/navkit/systems"
	"github.com/pthm-cable/navkit/telemetry"
)

// DT is the default fixed timestep in seconds per tick.
const DT = 1.0 / 60.0

// Options configures a simulation run.
type Options struct {
	Cfg            *config.Config // nil = embedded defaults
	Seed           int64
	StatsWindowSec float64 // 0 = config value
	OutputDir      string  // empty = CSV output disabled
	LogStats       bool
	DT             float32 // 0 = DT
	StatsCallback  func(telemetry.WindowStats)
}

// Sim owns the world, the navigation systems and the telemetry
// pipeline of one run.
type Sim struct {
	world     *ecs.World
	mesh      *navmesh.Mesh
	pf        *query.Pathfinder
	agents    *systems.AgentSystem
	behaviors *systems.BehaviorSystem
	rng       *rand.Rand
	cfg       *config.Config

	mapper    *ecs.Map3[components.Transform, components.NavAgent, components.NavBehavior]
	filter    *ecs.Filter2[components.Transform, components.NavAgent]
	agentMap  *ecs.Map1[components.NavAgent]

	collector     *telemetry.Collector
	output        *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)

	tick       int32
	dt         float32
	agentCount int
}

// New builds a simulation over the given mesh.
func New(mesh *navmesh.Mesh, opts Options) (*Sim, error) {
	cfg := opts.Cfg
	if cfg == nil {
		var err error
		cfg, err = config.Load("")
		if err != nil {
			return nil, fmt.Errorf("loading defaults: %w", err)
		}
	}

	pf, err := query.New(mesh, cfg.Pathfinder.MaxSearchNodes)
	if err != nil {
		return nil, fmt.Errorf("creating pathfinder: %w", err)
	}
	pf.SetRandomSource(rand.New(rand.NewSource(opts.Seed)))
	pf.SetDefaultExtents(navmesh.Vec3{
		X: cfg.Derived.ExtentX32,
		Y: cfg.Derived.ExtentY32,
		Z: cfg.Derived.ExtentZ32,
	})

	world := ecs.NewWorld()

	agentParams := systems.AgentParams{
		MaxSpeed:         float32(cfg.Agent.MaxSpeed),
		Acceleration:     float32(cfg.Agent.Acceleration),
		Deceleration:     float32(cfg.Agent.Deceleration),
		CornerThreshold:  float32(cfg.Agent.CornerThreshold),
		StoppingDistance: float32(cfg.Agent.StoppingDistance),
		RepathInterval:   float32(cfg.Agent.RepathInterval),
		ProjectExtents:   navmesh.Vec3{X: 0.5, Y: 2, Z: 0.5},
	}
	agents := systems.NewAgentSystem(world, pf, agentParams, slog.Default())

	behaviorParams := systems.BehaviorParams{
		WanderRetryDelay:  float32(cfg.Behavior.WanderRetryDelay),
		PatrolFailedDelay: float32(cfg.Behavior.PatrolFailedDelay),
		FleeFallbackScale: float32(cfg.Behavior.FleeFallbackScale),
		FleeMaxAttempts:   cfg.Behavior.FleeMaxAttempts,
		FleeSnapRadius:    float32(cfg.Behavior.FleeSnapRadius),
	}
	behaviors := systems.NewBehaviorSystem(world, agents, behaviorParams, rand.New(rand.NewSource(opts.Seed+1)))

	dt := opts.DT
	if dt <= 0 {
		dt = DT
	}
	statsWindow := opts.StatsWindowSec
	if statsWindow <= 0 {
		statsWindow = cfg.Telemetry.StatsWindow
	}

	s := &Sim{
		world:         world,
		mesh:          mesh,
		pf:            pf,
		agents:        agents,
		behaviors:     behaviors,
		rng:           rand.New(rand.NewSource(opts.Seed)),
		cfg:           cfg,
		mapper:        ecs.NewMap3[components.Transform, components.NavAgent, components.NavBehavior](world),
		filter:        ecs.NewFilter2[components.Transform, components.NavAgent](world),
		agentMap:      ecs.NewMap1[components.NavAgent](world),
		collector:     telemetry.NewCollector(statsWindow, dt),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		dt:            dt,
	}

	// Granted path lengths feed the window distribution.
	agents.Subscribe(func(change systems.StateChange) {
		if change.To != components.StateMoving {
			return
		}
		if s.agentMap.HasAll(change.Entity) {
			agent := s.agentMap.Get(change.Entity)
			s.collector.RecordPathLength(float64(agent.RemainingDistance))
		}
	})

	if opts.OutputDir != "" {
		om, err := telemetry.NewOutputManager(opts.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("creating output manager: %w", err)
		}
		s.output = om
		if err := om.WriteConfig(cfg); err != nil {
			slog.Error("failed to write config snapshot", "error", err)
		}
	}

	return s, nil
}

// World returns the ECS world.
func (s *Sim) World() *ecs.World { return s.world }

// Mesh returns the navigation mesh.
func (s *Sim) Mesh() *navmesh.Mesh { return s.mesh }

// Pathfinder returns the shared query engine.
func (s *Sim) Pathfinder() *query.Pathfinder { return s.pf }

// Agents returns the agent system.
func (s *Sim) Agents() *systems.AgentSystem { return s.agents }

// Behaviors returns the behavior system.
func (s *Sim) Behaviors() *systems.BehaviorSystem { return s.behaviors }

// Tick returns the current simulation tick.
func (s *Sim) Tick() int32 { return s.tick }

// DT returns the fixed timestep in seconds.
func (s *Sim) DT() float32 { return s.dt }

// AgentCount returns the number of spawned agents.
func (s *Sim) AgentCount() int { return s.agentCount }

// Step advances the simulation by one tick: steering first, then
// behavior decisions, then telemetry.
func (s *Sim) Step() {
	s.agents.Update(s.dt)
	s.behaviors.Update(s.dt)
	s.tick++
	s.flushTelemetry()
}

// newAgent builds a NavAgent from the system's spawn defaults.
func (s *Sim) newAgent() components.NavAgent {
	p := s.agents.Params()
	return components.NavAgent{
		MaxSpeed:         p.MaxSpeed,
		Acceleration:     p.Acceleration,
		Deceleration:     p.Deceleration,
		CornerThreshold:  p.CornerThreshold,
		StoppingDistance: p.StoppingDistance,
		RepathInterval:   p.RepathInterval,
	}
}

func (s *Sim) spawn(pos navmesh.Vec3, behavior components.NavBehavior) ecs.Entity {
	tr := components.Transform{Position: pos}
	agent := s.newAgent()
	e := s.mapper.NewEntity(&tr, &agent, &behavior)
	s.agents.Warp(e, pos)
	s.agentCount++
	return e
}

// SpawnWanderer spawns an agent that picks random destinations within
// radius of pos.
func (s *Sim) SpawnWanderer(pos navmesh.Vec3, radius, waitMin, waitMax float32) ecs.Entity {
	return s.spawn(pos, components.NavBehavior{
		Type:         components.BehaviorWander,
		WanderRadius: radius,
		WaitMin:      waitMin,
		WaitMax:      waitMax,
	})
}

// SpawnPatroller spawns an agent walking the waypoint list. The agent
// starts at the first point.
func (s *Sim) SpawnPatroller(points []navmesh.Vec3, mode components.PatrolMode, waitTime float32) ecs.Entity {
	pos := navmesh.Vec3{}
	if len(points) > 0 {
		pos = points[0]
	}
	return s.spawn(pos, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   points,
		PatrolMode:     mode,
		PatrolWaitTime: waitTime,
	})
}

// SpawnFollower spawns an agent that trails target at the given
// distance, re-querying every interval seconds.
func (s *Sim) SpawnFollower(pos navmesh.Vec3, target ecs.Entity, distance, interval float32) ecs.Entity {
	return s.spawn(pos, components.NavBehavior{
		Type:           components.BehaviorFollow,
		FollowTarget:   target,
		FollowDistance: distance,
		FollowInterval: interval,
	})
}

// SpawnFleer spawns an agent that runs from threat until it is at
// least distance away.
func (s *Sim) SpawnFleer(pos, threat navmesh.Vec3, distance float32) ecs.Entity {
	return s.spawn(pos, components.NavBehavior{
		Type:         components.BehaviorFlee,
		FleeFrom:     threat,
		FleeDistance: distance,
	})
}

// SpawnIdle spawns an agent with no behavior attached; drive it with
// Agents().SetDestination.
func (s *Sim) SpawnIdle(pos navmesh.Vec3) ecs.Entity {
	return s.spawn(pos, components.NavBehavior{Type: components.BehaviorNone})
}

// EachAgent visits every spawned agent. The callback must not add or
// remove entities.
func (s *Sim) EachAgent(fn func(e ecs.Entity, tr *components.Transform, agent *components.NavAgent)) {
	q := s.filter.Query()
	for q.Next() {
		tr, agent := q.Get()
		fn(q.Entity(), tr, agent)
	}
}

// stateCounts takes a census of agent states.
func (s *Sim) stateCounts() telemetry.StateCounts {
	var counts telemetry.StateCounts
	q := s.filter.Query()
	for q.Next() {
		_, agent := q.Get()
		switch agent.State {
		case components.StateIdle:
			counts.Idle++
		case components.StateWaiting:
			counts.Waiting++
		case components.StateMoving:
			counts.Moving++
		case components.StateArrived:
			counts.Arrived++
		case components.StateFailed:
			counts.Failed++
		}
	}
	return counts
}

// flushTelemetry emits a stats window when one has elapsed.
func (s *Sim) flushTelemetry() {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	counts := s.stateCounts()
	requests, failures, partials := s.agents.PathStats()
	nodeSum, nodeMax := s.agents.SearchNodeStats()
	stats := s.collector.Flush(s.tick, counts, requests, failures, partials, nodeSum, nodeMax)

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}
	if s.logStats {
		stats.LogStats()
	}
	if s.output != nil {
		if err := s.output.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
	}
}

// Close flushes and closes telemetry output.
func (s *Sim) Close() error {
	return s.output.Close()
}
