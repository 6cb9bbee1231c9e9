// Package systems drives navigation agents over an ECS world: path
// following and steering in AgentSystem, autonomous policies in
// BehaviorSystem.
package systems

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/query"
)

// AgentParams holds tunable defaults applied to newly spawned agents.
type AgentParams struct {
	MaxSpeed         float32
	Acceleration     float32
	Deceleration     float32
	CornerThreshold  float32 // corner advance distance
	StoppingDistance float32 // final waypoint acceptance distance
	RepathInterval   float32 // seconds between automatic repaths, 0 disables
	ProjectExtents   navmesh.Vec3
}

// DefaultAgentParams returns sensible steering defaults.
func DefaultAgentParams() AgentParams {
	return AgentParams{
		MaxSpeed:         4,
		Acceleration:     8,
		Deceleration:     12,
		CornerThreshold:  0.35,
		StoppingDistance: 0.5,
		RepathInterval:   0,
		ProjectExtents:   navmesh.Vec3{X: 0.5, Y: 2, Z: 0.5},
	}
}

// StateChange is delivered to subscribers when an agent transitions.
type StateChange struct {
	Entity ecs.Entity
	From   components.AgentState
	To     components.AgentState
}

// StateChangeHandler observes agent state transitions. Handlers run
// synchronously in registration order and must not re-enter the
// agent system.
type StateChangeHandler func(StateChange)

// AgentSystem owns the navigation state machine of every agent:
// destination requests, path following and steering.
type AgentSystem struct {
	world  *ecs.World
	pf     *query.Pathfinder
	params AgentParams
	log    *slog.Logger

	filter       *ecs.Filter2[components.Transform, components.NavAgent]
	transformMap *ecs.Map1[components.Transform]
	agentMap     *ecs.Map1[components.NavAgent]

	subscribers []StateChangeHandler

	pathRequests int
	pathFailures int
	pathPartials int
	nodeSum      int
	nodeMax      int
}

// NewAgentSystem wires an agent system to a world and a pathfinder.
func NewAgentSystem(world *ecs.World, pf *query.Pathfinder, params AgentParams, log *slog.Logger) *AgentSystem {
	if log == nil {
		log = slog.Default()
	}
	return &AgentSystem{
		world:        world,
		pf:           pf,
		params:       params,
		log:          log,
		filter:       ecs.NewFilter2[components.Transform, components.NavAgent](world),
		transformMap: ecs.NewMap1[components.Transform](world),
		agentMap:     ecs.NewMap1[components.NavAgent](world),
	}
}

// Params returns the spawn defaults of this system.
func (s *AgentSystem) Params() AgentParams { return s.params }

// Pathfinder returns the query engine agents use.
func (s *AgentSystem) Pathfinder() *query.Pathfinder { return s.pf }

// Subscribe registers a state-transition observer.
func (s *AgentSystem) Subscribe(h StateChangeHandler) {
	s.subscribers = append(s.subscribers, h)
}

// PathStats returns and resets the request counters accumulated since
// the last call.
func (s *AgentSystem) PathStats() (requests, failures, partials int) {
	requests, failures, partials = s.pathRequests, s.pathFailures, s.pathPartials
	s.pathRequests, s.pathFailures, s.pathPartials = 0, 0, 0
	return
}

// SearchNodeStats returns and resets the accumulated graph-search
// node usage since the last call.
func (s *AgentSystem) SearchNodeStats() (sum, max int) {
	sum, max = s.nodeSum, s.nodeMax
	s.nodeSum, s.nodeMax = 0, 0
	return
}

func (s *AgentSystem) setState(e ecs.Entity, agent *components.NavAgent, to components.AgentState) {
	if agent.State == to {
		return
	}
	change := StateChange{Entity: e, From: agent.State, To: to}
	agent.State = to
	for _, h := range s.subscribers {
		h(change)
	}
}

// SetDestination issues a path request from the agent's current
// position. On success the agent's path is replaced wholesale and the
// agent starts moving; on failure it transitions to Failed. Returns
// whether a path was found.
func (s *AgentSystem) SetDestination(e ecs.Entity, target navmesh.Vec3) bool {
	if !s.world.Alive(e) || !s.agentMap.HasAll(e) || !s.transformMap.HasAll(e) {
		return false
	}
	return s.setDestination(e, s.transformMap.Get(e), s.agentMap.Get(e), target)
}

func (s *AgentSystem) setDestination(e ecs.Entity, tr *components.Transform, agent *components.NavAgent, target navmesh.Vec3) bool {
	s.setState(e, agent, components.StateWaiting)
	agent.Target = target

	s.pathRequests++
	res := s.findPath(tr.Position, target, agent)
	if n := s.pf.NodesUsed(); n > 0 {
		s.nodeSum += n
		if n > s.nodeMax {
			s.nodeMax = n
		}
	}
	if !res.Success || len(res.Points) == 0 {
		s.pathFailures++
		agent.Path = nil
		agent.PathIndex = 0
		s.setState(e, agent, components.StateFailed)
		return false
	}
	if res.Partial {
		s.pathPartials++
	}

	agent.Path = res.Points
	agent.PathIndex = 0
	agent.ArrivedPartial = res.Partial
	agent.RepathTimer = agent.RepathInterval
	agent.RemainingDistance = pathLength(tr.Position, res.Points, 0)
	s.setState(e, agent, components.StateMoving)
	return true
}

// findPath issues the query, applying the agent's area cost
// overrides for its duration.
func (s *AgentSystem) findPath(start, target navmesh.Vec3, agent *components.NavAgent) query.PathResult {
	type savedCost struct {
		area uint8
		cost float32
	}
	f := s.pf.Filter()
	var saved []savedCost
	for i, c := range agent.AreaCosts {
		if i >= navmesh.MaxAreas {
			break
		}
		if c > 0 {
			saved = append(saved, savedCost{uint8(i), f.Cost(uint8(i))})
			f.SetCost(uint8(i), c)
		}
	}
	res := s.pf.FindPath(start, target, navmesh.Vec3{})
	for _, sc := range saved {
		f.SetCost(sc.area, sc.cost)
	}
	return res
}

// Stop clears the agent's path and returns it to Idle. Stopping an
// already idle agent has no effect.
func (s *AgentSystem) Stop(e ecs.Entity) {
	if !s.world.Alive(e) || !s.agentMap.HasAll(e) {
		return
	}
	agent := s.agentMap.Get(e)
	if agent.State == components.StateIdle && len(agent.Path) == 0 {
		return
	}
	agent.Path = nil
	agent.PathIndex = 0
	agent.Speed = 0
	agent.RemainingDistance = 0
	s.setState(e, agent, components.StateIdle)
}

// Warp teleports the agent onto the mesh near pos, dropping any
// active path. Returns false if no mesh surface is near pos.
func (s *AgentSystem) Warp(e ecs.Entity, pos navmesh.Vec3) bool {
	if !s.world.Alive(e) || !s.agentMap.HasAll(e) || !s.transformMap.HasAll(e) {
		return false
	}
	snapped := s.pf.FindNearestPoint(pos, 2)
	if !snapped.Valid {
		return false
	}
	s.transformMap.Get(e).Position = snapped.Point
	agent := s.agentMap.Get(e)
	agent.Path = nil
	agent.PathIndex = 0
	agent.Speed = 0
	agent.RemainingDistance = 0
	s.setState(e, agent, components.StateIdle)
	return true
}

// Update advances every moving agent by dt seconds: corner advance,
// accelerate/decelerate steering, mesh height correction and raycast
// path shortcuts.
func (s *AgentSystem) Update(dt float32) {
	q := s.filter.Query()
	for q.Next() {
		tr, agent := q.Get()
		e := q.Entity()

		if agent.State == components.StateMoving && agent.RepathInterval > 0 {
			agent.RepathTimer -= dt
			if agent.RepathTimer <= 0 {
				s.setDestination(e, tr, agent, agent.Target)
				continue
			}
		}
		if agent.State != components.StateMoving {
			agent.Speed = 0
			continue
		}

		s.advanceCorners(tr, agent)
		if agent.PathIndex >= len(agent.Path) {
			s.arrive(e, agent)
			continue
		}

		corner := agent.Path[agent.PathIndex]
		remaining := pathLength(tr.Position, agent.Path, agent.PathIndex)
		agent.RemainingDistance = remaining

		// Slow down when the rest of the path fits in braking range.
		if agent.Deceleration > 0 && remaining < agent.Speed*agent.Speed/(2*agent.Deceleration) {
			agent.Speed -= agent.Deceleration * dt
			if agent.Speed < 0.1 {
				agent.Speed = 0.1
			}
		} else {
			agent.Speed += agent.Acceleration * dt
			if agent.Speed > agent.MaxSpeed {
				agent.Speed = agent.MaxSpeed
			}
		}

		dir := corner.Sub(tr.Position)
		dir.Y = 0
		step := agent.Speed * dt
		if d := dir.Len(); d > 1e-5 {
			if step > d {
				step = d
			}
			tr.Position = tr.Position.Add(dir.Normalized().Scale(step))
		}

		// Keep the agent on the surface.
		if proj := s.pf.ProjectPoint(tr.Position, s.params.ProjectExtents); proj.Valid {
			tr.Position.Y = proj.Point.Y
		}

		s.smoothPath(tr, agent)

		if agent.PathIndex >= len(agent.Path) {
			s.arrive(e, agent)
		}
	}
}

// advanceCorners consumes waypoints the agent has reached. The final
// waypoint uses the stopping distance, intermediate corners the
// corner threshold.
func (s *AgentSystem) advanceCorners(tr *components.Transform, agent *components.NavAgent) {
	for agent.PathIndex < len(agent.Path) {
		threshold := agent.CornerThreshold
		if agent.PathIndex == len(agent.Path)-1 {
			threshold = agent.StoppingDistance
		}
		if tr.Position.Dist2D(agent.Path[agent.PathIndex]) > threshold {
			break
		}
		agent.PathIndex++
	}
}

// smoothPath skips the current corner when the one after it is
// directly visible, straightening stair-step paths.
func (s *AgentSystem) smoothPath(tr *components.Transform, agent *components.NavAgent) {
	next := agent.PathIndex + 1
	if next >= len(agent.Path) {
		return
	}
	if s.pf.IsPathClear(tr.Position, agent.Path[next]) {
		agent.PathIndex = next
	}
}

func (s *AgentSystem) arrive(e ecs.Entity, agent *components.NavAgent) {
	agent.Path = nil
	agent.PathIndex = 0
	agent.Speed = 0
	agent.RemainingDistance = 0
	s.setState(e, agent, components.StateArrived)
}

// pathLength sums the remaining path from pos through the waypoints
// starting at index.
func pathLength(pos navmesh.Vec3, path []navmesh.Vec3, index int) float32 {
	if index >= len(path) {
		return 0
	}
	total := pos.Dist(path[index])
	for i := index + 1; i < len(path); i++ {
		total += path[i-1].Dist(path[i])
	}
	return total
}
