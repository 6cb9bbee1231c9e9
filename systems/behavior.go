package systems

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/query"
)

// BehaviorParams holds tunable parameters shared by all behaviors.
type BehaviorParams struct {
	WanderRetryDelay  float32 // delay before retrying a failed wander sample
	PatrolFailedDelay float32 // delay before skipping an unreachable patrol point
	FleeFallbackScale float32 // fallback sample radius as a fraction of flee distance
	FleeMaxAttempts   int     // failed fallbacks before a forced move
	FleeSnapRadius    float32 // mesh snap radius for the directional flee target
}

// DefaultBehaviorParams returns sensible defaults for the behavior
// layer.
func DefaultBehaviorParams() BehaviorParams {
	return BehaviorParams{
		WanderRetryDelay:  0.1,
		PatrolFailedDelay: 0.5,
		FleeFallbackScale: 0.5,
		FleeMaxAttempts:   5,
		FleeSnapRadius:    2,
	}
}

// BehaviorSystem runs the autonomous policies (wander, patrol,
// follow, flee) that drive agents through the agent system. It must
// update after AgentSystem.Update each frame so decisions see fresh
// steering state.
type BehaviorSystem struct {
	world  *ecs.World
	agents *AgentSystem
	pf     *query.Pathfinder
	params BehaviorParams
	rng    *rand.Rand

	filter       *ecs.Filter3[components.Transform, components.NavAgent, components.NavBehavior]
	transformMap *ecs.Map1[components.Transform]
}

// NewBehaviorSystem wires the behavior layer to an agent system.
func NewBehaviorSystem(world *ecs.World, agents *AgentSystem, params BehaviorParams, rng *rand.Rand) *BehaviorSystem {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &BehaviorSystem{
		world:  world,
		agents: agents,
		pf:     agents.Pathfinder(),
		params: params,
		rng:    rng,
		filter: ecs.NewFilter3[components.Transform, components.NavAgent, components.NavBehavior](world),
		transformMap: ecs.NewMap1[components.Transform](world),
	}
}

// Update steps every behavior by dt seconds.
func (s *BehaviorSystem) Update(dt float32) {
	q := s.filter.Query()
	for q.Next() {
		tr, agent, beh := q.Get()
		e := q.Entity()

		if !beh.Started {
			s.start(tr, beh)
		}

		switch beh.Type {
		case components.BehaviorWander:
			s.wander(e, tr, agent, beh, dt)
		case components.BehaviorPatrol:
			s.patrol(e, tr, agent, beh, dt)
		case components.BehaviorFollow:
			s.follow(e, tr, agent, beh, dt)
		case components.BehaviorFlee:
			s.flee(e, tr, agent, beh)
		}
	}
}

func (s *BehaviorSystem) start(tr *components.Transform, beh *components.NavBehavior) {
	beh.Started = true
	switch beh.Type {
	case components.BehaviorWander:
		beh.WanderOrigin = tr.Position
		beh.WaitTimer = 0
	case components.BehaviorPatrol:
		if beh.PatrolDirection == 0 {
			beh.PatrolDirection = 1
		}
		beh.WaitTimer = 0
	}
}

// settled reports whether the agent has no meaningful ongoing path.
func settled(state components.AgentState) bool {
	return state == components.StateIdle ||
		state == components.StateArrived ||
		state == components.StateFailed
}

func (s *BehaviorSystem) wander(e ecs.Entity, tr *components.Transform, agent *components.NavAgent, beh *components.NavBehavior, dt float32) {
	if !settled(agent.State) {
		return
	}
	beh.WaitTimer -= dt
	if beh.WaitTimer > 0 {
		return
	}

	pt := s.pf.FindRandomPointAround(beh.WanderOrigin, beh.WanderRadius)
	if !pt.Valid || !s.agents.setDestination(e, tr, agent, pt.Point) {
		// Short retry instead of the full random wait, so a bad
		// origin circle doesn't stall the agent.
		beh.WaitTimer = s.params.WanderRetryDelay
		return
	}
	beh.WaitTimer = beh.WaitMin + s.rng.Float32()*(beh.WaitMax-beh.WaitMin)
}

func (s *BehaviorSystem) patrol(e ecs.Entity, tr *components.Transform, agent *components.NavAgent, beh *components.NavBehavior, dt float32) {
	n := len(beh.PatrolPoints)
	if n == 0 || !settled(agent.State) {
		return
	}

	switch agent.State {
	case components.StateIdle:
		// First dispatch heads to the current point.
		s.agents.setDestination(e, tr, agent, beh.PatrolPoints[beh.PatrolIndex])
		return
	case components.StateArrived:
		if beh.WaitTimer <= 0 {
			beh.WaitTimer = beh.PatrolWaitTime
		}
	case components.StateFailed:
		// Unreachable point: skip it after a brief delay instead of
		// hammering the same request.
		if beh.WaitTimer <= 0 {
			beh.WaitTimer = s.params.PatrolFailedDelay
		}
	}

	failed := agent.State == components.StateFailed

	beh.WaitTimer -= dt
	if beh.WaitTimer > 0 {
		return
	}
	beh.WaitTimer = 0

	if failed && beh.PatrolMode == components.PatrolPingPong && n > 1 {
		// Unreachable point in ping-pong mode: turn around.
		beh.PatrolDirection = -beh.PatrolDirection
	}
	s.advancePatrol(beh)
	s.agents.setDestination(e, tr, agent, beh.PatrolPoints[beh.PatrolIndex])
}

// advancePatrol steps the patrol index in the current mode, reversing
// at the ends in ping-pong mode.
func (s *BehaviorSystem) advancePatrol(beh *components.NavBehavior) {
	n := len(beh.PatrolPoints)
	if n <= 1 {
		beh.PatrolIndex = 0
		return
	}
	switch beh.PatrolMode {
	case components.PatrolLoop:
		beh.PatrolIndex = (beh.PatrolIndex + 1) % n
	case components.PatrolPingPong:
		beh.PatrolIndex += beh.PatrolDirection
		if beh.PatrolIndex >= n {
			beh.PatrolIndex = n - 2
			beh.PatrolDirection = -1
		} else if beh.PatrolIndex < 0 {
			beh.PatrolIndex = 1
			beh.PatrolDirection = 1
		}
	}
}

func (s *BehaviorSystem) follow(e ecs.Entity, tr *components.Transform, agent *components.NavAgent, beh *components.NavBehavior, dt float32) {
	if !s.world.Alive(beh.FollowTarget) || !s.transformMap.HasAll(beh.FollowTarget) {
		if agent.State == components.StateMoving {
			s.agents.Stop(e)
		}
		return
	}
	targetPos := s.transformMap.Get(beh.FollowTarget).Position
	dist := tr.Position.Dist(targetPos)

	beh.FollowTimer -= dt

	if dist <= beh.FollowDistance {
		if agent.State == components.StateMoving {
			s.agents.Stop(e)
		}
		return
	}

	// Re-query on the fixed interval, or immediately when settled and
	// far behind the target.
	catchUp := settled(agent.State) && dist > 2*beh.FollowDistance
	if beh.FollowTimer > 0 && !catchUp {
		return
	}
	beh.FollowTimer = beh.FollowInterval

	// Stop short of the target by follow distance.
	back := tr.Position.Sub(targetPos).Normalized()
	if back == (navmesh.Vec3{}) {
		back = navmesh.Vec3{X: 1}
	}
	s.agents.setDestination(e, tr, agent, targetPos.Add(back.Scale(beh.FollowDistance)))
}

func (s *BehaviorSystem) flee(e ecs.Entity, tr *components.Transform, agent *components.NavAgent, beh *components.NavBehavior) {
	dist := tr.Position.Dist(beh.FleeFrom)
	if dist > beh.FleeDistance {
		// Far enough: the threat is escaped.
		if agent.State == components.StateMoving {
			s.agents.Stop(e)
		}
		beh.FleeAttempts = 0
		return
	}
	if !settled(agent.State) {
		return
	}

	away := tr.Position.Sub(beh.FleeFrom)
	away.Y = 0
	dir := away.Normalized()
	if dir == (navmesh.Vec3{}) {
		dir = s.randomDirection()
	}

	// Preferred escape: straight away from the threat at flee
	// distance.
	target := beh.FleeFrom.Add(dir.Scale(beh.FleeDistance * 1.1))
	if pt := s.pf.FindNearestPoint(target, s.params.FleeSnapRadius); pt.Valid {
		if pt.Point.Dist(beh.FleeFrom) > dist {
			if s.agents.setDestination(e, tr, agent, pt.Point) {
				beh.FleeAttempts = 0
				return
			}
		}
	}

	// Fallback: sample nearby, accepting only points farther from the
	// threat so the agent never flees into a closer dead end.
	pt := s.pf.FindRandomPointAround(tr.Position, beh.FleeDistance*s.params.FleeFallbackScale)
	if pt.Valid && pt.Point.Dist(beh.FleeFrom) > dist {
		if s.agents.setDestination(e, tr, agent, pt.Point) {
			beh.FleeAttempts = 0
			return
		}
	}

	beh.FleeAttempts++
	if beh.FleeAttempts >= s.params.FleeMaxAttempts {
		// Nowhere strictly better nearby: force some movement rather
		// than idling next to the threat.
		if pt.Valid && s.agents.setDestination(e, tr, agent, pt.Point) {
			beh.FleeAttempts = 0
		}
	}
}

func (s *BehaviorSystem) randomDirection() navmesh.Vec3 {
	angle := s.rng.Float64() * 2 * math.Pi
	return navmesh.Vec3{X: float32(math.Cos(angle)), Z: float32(math.Sin(angle))}
}
