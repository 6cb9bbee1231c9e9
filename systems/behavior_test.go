package systems

import (
	"math/rand"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/navmesh"
)

func (w *testWorld) spawnBehaviorAgent(pos navmesh.Vec3, beh components.NavBehavior) ecs.Entity {
	mapper := ecs.NewMap3[components.Transform, components.NavAgent, components.NavBehavior](w.world)
	p := w.agents.Params()
	return mapper.NewEntity(
		&components.Transform{Position: pos},
		&components.NavAgent{
			MaxSpeed:         p.MaxSpeed,
			Acceleration:     p.Acceleration,
			Deceleration:     p.Deceleration,
			CornerThreshold:  p.CornerThreshold,
			StoppingDistance: p.StoppingDistance,
		},
		&beh,
	)
}

func newBehaviorSystem(w *testWorld, seed int64) *BehaviorSystem {
	return NewBehaviorSystem(w.world, w.agents, DefaultBehaviorParams(), rand.New(rand.NewSource(seed)))
}

// stepBoth advances steering then behaviors, the per-frame order the
// simulation uses.
func stepBoth(agents *AgentSystem, behaviors *BehaviorSystem, dt float32) {
	agents.Update(dt)
	behaviors.Update(dt)
}

// arrivalTargets runs the simulation until n arrivals were observed
// and returns the agent's target at each arrival.
func arrivalTargets(t *testing.T, w *testWorld, behaviors *BehaviorSystem, e ecs.Entity, n int) []navmesh.Vec3 {
	t.Helper()
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	var targets []navmesh.Vec3
	w.agents.Subscribe(func(c StateChange) {
		if c.Entity == e && c.To == components.StateArrived {
			targets = append(targets, agentMap.Get(e).Target)
		}
	})
	for i := 0; i < 20000 && len(targets) < n; i++ {
		stepBoth(w.agents, behaviors, 0.05)
	}
	if len(targets) < n {
		t.Fatalf("observed %d arrivals, want %d", len(targets), n)
	}
	return targets[:n]
}

func TestPatrolLoopSequence(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 1)

	a := navmesh.Vec3{X: 2, Z: 2}
	b := navmesh.Vec3{X: 12, Z: 2}
	c := navmesh.Vec3{X: 22, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 6, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   []navmesh.Vec3{a, b, c},
		PatrolMode:     components.PatrolLoop,
		PatrolWaitTime: 0.1,
	})

	got := arrivalTargets(t, w, behaviors, e, 7)
	want := []navmesh.Vec3{a, b, c, a, b, c, a}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arrival %d targeted %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestPatrolPingPongSequence(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 1)

	a := navmesh.Vec3{X: 2, Z: 2}
	b := navmesh.Vec3{X: 12, Z: 2}
	c := navmesh.Vec3{X: 22, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 6, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   []navmesh.Vec3{a, b, c},
		PatrolMode:     components.PatrolPingPong,
		PatrolWaitTime: 0.1,
	})

	got := arrivalTargets(t, w, behaviors, e, 7)
	want := []navmesh.Vec3{a, b, c, b, a, b, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arrival %d targeted %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestPatrolTwoPointPingPong(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 1)

	a := navmesh.Vec3{X: 2, Z: 2}
	b := navmesh.Vec3{X: 12, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 6, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   []navmesh.Vec3{a, b},
		PatrolMode:     components.PatrolPingPong,
		PatrolWaitTime: 0.05,
	})

	got := arrivalTargets(t, w, behaviors, e, 5)
	want := []navmesh.Vec3{a, b, a, b, a}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arrival %d targeted %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPatrolSinglePoint(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 1)

	a := navmesh.Vec3{X: 2, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 6, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   []navmesh.Vec3{a},
		PatrolMode:     components.PatrolPingPong,
		PatrolWaitTime: 0.05,
	})

	got := arrivalTargets(t, w, behaviors, e, 3)
	for i, g := range got {
		if g != a {
			t.Fatalf("arrival %d targeted %v, want %v", i, g, a)
		}
	}
}

func TestWanderStaysInRadius(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 3)
	trMap := ecs.NewMap1[components.Transform](w.world)

	origin := navmesh.Vec3{X: 12, Z: 2}
	e := w.spawnBehaviorAgent(origin, components.NavBehavior{
		Type:         components.BehaviorWander,
		WanderRadius: 5,
		WaitMin:      0.05,
		WaitMax:      0.2,
	})

	arrivals := 0
	w.agents.Subscribe(func(c StateChange) {
		if c.To == components.StateArrived {
			arrivals++
		}
	})

	for i := 0; i < 4000; i++ {
		stepBoth(w.agents, behaviors, 0.05)
		if d := trMap.Get(e).Position.Dist2D(origin); d > 5.6 {
			t.Fatalf("step %d: wandered %v from origin, radius 5", i, d)
		}
	}
	if arrivals < 3 {
		t.Fatalf("only %d wander arrivals in 200 simulated seconds", arrivals)
	}
}

func TestFleeMonotonicUntilSafe(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 5)
	trMap := ecs.NewMap1[components.Transform](w.world)
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	threat := navmesh.Vec3{X: 2, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 6, Z: 2}, components.NavBehavior{
		Type:         components.BehaviorFlee,
		FleeFrom:     threat,
		FleeDistance: 12,
	})

	prev := trMap.Get(e).Position.Dist(threat)
	escaped := false
	for i := 0; i < 2000; i++ {
		stepBoth(w.agents, behaviors, 0.05)
		d := trMap.Get(e).Position.Dist(threat)
		if d < prev-0.001 {
			t.Fatalf("step %d: distance shrank from %v to %v", i, prev, d)
		}
		prev = d
		if d > 12 && agentMap.Get(e).State == components.StateIdle {
			escaped = true
			break
		}
	}
	if !escaped {
		t.Fatalf("agent never escaped, final distance %v", prev)
	}

	// Past the flee distance the behavior must leave the agent alone.
	pos := trMap.Get(e).Position
	for i := 0; i < 100; i++ {
		stepBoth(w.agents, behaviors, 0.05)
	}
	if trMap.Get(e).Position != pos {
		t.Fatal("agent kept moving after escaping the threat")
	}
}

func TestFollowKeepsDistance(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	behaviors := newBehaviorSystem(w, 7)
	trMap := ecs.NewMap1[components.Transform](w.world)
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	leaderMapper := ecs.NewMap1[components.Transform](w.world)
	leader := leaderMapper.NewEntity(&components.Transform{Position: navmesh.Vec3{X: 22, Z: 2}})

	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 2, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorFollow,
		FollowTarget:   leader,
		FollowDistance: 2,
		FollowInterval: 0.5,
	})

	for i := 0; i < 1000; i++ {
		stepBoth(w.agents, behaviors, 0.05)
	}
	d := trMap.Get(e).Position.Dist(trMap.Get(leader).Position)
	if d < 1.3 || d > 2.8 {
		t.Fatalf("settled %v from the leader, want about 2", d)
	}
	if agentMap.Get(e).State == components.StateMoving {
		t.Fatal("follower still moving while inside follow distance")
	}

	// Leader moves away: the follower catches up again.
	trMap.Get(leader).Position = navmesh.Vec3{X: 6, Z: 2}
	for i := 0; i < 1000; i++ {
		stepBoth(w.agents, behaviors, 0.05)
	}
	d = trMap.Get(e).Position.Dist(trMap.Get(leader).Position)
	if d < 1.3 || d > 2.8 {
		t.Fatalf("after the leader moved, settled %v away, want about 2", d)
	}
}

func TestPatrolSkipsUnreachablePoint(t *testing.T) {
	w := newTestWorld(t, islandMesh(t))
	behaviors := newBehaviorSystem(w, 9)
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	a := navmesh.Vec3{X: 1, Z: 2}
	unreachable := navmesh.Vec3{X: 18, Z: 100} // off the mesh entirely
	b := navmesh.Vec3{X: 3, Z: 2}
	e := w.spawnBehaviorAgent(navmesh.Vec3{X: 2, Z: 2}, components.NavBehavior{
		Type:           components.BehaviorPatrol,
		PatrolPoints:   []navmesh.Vec3{a, unreachable, b},
		PatrolMode:     components.PatrolLoop,
		PatrolWaitTime: 0.05,
	})

	var targets []navmesh.Vec3
	w.agents.Subscribe(func(c StateChange) {
		if c.To == components.StateArrived {
			targets = append(targets, agentMap.Get(e).Target)
		}
	})
	for i := 0; i < 4000 && len(targets) < 3; i++ {
		stepBoth(w.agents, behaviors, 0.05)
	}
	if len(targets) < 3 {
		t.Fatalf("only %d arrivals, want the patrol to skip the bad point", len(targets))
	}
	want := []navmesh.Vec3{a, b, a}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("arrival %d targeted %v, want %v (full: %v)", i, targets[i], want[i], targets)
		}
	}
}
