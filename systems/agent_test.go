package systems

import (
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/query"
)

// stripMesh builds a single-tile mesh of six 4x4 quads in a row along
// X, spanning (0,0,0)-(24,0,4).
func stripMesh(t *testing.T) *navmesh.Mesh {
	t.Helper()
	var verts []navmesh.Vec3
	for i := 0; i <= 6; i++ {
		verts = append(verts,
			navmesh.Vec3{X: float32(i) * 4, Z: 0},
			navmesh.Vec3{X: float32(i) * 4, Z: 4},
		)
	}
	var polys []navmesh.TilePoly
	for i := 0; i < 6; i++ {
		polys = append(polys, navmesh.TilePoly{
			Verts: []int{2 * i, 2*i + 1, 2*i + 3, 2*i + 2},
			Flags: navmesh.FlagWalk,
		})
	}
	data, err := navmesh.CreateTileData(navmesh.TileConfig{
		Bounds: navmesh.AABB{Max: navmesh.Vec3{X: 24, Z: 4}},
		Verts:  verts,
		Polys:  polys,
	})
	if err != nil {
		t.Fatalf("CreateTileData: %v", err)
	}
	m, err := navmesh.New(navmesh.Params{TileWidth: 24, TileHeight: 4, MaxTiles: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.AddTile(data); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	return m
}

// islandMesh builds two quads with a gap and no connection.
func islandMesh(t *testing.T) *navmesh.Mesh {
	t.Helper()
	data, err := navmesh.CreateTileData(navmesh.TileConfig{
		Bounds: navmesh.AABB{Max: navmesh.Vec3{X: 20, Z: 4}},
		Verts: []navmesh.Vec3{
			{X: 0, Z: 0}, {X: 0, Z: 4}, {X: 4, Z: 4}, {X: 4, Z: 0},
			{X: 16, Z: 0}, {X: 16, Z: 4}, {X: 20, Z: 4}, {X: 20, Z: 0},
		},
		Polys: []navmesh.TilePoly{
			{Verts: []int{0, 1, 2, 3}, Flags: navmesh.FlagWalk},
			{Verts: []int{4, 5, 6, 7}, Flags: navmesh.FlagWalk},
		},
	})
	if err != nil {
		t.Fatalf("CreateTileData: %v", err)
	}
	m, err := navmesh.New(navmesh.Params{TileWidth: 20, TileHeight: 4, MaxTiles: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.AddTile(data); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	return m
}

type testWorld struct {
	world  *ecs.World
	pf     *query.Pathfinder
	agents *AgentSystem
}

func newTestWorld(t *testing.T, mesh *navmesh.Mesh) *testWorld {
	t.Helper()
	pf, err := query.New(mesh, 1024)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	world := ecs.NewWorld()
	return &testWorld{
		world:  world,
		pf:     pf,
		agents: NewAgentSystem(world, pf, DefaultAgentParams(), nil),
	}
}

func (w *testWorld) spawnAgent(pos navmesh.Vec3) ecs.Entity {
	mapper := ecs.NewMap2[components.Transform, components.NavAgent](w.world)
	p := w.agents.Params()
	return mapper.NewEntity(
		&components.Transform{Position: pos},
		&components.NavAgent{
			MaxSpeed:         p.MaxSpeed,
			Acceleration:     p.Acceleration,
			Deceleration:     p.Deceleration,
			CornerThreshold:  p.CornerThreshold,
			StoppingDistance: p.StoppingDistance,
			RepathInterval:   p.RepathInterval,
		},
	)
}

// run steps the agent system until the predicate holds or maxSteps
// updates have passed.
func (w *testWorld) run(t *testing.T, maxSteps int, done func() bool) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		w.agents.Update(0.05)
		if done() {
			return
		}
	}
	t.Fatalf("condition not reached within %d steps", maxSteps)
}

func TestSetDestinationAndArrive(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})

	var transitions []components.AgentState
	w.agents.Subscribe(func(c StateChange) {
		transitions = append(transitions, c.To)
	})

	agentMap := ecs.NewMap1[components.NavAgent](w.world)
	trMap := ecs.NewMap1[components.Transform](w.world)

	if !w.agents.SetDestination(e, navmesh.Vec3{X: 22, Z: 2}) {
		t.Fatal("SetDestination failed on a connected strip")
	}
	if agentMap.Get(e).State != components.StateMoving {
		t.Fatalf("state = %v after request, want moving", agentMap.Get(e).State)
	}

	w.run(t, 1000, func() bool {
		return agentMap.Get(e).State == components.StateArrived
	})

	pos := trMap.Get(e).Position
	if pos.Dist2D(navmesh.Vec3{X: 22, Z: 2}) > 1 {
		t.Fatalf("arrived at %v, want near (22, 2)", pos)
	}
	agent := agentMap.Get(e)
	if len(agent.Path) != 0 || agent.PathIndex != 0 || agent.Speed != 0 {
		t.Fatalf("arrival left residual path state: %+v", agent)
	}
	if agent.ArrivedPartial {
		t.Fatal("full path flagged as partial arrival")
	}

	want := []components.AgentState{
		components.StateWaiting, components.StateMoving, components.StateArrived,
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestSetDestinationFailure(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	if w.agents.SetDestination(e, navmesh.Vec3{X: 2, Z: 100}) {
		t.Fatal("SetDestination succeeded for an off-mesh target")
	}
	agent := agentMap.Get(e)
	if agent.State != components.StateFailed {
		t.Fatalf("state = %v, want failed", agent.State)
	}
	if len(agent.Path) != 0 {
		t.Fatal("failed request left a path behind")
	}

	// Recoverable: a valid follow-up request works.
	if !w.agents.SetDestination(e, navmesh.Vec3{X: 10, Z: 2}) {
		t.Fatal("valid request after a failure did not recover")
	}
}

func TestPartialPathArrival(t *testing.T) {
	w := newTestWorld(t, islandMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	agentMap := ecs.NewMap1[components.NavAgent](w.world)
	trMap := ecs.NewMap1[components.Transform](w.world)

	if !w.agents.SetDestination(e, navmesh.Vec3{X: 18, Z: 2}) {
		t.Fatal("partial path request should still succeed")
	}
	if !agentMap.Get(e).ArrivedPartial {
		t.Fatal("partial path not flagged")
	}

	w.run(t, 1000, func() bool {
		return agentMap.Get(e).State == components.StateArrived
	})
	pos := trMap.Get(e).Position
	if pos.X > 4.6 {
		t.Fatalf("agent escaped the start island to %v", pos)
	}
	if !agentMap.Get(e).ArrivedPartial {
		t.Fatal("ArrivedPartial cleared before the behavior layer saw it")
	}
}

func TestStopIdempotent(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	calls := 0
	w.agents.Subscribe(func(StateChange) { calls++ })

	w.agents.Stop(e)
	if agentMap.Get(e).State != components.StateIdle {
		t.Fatalf("state = %v, want idle", agentMap.Get(e).State)
	}
	if calls != 0 {
		t.Fatalf("stop of an idle agent fired %d transitions", calls)
	}

	w.agents.SetDestination(e, navmesh.Vec3{X: 22, Z: 2})
	w.agents.Stop(e)
	if agentMap.Get(e).State != components.StateIdle {
		t.Fatal("stop did not return the agent to idle")
	}
	before := calls
	w.agents.Stop(e)
	if calls != before {
		t.Fatal("second stop had side effects")
	}
}

func TestWarp(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	trMap := ecs.NewMap1[components.Transform](w.world)
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	w.agents.SetDestination(e, navmesh.Vec3{X: 22, Z: 2})
	if !w.agents.Warp(e, navmesh.Vec3{X: 13, Y: 1, Z: 2}) {
		t.Fatal("warp onto the strip failed")
	}
	pos := trMap.Get(e).Position
	if pos.Dist2D(navmesh.Vec3{X: 13, Z: 2}) > 0.01 || pos.Y != 0 {
		t.Fatalf("warped to %v, want (13, 0, 2)", pos)
	}
	if agentMap.Get(e).State != components.StateIdle || len(agentMap.Get(e).Path) != 0 {
		t.Fatal("warp kept the old path")
	}

	if w.agents.Warp(e, navmesh.Vec3{X: 0, Z: 50}) {
		t.Fatal("warp far off the mesh succeeded")
	}
}

func TestPathStats(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})

	w.agents.SetDestination(e, navmesh.Vec3{X: 22, Z: 2})
	w.agents.SetDestination(e, navmesh.Vec3{X: 2, Z: 100})

	requests, failures, partials := w.agents.PathStats()
	if requests != 2 || failures != 1 || partials != 0 {
		t.Fatalf("stats = %d/%d/%d, want 2/1/0", requests, failures, partials)
	}
	requests, failures, partials = w.agents.PathStats()
	if requests != 0 || failures != 0 || partials != 0 {
		t.Fatal("stats not reset after read")
	}
}

func TestOpsRequireComponents(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	bare := ecs.NewMap1[components.Transform](w.world).NewEntity(
		&components.Transform{Position: navmesh.Vec3{X: 2, Z: 2}},
	)

	if w.agents.SetDestination(bare, navmesh.Vec3{X: 22, Z: 2}) {
		t.Fatal("SetDestination succeeded without a NavAgent component")
	}
	if w.agents.Warp(bare, navmesh.Vec3{X: 2, Z: 2}) {
		t.Fatal("Warp succeeded without a NavAgent component")
	}
	w.agents.Stop(bare)
	if requests, _, _ := w.agents.PathStats(); requests != 0 {
		t.Fatalf("component-less entity issued %d path requests", requests)
	}
}

func TestSearchNodeStats(t *testing.T) {
	w := newTestWorld(t, stripMesh(t))
	e := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})

	w.agents.SetDestination(e, navmesh.Vec3{X: 3, Z: 2})
	w.agents.SetDestination(e, navmesh.Vec3{X: 22, Z: 2})

	sum, max := w.agents.SearchNodeStats()
	if sum < 7 || max < 6 {
		t.Fatalf("node stats = %d/%d, want sum >= 7 and max >= 6", sum, max)
	}
	if sum, max = w.agents.SearchNodeStats(); sum != 0 || max != 0 {
		t.Fatal("node stats not reset after read")
	}
}

// waterGridMesh builds a 3x2 grid of 4x4 quads where the bottom-middle
// quad is water, so the bottom row is the short way across.
func waterGridMesh(t *testing.T) *navmesh.Mesh {
	t.Helper()
	v := func(ix, iz int) int { return ix*3 + iz }
	verts := make([]navmesh.Vec3, 12)
	for ix := 0; ix < 4; ix++ {
		for iz := 0; iz < 3; iz++ {
			verts[v(ix, iz)] = navmesh.Vec3{X: float32(ix) * 4, Z: float32(iz) * 4}
		}
	}
	var polys []navmesh.TilePoly
	for qx := 0; qx < 3; qx++ {
		for qz := 0; qz < 2; qz++ {
			area := navmesh.AreaWalkable
			if qx == 1 && qz == 0 {
				area = navmesh.AreaWater
			}
			polys = append(polys, navmesh.TilePoly{
				Verts: []int{v(qx, qz), v(qx, qz+1), v(qx+1, qz+1), v(qx+1, qz)},
				Flags: navmesh.FlagWalk,
				Area:  area,
			})
		}
	}
	data, err := navmesh.CreateTileData(navmesh.TileConfig{
		Bounds: navmesh.AABB{Max: navmesh.Vec3{X: 12, Z: 8}},
		Verts:  verts,
		Polys:  polys,
	})
	if err != nil {
		t.Fatalf("CreateTileData: %v", err)
	}
	m, err := navmesh.New(navmesh.Params{TileWidth: 12, TileHeight: 8, MaxTiles: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.AddTile(data); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	return m
}

func TestPerAgentAreaCosts(t *testing.T) {
	w := newTestWorld(t, waterGridMesh(t))
	agentMap := ecs.NewMap1[components.NavAgent](w.world)

	plain := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	averse := w.spawnAgent(navmesh.Vec3{X: 2, Z: 2})
	costs := make([]float32, navmesh.MaxAreas)
	costs[navmesh.AreaWater] = 50
	agentMap.Get(averse).AreaCosts = costs

	target := navmesh.Vec3{X: 10, Z: 2}
	if !w.agents.SetDestination(plain, target) || !w.agents.SetDestination(averse, target) {
		t.Fatal("SetDestination failed")
	}

	direct := agentMap.Get(plain).RemainingDistance
	detour := agentMap.Get(averse).RemainingDistance
	if detour <= direct+0.5 {
		t.Fatalf("water-averse path (%v) not longer than direct (%v)", detour, direct)
	}

	// The override is scoped to the request; the shared filter keeps
	// its own cost table.
	if c := w.pf.Filter().Cost(navmesh.AreaWater); c != 1 {
		t.Fatalf("shared water cost = %v after per-agent override, want 1", c)
	}
}
