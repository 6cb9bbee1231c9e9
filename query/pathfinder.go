package query

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/navkit/navmesh"
)

const (
	// Buffer caps: calls that would exceed them return truncated
	// results instead of failing.
	maxPathPolys      = 256
	maxStraightPoints = 256

	maxRaycastIters = 256
	maxRadiusPolys  = 256
)

// DefaultExtents is the initial snap box a new Pathfinder uses for
// zero-extent queries, overridable per instance with
// SetDefaultExtents. Vertical reach is larger than horizontal since
// points usually float above the surface rather than beside it.
var DefaultExtents = navmesh.Vec3{X: 2, Y: 4, Z: 2}

// PathResult is the outcome of a path query. Partial marks a valid
// path that reaches the closest reachable point instead of the goal.
type PathResult struct {
	Success bool
	Partial bool
	Points  []navmesh.Vec3
	Polys   []navmesh.PolyRef
}

// PointResult is the outcome of a point query.
type PointResult struct {
	Valid bool
	Point navmesh.Vec3
	Poly  navmesh.PolyRef
}

// RaycastResult reports the first wall crossing along a segment.
// T < 1 with Hit set means the ray stopped at that fraction.
type RaycastResult struct {
	Hit    bool
	Point  navmesh.Vec3
	Normal navmesh.Vec3
	T      float32
	Poly   navmesh.PolyRef // polygon the ray stopped in
}

// Pathfinder answers navigation queries against one mesh. It owns a
// mutable filter and scratch buffers reused across calls, so one
// instance serves one caller at a time; the mesh itself may be shared
// by many pathfinders.
type Pathfinder struct {
	mesh     *navmesh.Mesh
	filter   *Filter
	maxNodes int
	extents  navmesh.Vec3
	rng      *rand.Rand

	openHeap    *searchHeap
	nodes       map[navmesh.PolyRef]*searchNode
	polyBuf     []navmesh.PolyRef
	straightBuf []navmesh.Vec3

	nodesUsed int
}

// New binds a pathfinder to a mesh with a search budget of maxNodes
// graph nodes per query.
func New(mesh *navmesh.Mesh, maxNodes int) (*Pathfinder, error) {
	if mesh == nil || mesh.TileCount() == 0 {
		return nil, fmt.Errorf("pathfinder needs a mesh with tiles")
	}
	if maxNodes <= 0 {
		return nil, fmt.Errorf("search budget %d", maxNodes)
	}
	return &Pathfinder{
		mesh:     mesh,
		filter:   NewFilter(),
		maxNodes: maxNodes,
		extents:  DefaultExtents,
		rng:      rand.New(rand.NewSource(1)),
		openHeap: &searchHeap{},
		nodes:    make(map[navmesh.PolyRef]*searchNode, 256),
	}, nil
}

// SetDefaultExtents replaces the snap box used when a query passes
// zero extents. Axes that are not positive keep their current value.
func (p *Pathfinder) SetDefaultExtents(ext navmesh.Vec3) {
	if ext.X > 0 {
		p.extents.X = ext.X
	}
	if ext.Y > 0 {
		p.extents.Y = ext.Y
	}
	if ext.Z > 0 {
		p.extents.Z = ext.Z
	}
}

// DefaultQueryExtents returns the snap box used for zero-extent
// queries.
func (p *Pathfinder) DefaultQueryExtents() navmesh.Vec3 { return p.extents }

// Filter returns the pathfinder's mutable filter.
func (p *Pathfinder) Filter() *Filter { return p.filter }

// Mesh returns the mesh this pathfinder queries.
func (p *Pathfinder) Mesh() *navmesh.Mesh { return p.mesh }

// SetRandomSource replaces the sampler used by the random-point
// queries, for deterministic tests and replays.
func (p *Pathfinder) SetRandomSource(rng *rand.Rand) { p.rng = rng }

// SetAreaCosts replaces the filter's cost table.
func (p *Pathfinder) SetAreaCosts(costs [navmesh.MaxAreas]float32) {
	p.filter.SetCosts(costs)
}

// SetAreaEnabled toggles an area in the filter.
func (p *Pathfinder) SetAreaEnabled(area uint8, enabled bool) {
	p.filter.SetAreaEnabled(area, enabled)
}

// IsAreaEnabled reports whether the filter passes an area.
func (p *Pathfinder) IsAreaEnabled(area uint8) bool {
	return p.filter.AreaEnabled(area)
}

// NodesUsed returns the number of graph nodes visited by the most
// recent path search.
func (p *Pathfinder) NodesUsed() int { return p.nodesUsed }

// nearestPoly finds the polygon closest to pos within the extents
// box, under the given filter.
func (p *Pathfinder) nearestPoly(pos, extents navmesh.Vec3, f *Filter) PointResult {
	box := navmesh.AABB{Min: pos.Sub(extents), Max: pos.Add(extents)}
	best := PointResult{}
	bestDist := float32(math.MaxFloat32)

	p.mesh.TilesOverlapping(box, func(t *navmesh.Tile) {
		for pi := 0; pi < t.GroundPolyCount(); pi++ {
			ref := p.mesh.Ref(t, pi)
			_, poly, _ := p.mesh.PolyAt(ref)
			if !f.Pass(poly) {
				continue
			}
			cp, ok := p.mesh.ClosestPointOnPoly(ref, pos)
			if !ok {
				continue
			}
			d := cp.Sub(pos)
			if abs32(d.X) > extents.X || abs32(d.Y) > extents.Y || abs32(d.Z) > extents.Z {
				continue
			}
			if dd := d.X*d.X + d.Y*d.Y + d.Z*d.Z; dd < bestDist {
				bestDist = dd
				best = PointResult{Valid: true, Point: cp, Poly: ref}
			}
		}
	})
	return best
}

// FindNearestPoint snaps a world point onto the mesh within radius.
// The vertical search reach is twice the horizontal one.
func (p *Pathfinder) FindNearestPoint(pos navmesh.Vec3, radius float32) PointResult {
	ext := navmesh.Vec3{X: radius, Y: 2 * radius, Z: radius}
	return p.nearestPoly(pos, ext, p.filter)
}

// ProjectPoint snaps a point onto the mesh and resolves the surface
// height under its XZ location.
func (p *Pathfinder) ProjectPoint(pos, extents navmesh.Vec3) PointResult {
	res := p.nearestPoly(pos, extents, p.filter)
	if !res.Valid {
		return res
	}
	if h, ok := p.mesh.PolyHeight(res.Poly, pos); ok {
		res.Point = navmesh.Vec3{X: pos.X, Y: h, Z: pos.Z}
	}
	return res
}

// FindPath finds a string-pulled path from start to end, snapping both
// onto the mesh within extents first. A zero extents means the
// pathfinder's default snap box. The result is partial when the goal
// polygon is
// unreachable or the node budget ran out; the waypoints then lead to
// the closest reachable point.
func (p *Pathfinder) FindPath(start, end navmesh.Vec3, extents navmesh.Vec3) PathResult {
	if extents == (navmesh.Vec3{}) {
		extents = p.extents
	}
	sp := p.nearestPoly(start, extents, p.filter)
	ep := p.nearestPoly(end, extents, p.filter)
	if !sp.Valid || !ep.Valid {
		return PathResult{}
	}

	corridor, partial := p.findPolyPath(sp.Poly, ep.Poly, sp.Point, ep.Point)
	if len(corridor) == 0 {
		return PathResult{}
	}

	endPoint := ep.Point
	if partial {
		// Goal unreachable: finish at the closest point on the last
		// polygon the search touched.
		if cp, ok := p.mesh.ClosestPointOnPoly(corridor[len(corridor)-1], ep.Point); ok {
			endPoint = cp
		}
	}

	points := p.straightPath(sp.Point, endPoint, corridor)
	if len(points) < 2 {
		points = p.centerPath(sp.Point, endPoint, corridor)
	}

	return PathResult{
		Success: true,
		Partial: partial,
		Points:  append([]navmesh.Vec3(nil), points...),
		Polys:   append([]navmesh.PolyRef(nil), corridor...),
	}
}

// FindStraightPath tries a direct raycast between the snapped
// endpoints first and only falls back to the full graph search when
// the segment is obstructed.
func (p *Pathfinder) FindStraightPath(start, end navmesh.Vec3) PathResult {
	sp := p.nearestPoly(start, p.extents, p.filter)
	ep := p.nearestPoly(end, p.extents, p.filter)
	if !sp.Valid || !ep.Valid {
		return PathResult{}
	}
	ray := p.raycastFrom(sp.Poly, sp.Point, ep.Point)
	if !ray.Hit {
		return PathResult{
			Success: true,
			Points:  []navmesh.Vec3{sp.Point, ep.Point},
			Polys:   []navmesh.PolyRef{sp.Poly, ep.Poly},
		}
	}
	return p.FindPath(start, end, navmesh.Vec3{})
}

// Raycast walks the polygon corridor from start toward end and
// reports the first wall crossing.
func (p *Pathfinder) Raycast(start, end navmesh.Vec3) RaycastResult {
	sp := p.nearestPoly(start, p.extents, p.filter)
	if !sp.Valid {
		return RaycastResult{Hit: true, Point: start, T: 0}
	}
	return p.raycastFrom(sp.Poly, sp.Point, end)
}

func (p *Pathfinder) raycastFrom(startRef navmesh.PolyRef, start, end navmesh.Vec3) RaycastResult {
	cur := startRef
	var verts [navmesh.MaxVertsPerPoly]navmesh.Vec3

	for iter := 0; iter < maxRaycastIters; iter++ {
		vs, ok := p.mesh.PolyVerts(cur, verts[:0])
		if !ok {
			return RaycastResult{Hit: true, Point: start, T: 0, Poly: cur}
		}

		tmax, exitEdge, inside := intersectSegmentPoly2D(start, end, vs)
		if !inside {
			return RaycastResult{Hit: true, Point: start, T: 0, Poly: cur}
		}
		if exitEdge == -1 {
			// End point is inside the current polygon.
			return RaycastResult{T: 1, Point: end, Poly: cur}
		}

		var next navmesh.PolyRef
		for _, l := range p.mesh.PolyLinks(cur) {
			if int(l.Edge) != exitEdge {
				continue
			}
			_, nei, ok := p.mesh.PolyAt(l.Ref)
			if ok && nei.Type == navmesh.PolyTypeGround && p.filter.Pass(nei) {
				next = l.Ref
				break
			}
		}
		if next == 0 {
			a := vs[exitEdge]
			b := vs[(exitEdge+1)%len(vs)]
			edge := b.Sub(a)
			normal := navmesh.Vec3{X: -edge.Z, Z: edge.X}.Normalized()
			return RaycastResult{
				Hit:    true,
				Point:  start.Lerp(end, tmax),
				Normal: normal,
				T:      tmax,
				Poly:   cur,
			}
		}
		cur = next
	}
	return RaycastResult{Hit: true, Point: end, T: 1, Poly: cur}
}

// IsPathClear reports whether the straight segment between two points
// stays on the mesh.
func (p *Pathfinder) IsPathClear(a, b navmesh.Vec3) bool {
	return !p.Raycast(a, b).Hit
}

// IsReachable reports whether a full (non-partial) path exists
// between two points.
func (p *Pathfinder) IsReachable(a, b navmesh.Vec3) bool {
	res := p.FindPath(a, b, navmesh.Vec3{})
	return res.Success && !res.Partial
}

// FindPolygonsInRadius expands breadth-first over polygon adjacency
// from the polygon nearest center, collecting polygons whose closest
// point lies within radius. The result is capped at 256 polygons.
func (p *Pathfinder) FindPolygonsInRadius(center navmesh.Vec3, radius float32) []navmesh.PolyRef {
	return p.polysInRadius(center, radius, p.filter)
}

func (p *Pathfinder) polysInRadius(center navmesh.Vec3, radius float32, f *Filter) []navmesh.PolyRef {
	start := p.nearestPoly(center, navmesh.Vec3{X: radius, Y: 2 * radius, Z: radius}, f)
	if !start.Valid {
		return nil
	}
	rr := radius * radius

	visited := map[navmesh.PolyRef]bool{start.Poly: true}
	queue := []navmesh.PolyRef{start.Poly}
	var out []navmesh.PolyRef

	for len(queue) > 0 && len(out) < maxRadiusPolys {
		ref := queue[0]
		queue = queue[1:]
		out = append(out, ref)

		for _, l := range p.mesh.PolyLinks(ref) {
			if visited[l.Ref] {
				continue
			}
			visited[l.Ref] = true
			_, nei, ok := p.mesh.PolyAt(l.Ref)
			if !ok || nei.Type != navmesh.PolyTypeGround || !f.Pass(nei) {
				continue
			}
			cp, ok := p.mesh.ClosestPointOnPoly(l.Ref, center)
			if !ok || cp.DistSqr(center) > rr {
				continue
			}
			queue = append(queue, l.Ref)
		}
	}
	return out
}

// FindRandomPoint samples a uniform point over the filtered walkable
// surface, weighting polygons by their surface area.
func (p *Pathfinder) FindRandomPoint() PointResult {
	var chosen navmesh.PolyRef
	total := float32(0)
	p.mesh.Tiles(func(t *navmesh.Tile) {
		for pi := 0; pi < t.GroundPolyCount(); pi++ {
			ref := p.mesh.Ref(t, pi)
			_, poly, _ := p.mesh.PolyAt(ref)
			if !p.filter.Pass(poly) {
				continue
			}
			area := p.polyArea(ref)
			total += area
			if total > 0 && p.rng.Float32()*total <= area {
				chosen = ref
			}
		}
	})
	if chosen == 0 {
		return PointResult{}
	}
	return PointResult{Valid: true, Point: p.randomPointInPoly(chosen), Poly: chosen}
}

// FindRandomPointAround samples a point on the walkable surface
// reachable from center within radius.
func (p *Pathfinder) FindRandomPointAround(center navmesh.Vec3, radius float32) PointResult {
	polys := p.FindPolygonsInRadius(center, radius)
	if len(polys) == 0 {
		return PointResult{}
	}

	var chosen navmesh.PolyRef
	total := float32(0)
	for _, ref := range polys {
		area := p.polyArea(ref)
		total += area
		if total > 0 && p.rng.Float32()*total <= area {
			chosen = ref
		}
	}
	if chosen == 0 {
		chosen = polys[0]
	}

	pt := p.randomPointInPoly(chosen)
	if d := pt.Dist2D(center); d > radius && d > 0 {
		pt = center.Lerp(pt, radius/d)
		if cp, ok := p.mesh.ClosestPointOnPoly(chosen, pt); ok {
			pt = cp
		}
	}
	return PointResult{Valid: true, Point: pt, Poly: chosen}
}

// polyArea returns the 2D surface area of a polygon.
func (p *Pathfinder) polyArea(ref navmesh.PolyRef) float32 {
	var verts [navmesh.MaxVertsPerPoly]navmesh.Vec3
	vs, ok := p.mesh.PolyVerts(ref, verts[:0])
	if !ok || len(vs) < 3 {
		return 0
	}
	area := float32(0)
	for i := 2; i < len(vs); i++ {
		area += navmesh.TriArea2D(vs[0], vs[i-1], vs[i])
	}
	return abs32(area) * 0.5
}

// randomPointInPoly picks a uniform point inside a polygon: choose a
// fan triangle weighted by area, then a barycentric sample in it.
func (p *Pathfinder) randomPointInPoly(ref navmesh.PolyRef) navmesh.Vec3 {
	var verts [navmesh.MaxVertsPerPoly]navmesh.Vec3
	vs, _ := p.mesh.PolyVerts(ref, verts[:0])
	if len(vs) < 3 {
		if len(vs) > 0 {
			return vs[0]
		}
		return navmesh.Vec3{}
	}

	tri := 2
	total := float32(0)
	for i := 2; i < len(vs); i++ {
		area := abs32(navmesh.TriArea2D(vs[0], vs[i-1], vs[i]))
		total += area
		if total > 0 && p.rng.Float32()*total <= area {
			tri = i
		}
	}

	u := p.rng.Float32()
	v := p.rng.Float32()
	if u+v > 1 {
		u = 1 - u
		v = 1 - v
	}
	a, b, c := vs[0], vs[tri-1], vs[tri]
	return a.Add(b.Sub(a).Scale(u)).Add(c.Sub(a).Scale(v))
}

// intersectSegmentPoly2D clips the segment (a, b) against a convex
// polygon in the XZ plane. It returns the exit parameter along the
// segment and the edge crossed, or exitEdge -1 when b is inside. The
// third return is false when the segment never enters the polygon.
func intersectSegmentPoly2D(a, b navmesh.Vec3, verts []navmesh.Vec3) (tmax float32, exitEdge int, inside bool) {
	tmin := float32(0)
	tmax = 1
	exitEdge = -1

	dir := b.Sub(a)
	n := len(verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		ex := verts[i].X - verts[j].X
		ez := verts[i].Z - verts[j].Z
		// Outward edge normal; positive d means outside this edge.
		nx, nz := -ez, ex
		d := nx*(a.X-verts[j].X) + nz*(a.Z-verts[j].Z)
		dd := nx*dir.X + nz*dir.Z

		if abs32(dd) < 1e-6 {
			if d > 1e-4 {
				return 0, -1, false
			}
			continue
		}
		t := -d / dd
		if dd < 0 {
			// Entering across this edge.
			if t > tmin {
				tmin = t
			}
		} else {
			// Exiting across this edge.
			if t < tmax {
				tmax = t
				exitEdge = j
			}
		}
		if tmin > tmax {
			return 0, -1, false
		}
	}
	return tmax, exitEdge, true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
