package query

import (
	"container/heap"
	"math"

	"github.com/pthm-cable/navkit/navmesh"
)

// hScale keeps the heuristic slightly admissible-biased so equal-cost
// corridors expand toward the goal first.
const hScale = 0.999

// searchNode is one polygon visited by the graph search. Pos is the
// point where the search entered the polygon.
type searchNode struct {
	ref    navmesh.PolyRef
	pos    navmesh.Vec3
	cost   float32 // g: accumulated cost from the start
	total  float32 // f = g + h (priority)
	parent *searchNode
	open   bool
	closed bool
	index  int // heap index
}

// searchHeap implements heap.Interface for the open set.
type searchHeap []*searchNode

func (h searchHeap) Len() int           { return len(h) }
func (h searchHeap) Less(i, j int) bool { return h[i].total < h[j].total }
func (h searchHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *searchHeap) Push(x any) {
	n := x.(*searchNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *searchHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[0 : n-1]
	return node
}

// findPolyPath runs A* over polygon adjacency from startRef to endRef.
// It returns the polygon corridor and whether the search fell short of
// the target (disconnection or node-budget exhaustion).
func (p *Pathfinder) findPolyPath(startRef, endRef navmesh.PolyRef, startPos, endPos navmesh.Vec3) ([]navmesh.PolyRef, bool) {
	if startRef == endRef {
		p.nodesUsed = 1
		return append(p.polyBuf[:0], startRef), false
	}

	// Clear reusable structures from the previous search.
	*p.openHeap = (*p.openHeap)[:0]
	for k := range p.nodes {
		delete(p.nodes, k)
	}

	start := &searchNode{
		ref:   startRef,
		pos:   startPos,
		total: startPos.Dist(endPos) * hScale,
		open:  true,
	}
	p.nodes[startRef] = start
	heap.Push(p.openHeap, start)

	lastBest := start
	lastBestCost := start.total
	visited := 1

	for p.openHeap.Len() > 0 {
		cur := heap.Pop(p.openHeap).(*searchNode)
		cur.open = false
		cur.closed = true

		if cur.ref == endRef {
			lastBest = cur
			break
		}

		for _, link := range p.mesh.PolyLinks(cur.ref) {
			_, nei, ok := p.mesh.PolyAt(link.Ref)
			if !ok || !p.filter.Pass(nei) {
				continue
			}
			neiPos, ok := p.crossingPoint(cur.ref, link.Ref)
			if !ok {
				continue
			}

			cost := cur.cost + cur.pos.Dist(neiPos)*p.filter.Cost(nei.Area)
			node, seen := p.nodes[link.Ref]
			if seen && cost >= node.cost {
				continue
			}
			if !seen {
				if visited >= p.maxNodes {
					continue
				}
				visited++
				node = &searchNode{ref: link.Ref, index: -1}
				p.nodes[link.Ref] = node
			}

			h := neiPos.Dist(endPos) * hScale
			node.pos = neiPos
			node.cost = cost
			node.total = cost + h
			node.parent = cur
			node.closed = false
			if node.open {
				heap.Fix(p.openHeap, node.index)
			} else {
				node.open = true
				heap.Push(p.openHeap, node)
			}

			if h < lastBestCost {
				lastBestCost = h
				lastBest = node
			}
		}
	}

	p.nodesUsed = visited
	partial := lastBest.ref != endRef
	path := p.polyBuf[:0]
	for n := lastBest; n != nil; n = n.parent {
		path = append(path, n.ref)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if len(path) > maxPathPolys {
		path = path[:maxPathPolys]
		partial = true
	}
	p.polyBuf = path
	return path, partial
}

// crossingPoint returns the position where travel from one polygon
// enters the next: the portal midpoint, or the far endpoint of an
// off-mesh connection.
func (p *Pathfinder) crossingPoint(from, to navmesh.PolyRef) (navmesh.Vec3, bool) {
	left, right, ok := p.portalPoints(from, to)
	if !ok {
		return navmesh.Vec3{}, false
	}
	return left.Lerp(right, 0.5), true
}

// portalPoints returns the shared-edge endpoints between two adjacent
// polygons. Off-mesh connections yield a degenerate portal at the
// relevant endpoint.
func (p *Pathfinder) portalPoints(from, to navmesh.PolyRef) (left, right navmesh.Vec3, ok bool) {
	fromTile, fromPoly, okFrom := p.mesh.PolyAt(from)
	toTile, toPoly, okTo := p.mesh.PolyAt(to)
	if !okFrom || !okTo {
		return navmesh.Vec3{}, navmesh.Vec3{}, false
	}

	links := p.mesh.PolyLinks(from)
	var link *navmesh.Link
	for i := range links {
		if links[i].Ref == to {
			link = &links[i]
			break
		}
	}
	if link == nil {
		return navmesh.Vec3{}, navmesh.Vec3{}, false
	}

	if fromPoly.Type == navmesh.PolyTypeOffMesh {
		v := fromTile.Verts[fromPoly.Verts[link.Edge]]
		return v, v, true
	}
	if toPoly.Type == navmesh.PolyTypeOffMesh {
		// Entering the connection: the portal collapses to the endpoint
		// nearest the crossing, recorded as the link edge on the
		// off-mesh side.
		for _, bl := range p.mesh.PolyLinks(to) {
			if bl.Ref == from {
				v := toTile.Verts[toPoly.Verts[bl.Edge]]
				return v, v, true
			}
		}
		v := toTile.Verts[toPoly.Verts[0]]
		return v, v, true
	}

	e := link.Edge
	left = fromTile.Verts[fromPoly.Verts[e]]
	right = fromTile.Verts[fromPoly.Verts[(e+1)%fromPoly.VertCount]]
	return left, right, true
}

// pathCost is a debugging helper: total edge cost of a corridor under
// the current filter.
func (p *Pathfinder) pathCost(path []navmesh.PolyRef) float32 {
	total := float32(0)
	for i := 1; i < len(path); i++ {
		a, okA := p.mesh.PolyCenter(path[i-1])
		b, okB := p.mesh.PolyCenter(path[i])
		if !okA || !okB {
			return float32(math.Inf(1))
		}
		_, poly, _ := p.mesh.PolyAt(path[i])
		total += a.Dist(b) * p.filter.Cost(poly.Area)
	}
	return total
}
