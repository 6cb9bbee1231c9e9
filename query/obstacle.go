package query

import (
	"github.com/pthm-cable/navkit/navmesh"
)

// ObstacleID identifies one placed obstacle.
type ObstacleID int

// ObstacleSet carves dynamic obstacles out of a mesh by marking the
// polygons under each obstacle with the obstructed flag, which the
// default filter excludes. Removing an obstacle restores the
// polygons, respecting overlap with other obstacles.
type ObstacleSet struct {
	mesh *navmesh.Mesh
	pf   *Pathfinder

	next     ObstacleID
	polys    map[ObstacleID][]navmesh.PolyRef
	coverage map[navmesh.PolyRef]int
}

// NewObstacleSet creates an obstacle layer over the pathfinder's
// mesh.
func NewObstacleSet(pf *Pathfinder) *ObstacleSet {
	return &ObstacleSet{
		mesh:     pf.Mesh(),
		pf:       pf,
		next:     1,
		polys:    make(map[ObstacleID][]navmesh.PolyRef),
		coverage: make(map[navmesh.PolyRef]int),
	}
}

// Add obstructs every polygon within radius of center and returns a
// handle for later removal. The lookup ignores the pathfinder's
// filter so already obstructed polygons stack correctly.
func (o *ObstacleSet) Add(center navmesh.Vec3, radius float32) ObstacleID {
	refs := o.pf.polysInRadius(center, radius, passAll)
	id := o.next
	o.next++
	o.polys[id] = refs
	for _, ref := range refs {
		o.coverage[ref]++
		if o.coverage[ref] == 1 {
			if flags, ok := o.mesh.PolyFlags(ref); ok {
				o.mesh.SetPolyFlags(ref, flags|navmesh.FlagObstructed)
			}
		}
	}
	return id
}

// Remove clears an obstacle. Polygons still covered by another
// obstacle stay obstructed.
func (o *ObstacleSet) Remove(id ObstacleID) bool {
	refs, ok := o.polys[id]
	if !ok {
		return false
	}
	delete(o.polys, id)
	for _, ref := range refs {
		o.coverage[ref]--
		if o.coverage[ref] > 0 {
			continue
		}
		delete(o.coverage, ref)
		if flags, ok := o.mesh.PolyFlags(ref); ok {
			o.mesh.SetPolyFlags(ref, flags&^navmesh.FlagObstructed)
		}
	}
	return true
}

// Count returns the number of active obstacles.
func (o *ObstacleSet) Count() int { return len(o.polys) }
