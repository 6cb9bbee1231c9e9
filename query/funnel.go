package query

import (
	"github.com/pthm-cable/navkit/navmesh"
)

// straightPath string-pulls a polygon corridor into a minimal-length
// waypoint list (the funnel algorithm). The result starts at startPos
// and ends at endPos; it is truncated at maxStraightPoints. An empty
// or single-point result signals a numerical degenerate, handled by
// the caller.
func (p *Pathfinder) straightPath(startPos, endPos navmesh.Vec3, corridor []navmesh.PolyRef) []navmesh.Vec3 {
	if len(corridor) == 0 {
		return nil
	}
	pts := p.straightBuf[:0]
	pts = append(pts, startPos)
	if len(corridor) == 1 {
		pts = append(pts, endPos)
		p.straightBuf = pts
		return pts
	}

	apex := startPos
	left := startPos
	right := startPos
	apexIdx, leftIdx, rightIdx := 0, 0, 0

	for i := 0; i < len(corridor) && len(pts) < maxStraightPoints; i++ {
		var pl, pr navmesh.Vec3
		if i+1 < len(corridor) {
			var ok bool
			pl, pr, ok = p.portalPoints(corridor[i], corridor[i+1])
			if !ok {
				// Broken corridor, stop pulling at the last good apex.
				break
			}
		} else {
			pl, pr = endPos, endPos
		}

		// Tighten the right side of the funnel.
		if navmesh.TriArea2D(apex, right, pr) <= 0 {
			if apex.DistSqr(right) < 1e-6*1e-6 || navmesh.TriArea2D(apex, left, pr) > 0 {
				right = pr
				rightIdx = i
			} else {
				// Right crossed over left: left becomes a waypoint and
				// the new apex; restart from it.
				pts = append(pts, left)
				apex = left
				apexIdx = leftIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}

		// Tighten the left side.
		if navmesh.TriArea2D(apex, left, pl) >= 0 {
			if apex.DistSqr(left) < 1e-6*1e-6 || navmesh.TriArea2D(apex, right, pl) < 0 {
				left = pl
				leftIdx = i
			} else {
				pts = append(pts, right)
				apex = right
				apexIdx = rightIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}
	}

	if len(pts) < maxStraightPoints && pts[len(pts)-1].DistSqr(endPos) > 1e-6*1e-6 {
		pts = append(pts, endPos)
	}
	p.straightBuf = pts
	return pts
}

// centerPath emits polygon centers as waypoints, the fallback when
// string pulling degenerates.
func (p *Pathfinder) centerPath(startPos, endPos navmesh.Vec3, corridor []navmesh.PolyRef) []navmesh.Vec3 {
	pts := p.straightBuf[:0]
	pts = append(pts, startPos)
	for _, ref := range corridor[1:] {
		if len(pts) >= maxStraightPoints-1 {
			break
		}
		if c, ok := p.mesh.PolyCenter(ref); ok {
			pts = append(pts, c)
		}
	}
	pts = append(pts, endPos)
	p.straightBuf = pts
	return pts
}
