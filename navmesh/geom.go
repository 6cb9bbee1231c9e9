package navmesh

import "math"

// Vec3 is a point or direction in world space. Y is up; navigation
// happens mostly in the XZ plane.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Lerp returns the point at parameter t between v and o.
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	return Vec3{
		v.X + (o.X-v.X)*t,
		v.Y + (o.Y-v.Y)*t,
		v.Z + (o.Z-v.Z)*t,
	}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float32 { return v.Sub(o).Len() }

// DistSqr returns the squared distance between v and o.
func (v Vec3) DistSqr(o Vec3) float32 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

// Dist2D returns the distance between v and o ignoring Y.
func (v Vec3) Dist2D(o Vec3) float32 {
	dx := o.X - v.X
	dz := o.Z - v.Z
	return float32(math.Sqrt(float64(dx*dx + dz*dz)))
}

// Normalized returns v scaled to unit length, or the zero vector if v
// is degenerate.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l < 1e-6 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// Extend grows the box to contain p.
func (b *AABB) Extend(p Vec3) {
	b.Min.X = min32(b.Min.X, p.X)
	b.Min.Y = min32(b.Min.Y, p.Y)
	b.Min.Z = min32(b.Min.Z, p.Z)
	b.Max.X = max32(b.Max.X, p.X)
	b.Max.Y = max32(b.Max.Y, p.Y)
	b.Max.Z = max32(b.Max.Z, p.Z)
}

// Union grows the box to contain o.
func (b *AABB) Union(o AABB) {
	b.Extend(o.Min)
	b.Extend(o.Max)
}

// Overlaps reports whether the two boxes intersect.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// TriArea2D returns twice the signed area of the triangle (a, b, c)
// projected onto the XZ plane. Positive means counter-clockwise.
func TriArea2D(a, b, c Vec3) float32 {
	abx := b.X - a.X
	abz := b.Z - a.Z
	acx := c.X - a.X
	acz := c.Z - a.Z
	return acx*abz - abx*acz
}

// DistancePtSegSqr2D returns the squared XZ distance from p to the
// segment (a, b) and the parameter t of the closest point on it.
func DistancePtSegSqr2D(p, a, b Vec3) (dist, t float32) {
	bax := b.X - a.X
	baz := b.Z - a.Z
	pax := p.X - a.X
	paz := p.Z - a.Z
	d := bax*bax + baz*baz
	t = bax*pax + baz*paz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx := a.X + t*bax - p.X
	dz := a.Z + t*baz - p.Z
	return dx*dx + dz*dz, t
}

// pointInPoly2D reports whether p lies inside the polygon given by
// verts when projected onto the XZ plane, and fills edgeDist/edgeT
// with the squared distance and parameter of p against every edge.
func pointInPoly2D(p Vec3, verts []Vec3, edgeDist, edgeT []float32) bool {
	inside := false
	n := len(verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi := verts[i]
		vj := verts[j]
		if (vi.Z > p.Z) != (vj.Z > p.Z) &&
			p.X < (vj.X-vi.X)*(p.Z-vi.Z)/(vj.Z-vi.Z)+vi.X {
			inside = !inside
		}
		edgeDist[j], edgeT[j] = DistancePtSegSqr2D(p, vj, vi)
	}
	return inside
}

// closestHeightPointTriangle computes the Y of p interpolated over the
// triangle (a, b, c). Returns false if p is outside the triangle's XZ
// projection.
func closestHeightPointTriangle(p, a, b, c Vec3) (float32, bool) {
	v0 := c.Sub(a)
	v1 := b.Sub(a)
	v2 := p.Sub(a)

	dot00 := v0.X*v0.X + v0.Z*v0.Z
	dot01 := v0.X*v1.X + v0.Z*v1.Z
	dot02 := v0.X*v2.X + v0.Z*v2.Z
	dot11 := v1.X*v1.X + v1.Z*v1.Z
	dot12 := v1.X*v2.X + v1.Z*v2.Z

	denom := dot00*dot11 - dot01*dot01
	if float32(math.Abs(float64(denom))) < 1e-6 {
		return 0, false
	}
	inv := 1 / denom
	u := (dot11*dot02 - dot01*dot12) * inv
	v := (dot00*dot12 - dot01*dot02) * inv

	const eps = 1e-4
	if u < -eps || v < -eps || u+v > 1+eps {
		return 0, false
	}
	return a.Y + v0.Y*u + v1.Y*v, true
}

// intersectSegSeg2D intersects the segments (ap, aq) and (bp, bq) in
// the XZ plane, returning the parameters along each segment.
func intersectSegSeg2D(ap, aq, bp, bq Vec3) (s, t float32, ok bool) {
	ux := aq.X - ap.X
	uz := aq.Z - ap.Z
	vx := bq.X - bp.X
	vz := bq.Z - bp.Z
	wx := ap.X - bp.X
	wz := ap.Z - bp.Z
	d := ux*vz - uz*vx
	if float32(math.Abs(float64(d))) < 1e-6 {
		return 0, 0, false
	}
	s = (vx*wz - vz*wx) / d
	t = (ux*wz - uz*wx) / d
	return s, t, true
}
