package navmesh

import (
	"fmt"
	"math"
)

// PolyRef identifies a polygon across the whole mesh. It packs a tile
// salt, a tile index and a polygon index; a stale salt after tile
// removal invalidates old refs instead of silently pointing at new
// geometry.
type PolyRef uint64

const (
	polyBits = 20
	tileBits = 20
	saltBits = 24

	polyMask = (1 << polyBits) - 1
	tileMask = (1 << tileBits) - 1
	saltMask = (1 << saltBits) - 1
)

func encodeRef(salt uint32, tile, poly int) PolyRef {
	return PolyRef(uint64(salt&saltMask)<<(tileBits+polyBits) |
		uint64(tile&tileMask)<<polyBits |
		uint64(poly&polyMask))
}

func decodeRef(ref PolyRef) (salt uint32, tile, poly int) {
	return uint32(ref>>(tileBits+polyBits)) & saltMask,
		int(ref>>polyBits) & tileMask,
		int(ref) & polyMask
}

// Params describe the tiling grid of a mesh.
type Params struct {
	Origin     Vec3    // world position of tile (0,0)'s min corner
	TileWidth  float32 // tile extent along X
	TileHeight float32 // tile extent along Z
	MaxTiles   int
}

// Mesh is a tiled navigation mesh. Tiles are registered with AddTile,
// which wires polygon connectivity inside the tile, across tile
// boundaries and through off-mesh connections.
type Mesh struct {
	params Params
	tiles  []*Tile          // slot table, nil for free slots
	lookup map[[2]int32]int // (tx,ty) -> tile slot
	free   []int
	salts  []uint32 // per-slot salt sequence, survives tile removal
}

// New creates an empty mesh with the given tiling parameters.
func New(params Params) (*Mesh, error) {
	if params.MaxTiles <= 0 || params.MaxTiles > tileMask {
		return nil, fmt.Errorf("%w: max tiles %d", ErrAllocationFailure, params.MaxTiles)
	}
	if params.TileWidth <= 0 || params.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile size %gx%g", ErrCorruptData,
			params.TileWidth, params.TileHeight)
	}
	m := &Mesh{
		params: params,
		tiles:  make([]*Tile, params.MaxTiles),
		lookup: make(map[[2]int32]int),
	}
	for i := params.MaxTiles - 1; i >= 0; i-- {
		m.free = append(m.free, i)
	}
	return m, nil
}

// Params returns the tiling parameters the mesh was created with.
func (m *Mesh) Params() Params { return m.params }

// TileCount returns the number of registered tiles.
func (m *Mesh) TileCount() int { return len(m.lookup) }

// PolyCount returns the total polygon count across all tiles,
// including polygons synthesized for off-mesh connections.
func (m *Mesh) PolyCount() int {
	n := 0
	for _, t := range m.tiles {
		if t != nil {
			n += len(t.Polys)
		}
	}
	return n
}

// Bounds returns the union of all tile bounds. The second return is
// false when the mesh has no tiles.
func (m *Mesh) Bounds() (AABB, bool) {
	var b AABB
	found := false
	for _, t := range m.tiles {
		if t == nil {
			continue
		}
		if !found {
			b = t.Bounds
			found = true
		} else {
			b.Union(t.Bounds)
		}
	}
	return b, found
}

// TileAt returns the tile at grid coordinates (x, y), or nil.
func (m *Mesh) TileAt(x, y int32) *Tile {
	if idx, ok := m.lookup[[2]int32{x, y}]; ok {
		return m.tiles[idx]
	}
	return nil
}

// Tiles calls fn for every registered tile.
func (m *Mesh) Tiles(fn func(*Tile)) {
	for _, t := range m.tiles {
		if t != nil {
			fn(t)
		}
	}
}

// AddTile parses and registers a tile payload. An existing tile at the
// same grid position is replaced, keeping its slot salt sequence so
// refs into the removed tile go stale.
func (m *Mesh) AddTile(data []byte) (*Tile, error) {
	t, err := parseTile(data)
	if err != nil {
		return nil, err
	}
	if old := m.TileAt(t.X, t.Y); old != nil {
		m.RemoveTile(old.X, old.Y)
	}
	if len(m.free) == 0 {
		return nil, fmt.Errorf("%w: tile limit %d reached", ErrAllocationFailure, m.params.MaxTiles)
	}
	idx := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]

	t.index = idx
	if prevSalt := m.slotSalt(idx); prevSalt != 0 {
		t.salt = prevSalt
	} else {
		t.salt = 1
	}
	m.tiles[idx] = t
	m.lookup[[2]int32{t.X, t.Y}] = idx
	m.saveSlotSalt(idx, t.salt)

	m.connectInternal(t)
	m.connectOffMesh(t)
	for side := 0; side < 4; side++ {
		if nb := m.neighborTile(t, side); nb != nil {
			m.connectExternal(t, nb, side)
		}
	}
	return t, nil
}

// RemoveTile unregisters the tile at (x, y) and returns its serialized
// payload. Links into the tile from neighbors are severed and the slot
// salt is bumped so outstanding refs go stale.
func (m *Mesh) RemoveTile(x, y int32) ([]byte, error) {
	idx, ok := m.lookup[[2]int32{x, y}]
	if !ok {
		return nil, fmt.Errorf("no tile at (%d, %d)", x, y)
	}
	t := m.tiles[idx]
	data := t.data
	if data == nil {
		data = serializeTile(t)
	}

	for _, other := range m.tiles {
		if other == nil || other == t {
			continue
		}
		for pi := range other.Polys {
			p := &other.Polys[pi]
			kept := p.links[:0]
			for _, l := range p.links {
				if _, ti, _ := decodeRef(l.Ref); ti != idx {
					kept = append(kept, l)
				}
			}
			p.links = kept
		}
	}

	delete(m.lookup, [2]int32{x, y})
	m.tiles[idx] = nil
	m.saveSlotSalt(idx, t.salt+1)
	m.free = append(m.free, idx)
	return data, nil
}

// slot salts persist across occupancy so a freed-then-reused slot
// never re-validates old refs.
func (m *Mesh) slotSalt(idx int) uint32 {
	if m.salts == nil {
		return 0
	}
	return m.salts[idx]
}

func (m *Mesh) saveSlotSalt(idx int, salt uint32) {
	if m.salts == nil {
		m.salts = make([]uint32, len(m.tiles))
	}
	m.salts[idx] = salt
}

// PolyAt resolves a ref to its tile and polygon. Stale or malformed
// refs return (nil, nil, false).
func (m *Mesh) PolyAt(ref PolyRef) (*Tile, *Poly, bool) {
	if ref == 0 {
		return nil, nil, false
	}
	salt, ti, pi := decodeRef(ref)
	if ti >= len(m.tiles) {
		return nil, nil, false
	}
	t := m.tiles[ti]
	if t == nil || t.salt != salt || pi >= len(t.Polys) {
		return nil, nil, false
	}
	return t, &t.Polys[pi], true
}

// Ref returns the PolyRef for a polygon index inside a tile.
func (m *Mesh) Ref(t *Tile, polyIndex int) PolyRef {
	return encodeRef(t.salt, t.index, polyIndex)
}

// PolyFlags returns the flags of the referenced polygon.
func (m *Mesh) PolyFlags(ref PolyRef) (uint16, bool) {
	_, p, ok := m.PolyAt(ref)
	if !ok {
		return 0, false
	}
	return p.Flags, true
}

// SetPolyFlags replaces the flags of the referenced polygon.
func (m *Mesh) SetPolyFlags(ref PolyRef, flags uint16) bool {
	t, p, ok := m.PolyAt(ref)
	if !ok {
		return false
	}
	p.Flags = flags
	t.data = nil // payload no longer matches
	return true
}

// SetPolyArea replaces the area of the referenced polygon.
func (m *Mesh) SetPolyArea(ref PolyRef, area uint8) bool {
	if area >= MaxAreas {
		return false
	}
	t, p, ok := m.PolyAt(ref)
	if !ok {
		return false
	}
	p.Area = area
	t.data = nil
	return true
}

// PolyCenter returns the vertex centroid of the referenced polygon.
func (m *Mesh) PolyCenter(ref PolyRef) (Vec3, bool) {
	t, p, ok := m.PolyAt(ref)
	if !ok {
		return Vec3{}, false
	}
	var c Vec3
	for i := uint8(0); i < p.VertCount; i++ {
		c = c.Add(t.Verts[p.Verts[i]])
	}
	return c.Scale(1 / float32(p.VertCount)), true
}

// PolyVerts appends the referenced polygon's vertices to dst.
func (m *Mesh) PolyVerts(ref PolyRef, dst []Vec3) ([]Vec3, bool) {
	t, p, ok := m.PolyAt(ref)
	if !ok {
		return dst, false
	}
	for i := uint8(0); i < p.VertCount; i++ {
		dst = append(dst, t.Verts[p.Verts[i]])
	}
	return dst, true
}

// ClosestPointOnPoly clamps pos to the referenced polygon: inside the
// polygon the height is interpolated from the fan triangulation,
// outside it the point is projected to the nearest edge.
func (m *Mesh) ClosestPointOnPoly(ref PolyRef, pos Vec3) (Vec3, bool) {
	t, p, ok := m.PolyAt(ref)
	if !ok {
		return Vec3{}, false
	}
	if p.Type == PolyTypeOffMesh {
		// Clamp onto the connection segment.
		a, b := t.Verts[p.Verts[0]], t.Verts[p.Verts[1]]
		_, tt := DistancePtSegSqr2D(pos, a, b)
		return a.Lerp(b, tt), true
	}

	var verts [MaxVertsPerPoly]Vec3
	for i := uint8(0); i < p.VertCount; i++ {
		verts[i] = t.Verts[p.Verts[i]]
	}
	var edgeDist, edgeT [MaxVertsPerPoly]float32
	if pointInPoly2D(pos, verts[:p.VertCount], edgeDist[:], edgeT[:]) {
		closest := pos
		for i := uint8(2); i < p.VertCount; i++ {
			if h, ok := closestHeightPointTriangle(pos, verts[0], verts[i-1], verts[i]); ok {
				closest.Y = h
				break
			}
		}
		return closest, true
	}

	best := float32(math.MaxFloat32)
	bestEdge := 0
	for i := uint8(0); i < p.VertCount; i++ {
		if edgeDist[i] < best {
			best = edgeDist[i]
			bestEdge = int(i)
		}
	}
	a := verts[bestEdge]
	b := verts[(bestEdge+1)%int(p.VertCount)]
	return a.Lerp(b, edgeT[bestEdge]), true
}

// PolyHeight returns the mesh surface height under pos on the
// referenced polygon, when pos is over it.
func (m *Mesh) PolyHeight(ref PolyRef, pos Vec3) (float32, bool) {
	t, p, ok := m.PolyAt(ref)
	if !ok || p.Type == PolyTypeOffMesh {
		return 0, false
	}
	var verts [MaxVertsPerPoly]Vec3
	for i := uint8(0); i < p.VertCount; i++ {
		verts[i] = t.Verts[p.Verts[i]]
	}
	for i := uint8(2); i < p.VertCount; i++ {
		if h, ok := closestHeightPointTriangle(pos, verts[0], verts[i-1], verts[i]); ok {
			return h, true
		}
	}
	return 0, false
}

// TileCoordsAt returns the grid coordinates covering a world position.
func (m *Mesh) TileCoordsAt(pos Vec3) (int32, int32) {
	tx := int32(floor32((pos.X - m.params.Origin.X) / m.params.TileWidth))
	ty := int32(floor32((pos.Z - m.params.Origin.Z) / m.params.TileHeight))
	return tx, ty
}

// TilesOverlapping calls fn for every tile whose bounds overlap the
// query box.
func (m *Mesh) TilesOverlapping(box AABB, fn func(*Tile)) {
	for _, t := range m.tiles {
		if t != nil && t.Bounds.Overlaps(box) {
			fn(t)
		}
	}
}

func floor32(v float32) float32 { return float32(math.Floor(float64(v))) }

func (m *Mesh) neighborTile(t *Tile, side int) *Tile {
	switch side {
	case sidePosX:
		return m.TileAt(t.X+1, t.Y)
	case sidePosZ:
		return m.TileAt(t.X, t.Y+1)
	case sideNegX:
		return m.TileAt(t.X-1, t.Y)
	default:
		return m.TileAt(t.X, t.Y-1)
	}
}

// connectInternal wires links between polygons of the same tile from
// the serialized neighbor indices.
func (m *Mesh) connectInternal(t *Tile) {
	for pi := 0; pi < t.groundPolys; pi++ {
		p := &t.Polys[pi]
		for e := uint8(0); e < p.VertCount; e++ {
			nei := p.Neis[e]
			if nei == 0 || nei&extLinkBit != 0 {
				continue
			}
			p.links = append(p.links, Link{
				Ref:  encodeRef(t.salt, t.index, int(nei-1)),
				Edge: e,
			})
		}
	}
}

// connectExternal wires links in both directions between tile t and
// neighbor nb across the given side of t. Boundary edges match when
// their endpoint vertices coincide, which holds for tiles produced by
// the same build.
func (m *Mesh) connectExternal(t, nb *Tile, side int) {
	want := extLinkBit | uint16(side)
	for pi := 0; pi < t.groundPolys; pi++ {
		p := &t.Polys[pi]
		for e := uint8(0); e < p.VertCount; e++ {
			if p.Neis[e] != want {
				continue
			}
			va := t.Verts[p.Verts[e]]
			vb := t.Verts[p.Verts[(e+1)%p.VertCount]]
			if ref, edge, ok := nb.findBoundaryEdge(m, va, vb); ok {
				p.links = append(p.links, Link{Ref: ref, Edge: e})
				np := mustPoly(m, ref)
				np.links = append(np.links, Link{
					Ref:  encodeRef(t.salt, t.index, pi),
					Edge: edge,
				})
			}
		}
	}
}

func mustPoly(m *Mesh, ref PolyRef) *Poly {
	_, p, _ := m.PolyAt(ref)
	return p
}

const boundaryVertEps = 1e-3

func sameVert(a, b Vec3) bool {
	return abs32(a.X-b.X) < boundaryVertEps &&
		abs32(a.Y-b.Y) < boundaryVertEps &&
		abs32(a.Z-b.Z) < boundaryVertEps
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// findBoundaryEdge locates a portal edge of this tile whose endpoints
// match (va, vb) in either order.
func (t *Tile) findBoundaryEdge(m *Mesh, va, vb Vec3) (PolyRef, uint8, bool) {
	for pi := 0; pi < t.groundPolys; pi++ {
		p := &t.Polys[pi]
		for e := uint8(0); e < p.VertCount; e++ {
			if p.Neis[e]&extLinkBit == 0 {
				continue
			}
			ea := t.Verts[p.Verts[e]]
			eb := t.Verts[p.Verts[(e+1)%p.VertCount]]
			if (sameVert(ea, va) && sameVert(eb, vb)) ||
				(sameVert(ea, vb) && sameVert(eb, va)) {
				return encodeRef(t.salt, t.index, pi), e, true
			}
		}
	}
	return 0, 0, false
}

// connectOffMesh links each off-mesh polygon to the ground polygons
// containing its endpoints, in both directions. Endpoints that land on
// another registered tile connect across tiles as well.
func (m *Mesh) connectOffMesh(t *Tile) {
	for i := range t.OffMesh {
		omIdx := t.groundPolys + i
		omRef := encodeRef(t.salt, t.index, omIdx)
		om := &t.OffMesh[i]

		ends := [2]Vec3{om.Start, om.End}
		for side, pt := range ends {
			ext := Vec3{om.Radius, om.Radius, om.Radius}
			ref := m.findGroundPoly(pt, ext)
			if ref == 0 {
				continue
			}
			t.Polys[omIdx].links = append(t.Polys[omIdx].links, Link{
				Ref:  ref,
				Edge: uint8(side),
			})
			gp := mustPoly(m, ref)
			gp.links = append(gp.links, Link{Ref: omRef, Edge: uint8(side)})
		}
	}
}

// findGroundPoly returns the ground polygon nearest to pos within the
// given extents, or 0.
func (m *Mesh) findGroundPoly(pos Vec3, ext Vec3) PolyRef {
	box := AABB{Min: pos.Sub(ext), Max: pos.Add(ext)}
	best := PolyRef(0)
	bestDist := float32(math.MaxFloat32)
	m.TilesOverlapping(box, func(t *Tile) {
		for pi := 0; pi < t.groundPolys; pi++ {
			ref := encodeRef(t.salt, t.index, pi)
			cp, ok := m.ClosestPointOnPoly(ref, pos)
			if !ok {
				continue
			}
			d := cp.DistSqr(pos)
			if d < bestDist {
				bestDist = d
				best = ref
			}
		}
	})
	if best != 0 && bestDist <= ext.X*ext.X+ext.Y*ext.Y+ext.Z*ext.Z {
		return best
	}
	return 0
}

// PolyLinks returns the runtime links of the referenced polygon.
func (m *Mesh) PolyLinks(ref PolyRef) []Link {
	_, p, ok := m.PolyAt(ref)
	if !ok {
		return nil
	}
	return p.links
}
