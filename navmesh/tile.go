package navmesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Area types are small-integer terrain tags carried by every polygon.
// The first few have conventional meanings; the rest are free for
// game-specific use. Valid range is 0..63.
const (
	AreaWalkable uint8 = 0
	AreaWater    uint8 = 1
	AreaGrass    uint8 = 2
	AreaRoad     uint8 = 3

	MaxAreas = 64
)

// Polygon flags. Flags are a filtering mechanism orthogonal to areas:
// a query filter includes/excludes polygons by flag bits.
const (
	FlagWalk       uint16 = 1 << 0 // traversable by ground movement
	FlagSwim       uint16 = 1 << 1 // traversable by swimming
	FlagDoor       uint16 = 1 << 2 // traversal gated by game state
	FlagJump       uint16 = 1 << 3 // off-mesh jump link
	FlagObstructed uint16 = 1 << 14 // carved out by a dynamic obstacle
)

// Polygon types.
const (
	PolyTypeGround  uint8 = 0
	PolyTypeOffMesh uint8 = 1
)

// MaxVertsPerPoly bounds the vertex count of a single polygon.
const MaxVertsPerPoly = 6

// Neighbor encoding in serialized polygons: zero means a solid edge,
// 1..0x7fff is an internal neighbor index+1, and 0x8000|side marks a
// portal edge on one of the four tile sides.
const (
	extLinkBit  uint16 = 0x8000
	extSideMask uint16 = 0x0003
)

// Tile sides, counter-clockwise starting at +X.
const (
	sidePosX = 0
	sidePosZ = 1
	sideNegX = 2
	sideNegZ = 3
)

// Poly is a single convex polygon (or an off-mesh connection) inside a
// tile. Vertex indices point into the owning tile's vertex pool.
type Poly struct {
	Verts     [MaxVertsPerPoly]uint16
	Neis      [MaxVertsPerPoly]uint16
	Flags     uint16
	Area      uint8
	Type      uint8
	VertCount uint8

	// Runtime links to neighboring polygons, including cross-tile and
	// off-mesh links. Built when the tile is registered, never
	// serialized.
	links []Link
}

// Link connects a polygon edge to a neighboring polygon.
type Link struct {
	Ref  PolyRef // neighbor polygon
	Edge uint8   // edge index on the owning polygon (off-mesh: endpoint 0/1)
}

// OffMeshLink is a point-to-point traversal connection (jump, ladder,
// door) carried by a tile.
type OffMeshLink struct {
	Start  Vec3
	End    Vec3
	Radius float32
	Flags  uint16
	Area   uint8
}

// Tile is one spatial chunk of the mesh: a vertex pool, polygons and
// off-mesh connections, plus the raw payload it was parsed from.
type Tile struct {
	X, Y      int32
	Bounds    AABB
	Verts     []Vec3
	Polys     []Poly
	OffMesh   []OffMeshLink
	groundPolys int // polys[:groundPolys] came from the payload; the rest are off-mesh

	index int
	salt  uint32
	data  []byte // serialized payload, kept for byte-exact save
}

// GroundPolyCount returns the number of regular (non-off-mesh)
// polygons in the tile.
func (t *Tile) GroundPolyCount() int { return t.groundPolys }

const (
	tileHeaderSize = 5*4 + 2*12 // x, y, 3 counts + bmin, bmax
	polyRecordSize = 12 + 12 + 2 + 1 + 1 + 1 + 3
	offMeshRecordSize = 24 + 4 + 2 + 1 + 1
)

// parseTile decodes a tile payload. The payload bytes are retained so
// a later save reproduces them exactly.
func parseTile(data []byte) (*Tile, error) {
	if len(data) < tileHeaderSize {
		return nil, fmt.Errorf("%w: tile payload %d bytes, want at least %d",
			ErrCorruptData, len(data), tileHeaderSize)
	}
	r := bytes.NewReader(data)

	var hdr struct {
		X, Y                           int32
		VertCount, PolyCount, OffCount int32
		BMin, BMax                     [3]float32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: tile header: %v", ErrCorruptData, err)
	}
	if hdr.VertCount < 0 || hdr.PolyCount < 0 || hdr.OffCount < 0 {
		return nil, fmt.Errorf("%w: negative tile counts", ErrCorruptData)
	}
	need := tileHeaderSize + int(hdr.VertCount)*12 +
		int(hdr.PolyCount)*polyRecordSize + int(hdr.OffCount)*offMeshRecordSize
	if len(data) < need {
		return nil, fmt.Errorf("%w: tile payload %d bytes, counts need %d",
			ErrCorruptData, len(data), need)
	}

	t := &Tile{
		X: hdr.X, Y: hdr.Y,
		Bounds: AABB{
			Min: Vec3{hdr.BMin[0], hdr.BMin[1], hdr.BMin[2]},
			Max: Vec3{hdr.BMax[0], hdr.BMax[1], hdr.BMax[2]},
		},
		Verts:       make([]Vec3, hdr.VertCount),
		Polys:       make([]Poly, 0, hdr.PolyCount+hdr.OffCount),
		OffMesh:     make([]OffMeshLink, hdr.OffCount),
		groundPolys: int(hdr.PolyCount),
		data:        append([]byte(nil), data...),
	}

	for i := range t.Verts {
		var v [3]float32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: tile verts: %v", ErrCorruptData, err)
		}
		t.Verts[i] = Vec3{v[0], v[1], v[2]}
	}

	for i := int32(0); i < hdr.PolyCount; i++ {
		var rec struct {
			Verts     [MaxVertsPerPoly]uint16
			Neis      [MaxVertsPerPoly]uint16
			Flags     uint16
			Area      uint8
			Type      uint8
			VertCount uint8
			Pad       [3]uint8
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: tile polys: %v", ErrCorruptData, err)
		}
		if rec.VertCount < 3 || rec.VertCount > MaxVertsPerPoly {
			return nil, fmt.Errorf("%w: polygon %d has %d vertices",
				ErrCorruptData, i, rec.VertCount)
		}
		if rec.Area >= MaxAreas {
			return nil, fmt.Errorf("%w: polygon %d area %d out of range",
				ErrCorruptData, i, rec.Area)
		}
		for v := uint8(0); v < rec.VertCount; v++ {
			if int(rec.Verts[v]) >= len(t.Verts) {
				return nil, fmt.Errorf("%w: polygon %d vertex index %d out of range",
					ErrCorruptData, i, rec.Verts[v])
			}
		}
		t.Polys = append(t.Polys, Poly{
			Verts:     rec.Verts,
			Neis:      rec.Neis,
			Flags:     rec.Flags,
			Area:      rec.Area,
			Type:      PolyTypeGround,
			VertCount: rec.VertCount,
		})
	}

	for i := int32(0); i < hdr.OffCount; i++ {
		var rec struct {
			Pos    [6]float32
			Radius float32
			Flags  uint16
			Area   uint8
			Pad    uint8
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: off-mesh records: %v", ErrCorruptData, err)
		}
		t.OffMesh[i] = OffMeshLink{
			Start:  Vec3{rec.Pos[0], rec.Pos[1], rec.Pos[2]},
			End:    Vec3{rec.Pos[3], rec.Pos[4], rec.Pos[5]},
			Radius: rec.Radius,
			Flags:  rec.Flags,
			Area:   rec.Area,
		}

		// Off-mesh connections become two-vertex polygons appended
		// after the ground polys, so path corridors can contain them.
		vbase := uint16(len(t.Verts))
		t.Verts = append(t.Verts, t.OffMesh[i].Start, t.OffMesh[i].End)
		p := Poly{
			Flags:     rec.Flags,
			Area:      rec.Area,
			Type:      PolyTypeOffMesh,
			VertCount: 2,
		}
		p.Verts[0] = vbase
		p.Verts[1] = vbase + 1
		t.Polys = append(t.Polys, p)
	}

	return t, nil
}

// serializeTile encodes a tile into the payload layout parseTile reads.
// Off-mesh polygons synthesized at parse time are not re-emitted; the
// off-mesh records are.
func serializeTile(t *Tile) []byte {
	var buf bytes.Buffer

	groundVerts := len(t.Verts) - 2*len(t.OffMesh)
	hdr := struct {
		X, Y                           int32
		VertCount, PolyCount, OffCount int32
		BMin, BMax                     [3]float32
	}{
		X: t.X, Y: t.Y,
		VertCount: int32(groundVerts),
		PolyCount: int32(t.groundPolys),
		OffCount:  int32(len(t.OffMesh)),
		BMin:      [3]float32{t.Bounds.Min.X, t.Bounds.Min.Y, t.Bounds.Min.Z},
		BMax:      [3]float32{t.Bounds.Max.X, t.Bounds.Max.Y, t.Bounds.Max.Z},
	}
	binary.Write(&buf, binary.LittleEndian, &hdr)

	for _, v := range t.Verts[:groundVerts] {
		binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
	}
	for _, p := range t.Polys[:t.groundPolys] {
		rec := struct {
			Verts     [MaxVertsPerPoly]uint16
			Neis      [MaxVertsPerPoly]uint16
			Flags     uint16
			Area      uint8
			Type      uint8
			VertCount uint8
			Pad       [3]uint8
		}{
			Verts: p.Verts, Neis: p.Neis, Flags: p.Flags,
			Area: p.Area, Type: p.Type, VertCount: p.VertCount,
		}
		binary.Write(&buf, binary.LittleEndian, &rec)
	}
	for _, om := range t.OffMesh {
		rec := struct {
			Pos    [6]float32
			Radius float32
			Flags  uint16
			Area   uint8
			Pad    uint8
		}{
			Pos: [6]float32{
				om.Start.X, om.Start.Y, om.Start.Z,
				om.End.X, om.End.Y, om.End.Z,
			},
			Radius: om.Radius, Flags: om.Flags, Area: om.Area,
		}
		binary.Write(&buf, binary.LittleEndian, &rec)
	}

	return buf.Bytes()
}
