package navmesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TilePoly is one input polygon for CreateTileData. Vertices index
// into TileConfig.Verts and wind counter-clockwise when seen from
// above.
type TilePoly struct {
	Verts []int
	Flags uint16
	Area  uint8
}

// TileOffMesh is one input off-mesh connection for CreateTileData.
type TileOffMesh struct {
	Start  Vec3
	End    Vec3
	Radius float32
	Flags  uint16
	Area   uint8
}

// TileConfig describes a tile to assemble. Adjacency between polygons
// is derived from shared edges; edges on the tile border become
// portals to the matching side.
type TileConfig struct {
	X, Y    int32
	Bounds  AABB
	Verts   []Vec3
	Polys   []TilePoly
	OffMesh []TileOffMesh

	// BorderEps is the distance from the tile bounds within which an
	// unmatched edge is treated as a portal. Zero means 1e-3.
	BorderEps float32
}

// CreateTileData assembles a tile payload from explicit convex
// polygons and off-mesh connections.
func CreateTileData(cfg TileConfig) ([]byte, error) {
	if len(cfg.Verts) == 0 || len(cfg.Polys) == 0 {
		return nil, fmt.Errorf("%w: tile needs vertices and polygons", ErrCorruptData)
	}
	if len(cfg.Verts) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d vertices", ErrAllocationFailure, len(cfg.Verts))
	}
	if len(cfg.Polys) >= 0x7fff {
		return nil, fmt.Errorf("%w: %d polygons", ErrAllocationFailure, len(cfg.Polys))
	}
	eps := cfg.BorderEps
	if eps == 0 {
		eps = 1e-3
	}

	polys := make([]Poly, len(cfg.Polys))
	for i, in := range cfg.Polys {
		if len(in.Verts) < 3 || len(in.Verts) > MaxVertsPerPoly {
			return nil, fmt.Errorf("%w: polygon %d has %d vertices",
				ErrCorruptData, i, len(in.Verts))
		}
		if in.Area >= MaxAreas {
			return nil, fmt.Errorf("%w: polygon %d area %d out of range",
				ErrCorruptData, i, in.Area)
		}
		p := &polys[i]
		p.Flags = in.Flags
		p.Area = in.Area
		p.Type = PolyTypeGround
		p.VertCount = uint8(len(in.Verts))
		for v, idx := range in.Verts {
			if idx < 0 || idx >= len(cfg.Verts) {
				return nil, fmt.Errorf("%w: polygon %d vertex index %d",
					ErrCorruptData, i, idx)
			}
			p.Verts[v] = uint16(idx)
		}
	}

	// Internal adjacency: two polygons sharing an edge (same vertex
	// pair, opposite order) become neighbors across it.
	type edgeKey struct{ a, b uint16 }
	owners := make(map[edgeKey][2]int) // poly index, edge index
	for pi := range polys {
		p := &polys[pi]
		for e := uint8(0); e < p.VertCount; e++ {
			a := p.Verts[e]
			b := p.Verts[(e+1)%p.VertCount]
			k := edgeKey{b, a} // reversed: the neighbor walked it forward
			if o, ok := owners[k]; ok {
				op := &polys[o[0]]
				p.Neis[e] = uint16(o[0] + 1)
				op.Neis[o[1]] = uint16(pi + 1)
				delete(owners, k)
			} else {
				owners[edgeKey{a, b}] = [2]int{pi, int(e)}
			}
		}
	}

	// Unmatched edges hugging the tile bounds become portals; vertical
	// sides map to +x/-x, horizontal to +z/-z.
	for pi := range polys {
		p := &polys[pi]
		for e := uint8(0); e < p.VertCount; e++ {
			if p.Neis[e] != 0 {
				continue
			}
			a := cfg.Verts[p.Verts[e]]
			b := cfg.Verts[p.Verts[(e+1)%p.VertCount]]
			switch {
			case abs32(a.X-cfg.Bounds.Max.X) < eps && abs32(b.X-cfg.Bounds.Max.X) < eps:
				p.Neis[e] = extLinkBit | sidePosX
			case abs32(a.X-cfg.Bounds.Min.X) < eps && abs32(b.X-cfg.Bounds.Min.X) < eps:
				p.Neis[e] = extLinkBit | sideNegX
			case abs32(a.Z-cfg.Bounds.Max.Z) < eps && abs32(b.Z-cfg.Bounds.Max.Z) < eps:
				p.Neis[e] = extLinkBit | sidePosZ
			case abs32(a.Z-cfg.Bounds.Min.Z) < eps && abs32(b.Z-cfg.Bounds.Min.Z) < eps:
				p.Neis[e] = extLinkBit | sideNegZ
			}
		}
	}

	var buf bytes.Buffer
	hdr := struct {
		X, Y                           int32
		VertCount, PolyCount, OffCount int32
		BMin, BMax                     [3]float32
	}{
		X: cfg.X, Y: cfg.Y,
		VertCount: int32(len(cfg.Verts)),
		PolyCount: int32(len(polys)),
		OffCount:  int32(len(cfg.OffMesh)),
		BMin:      [3]float32{cfg.Bounds.Min.X, cfg.Bounds.Min.Y, cfg.Bounds.Min.Z},
		BMax:      [3]float32{cfg.Bounds.Max.X, cfg.Bounds.Max.Y, cfg.Bounds.Max.Z},
	}
	binary.Write(&buf, binary.LittleEndian, &hdr)
	for _, v := range cfg.Verts {
		binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
	}
	for i := range polys {
		p := &polys[i]
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
	for _, om := range cfg.OffMesh {
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
	return buf.Bytes(), nil
}
