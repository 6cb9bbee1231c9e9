package navmesh

// DebugTri is one triangle of the debug triangulation, tagged with the
// polygon it came from.
type DebugTri struct {
	A, B, C Vec3
	Ref     PolyRef
	Area    uint8
	Flags   uint16
}

// DebugGeometry fan-triangulates every ground polygon in the mesh.
// Intended for rendering and tooling, not queries.
func (m *Mesh) DebugGeometry() []DebugTri {
	var tris []DebugTri
	m.Tiles(func(t *Tile) {
		for pi := 0; pi < t.groundPolys; pi++ {
			p := &t.Polys[pi]
			ref := encodeRef(t.salt, t.index, pi)
			for i := uint8(2); i < p.VertCount; i++ {
				tris = append(tris, DebugTri{
					A:     t.Verts[p.Verts[0]],
					B:     t.Verts[p.Verts[i-1]],
					C:     t.Verts[p.Verts[i]],
					Ref:   ref,
					Area:  p.Area,
					Flags: p.Flags,
				})
			}
		}
	})
	return tris
}

// DebugOffMeshSegment is an off-mesh connection endpoint pair for
// rendering.
type DebugOffMeshSegment struct {
	Start, End Vec3
	Radius     float32
}

// DebugOffMesh collects every off-mesh connection in the mesh.
func (m *Mesh) DebugOffMesh() []DebugOffMeshSegment {
	var segs []DebugOffMeshSegment
	m.Tiles(func(t *Tile) {
		for _, om := range t.OffMesh {
			segs = append(segs, DebugOffMeshSegment{
				Start: om.Start, End: om.End, Radius: om.Radius,
			})
		}
	})
	return segs
}
