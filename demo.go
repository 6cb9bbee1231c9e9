package main

import (
	"fmt"

	"github.com/pthm-cable/navkit/navmesh"
)

// Demo courtyard layout: a 32x32 walkable square built from 2x2 tiles
// of 4x4-unit quads, with a pond, a road along the south edge, a hole
// and a jump link bridging it.
const (
	demoTileSize = 16
	demoQuadSize = 4
	demoQuads    = demoTileSize / demoQuadSize
)

// demoQuadArea classifies a quad by its world-grid coordinates.
// Returns ok=false for quads left out of the mesh.
func demoQuadArea(wx, wz int) (area uint8, flags uint16, ok bool) {
	// Hole east of center; the jump link crosses it.
	if wx == 5 && (wz == 2 || wz == 3) {
		return 0, 0, false
	}
	// Pond west of center.
	if (wx == 2 || wx == 3) && (wz == 4 || wz == 5) {
		return navmesh.AreaWater, navmesh.FlagSwim, true
	}
	// Road along the south edge.
	if wz == 0 {
		return navmesh.AreaRoad, navmesh.FlagWalk, true
	}
	return navmesh.AreaWalkable, navmesh.FlagWalk, true
}

// buildDemoMesh assembles the courtyard mesh tile by tile.
func buildDemoMesh() (*navmesh.Mesh, error) {
	m, err := navmesh.New(navmesh.Params{
		TileWidth:  demoTileSize,
		TileHeight: demoTileSize,
		MaxTiles:   4,
	})
	if err != nil {
		return nil, err
	}

	for ty := int32(0); ty < 2; ty++ {
		for tx := int32(0); tx < 2; tx++ {
			data, err := buildDemoTile(tx, ty)
			if err != nil {
				return nil, fmt.Errorf("building tile %d,%d: %w", tx, ty, err)
			}
			if _, err := m.AddTile(data); err != nil {
				return nil, fmt.Errorf("adding tile %d,%d: %w", tx, ty, err)
			}
		}
	}
	return m, nil
}

func buildDemoTile(tx, ty int32) ([]byte, error) {
	ox := float32(tx) * demoTileSize
	oz := float32(ty) * demoTileSize

	// 5x5 vertex grid, v(ix,iz) = ix*5+iz.
	var verts []navmesh.Vec3
	for ix := 0; ix <= demoQuads; ix++ {
		for iz := 0; iz <= demoQuads; iz++ {
			verts = append(verts, navmesh.Vec3{
				X: ox + float32(ix)*demoQuadSize,
				Z: oz + float32(iz)*demoQuadSize,
			})
		}
	}
	v := func(ix, iz int) int { return ix*(demoQuads+1) + iz }

	var polys []navmesh.TilePoly
	for qx := 0; qx < demoQuads; qx++ {
		for qz := 0; qz < demoQuads; qz++ {
			area, flags, ok := demoQuadArea(int(tx)*demoQuads+qx, int(ty)*demoQuads+qz)
			if !ok {
				continue
			}
			polys = append(polys, navmesh.TilePoly{
				Verts: []int{v(qx, qz), v(qx, qz+1), v(qx+1, qz+1), v(qx+1, qz)},
				Flags: flags,
				Area:  area,
			})
		}
	}

	cfg := navmesh.TileConfig{
		X: tx, Y: ty,
		Bounds: navmesh.AABB{
			Min: navmesh.Vec3{X: ox, Z: oz},
			Max: navmesh.Vec3{X: ox + demoTileSize, Z: oz + demoTileSize},
		},
		Verts: verts,
		Polys: polys,
	}

	// The jump link across the hole lives in the east tile of the
	// south row.
	if tx == 1 && ty == 0 {
		cfg.OffMesh = []navmesh.TileOffMesh{{
			Start:  navmesh.Vec3{X: 18, Z: 12},
			End:    navmesh.Vec3{X: 26, Z: 12},
			Radius: 0.5,
			Flags:  navmesh.FlagJump,
			Area:   navmesh.AreaWalkable,
		}}
	}

	return navmesh.CreateTileData(cfg)
}
