// Package main inspects navigation mesh files: tile and polygon
// stats, save round-trip verification, and an optional debug-geometry
// CSV dump for plotting.
//
// Usage: navinfo [-geometry out.csv] [-verify] file.navmesh
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/navkit/navmesh"
)

// geometryRow is one debug triangle flattened for CSV output.
type geometryRow struct {
	Ref   uint64  `csv:"ref"`
	Area  uint8   `csv:"area"`
	Flags uint16  `csv:"flags"`
	AX    float32 `csv:"ax"`
	AY    float32 `csv:"ay"`
	AZ    float32 `csv:"az"`
	BX    float32 `csv:"bx"`
	BY    float32 `csv:"by"`
	BZ    float32 `csv:"bz"`
	CX    float32 `csv:"cx"`
	CY    float32 `csv:"cy"`
	CZ    float32 `csv:"cz"`
}

func main() {
	geometryPath := flag.String("geometry", "", "Write the debug triangulation to a CSV file")
	verify := flag.Bool("verify", false, "Save the mesh back and check the bytes match")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: navinfo [-geometry out.csv] [-verify] file.navmesh")
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("reading %s: %v", path, err)
	}
	mesh, err := navmesh.LoadBytes(data)
	if err != nil {
		log.Fatalf("parsing %s: %v", path, err)
	}

	printStats(path, len(data), mesh)

	if *verify {
		saved, err := mesh.SaveBytes()
		if err != nil {
			log.Fatalf("re-saving: %v", err)
		}
		if !bytes.Equal(data, saved) {
			log.Fatalf("round-trip mismatch: loaded %d bytes, saved %d bytes", len(data), len(saved))
		}
		fmt.Println("round-trip: ok")
	}

	if *geometryPath != "" {
		if err := writeGeometry(mesh, *geometryPath); err != nil {
			log.Fatalf("writing geometry: %v", err)
		}
		fmt.Printf("geometry written to %s\n", *geometryPath)
	}
}

func printStats(path string, size int, mesh *navmesh.Mesh) {
	params := mesh.Params()
	fmt.Printf("%s: %d bytes\n", path, size)
	fmt.Printf("tiles: %d (max %d, %gx%g units)\n",
		mesh.TileCount(), params.MaxTiles, params.TileWidth, params.TileHeight)
	fmt.Printf("polys: %d\n", mesh.PolyCount())

	if bounds, ok := mesh.Bounds(); ok {
		fmt.Printf("bounds: (%g, %g, %g) - (%g, %g, %g)\n",
			bounds.Min.X, bounds.Min.Y, bounds.Min.Z,
			bounds.Max.X, bounds.Max.Y, bounds.Max.Z)
	}

	var areas [navmesh.MaxAreas]int
	offMesh := 0
	mesh.Tiles(func(t *navmesh.Tile) {
		for i := 0; i < t.GroundPolyCount(); i++ {
			areas[t.Polys[i].Area]++
		}
		offMesh += len(t.OffMesh)
	})
	for area, n := range areas {
		if n > 0 {
			fmt.Printf("area %d: %d polys\n", area, n)
		}
	}
	fmt.Printf("off-mesh connections: %d\n", offMesh)
}

func writeGeometry(mesh *navmesh.Mesh, path string) error {
	var rows []geometryRow
	for _, tri := range mesh.DebugGeometry() {
		rows = append(rows, geometryRow{
			Ref:   uint64(tri.Ref),
			Area:  tri.Area,
			Flags: tri.Flags,
			AX:    tri.A.X, AY: tri.A.Y, AZ: tri.A.Z,
			BX:    tri.B.X, BY: tri.B.Y, BZ: tri.B.Z,
			CX:    tri.C.X, CY: tri.C.Y, CZ: tri.C.Z,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.Marshal(rows, f)
}
