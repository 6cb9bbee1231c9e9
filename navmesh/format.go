package navmesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for mesh loading and tile registration. Callers
// branch with errors.Is; the wrapping message carries the detail.
var (
	ErrCorruptData        = errors.New("navmesh: corrupt data")
	ErrUnsupportedVersion = errors.New("navmesh: unsupported version")
	ErrAllocationFailure  = errors.New("navmesh: allocation failure")
)

const (
	fileMagic   uint32 = 0x4D56414E // "NAVM" little-endian
	fileVersion uint32 = 1
)

type fileHeader struct {
	Magic     uint32
	Version   uint32
	TileCount int32
	Origin    [3]float32
	TileW     float32
	TileH     float32
	MaxTiles  int32
	MaxPolys  int32
}

// Load reads a serialized mesh. Tiles are registered in file order, so
// the resulting connectivity matches the mesh that was saved.
func Load(r io.Reader) (*Mesh, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptData, err)
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrCorruptData, hdr.Magic)
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("%w: version %d, want %d",
			ErrUnsupportedVersion, hdr.Version, fileVersion)
	}
	if hdr.TileCount < 0 {
		return nil, fmt.Errorf("%w: tile count %d", ErrCorruptData, hdr.TileCount)
	}

	m, err := New(Params{
		Origin:     Vec3{hdr.Origin[0], hdr.Origin[1], hdr.Origin[2]},
		TileWidth:  hdr.TileW,
		TileHeight: hdr.TileH,
		MaxTiles:   int(hdr.MaxTiles),
	})
	if err != nil {
		return nil, err
	}

	for i := int32(0); i < hdr.TileCount; i++ {
		var rec struct {
			Ref     uint64
			PayloadLen int32
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: tile record %d: %v", ErrCorruptData, i, err)
		}
		if rec.PayloadLen < int32(tileHeaderSize) {
			return nil, fmt.Errorf("%w: tile %d payload length %d",
				ErrCorruptData, i, rec.PayloadLen)
		}
		payload := make([]byte, rec.PayloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: tile %d payload: %v", ErrCorruptData, i, err)
		}
		if _, err := m.AddTile(payload); err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
	}
	return m, nil
}

// LoadBytes is Load over an in-memory buffer.
func LoadBytes(data []byte) (*Mesh, error) {
	return Load(bytes.NewReader(data))
}

// Save writes the mesh in the format Load reads. Tiles that were
// registered from a payload and not mutated since are written
// byte-for-byte from the stored payload.
func (m *Mesh) Save(w io.Writer) error {
	hdr := fileHeader{
		Magic:     fileMagic,
		Version:   fileVersion,
		TileCount: int32(m.TileCount()),
		Origin: [3]float32{
			m.params.Origin.X, m.params.Origin.Y, m.params.Origin.Z,
		},
		TileW:    m.params.TileWidth,
		TileH:    m.params.TileHeight,
		MaxTiles: int32(m.params.MaxTiles),
		MaxPolys: int32(1 << polyBits),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range m.tiles {
		if t == nil {
			continue
		}
		payload := t.data
		if payload == nil {
			payload = serializeTile(t)
		}
		rec := struct {
			Ref        uint64
			PayloadLen int32
		}{
			Ref:        uint64(encodeRef(t.salt, t.index, 0)),
			PayloadLen: int32(len(payload)),
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("write tile (%d, %d): %w", t.X, t.Y, err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write tile (%d, %d): %w", t.X, t.Y, err)
		}
	}
	return nil
}

// SaveBytes is Save into a fresh buffer.
func (m *Mesh) SaveBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
