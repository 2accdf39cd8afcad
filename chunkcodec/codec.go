// Package chunkcodec encodes and decodes a *protochunk.ProtoChunk to
// the byte payload an anvil.RegionFile stores, using a small
// varint-and-palette wire format (internal/buffer) for the section and
// structure data model. Structure-piece payloads,
// opaque to this package, are wrapped in NBT at the encode/decode
// boundary.
//
// Heightmaps and carving masks are not persisted: heightmaps are a
// pure function of block data and are recomputed on decode via
// chunk.Chunk.RecomputeColumn, and a carving mask only matters during
// the single Carve call that produced it, never surviving past it, so
// persisting either would only add bytes for no behavioural benefit.
package chunkcodec

import (
	"bytes"
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/internal/buffer"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/stage"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// pieceEnvelope wraps a structure piece's opaque payload in NBT at
// the encode/decode boundary. chunkcodec never interprets the payload
// itself.
type pieceEnvelope struct {
	Data []byte `nbt:"data"`
}

const formatVersion = 1

// instanceTag discriminates StructureInstance's two variants on the
// wire.
const (
	instanceStart     = 0
	instanceReference = 1
)

// Encode serialises p into a self-contained byte payload suitable for
// anvil.RegionFile.WriteChunk.
func Encode(p *protochunk.ProtoChunk) ([]byte, error) {
	w := buffer.NewWriter()
	w.WriteUint8(formatVersion)
	w.WriteInt32(p.Pos.X)
	w.WriteInt32(p.Pos.Z)
	w.WriteInt32(int32(p.Range[0]))
	w.WriteInt32(int32(p.Range[1]))
	w.WriteUint8(uint8(p.Stage))
	w.WriteBool(p.OldNoiseGeneration)

	w.WriteVarUint(uint64(len(p.Sections)))
	for _, s := range p.Sections {
		encodeSection(w, s)
	}

	w.WriteVarUint(uint64(len(p.StructureStarts)))
	for key, inst := range p.StructureStarts {
		w.WriteString(string(key))
		if origin, isRef := inst.Reference(); isRef {
			w.WriteUint8(instanceReference)
			w.WriteInt32(origin.X)
			w.WriteInt32(origin.Z)
			continue
		}
		start, _ := inst.Start()
		w.WriteUint8(instanceStart)
		encodeBoundingBox(w, start.Box)
		w.WriteVarUint(uint64(len(start.Pieces)))
		for _, piece := range start.Pieces {
			w.WriteString(piece.ID)
			encodeBoundingBox(w, piece.Box)
			envelope, err := nbt.Marshal(pieceEnvelope{Data: piece.Data})
			if err != nil {
				return nil, fmt.Errorf("chunkcodec: marshal piece %q payload: %w", piece.ID, err)
			}
			w.WriteBytes(envelope)
		}
	}

	return w.Bytes(), nil
}

func encodeSection(w *buffer.Writer, s *chunk.Section) {
	palette := s.BlockPalette()
	w.WriteVarUint(uint64(len(palette)))
	for _, bs := range palette {
		w.WriteUint16(uint16(bs))
	}
	blocks := s.Blocks()
	for _, idx := range blocks {
		w.WriteUint16(idx)
	}

	biomePalette := s.BiomePalette()
	w.WriteVarUint(uint64(len(biomePalette)))
	for _, b := range biomePalette {
		w.WriteUint16(uint16(b))
	}
	biomes := s.Biomes()
	for _, idx := range biomes {
		w.WriteUint16(idx)
	}
}

func encodeBoundingBox(w *buffer.Writer, b protochunk.BoundingBox) {
	w.WriteInt32(int32(b.MinX))
	w.WriteInt32(int32(b.MinY))
	w.WriteInt32(int32(b.MinZ))
	w.WriteInt32(int32(b.MaxX))
	w.WriteInt32(int32(b.MaxY))
	w.WriteInt32(int32(b.MaxZ))
}

// Decode parses a payload written by Encode back into a ProtoChunk,
// with a fresh BlockClassifier injected by the caller (block
// registries are external to this subsystem) and heightmaps
// recomputed from the decoded block data.
func Decode(data []byte, classifier chunk.BlockClassifier) (*protochunk.ProtoChunk, error) {
	r := buffer.NewReader(bytes.NewReader(data))

	version, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("chunkcodec: unsupported format version %d", version)
	}

	x, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read pos.x: %w", err)
	}
	z, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read pos.z: %w", err)
	}
	minY, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read minY: %w", err)
	}
	maxY, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read maxY: %w", err)
	}
	stageByte, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read stage: %w", err)
	}
	oldNoise, err := r.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read oldNoiseGeneration: %w", err)
	}

	pos := chunkpos.ChunkPos{X: x, Z: z}
	rng := cube.Range{int(minY), int(maxY)}
	p := protochunk.New(pos, rng, classifier, oldNoise)

	sectionCount, err := r.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read section count: %w", err)
	}
	if int(sectionCount) != len(p.Sections) {
		return nil, fmt.Errorf("chunkcodec: section count %d does not match range %v", sectionCount, rng)
	}
	for i := range p.Sections {
		if err := decodeSection(r, p.Sections[i]); err != nil {
			return nil, fmt.Errorf("chunkcodec: section %d: %w", i, err)
		}
	}

	structCount, err := r.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: read structure count: %w", err)
	}
	for i := uint64(0); i < structCount; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, fmt.Errorf("chunkcodec: structure %d key: %w", i, err)
		}
		tag, err := r.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("chunkcodec: structure %d tag: %w", i, err)
		}
		switch tag {
		case instanceReference:
			ox, err := r.ReadInt32()
			if err != nil {
				return nil, fmt.Errorf("chunkcodec: structure %d origin.x: %w", i, err)
			}
			oz, err := r.ReadInt32()
			if err != nil {
				return nil, fmt.Errorf("chunkcodec: structure %d origin.z: %w", i, err)
			}
			p.StructureStarts[protochunk.StructureKey(key)] = protochunk.NewReference(chunkpos.ChunkPos{X: ox, Z: oz})
		case instanceStart:
			box, err := decodeBoundingBox(r)
			if err != nil {
				return nil, fmt.Errorf("chunkcodec: structure %d box: %w", i, err)
			}
			pieceCount, err := r.ReadVarUint()
			if err != nil {
				return nil, fmt.Errorf("chunkcodec: structure %d piece count: %w", i, err)
			}
			pieces := make([]protochunk.StructurePiece, 0, pieceCount)
			for j := uint64(0); j < pieceCount; j++ {
				id, err := r.ReadString()
				if err != nil {
					return nil, fmt.Errorf("chunkcodec: structure %d piece %d id: %w", i, j, err)
				}
				pbox, err := decodeBoundingBox(r)
				if err != nil {
					return nil, fmt.Errorf("chunkcodec: structure %d piece %d box: %w", i, j, err)
				}
				envelope, err := r.ReadBytes()
				if err != nil {
					return nil, fmt.Errorf("chunkcodec: structure %d piece %d data: %w", i, j, err)
				}
				var pe pieceEnvelope
				if err := nbt.Unmarshal(envelope, &pe); err != nil {
					return nil, fmt.Errorf("chunkcodec: structure %d piece %d payload: %w", i, j, err)
				}
				pieces = append(pieces, protochunk.StructurePiece{ID: id, Box: pbox, Data: pe.Data})
			}
			p.StructureStarts[protochunk.StructureKey(key)] = protochunk.NewStart(protochunk.StructureStart{Box: box, Pieces: pieces})
		default:
			return nil, fmt.Errorf("chunkcodec: structure %d: unknown instance tag %d", i, tag)
		}
	}

	p.Stage = stage.Stage(stageByte)
	for lx := 0; lx < chunk.SectionSize; lx++ {
		for lz := 0; lz < chunk.SectionSize; lz++ {
			p.RecomputeColumn(lx, lz)
		}
	}
	return p, nil
}

func decodeSection(r *buffer.Reader, s *chunk.Section) error {
	blockPaletteLen, err := r.ReadVarUint()
	if err != nil {
		return fmt.Errorf("read block palette length: %w", err)
	}
	palette := make([]chunk.BlockState, blockPaletteLen)
	for i := range palette {
		v, err := r.ReadUint16()
		if err != nil {
			return fmt.Errorf("read block palette entry %d: %w", i, err)
		}
		palette[i] = chunk.BlockState(v)
	}

	for y := 0; y < chunk.SectionSize; y++ {
		for z := 0; z < chunk.SectionSize; z++ {
			for x := 0; x < chunk.SectionSize; x++ {
				idx, err := r.ReadUint16()
				if err != nil {
					return fmt.Errorf("read block index: %w", err)
				}
				if int(idx) >= len(palette) {
					return fmt.Errorf("block index %d out of range for palette of size %d", idx, len(palette))
				}
				s.SetBlock(x, y, z, palette[idx])
			}
		}
	}

	biomePaletteLen, err := r.ReadVarUint()
	if err != nil {
		return fmt.Errorf("read biome palette length: %w", err)
	}
	biomePalette := make([]chunk.BiomeID, biomePaletteLen)
	for i := range biomePalette {
		v, err := r.ReadUint16()
		if err != nil {
			return fmt.Errorf("read biome palette entry %d: %w", i, err)
		}
		biomePalette[i] = chunk.BiomeID(v)
	}

	for y := 0; y < chunk.BiomeGridSize; y++ {
		for z := 0; z < chunk.BiomeGridSize; z++ {
			for x := 0; x < chunk.BiomeGridSize; x++ {
				idx, err := r.ReadUint16()
				if err != nil {
					return fmt.Errorf("read biome index: %w", err)
				}
				if int(idx) >= len(biomePalette) {
					return fmt.Errorf("biome index %d out of range for palette of size %d", idx, len(biomePalette))
				}
				s.SetBiome(x, y, z, biomePalette[idx])
			}
		}
	}
	return nil
}

func decodeBoundingBox(r *buffer.Reader) (protochunk.BoundingBox, error) {
	var b protochunk.BoundingBox
	vals := make([]int, 6)
	for i := range vals {
		v, err := r.ReadInt32()
		if err != nil {
			return b, err
		}
		vals[i] = int(v)
	}
	b.MinX, b.MinY, b.MinZ, b.MaxX, b.MaxY, b.MaxZ = vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	return b, nil
}
