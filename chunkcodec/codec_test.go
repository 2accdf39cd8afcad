package chunkcodec

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/stage"
)

type fakeClassifier struct{}

func (fakeClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (fakeClassifier) IsLiquid(s chunk.BlockState) bool       { return s == chunk.BlockState(2) }
func (fakeClassifier) IsLeaves(s chunk.BlockState) bool       { return s == chunk.BlockState(3) }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pos := chunkpos.ChunkPos{X: 3, Z: -5}
	rng := cube.Range{-64, 192}
	p := protochunk.New(pos, rng, fakeClassifier{}, true)
	p.Stage = stage.Surface

	if err := p.SetBlock(1, 0, 1, chunk.BlockState(5)); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if err := p.SetBlock(2, 10, 2, chunk.BlockState(7)); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	p.Sections[0].SetBiome(0, 0, 0, chunk.BiomeID(9))

	p.StructureStarts["minecraft:outpost"] = protochunk.NewStart(protochunk.StructureStart{
		Box: protochunk.BoundingBox{MinX: 0, MinY: 0, MinZ: 0, MaxX: 16, MaxY: 20, MaxZ: 16},
		Pieces: []protochunk.StructurePiece{
			{ID: "tower", Box: protochunk.BoundingBox{MinX: 1, MinY: 1, MinZ: 1, MaxX: 5, MaxY: 10, MaxZ: 5}, Data: []byte("abc")},
		},
	})
	origin := chunkpos.ChunkPos{X: 0, Z: 0}
	p.StructureStarts["minecraft:well"] = protochunk.NewReference(origin)

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data, fakeClassifier{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Pos != pos {
		t.Fatalf("Pos = %v, want %v", got.Pos, pos)
	}
	if got.Range != rng {
		t.Fatalf("Range = %v, want %v", got.Range, rng)
	}
	if got.Stage != stage.Surface {
		t.Fatalf("Stage = %v, want Surface", got.Stage)
	}
	if !got.OldNoiseGeneration {
		t.Fatal("OldNoiseGeneration = false, want true")
	}

	if b, err := got.GetBlock(1, 0, 1); err != nil || b != chunk.BlockState(5) {
		t.Fatalf("GetBlock(1,0,1) = %v, %v, want 5", b, err)
	}
	if b, err := got.GetBlock(2, 10, 2); err != nil || b != chunk.BlockState(7) {
		t.Fatalf("GetBlock(2,10,2) = %v, %v, want 7", b, err)
	}
	if biome := got.Sections[0].GetBiome(0, 0, 0); biome != chunk.BiomeID(9) {
		t.Fatalf("GetBiome(0,0,0) = %v, want 9", biome)
	}

	start, ok := got.StructureStarts["minecraft:outpost"]
	if !ok || !start.IsStart() {
		t.Fatal("expected minecraft:outpost to round-trip as a Start")
	}
	s, _ := start.Start()
	if len(s.Pieces) != 1 || s.Pieces[0].ID != "tower" || string(s.Pieces[0].Data) != "abc" {
		t.Fatalf("start pieces = %+v", s.Pieces)
	}

	ref, ok := got.StructureStarts["minecraft:well"]
	if !ok || ref.IsStart() {
		t.Fatal("expected minecraft:well to round-trip as a Reference")
	}
	refOrigin, isRef := ref.Reference()
	if !isRef || refOrigin != origin {
		t.Fatalf("reference origin = %v, %v, want %v, true", refOrigin, isRef, origin)
	}

	// Heightmap is recomputed from blocks, not persisted, but must
	// still be internally consistent after decode.
	if top := got.TopY(chunk.WorldSurface, 2, 2); top != 11 {
		t.Fatalf("TopY(WorldSurface, 2, 2) = %d, want 11", top)
	}
}
