package protochunk

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/gencache"
	"github.com/oriumgames/strata/stage"
)

type fakeClassifier struct{}

func (fakeClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (fakeClassifier) IsLiquid(chunk.BlockState) bool         { return false }
func (fakeClassifier) IsLeaves(chunk.BlockState) bool         { return false }

// fakeGenerator fills the centre column with a single stone layer per
// stage it's asked to run, so tests can observe that each step ran
// exactly once and in order.
type fakeGenerator struct {
	calls []string
}

func (g *fakeGenerator) GenerateBiomes(c *gencache.Cache, seed int64) error {
	g.calls = append(g.calls, "biomes")
	return nil
}
func (g *fakeGenerator) GenerateNoise(c *gencache.Cache, seed int64) error {
	g.calls = append(g.calls, "noise")
	return c.SetBlock(0, 0, 0, chunk.BlockState(1))
}
func (g *fakeGenerator) BuildSurface(c *gencache.Cache, seed int64) error {
	g.calls = append(g.calls, "surface")
	return nil
}
func (g *fakeGenerator) Carve(c *gencache.Cache, p *ProtoChunk, seed int64) error {
	g.calls = append(g.calls, "carve")
	return nil
}
func (g *fakeGenerator) PlaceFeatures(c *gencache.Cache, p *ProtoChunk, seed int64) error {
	g.calls = append(g.calls, "features")
	return nil
}

func newWindow(t *testing.T, centre chunkpos.ChunkPos, radius int) *gencache.Cache {
	t.Helper()
	chunks := make(map[chunkpos.ChunkPos]*chunk.Chunk)
	for _, p := range chunkpos.Window(centre, radius) {
		chunks[p] = chunk.New(p, cube.Range{-64, 192}, fakeClassifier{})
	}
	c, err := gencache.New(centre, radius, chunks)
	if err != nil {
		t.Fatalf("gencache.New: %v", err)
	}
	return c
}

func TestStageAdvancementOrder(t *testing.T) {
	pos := chunkpos.ChunkPos{X: 4, Z: 4}
	p := New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)
	g := &fakeGenerator{}

	cache := newWindow(t, pos, 3)
	if err := p.StepToBiomes(g, cache, 1); err != nil {
		t.Fatalf("StepToBiomes: %v", err)
	}
	if p.Stage != stage.Biomes {
		t.Fatalf("stage = %v, want Biomes", p.Stage)
	}
	if err := p.StepToNoise(g, cache, 1); err != nil {
		t.Fatalf("StepToNoise: %v", err)
	}
	if err := p.StepToSurface(g, cache, 1); err != nil {
		t.Fatalf("StepToSurface: %v", err)
	}
	if err := p.StepToCarvers(g, cache, 1); err != nil {
		t.Fatalf("StepToCarvers: %v", err)
	}
	lookup := func(chunkpos.ChunkPos) (*ProtoChunk, bool) { return nil, false }
	if err := p.StepToFeatures(g, cache, 1, lookup); err != nil {
		t.Fatalf("StepToFeatures: %v", err)
	}
	if p.Stage != stage.Features {
		t.Fatalf("stage = %v, want Features", p.Stage)
	}

	shared, err := p.UpgradeToFull()
	if err != nil {
		t.Fatalf("UpgradeToFull: %v", err)
	}
	if p.Stage != stage.Full {
		t.Fatalf("stage after upgrade = %v, want Full", p.Stage)
	}
	shared.Read(func(c *chunk.Chunk) {
		if got, err := c.GetBlock(0, 0, 0); err != nil || got != chunk.BlockState(1) {
			t.Fatalf("GetBlock(0,0,0) = %v, %v, want 1", got, err)
		}
	})

	want := []string{"biomes", "noise", "surface", "carve", "features"}
	if len(g.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", g.calls, want)
	}
	for i := range want {
		if g.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, g.calls[i], want[i])
		}
	}
}

func TestStageAssertionOnSkippedStage(t *testing.T) {
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	p := New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)
	g := &fakeGenerator{}
	cache := newWindow(t, pos, 3)

	err := p.StepToNoise(g, cache, 1) // still at Empty, should fail
	if err == nil {
		t.Fatal("expected ErrStageMismatch")
	}
	var mismatch ErrStageMismatch
	if !asErrStageMismatch(err, &mismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}
	if mismatch.Want != stage.Biomes || mismatch.Got != stage.Empty {
		t.Fatalf("mismatch = %+v", mismatch)
	}
}

func asErrStageMismatch(err error, out *ErrStageMismatch) bool {
	m, ok := err.(ErrStageMismatch)
	if ok {
		*out = m
	}
	return ok
}

func TestStructureReferenceResolution(t *testing.T) {
	origin := chunkpos.ChunkPos{X: 0, Z: 0}
	referrer := chunkpos.ChunkPos{X: 1, Z: 0}

	originChunk := New(origin, cube.Range{-64, 192}, fakeClassifier{}, false)
	start := StructureStart{Box: BoundingBox{0, 0, 0, 16, 10, 16}}
	originChunk.StructureStarts["minecraft:outpost"] = NewStart(start)

	ref := NewReference(origin)
	lookup := func(p chunkpos.ChunkPos) (*ProtoChunk, bool) {
		if p == origin {
			return originChunk, true
		}
		return nil, false
	}

	got, ok := ref.Resolve("minecraft:outpost", lookup)
	if !ok {
		t.Fatal("expected reference to resolve")
	}
	if got.Box != start.Box {
		t.Fatalf("resolved box = %+v, want %+v", got.Box, start.Box)
	}
	_ = referrer
}
