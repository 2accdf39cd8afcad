package chunk

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunkpos"
)

// solidClassifier treats every non-air, non-special state as solid;
// state 2 is liquid, state 3 is leaves, for testing only.
type solidClassifier struct{}

func (solidClassifier) BlocksMovement(s BlockState) bool { return s != Air && s != 2 }
func (solidClassifier) IsLiquid(s BlockState) bool       { return s == 2 }
func (solidClassifier) IsLeaves(s BlockState) bool       { return s == 3 }

func newTestChunk() *Chunk {
	return New(chunkpos.ChunkPos{X: 0, Z: 0}, cube.Range{-64, 192}, solidClassifier{})
}

// TestHeightmapConsistency checks that after any sequence of SetBlock
// calls, TopY-1 is >= every matching block's Y.
func TestHeightmapConsistency(t *testing.T) {
	c := newTestChunk()
	if err := c.SetBlock(3, -10, 3, 1); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if err := c.SetBlock(3, 50, 3, 1); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if err := c.SetBlock(3, 20, 3, 1); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}

	top := c.TopY(WorldSurface, 3, 3)
	if top-1 < 50 {
		t.Fatalf("TopY-1 = %d, want >= 50", top-1)
	}
}

func TestRecomputeColumnMonotone(t *testing.T) {
	c := newTestChunk()
	_ = c.SetBlock(5, 10, 5, 1)
	_ = c.SetBlock(5, 40, 5, 1)
	if got := c.TopY(OceanFloor, 5, 5); got != 41 {
		t.Fatalf("TopY before clear = %d, want 41", got)
	}

	// Clear the top block directly via the section (simulating a
	// carver removing it) without going through SetBlock, then
	// recompute.
	si, ly, ok := c.sectionFor(40)
	if !ok {
		t.Fatal("sectionFor(40) not ok")
	}
	c.Sections[si].SetBlock(5, ly, 5, Air)

	// Before recompute, heightmap is stale (SetBlock only raises).
	if got := c.TopY(OceanFloor, 5, 5); got != 41 {
		t.Fatalf("stale TopY = %d, want 41 (SetBlock never lowers)", got)
	}

	c.RecomputeColumn(5, 5)
	if got := c.TopY(OceanFloor, 5, 5); got != 11 {
		t.Fatalf("TopY after recompute = %d, want 11", got)
	}
}

func TestMotionBlockingNoLeavesExcludesLeaves(t *testing.T) {
	c := newTestChunk()
	_ = c.SetBlock(0, 0, 0, 1) // solid
	_ = c.SetBlock(0, 10, 0, 3) // leaves, also "blocks movement" under our test classifier? no, BlocksMovement excludes only Air and liquid(2)
	if got := c.TopY(MotionBlocking, 0, 0); got != 11 {
		t.Fatalf("MotionBlocking TopY = %d, want 11", got)
	}
	if got := c.TopY(MotionBlockingNoLeaves, 0, 0); got != 1 {
		t.Fatalf("MotionBlockingNoLeaves TopY = %d, want 1 (leaves excluded)", got)
	}
}

func TestCarvingMask(t *testing.T) {
	c := newTestChunk()
	m := c.Mask(CarveAir)
	if m.Get(1, 5, 1) {
		t.Fatal("fresh mask should be unset")
	}
	m.Set(1, 5, 1)
	if !m.Get(1, 5, 1) {
		t.Fatal("Set then Get should report true")
	}
	if m.Get(2, 5, 1) {
		t.Fatal("adjacent position should remain unset")
	}
}

func TestOutOfRangeBlock(t *testing.T) {
	c := newTestChunk()
	if _, err := c.GetBlock(0, 1000, 0); err == nil {
		t.Fatal("expected error for out-of-range Y")
	}
}
