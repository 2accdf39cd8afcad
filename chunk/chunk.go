// Package chunk implements per-chunk storage: sectioned block/biome
// palettes, the four heightmaps, carving masks, and the
// post-processing queue. It is shared by protochunk (which
// embeds a *Chunk as its working storage) and by the Full,
// shared-owned representation the scheduler hands to readers.
package chunk

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunkpos"
)

// Chunk is a 16 x height x 16 column of blocks identified by
// (cx, cz). It holds an ordered sequence of Sections from minY/16
// upward.
type Chunk struct {
	Pos        chunkpos.ChunkPos
	Range      cube.Range // Range[0] = minY, Range[1] = maxY, exclusive: valid y is Range[0] <= y < Range[1]
	Sections   []*Section
	heightmaps [heightmapCount]heightmap
	masks      [carvePhaseCount]*CarvingMask
	postQueue  []PostProcessPos

	classifier BlockClassifier
}

// New returns a Chunk with a freshly allocated (all-Air) section per
// 16-block slice of rng, ready for generation to write into.
func New(pos chunkpos.ChunkPos, rng cube.Range, classifier BlockClassifier) *Chunk {
	height := rng[1] - rng[0]
	sectionCount := (height + SectionSize - 1) / SectionSize
	c := &Chunk{
		Pos:        pos,
		Range:      rng,
		Sections:   make([]*Section, sectionCount),
		classifier: classifier,
	}
	for i := range c.Sections {
		c.Sections[i] = NewSection()
	}
	for p := range c.masks {
		c.masks[p] = newCarvingMask(height)
	}
	for hm := range c.heightmaps {
		for i := range c.heightmaps[hm] {
			c.heightmaps[hm][i] = int16(rng[0])
		}
	}
	return c
}

// MinY returns the dimension's minimum world Y, invariant across the
// chunk's life.
func (c *Chunk) MinY() int { return c.Range[0] }

// Height returns the dimension's total height in blocks.
func (c *Chunk) Height() int { return c.Range[1] - c.Range[0] }

func (c *Chunk) sectionFor(y int) (sectionIdx, localY int, ok bool) {
	if y < c.Range[0] || y >= c.Range[1] {
		return 0, 0, false
	}
	rel := y - c.Range[0]
	return rel / SectionSize, rel % SectionSize, true
}

// SectionFor returns the section index and local Y (0..16) that
// absolute world y falls into.
func (c *Chunk) SectionFor(y int) (sectionIdx, localY int, ok bool) {
	return c.sectionFor(y)
}

// GetBlock returns the block state at local (x, z) in 0..16 and
// absolute world y.
func (c *Chunk) GetBlock(x, y, z int) (BlockState, error) {
	si, ly, ok := c.sectionFor(y)
	if !ok {
		return Air, fmt.Errorf("chunk: y=%d out of range %v", y, c.Range)
	}
	return c.Sections[si].GetBlock(x, ly, z), nil
}

// SetBlock sets the block state at local (x, z) in 0..16 and absolute
// world y. Non-air states incrementally raise any heightmap whose
// predicate they satisfy; clearing a block never lowers a heightmap —
// callers must call RecomputeColumn after clears that may have
// changed a column's top.
func (c *Chunk) SetBlock(x, y, z int, state BlockState) error {
	si, ly, ok := c.sectionFor(y)
	if !ok {
		return fmt.Errorf("chunk: y=%d out of range %v", y, c.Range)
	}
	c.Sections[si].SetBlock(x, ly, z, state)

	if !IsAir(state) {
		for kind := HeightmapKind(0); kind < heightmapCount; kind++ {
			if matches(kind, state, c.classifier) {
				c.raiseHeightmap(kind, x, z, y+1)
			}
		}
	}
	return nil
}

func (c *Chunk) raiseHeightmap(kind HeightmapKind, x, z, topExclusive int) {
	idx := heightmapIndex(x, z)
	if int16(topExclusive) > c.heightmaps[kind][idx] {
		c.heightmaps[kind][idx] = int16(topExclusive)
	}
}

// TopY returns the Y of the topmost block matching kind's predicate
// in column (x, z), exclusive (i.e. one past the highest matching
// block).
func (c *Chunk) TopY(kind HeightmapKind, x, z int) int {
	return int(c.heightmaps[kind][heightmapIndex(x, z)])
}

// RecomputeColumn rescans column (localX, localZ) from the top of the
// chunk down to minY, writing fresh values for all four heightmaps.
// Used after carving removes blocks, since SetBlock never lowers a
// heightmap on its own.
func (c *Chunk) RecomputeColumn(localX, localZ int) {
	found := [heightmapCount]bool{}
	var tops [heightmapCount]int
	for y := c.Range[1] - 1; y >= c.Range[0]; y-- {
		allFound := true
		for k := range found {
			if !found[k] {
				allFound = false
				break
			}
		}
		if allFound {
			break
		}
		state, err := c.GetBlock(localX, y, localZ)
		if err != nil {
			continue
		}
		for kind := HeightmapKind(0); kind < heightmapCount; kind++ {
			if found[kind] {
				continue
			}
			if matches(kind, state, c.classifier) {
				tops[kind] = y + 1
				found[kind] = true
			}
		}
	}
	idx := heightmapIndex(localX, localZ)
	for kind := HeightmapKind(0); kind < heightmapCount; kind++ {
		if found[kind] {
			c.heightmaps[kind][idx] = int16(tops[kind])
		} else {
			c.heightmaps[kind][idx] = int16(c.Range[0])
		}
	}
}

// Mask returns the carving mask for the given phase.
func (c *Chunk) Mask(phase CarvePhase) *CarvingMask { return c.masks[phase] }

// QueuePostProcess appends a position for a later post-processing
// pass (e.g. a fluid update a carver introduced).
func (c *Chunk) QueuePostProcess(p PostProcessPos) {
	c.postQueue = append(c.postQueue, p)
}

// PostProcessQueue returns the positions queued for post-processing.
func (c *Chunk) PostProcessQueue() []PostProcessPos { return c.postQueue }

// Classifier returns the block classifier this chunk was constructed
// with.
func (c *Chunk) Classifier() BlockClassifier { return c.classifier }
