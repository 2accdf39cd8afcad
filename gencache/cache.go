// Package gencache implements the generation cache: a square window
// of chunks centred on the chunk currently advancing
// a stage, with read access to every chunk in the window but write
// access to only the centre. It is the abstraction that lets a
// generation step read across chunk borders (for noise/surface/
// feature placement near a chunk's edge) without handing out mutable
// references to more than one chunk at a time.
package gencache

import (
	"fmt"

	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
)

// Cache is a (2*radius+1)^2 window of *chunk.Chunk, addressable by
// absolute block coordinates. Only the centre chunk may be mutated
// through SetBlock; every other accessor in the window is read-only.
type Cache struct {
	radius int
	origin chunkpos.ChunkPos // chunk coordinate of the window's minimum corner
	side   int
	slots  []*chunk.Chunk // row-major, side x side, indexed by (localX, localZ) within the window
	centre chunkpos.ChunkPos
}

// New builds a Cache around centre with the given radius. chunks must
// contain exactly one entry for every position in
// chunkpos.Window(centre, radius); the scheduler assembles this on
// the generator worker by looking each position up in the store,
// which keeps its entries.
func New(centre chunkpos.ChunkPos, radius int, chunks map[chunkpos.ChunkPos]*chunk.Chunk) (*Cache, error) {
	side := 2*radius + 1
	origin := chunkpos.ChunkPos{X: centre.X - int32(radius), Z: centre.Z - int32(radius)}
	c := &Cache{radius: radius, origin: origin, side: side, centre: centre, slots: make([]*chunk.Chunk, side*side)}
	for _, p := range chunkpos.Window(centre, radius) {
		ch, ok := chunks[p]
		if !ok {
			return nil, fmt.Errorf("gencache: missing chunk at %v for window centred on %v radius %d", p, centre, radius)
		}
		i, err := c.slotIndex(p)
		if err != nil {
			return nil, err
		}
		c.slots[i] = ch
	}
	return c, nil
}

func (c *Cache) slotIndex(p chunkpos.ChunkPos) (int, error) {
	lx := int(p.X - c.origin.X)
	lz := int(p.Z - c.origin.Z)
	if lx < 0 || lx >= c.side || lz < 0 || lz >= c.side {
		return 0, fmt.Errorf("gencache: position %v outside window origin %v side %d", p, c.origin, c.side)
	}
	return lz*c.side + lx, nil
}

// chunkAt dispatches to the correct neighbour by chunk-shifted block
// coordinates: (blockX>>4 - windowOriginX, blockZ>>4 - windowOriginZ).
func (c *Cache) chunkAt(blockX, blockZ int) (*chunk.Chunk, chunkpos.ChunkPos, error) {
	p := chunkpos.ChunkPos{X: int32(blockX >> 4), Z: int32(blockZ >> 4)}
	i, err := c.slotIndex(p)
	if err != nil {
		return nil, p, err
	}
	ch := c.slots[i]
	if ch == nil {
		return nil, p, fmt.Errorf("gencache: no chunk loaded at %v", p)
	}
	return ch, p, nil
}

// Centre returns the chunk this cache window is centred on.
func (c *Cache) Centre() *chunk.Chunk {
	i, _ := c.slotIndex(c.centre)
	return c.slots[i]
}

// CentrePos returns the position the cache is centred on.
func (c *Cache) CentrePos() chunkpos.ChunkPos { return c.centre }

// GetBlock returns the block state at absolute (blockX, y, blockZ),
// reading across chunk borders as needed.
func (c *Cache) GetBlock(blockX, y, blockZ int) (chunk.BlockState, error) {
	ch, p, err := c.chunkAt(blockX, blockZ)
	if err != nil {
		return chunk.Air, err
	}
	return ch.GetBlock(localCoord(blockX, p.X), y, localCoord(blockZ, p.Z))
}

// GetBiome returns the biome sample at absolute (blockX, y, blockZ).
func (c *Cache) GetBiome(blockX, y, blockZ int) (chunk.BiomeID, error) {
	ch, p, err := c.chunkAt(blockX, blockZ)
	if err != nil {
		return 0, err
	}
	lx, lz := localCoord(blockX, p.X), localCoord(blockZ, p.Z)
	si, ly, ok := ch.SectionFor(y)
	if !ok {
		return 0, fmt.Errorf("gencache: y=%d out of range", y)
	}
	return ch.Sections[si].GetBiome(lx/4, ly/4, lz/4), nil
}

// GetHeight returns top_y(kind, x, z) for the chunk covering absolute
// (blockX, blockZ).
func (c *Cache) GetHeight(kind chunk.HeightmapKind, blockX, blockZ int) (int, error) {
	ch, p, err := c.chunkAt(blockX, blockZ)
	if err != nil {
		return 0, err
	}
	return ch.TopY(kind, localCoord(blockX, p.X), localCoord(blockZ, p.Z)), nil
}

// SetBlock writes to absolute (blockX, y, blockZ); it is only valid
// when that position falls inside the centre chunk's block range.
// Calling it on any other position is a programmer error.
func (c *Cache) SetBlock(blockX, y, blockZ int, state chunk.BlockState) error {
	p := chunkpos.ChunkPos{X: int32(blockX >> 4), Z: int32(blockZ >> 4)}
	if p != c.centre {
		return fmt.Errorf("gencache: SetBlock(%d,%d,%d) targets %v, not centre %v", blockX, y, blockZ, p, c.centre)
	}
	return c.Centre().SetBlock(localCoord(blockX, p.X), y, localCoord(blockZ, p.Z), state)
}

func localCoord(abs int, chunkCoord int32) int {
	return abs - int(chunkCoord)*16
}
