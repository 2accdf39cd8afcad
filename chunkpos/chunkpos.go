// Package chunkpos defines chunk and region coordinates and the
// Chebyshev-distance arithmetic the ticket propagator and scheduler
// share.
package chunkpos

// ChunkPos identifies a 16x16 column of blocks by chunk coordinate.
type ChunkPos struct {
	X, Z int32
}

// RegionPos identifies a 32x32-chunk region file.
type RegionPos struct {
	X, Z int32
}

// Region returns the region containing p and p's local index within
// that region's 32x32 grid. Local coordinates are always in 0..32;
// the shift is arithmetic so negative chunk coordinates wrap
// correctly.
func (p ChunkPos) Region() (r RegionPos, localX, localZ int) {
	r = RegionPos{X: p.X >> 5, Z: p.Z >> 5}
	localX = int(p.X & 31)
	localZ = int(p.Z & 31)
	return
}

// Chebyshev returns the Chebyshev (L-infinity) distance between p and
// q, the metric the level field and every stage's read/write radius
// are defined in.
func Chebyshev(p, q ChunkPos) int {
	dx := abs32(p.X - q.X)
	dz := abs32(p.Z - q.Z)
	if dx > dz {
		return int(dx)
	}
	return int(dz)
}

// Neighbors returns every chunk at exactly Chebyshev distance 1 from
// p, in a stable order (used by the level propagator's BFS relax
// step and by tests that need deterministic iteration).
func Neighbors(p ChunkPos) []ChunkPos {
	out := make([]ChunkPos, 0, 8)
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			out = append(out, ChunkPos{X: p.X + dx, Z: p.Z + dz})
		}
	}
	return out
}

// Ring returns every chunk at exactly Chebyshev distance radius from
// centre (a square ring, not a filled disk). radius == 0 returns
// just centre.
func Ring(centre ChunkPos, radius int) []ChunkPos {
	if radius == 0 {
		return []ChunkPos{centre}
	}
	r := int32(radius)
	out := make([]ChunkPos, 0, 8*radius)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx != -r && dx != r && dz != -r && dz != r {
				continue
			}
			out = append(out, ChunkPos{X: centre.X + dx, Z: centre.Z + dz})
		}
	}
	return out
}

// Window returns every chunk within Chebyshev distance radius of
// centre (a filled (2*radius+1)^2 square), centre first.
func Window(centre ChunkPos, radius int) []ChunkPos {
	r := int32(radius)
	out := make([]ChunkPos, 0, (2*radius+1)*(2*radius+1))
	out = append(out, centre)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			out = append(out, ChunkPos{X: centre.X + dx, Z: centre.Z + dz})
		}
	}
	return out
}

// Key packs p into a single int64. The maps in this module key on
// ChunkPos directly; Key and FromKey are for callers that need an
// integer key.
func (p ChunkPos) Key() int64 {
	return int64(p.X)<<32 | int64(uint32(p.Z))
}

// FromKey is the inverse of Key.
func FromKey(k int64) ChunkPos {
	return ChunkPos{X: int32(k >> 32), Z: int32(uint32(k))}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
