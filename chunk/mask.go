package chunk

// CarvePhase distinguishes the two carving mask layers: Air (tunnels,
// ravines) and Liquid (lava/water pockets left by a carver).
type CarvePhase int

const (
	CarveAir CarvePhase = iota
	CarveLiquid
	carvePhaseCount
)

// CarvingMask is a compact bitset over one chunk's full column range,
// sized 16 x height x 16, recording positions a carver has already
// touched during this chunk's generation.
type CarvingMask struct {
	height int
	bits   []uint64
}

func newCarvingMask(height int) *CarvingMask {
	n := SectionSize * height * SectionSize
	return &CarvingMask{height: height, bits: make([]uint64, (n+63)/64)}
}

func (m *CarvingMask) offset(localX, y, localZ int) int {
	return (y*SectionSize+localZ)*SectionSize + localX
}

// Set marks (localX, y, localZ) as carved, where y is an index into
// 0..height (already offset from the dimension's minY by the caller).
func (m *CarvingMask) Set(localX, y, localZ int) {
	i := m.offset(localX, y, localZ)
	m.bits[i/64] |= 1 << uint(i%64)
}

// Get reports whether (localX, y, localZ) has been carved.
func (m *CarvingMask) Get(localX, y, localZ int) bool {
	i := m.offset(localX, y, localZ)
	return m.bits[i/64]&(1<<uint(i%64)) != 0
}

// PostProcessPos is a block position queued for a post-processing
// pass (e.g. a fluid update introduced by carving), local to the
// chunk plus an absolute Y.
type PostProcessPos struct {
	LocalX, Y, LocalZ int
}
