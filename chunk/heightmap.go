package chunk

// HeightmapKind names one of the four tracked heightmaps.
type HeightmapKind int

const (
	WorldSurface HeightmapKind = iota
	OceanFloor
	MotionBlocking
	MotionBlockingNoLeaves
	heightmapCount
)

// heightmap is 256 signed 16-bit values indexed x*16+z, each the
// highest Y (exclusive, i.e. "topmost matching block + 1") satisfying
// the kind's predicate.
type heightmap [SectionSize * SectionSize]int16

func heightmapIndex(x, z int) int { return x*SectionSize + z }

// matches evaluates the predicate for kind against state, using c to
// answer registry-dependent questions.
func matches(kind HeightmapKind, state BlockState, c BlockClassifier) bool {
	switch kind {
	case WorldSurface:
		return !IsAir(state)
	case OceanFloor:
		return c.BlocksMovement(state)
	case MotionBlocking:
		return c.BlocksMovement(state) || c.IsLiquid(state)
	case MotionBlockingNoLeaves:
		return (c.BlocksMovement(state) || c.IsLiquid(state)) && !c.IsLeaves(state)
	default:
		return false
	}
}
