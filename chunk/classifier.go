package chunk

// BlockState is a runtime block-state id. The registry that assigns
// these ids lives outside this subsystem; this package only ever
// treats it as an opaque 16-bit value plus whatever a BlockClassifier
// tells it about one.
type BlockState uint16

// Air is the reserved state id for "no block" (every empty section
// behaves as if filled with Air).
const Air BlockState = 0

// BiomeID is an opaque biome registry id.
type BiomeID uint16

// BlockClassifier answers the predicates heightmaps are built from,
// without this package needing to know anything about the block
// registry. Implementations live outside this subsystem; tests use a
// trivial in-memory classifier.
type BlockClassifier interface {
	// BlocksMovement reports whether a standing entity cannot pass
	// through state (used for OCEAN_FLOOR / MOTION_BLOCKING).
	BlocksMovement(state BlockState) bool
	// IsLiquid reports whether state is a fluid (used for
	// MOTION_BLOCKING).
	IsLiquid(state BlockState) bool
	// IsLeaves reports whether state is tagged "leaves" (used for
	// MOTION_BLOCKING_NO_LEAVES).
	IsLeaves(state BlockState) bool
}

// IsAir reports whether state is the reserved Air value. Unlike the
// other predicates this needs no classifier: Air is a format-level
// concept (the value a fresh section is filled with), not a registry
// fact.
func IsAir(state BlockState) bool { return state == Air }
