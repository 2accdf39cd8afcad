// Package stage defines the ordered chunk generation stages, the
// level-to-stage bucketing, and the per-stage read/write radius and
// neighbour-dependency tables the scheduler dispatches against.
//
// Carvers is a first-class member of the sequence, not a Surface
// sub-step: it has its own read radius and dependency row, dispatched
// and waited on exactly like any other stage.
package stage

import "fmt"

// Stage is one of the ordered generation stages a chunk passes
// through on its way to Full. Ordering is total and transitions are
// monotonic: a chunk's stage only ever increases.
type Stage uint8

const (
	None Stage = iota
	Empty
	Biomes
	Noise
	Surface
	Carvers
	Features
	Full
)

var names = [...]string{"None", "Empty", "Biomes", "Noise", "Surface", "Carvers", "Features", "Full"}

func (s Stage) String() string {
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Valid reports whether s is one of the defined stages (excluding
// None, which represents "not present").
func (s Stage) Valid() bool {
	return s >= Empty && s <= Full
}

// Next returns the stage immediately after s, and false if s is
// already Full or not a valid stage.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s == Full {
		return s, false
	}
	return s + 1, true
}

// MaxLevel is the level at which a chunk carries no demand at all.
const MaxLevel = 46

// FullChunkLevel is the highest level at which a chunk must be Full.
const FullChunkLevel = 33

// LevelToStage buckets a level field value to the stage it demands,
// with the Carvers row inserted between Surface and Features. Levels
// at or above MaxLevel demand nothing; the second return value is
// false in that case.
func LevelToStage(level int) (Stage, bool) {
	switch {
	case level <= FullChunkLevel:
		return Full, true
	case level <= 35:
		return Features, true
	case level == 36:
		return Carvers, true
	case level == 37:
		return Surface, true
	case level == 38:
		return Noise, true
	case level == 39:
		return Biomes, true
	case level <= MaxLevel-1:
		return Empty, true
	default:
		return None, false
	}
}

// Dependency describes, for one stage, the read radius R, the write
// radius W, and a function from Chebyshev distance to the minimum
// stage required of a neighbour at that distance.
type Dependency struct {
	ReadRadius  int
	WriteRadius int
	// MinNeighborStage returns the minimum stage a neighbour at the
	// given Chebyshev distance must have reached before this stage
	// may run on the centre chunk. Distances beyond ReadRadius are
	// never queried.
	MinNeighborStage func(distance int) Stage
}

// constFn returns a Dependency.MinNeighborStage that always answers s.
func constFn(s Stage) func(int) Stage { return func(int) Stage { return s } }

// table is indexed by Stage; Empty and None have no entry since the
// scheduler special-cases Empty (load-or-synthesise, no read window)
// and None never gets dispatched.
var table = map[Stage]Dependency{
	Biomes: {
		ReadRadius:  0,
		WriteRadius: 0,
		MinNeighborStage: constFn(Empty),
	},
	Noise: {
		ReadRadius:  1,
		WriteRadius: 0,
		MinNeighborStage: func(d int) Stage {
			if d <= 1 {
				return Biomes
			}
			return Empty
		},
	},
	Surface: {
		ReadRadius:  1,
		WriteRadius: 0,
		MinNeighborStage: func(d int) Stage {
			switch d {
			case 0:
				return Noise
			case 1:
				return Biomes
			default:
				return Empty
			}
		},
	},
	Carvers: {
		ReadRadius:  1,
		WriteRadius: 0,
		MinNeighborStage: func(d int) Stage {
			switch d {
			case 0:
				return Surface
			case 1:
				return Noise
			default:
				return Empty
			}
		},
	},
	Features: {
		ReadRadius:  2,
		WriteRadius: 1,
		MinNeighborStage: func(d int) Stage {
			switch {
			case d <= 1:
				return Carvers
			case d == 2:
				return Biomes
			default:
				return Empty
			}
		},
	},
	Full: {
		ReadRadius:  3,
		WriteRadius: 0,
		MinNeighborStage: func(d int) Stage {
			switch {
			case d <= 1:
				return Features
			case d == 2:
				return Surface
			case d == 3:
				return Biomes
			default:
				return Empty
			}
		},
	},
}

// Dependencies returns the radius/dependency table entry for s, and
// false for Empty/None which have none (Empty always succeeds;
// callers must special-case it before consulting this table).
func Dependencies(s Stage) (Dependency, bool) {
	d, ok := table[s]
	return d, ok
}

// Order lists every dispatchable stage (Empty..Full) in ascending
// order, the order a single chunk's tasks must complete in.
func Order() []Stage {
	return []Stage{Empty, Biomes, Noise, Surface, Carvers, Features, Full}
}
