// Package strataconf holds the process-wide configuration a strata
// Manager is constructed from: worker pool sizes, the active
// dimension's geometry and defaults, the world seed, and the base
// view distance tickets are issued at.
package strataconf

import (
	"fmt"
	"runtime"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/stage"
)

// BiomeSupplier samples the biome at a block-absolute column, the
// dimension-specific collaborator protochunk.Generator.GenerateBiomes
// ultimately calls into. Its implementation lives outside this
// subsystem.
type BiomeSupplier interface {
	BiomeAt(x, z int, seed int64) chunk.BiomeID
}

// Dimension bundles the geometry and defaults that are fixed for the
// lifetime of a world: height range, a default block, and how biomes
// are sampled. DefaultBlock is not read by any package in this module;
// new sections are always filled with chunk.Air.
type Dimension struct {
	Name          string
	Range         cube.Range
	DefaultBlock  chunk.BlockState
	BiomeSupplier BiomeSupplier
	Classifier    chunk.BlockClassifier
}

// Config is the plain struct a Manager is built from. Every field has
// a direct effect named below; there is no environment-variable or
// config-file loading in this package; a caller (e.g. an embedding
// server) is responsible for populating one however it
// likes and the only flag parsing in this module happens in main.
type Config struct {
	// WorldDir is the root directory region files are read from and
	// written to.
	WorldDir string
	// Dimension selects block height, minY, default block, and biome
	// supplier.
	Dimension Dimension
	// WorldSeed feeds random derivers and the biome mixer.
	WorldSeed int64
	// GeneratorThreads is the number of generator worker goroutines
	// (G). Defaults to runtime.GOMAXPROCS(0) if <= 0.
	GeneratorThreads int
	// IOReadThreads is the number of IO-read threads (I). regionio
	// currently serialises all disk access per region file regardless
	// of this value; it is carried here for a future multi-worker
	// split and validated so a caller can't configure zero.
	IOReadThreads int
	// ViewDistance sets the base ticket level new player tickets are
	// added at: FullChunkLevel + 1 - ViewDistance.
	ViewDistance int
}

// Validate checks Config for values that would make a Manager
// misbehave, filling in defaults for the pool-size fields.
func (c *Config) Validate() error {
	if c.WorldDir == "" {
		return fmt.Errorf("strataconf: WorldDir is required")
	}
	if c.Dimension.Classifier == nil {
		return fmt.Errorf("strataconf: Dimension.Classifier is required")
	}
	if c.Dimension.Range[1] <= c.Dimension.Range[0] {
		return fmt.Errorf("strataconf: Dimension.Range %v is empty or inverted", c.Dimension.Range)
	}
	if c.GeneratorThreads <= 0 {
		c.GeneratorThreads = runtime.GOMAXPROCS(0)
	}
	if c.IOReadThreads <= 0 {
		c.IOReadThreads = 1
	}
	if c.ViewDistance <= 0 {
		return fmt.Errorf("strataconf: ViewDistance must be positive, got %d", c.ViewDistance)
	}
	return nil
}

// BaseTicketLevel computes the ticket level a player's own chunk
// ticket is added at, from ViewDistance: FullChunkLevel + 1 -
// ViewDistance. A larger view distance produces a lower (more urgent)
// level, since the ticket must propagate further outward and still
// leave every chunk inside the view radius at Full.
func (c Config) BaseTicketLevel() int {
	return stage.FullChunkLevel + 1 - c.ViewDistance
}
