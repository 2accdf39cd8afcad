// Package protochunk implements the chunk-under-construction: a
// *chunk.Chunk tagged with its current stage, carrying the flags and
// structure-start bookkeeping generation needs, and the
// stage-advancement methods the scheduler's generator workers invoke.
package protochunk

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/gencache"
	"github.com/oriumgames/strata/stage"
)

// ProtoChunk is exclusively owned by the scheduler until it upgrades
// to Full. It is never shared between goroutines while "in flight":
// the scheduler hands ownership to exactly one generator worker at a
// time via a gencache.Cache.
type ProtoChunk struct {
	*chunk.Chunk

	Stage stage.Stage

	// Upgrading is set while a ProtoChunk is in the process of being
	// converted to Full, guarding against re-entrant stage tasks
	// racing the conversion.
	Upgrading bool
	// OldNoiseGeneration influences carver sea/lava levels for
	// chunks generated under a legacy noise settings version; carried
	// through unchanged once set at creation.
	OldNoiseGeneration bool

	StructureStarts map[StructureKey]StructureInstance
}

// New creates a fresh ProtoChunk at stage Empty, the state the IO
// worker produces when no region-file payload exists for pos.
func New(pos chunkpos.ChunkPos, rng cube.Range, classifier chunk.BlockClassifier, oldNoiseGeneration bool) *ProtoChunk {
	return &ProtoChunk{
		Chunk:              chunk.New(pos, rng, classifier),
		Stage:              stage.Empty,
		OldNoiseGeneration: oldNoiseGeneration,
		StructureStarts:    make(map[StructureKey]StructureInstance),
	}
}

// FromChunk wraps storage already populated by a region-file load. A
// region-file load normally produces a Full chunk directly, but a
// caller that needs to re-run a stage over loaded data — e.g. world
// upgrade tooling — uses this to re-enter the ProtoChunk state
// machine at an arbitrary stage.
func FromChunk(c *chunk.Chunk, at stage.Stage) *ProtoChunk {
	return &ProtoChunk{Chunk: c, Stage: at, StructureStarts: make(map[StructureKey]StructureInstance)}
}

// ErrStageMismatch is returned by a StepTo* method when the
// ProtoChunk's current stage doesn't match the stage the method
// advances from. The scheduler worker that receives it should abort
// rather than silently continue, since continuing risks a corrupt
// world.
type ErrStageMismatch struct {
	Want, Got stage.Stage
}

func (e ErrStageMismatch) Error() string {
	return fmt.Sprintf("protochunk: expected stage %v to advance, got %v", e.Want, e.Got)
}

func (p *ProtoChunk) assertStage(want stage.Stage) error {
	if p.Stage != want {
		return ErrStageMismatch{Want: want, Got: p.Stage}
	}
	return nil
}

// Generator bundles the external generation collaborators this
// subsystem does not implement itself (biome sampling, noise routers,
// surface rules, carvers, feature placement): each method mutates the
// centre chunk of cache in place and may read any chunk in cache's
// window. Implementations are supplied by the caller as "(seed,
// position) -> value" pure functions.
type Generator interface {
	GenerateBiomes(cache *gencache.Cache, seed int64) error
	GenerateNoise(cache *gencache.Cache, seed int64) error
	BuildSurface(cache *gencache.Cache, seed int64) error
	Carve(cache *gencache.Cache, proto *ProtoChunk, seed int64) error
	PlaceFeatures(cache *gencache.Cache, proto *ProtoChunk, seed int64) error
}

// StepToBiomes advances Empty -> Biomes.
func (p *ProtoChunk) StepToBiomes(g Generator, cache *gencache.Cache, seed int64) error {
	if err := p.assertStage(stage.Empty); err != nil {
		return err
	}
	if err := g.GenerateBiomes(cache, seed); err != nil {
		return fmt.Errorf("step to biomes: %w", err)
	}
	p.Stage = stage.Biomes
	return nil
}

// StepToNoise advances Biomes -> Noise.
func (p *ProtoChunk) StepToNoise(g Generator, cache *gencache.Cache, seed int64) error {
	if err := p.assertStage(stage.Biomes); err != nil {
		return err
	}
	if err := g.GenerateNoise(cache, seed); err != nil {
		return fmt.Errorf("step to noise: %w", err)
	}
	p.Stage = stage.Noise
	return nil
}

// StepToSurface advances Noise -> Surface.
func (p *ProtoChunk) StepToSurface(g Generator, cache *gencache.Cache, seed int64) error {
	if err := p.assertStage(stage.Noise); err != nil {
		return err
	}
	if err := g.BuildSurface(cache, seed); err != nil {
		return fmt.Errorf("step to surface: %w", err)
	}
	p.Stage = stage.Surface
	return nil
}

// StepToCarvers advances Surface -> Carvers, applying the carving
// mask to the centre chunk and recomputing any column the carver
// touched, since clearing blocks can change that column's heightmap.
func (p *ProtoChunk) StepToCarvers(g Generator, cache *gencache.Cache, seed int64) error {
	if err := p.assertStage(stage.Surface); err != nil {
		return err
	}
	if err := g.Carve(cache, p, seed); err != nil {
		return fmt.Errorf("step to carvers: %w", err)
	}
	touched := make(map[[2]int]struct{})
	for _, pp := range p.PostProcessQueue() {
		touched[[2]int{pp.LocalX, pp.LocalZ}] = struct{}{}
	}
	for col := range touched {
		p.RecomputeColumn(col[0], col[1])
	}
	p.Stage = stage.Carvers
	return nil
}

// StepToFeatures advances Carvers -> Features. Each structure
// reference this chunk holds is looked up through lookup before
// placement runs; the resolved starts are not stored on p or passed
// to g.
func (p *ProtoChunk) StepToFeatures(g Generator, cache *gencache.Cache, seed int64, lookup func(chunkpos.ChunkPos) (*ProtoChunk, bool)) error {
	if err := p.assertStage(stage.Carvers); err != nil {
		return err
	}
	for key, inst := range p.StructureStarts {
		if _, isRef := inst.Reference(); isRef {
			if _, ok := inst.Resolve(key, lookup); !ok {
				// Origin not loaded: the reference stays unresolved.
				// PlaceFeatures still runs and the stage still
				// advances, so this step is not repeated for it.
				continue
			}
		}
	}
	if err := g.PlaceFeatures(cache, p, seed); err != nil {
		return fmt.Errorf("step to features: %w", err)
	}
	p.Stage = stage.Features
	return nil
}

// UpgradeToFull converts a Features-stage ProtoChunk into a
// shared-owned chunk.SharedChunk, copying palettes into the final
// shared-owned representation and computing initial heightmaps from a
// full column scan.
func (p *ProtoChunk) UpgradeToFull() (*chunk.SharedChunk, error) {
	if err := p.assertStage(stage.Features); err != nil {
		return nil, err
	}
	if p.Upgrading {
		return nil, fmt.Errorf("protochunk: %v already upgrading", p.Pos)
	}
	p.Upgrading = true
	defer func() { p.Upgrading = false }()

	for x := 0; x < chunk.SectionSize; x++ {
		for z := 0; z < chunk.SectionSize; z++ {
			p.RecomputeColumn(x, z)
		}
	}
	p.Stage = stage.Full
	return chunk.NewSharedChunk(p.Chunk), nil
}
