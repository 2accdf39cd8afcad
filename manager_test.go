package strata

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/gencache"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/strataconf"
)

type fakeClassifier struct{}

func (fakeClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (fakeClassifier) IsLiquid(chunk.BlockState) bool         { return false }
func (fakeClassifier) IsLeaves(chunk.BlockState) bool         { return false }

type noopGenerator struct{}

func (noopGenerator) GenerateBiomes(*gencache.Cache, int64) error { return nil }
func (noopGenerator) GenerateNoise(*gencache.Cache, int64) error  { return nil }
func (noopGenerator) BuildSurface(*gencache.Cache, int64) error   { return nil }
func (noopGenerator) Carve(*gencache.Cache, *protochunk.ProtoChunk, int64) error {
	return nil
}
func (noopGenerator) PlaceFeatures(*gencache.Cache, *protochunk.ProtoChunk, int64) error {
	return nil
}

func testConfig(t *testing.T) strataconf.Config {
	t.Helper()
	return strataconf.Config{
		WorldDir: t.TempDir(),
		Dimension: strataconf.Dimension{
			Name:       "overworld",
			Range:      cube.Range{-64, 320},
			Classifier: fakeClassifier{},
		},
		WorldSeed:    1,
		ViewDistance: 8,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ViewDistance = 0
	if _, err := New(cfg, noopGenerator{}, nil); err == nil {
		t.Fatal("New: want error for invalid config")
	}
}

func TestGetChunkMissingIsNotFull(t *testing.T) {
	m, err := New(testConfig(t), noopGenerator{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown()

	if _, ok := m.GetChunk(chunkpos.ChunkPos{X: 5, Z: 5}); ok {
		t.Fatal("GetChunk on an untracked position: want ok=false")
	}
}

func TestAddPlayerTicketUsesConfiguredViewDistance(t *testing.T) {
	m, err := New(testConfig(t), noopGenerator{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown()

	id := uuid.New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	if err := m.AddPlayerTicket(pos, id); err != nil {
		t.Fatalf("AddPlayerTicket: %v", err)
	}
	if got, want := m.cfg.BaseTicketLevel(), 33+1-8; got != want {
		t.Fatalf("BaseTicketLevel() = %d, want %d", got, want)
	}
}
