package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/gencache"
	"github.com/oriumgames/strata/listener"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/stage"
	"github.com/oriumgames/strata/store"
	"github.com/oriumgames/strata/ticket"
)

type fakeClassifier struct{}

func (fakeClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (fakeClassifier) IsLiquid(chunk.BlockState) bool         { return false }
func (fakeClassifier) IsLeaves(chunk.BlockState) bool         { return false }

type fakeGenerator struct{}

func (fakeGenerator) GenerateBiomes(*gencache.Cache, int64) error { return nil }
func (fakeGenerator) GenerateNoise(*gencache.Cache, int64) error  { return nil }
func (fakeGenerator) BuildSurface(*gencache.Cache, int64) error   { return nil }
func (fakeGenerator) Carve(*gencache.Cache, *protochunk.ProtoChunk, int64) error {
	return nil
}
func (fakeGenerator) PlaceFeatures(*gencache.Cache, *protochunk.ProtoChunk, int64) error {
	return nil
}

type memorySource struct {
	mu    sync.Mutex
	saved map[chunkpos.ChunkPos]*protochunk.ProtoChunk
	rng   cube.Range
}

func newMemorySource(rng cube.Range) *memorySource {
	return &memorySource{saved: make(map[chunkpos.ChunkPos]*protochunk.ProtoChunk), rng: rng}
}

func (m *memorySource) Load(pos chunkpos.ChunkPos) (*protochunk.ProtoChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.saved[pos]; ok {
		return p, nil
	}
	return protochunk.New(pos, m.rng, fakeClassifier{}, false), nil
}

func (m *memorySource) Save(pos chunkpos.ChunkPos, proto *protochunk.ProtoChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[pos] = proto
	return nil
}

func TestSchedulerAdvancesChunkToFull(t *testing.T) {
	rng := cube.Range{-64, 192}
	st := store.New()
	tick := ticket.New()
	listen := listener.New()
	source := newMemorySource(rng)

	sched := New(Config{
		Range:         rng,
		Generator:     fakeGenerator{},
		Seed:          1,
		GeneratorPool: 2,
	}, st, tick, listen, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	sub := listen.Subscribe()
	defer sub.Close()

	if err := tick.AddTicket(pos, stage.FullChunkLevel, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Pos != pos {
			t.Fatalf("notified pos = %v, want %v", ev.Pos, pos)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chunk to reach Full")
	}

	reached, ok := sched.ReachedStage(pos)
	if !ok || reached != stage.Full {
		t.Fatalf("ReachedStage(pos) = %v, %v, want Full, true", reached, ok)
	}
}
