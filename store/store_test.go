package store

import (
	"errors"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/protochunk"
)

type fakeClassifier struct{}

func (fakeClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (fakeClassifier) IsLiquid(chunk.BlockState) bool         { return false }
func (fakeClassifier) IsLeaves(chunk.BlockState) bool         { return false }

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(chunkpos.ChunkPos{X: 1, Z: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestPutProtoThenGet(t *testing.T) {
	s := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	p := protochunk.New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)

	h := s.PutProto(pos, p)
	defer h.Release()

	h2, err := s.Get(pos)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer h2.Release()

	proto, full := h2.Chunk()
	if proto != p || full != nil {
		t.Fatalf("Chunk() = %v, %v, want (%v, nil)", proto, full, p)
	}
}

func TestPromoteToFullReplacesRepresentation(t *testing.T) {
	s := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	p := protochunk.New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)
	h := s.PutProto(pos, p)
	defer h.Release()

	shared := chunk.NewSharedChunk(p.Chunk)
	if err := s.PromoteToFull(pos, shared); err != nil {
		t.Fatalf("PromoteToFull: %v", err)
	}

	h2, err := s.Get(pos)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer h2.Release()
	proto, full := h2.Chunk()
	if proto != nil || full != shared {
		t.Fatalf("Chunk() after promote = %v, %v, want (nil, %v)", proto, full, shared)
	}
}

func TestRequestUnloadWaitsForOutstandingLeases(t *testing.T) {
	s := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	p := protochunk.New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)
	h := s.PutProto(pos, p)

	h2, err := s.Get(pos)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := s.RequestUnload(pos); !errors.Is(err, ErrUnloading) {
		t.Fatalf("RequestUnload with leases outstanding = %v, want ErrUnloading", err)
	}

	select {
	case <-h2.Context().Done():
	default:
		t.Fatal("expected handle context to be cancelled once unload requested")
	}

	h.Release()
	h2.Release()

	if err := s.RequestUnload(pos); err != nil {
		t.Fatalf("RequestUnload after release: %v", err)
	}
	if _, err := s.Get(pos); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after unload = %v, want ErrNotFound", err)
	}
}

func TestPositionsReflectsLiveEntries(t *testing.T) {
	s := New()
	positions := []chunkpos.ChunkPos{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 0, Z: 1}}
	for _, pos := range positions {
		p := protochunk.New(pos, cube.Range{-64, 192}, fakeClassifier{}, false)
		s.PutProto(pos, p)
	}
	if s.Len() != len(positions) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(positions))
	}
	got := make(map[chunkpos.ChunkPos]bool)
	for _, p := range s.Positions() {
		got[p] = true
	}
	if len(got) != len(positions) {
		t.Fatalf("Positions() = %v, want %v", s.Positions(), positions)
	}
	for _, pos := range positions {
		if !got[pos] {
			t.Fatalf("Positions() missing %v", pos)
		}
	}
}
