package ticket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/stage"
)

func TestAddTicketSetsOwnLevel(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	if err := p.AddTicket(pos, 31, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if got := p.Level(pos); got != 31 {
		t.Fatalf("Level(pos) = %d, want 31", got)
	}
}

func TestAddTicketPropagatesByChebyshevDistance(t *testing.T) {
	p := New()
	centre := chunkpos.ChunkPos{X: 0, Z: 0}
	if err := p.AddTicket(centre, 30, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}

	cases := []struct {
		pos  chunkpos.ChunkPos
		want int
	}{
		{chunkpos.ChunkPos{X: 0, Z: 0}, 30},
		{chunkpos.ChunkPos{X: 1, Z: 0}, 31},
		{chunkpos.ChunkPos{X: 2, Z: 2}, 32},
		{chunkpos.ChunkPos{X: 5, Z: 0}, 35},
	}
	for _, tc := range cases {
		if got := p.Level(tc.pos); got != tc.want {
			t.Errorf("Level(%v) = %d, want %d", tc.pos, got, tc.want)
		}
	}
}

func TestAddTicketNeverRaisesALowerExistingLevel(t *testing.T) {
	p := New()
	centre := chunkpos.ChunkPos{X: 0, Z: 0}
	near := chunkpos.ChunkPos{X: 1, Z: 0}

	if err := p.AddTicket(near, 20, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := p.AddTicket(centre, 30, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	// near already had a better (lower) level from its own ticket;
	// propagation from centre (which would offer 31) must not raise it.
	if got := p.Level(near); got != 20 {
		t.Fatalf("Level(near) = %d, want 20 (unchanged)", got)
	}
}

func TestRemoveTicketRestoresPropagationFromRemainingSource(t *testing.T) {
	p := New()
	a := chunkpos.ChunkPos{X: 0, Z: 0}
	b := chunkpos.ChunkPos{X: 10, Z: 0}
	mid := chunkpos.ChunkPos{X: 5, Z: 0}

	idA := uuid.New()
	idB := uuid.New()
	if err := p.AddTicket(a, 20, idA); err != nil {
		t.Fatalf("AddTicket a: %v", err)
	}
	if err := p.AddTicket(b, 20, idB); err != nil {
		t.Fatalf("AddTicket b: %v", err)
	}
	// mid is 5 away from both: level should be 25 either way.
	if got := p.Level(mid); got != 25 {
		t.Fatalf("Level(mid) before removal = %d, want 25", got)
	}

	if err := p.RemoveTicket(a, 20, idA); err != nil {
		t.Fatalf("RemoveTicket: %v", err)
	}
	// b's ticket alone still reaches mid at distance 5 -> level 25.
	if got := p.Level(mid); got != 25 {
		t.Fatalf("Level(mid) after removing a = %d, want 25 (still sourced from b)", got)
	}
	if got := p.Level(a); got != 30 {
		t.Fatalf("Level(a) after removing its own ticket = %d, want 30 (from b, distance 10)", got)
	}
}

func TestRemoveTicketDropsLevelWhenNoSourceRemains(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	neighbor := chunkpos.ChunkPos{X: 1, Z: 0}
	id := uuid.New()

	if err := p.AddTicket(pos, 10, id); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if got := p.Level(neighbor); got != 11 {
		t.Fatalf("Level(neighbor) = %d, want 11", got)
	}

	if err := p.RemoveTicket(pos, 10, id); err != nil {
		t.Fatalf("RemoveTicket: %v", err)
	}
	if got := p.Level(pos); got != stage.MaxLevel {
		t.Fatalf("Level(pos) after removing sole ticket = %d, want MaxLevel", got)
	}
	if got := p.Level(neighbor); got != stage.MaxLevel {
		t.Fatalf("Level(neighbor) after removing sole source = %d, want MaxLevel", got)
	}
}

func TestRemoveTicketNoOpWhenLevelNotDriving(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	idLow := uuid.New()
	idHigh := uuid.New()

	if err := p.AddTicket(pos, 10, idLow); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := p.AddTicket(pos, 20, idHigh); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if got := p.Level(pos); got != 10 {
		t.Fatalf("Level(pos) = %d, want 10", got)
	}

	// Removing the non-driving (higher) ticket must not touch pos_level.
	if err := p.RemoveTicket(pos, 20, idHigh); err != nil {
		t.Fatalf("RemoveTicket: %v", err)
	}
	if got := p.Level(pos); got != 10 {
		t.Fatalf("Level(pos) after removing non-driving ticket = %d, want 10", got)
	}
}

func TestAddTicketRejectsOutOfRangeLevel(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	if err := p.AddTicket(pos, -1, uuid.New()); err == nil {
		t.Fatal("expected ErrArgument for negative level")
	}
	if err := p.AddTicket(pos, stage.MaxLevel, uuid.New()); err == nil {
		t.Fatal("expected ErrArgument for level == MaxLevel")
	}
}

func TestSnapshotPublishedOnChange(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 2, Z: 2}
	if err := p.AddTicket(pos, 15, uuid.New()); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	select {
	case snap := <-p.Snapshots():
		if snap.Level(pos) != 15 {
			t.Fatalf("snapshot level = %d, want 15", snap.Level(pos))
		}
	default:
		t.Fatal("expected a snapshot to be available")
	}
}

func TestSnapshotChannelOverwritesRatherThanBlocks(t *testing.T) {
	p := New()
	pos := chunkpos.ChunkPos{X: 0, Z: 0}
	for i := 0; i < 5; i++ {
		if err := p.AddTicket(chunkpos.ChunkPos{X: int32(i), Z: 0}, 40, uuid.New()); err != nil {
			t.Fatalf("AddTicket %d: %v", i, err)
		}
	}
	// Never drained the channel above; publishing must not have blocked
	// (New() uses a capacity-1 channel with drain-then-send semantics).
	select {
	case <-p.Snapshots():
	default:
		t.Fatal("expected a snapshot to be pending")
	}
	_ = pos
}
