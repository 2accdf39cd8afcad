// Package ticket implements player tickets and the bounded-BFS level
// field they drive. A chunk's level is the minimum
// over every ticket placed directly on it and every propagated
// contribution from a neighbour's ticket (propagation adds 1 per
// Chebyshev step); lower levels demand more advanced generation
// stages (stage.LevelToStage).
package ticket

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/stage"
)

// ErrArgument is returned when a caller supplies a level outside
// [0, MaxLevel-1].
var ErrArgument = fmt.Errorf("ticket: level out of range [0, %d]", stage.MaxLevel-1)

// Snapshot is an immutable copy of the level field at one point in
// time, published to the scheduler over a single-slot, overwrite
// channel: the scheduler only needs the latest snapshot, so
// intermediate ones may be dropped.
type Snapshot struct {
	Levels map[chunkpos.ChunkPos]int8
}

// Level returns the level of pos in the snapshot, or stage.MaxLevel
// if pos carries no demand.
func (s Snapshot) Level(pos chunkpos.ChunkPos) int {
	if l, ok := s.Levels[pos]; ok {
		return int(l)
	}
	return stage.MaxLevel
}

type heapItem struct {
	pos   chunkpos.ChunkPos
	level int8
}

type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].level < h[j].level }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Propagator owns the level field and the ticket multiset that drives
// it, and republishes a Snapshot every time either changes.
type Propagator struct {
	mu       sync.Mutex
	posLevel map[chunkpos.ChunkPos]int8
	tickets  map[chunkpos.ChunkPos]map[uuid.UUID]int8

	snapshotCh chan Snapshot // capacity 1, overwritten on send
}

// New returns an empty propagator.
func New() *Propagator {
	p := &Propagator{
		posLevel:   make(map[chunkpos.ChunkPos]int8),
		tickets:    make(map[chunkpos.ChunkPos]map[uuid.UUID]int8),
		snapshotCh: make(chan Snapshot, 1),
	}
	return p
}

// Snapshots returns the channel the scheduler receives level-field
// snapshots on.
func (p *Propagator) Snapshots() <-chan Snapshot { return p.snapshotCh }

func (p *Propagator) publish() {
	snap := Snapshot{Levels: make(map[chunkpos.ChunkPos]int8, len(p.posLevel))}
	for k, v := range p.posLevel {
		snap.Levels[k] = v
	}
	// Non-blocking overwrite: drop a stale pending snapshot if the
	// scheduler hasn't drained it yet.
	select {
	case <-p.snapshotCh:
	default:
	}
	p.snapshotCh <- snap
}

func (p *Propagator) levelOf(pos chunkpos.ChunkPos) int8 {
	if l, ok := p.posLevel[pos]; ok {
		return l
	}
	return stage.MaxLevel
}

// AddTicket records a new (pos, level, id) ticket and relaxes the
// level field outward from pos if it lowered pos's own level.
func (p *Propagator) AddTicket(pos chunkpos.ChunkPos, level int, id uuid.UUID) error {
	if level < 0 || level >= stage.MaxLevel {
		return ErrArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tickets[pos] == nil {
		p.tickets[pos] = make(map[uuid.UUID]int8)
	}
	p.tickets[pos][id] = int8(level)

	if int8(level) < p.levelOf(pos) {
		p.posLevel[pos] = int8(level)
		h := &minHeap{{pos: pos, level: int8(level)}}
		p.relax(h)
	}
	p.publish()
	return nil
}

// RemoveTicket removes the (pos, id) ticket, validating level against
// the stored value, and, if it was the position's driving ticket and
// no equally good ticket remains, demotes and re-seeds the affected
// ring.
func (p *Propagator) RemoveTicket(pos chunkpos.ChunkPos, level int, id uuid.UUID) error {
	if level < 0 || level >= stage.MaxLevel {
		return ErrArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.tickets[pos]
	if set == nil {
		return nil
	}
	stored, ok := set[id]
	if !ok || int(stored) != level {
		return nil
	}
	delete(set, id)
	if len(set) == 0 {
		delete(p.tickets, pos)
	}

	// source is the highest remaining ticket level directly at pos, or
	// -1 if none remain.
	source := int8(-1)
	for _, lv := range p.tickets[pos] {
		if lv > source {
			source = lv
		}
	}

	current := p.levelOf(pos)
	if int8(level) == current && source != int8(level) {
		p.demoteAndReseed(pos, level)
	}
	p.publish()
	return nil
}

// demoteAndReseed performs a ring-limited recompute: it clears every
// level-field entry within radius (MaxLevel-level-1) of pos that
// depended on level as its source, then re-seeds a min-heap relax
// from the ring's boundary and from every surviving ticket inside it.
func (p *Propagator) demoteAndReseed(pos chunkpos.ChunkPos, level int) {
	radius := stage.MaxLevel - level - 1
	if radius < 0 {
		radius = 0
	}
	affected := chunkpos.Window(pos, radius)

	for _, q := range affected {
		lv, ok := p.posLevel[q]
		if !ok {
			continue
		}
		if int(lv) == level+chunkpos.Chebyshev(q, pos) {
			delete(p.posLevel, q)
		}
	}

	h := &minHeap{}
	boundary := chunkpos.Ring(pos, radius)
	for _, q := range boundary {
		if lv, ok := p.posLevel[q]; ok {
			*h = append(*h, heapItem{pos: q, level: lv})
		}
	}
	for _, q := range affected {
		ts := p.tickets[q]
		if len(ts) == 0 {
			continue
		}
		best := int8(stage.MaxLevel)
		for _, lv := range ts {
			if lv < best {
				best = lv
			}
		}
		if best < p.levelOf(q) {
			p.posLevel[q] = best
		}
		*h = append(*h, heapItem{pos: q, level: p.levelOf(q)})
	}
	heap.Init(h)
	p.relax(h)
}

// relax drains a min-heap seeded with (pos, level) candidates,
// popping the globally-lowest level each iteration and proposing
// level+1 to every Chebyshev neighbour.
func (p *Propagator) relax(h *minHeap) {
	heap.Init(h)
	for h.Len() > 0 {
		it := heap.Pop(h).(heapItem)
		if it.level > p.levelOf(it.pos) {
			// Stale entry: a better path to it.pos was already found.
			continue
		}
		if it.level >= stage.MaxLevel-1 {
			continue
		}
		proposed := it.level + 1
		for _, n := range chunkpos.Neighbors(it.pos) {
			if proposed < p.levelOf(n) {
				p.posLevel[n] = proposed
				heap.Push(h, heapItem{pos: n, level: proposed})
			}
		}
	}
}

// Level returns the current level of pos, or stage.MaxLevel if it
// carries no demand.
func (p *Propagator) Level(pos chunkpos.ChunkPos) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.levelOf(pos))
}

// Snapshot returns an immediate copy of the current level field,
// bypassing the channel (used by tests and by callers that need a
// synchronous read, e.g. diagnostics).
func (p *Propagator) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := Snapshot{Levels: make(map[chunkpos.ChunkPos]int8, len(p.posLevel))}
	for k, v := range p.posLevel {
		snap.Levels[k] = v
	}
	return snap
}
