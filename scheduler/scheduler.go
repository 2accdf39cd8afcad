// Package scheduler implements the dependency-aware dispatch loop:
// it consumes level-field snapshots from a ticket.Propagator, decides
// which chunk needs to advance to which
// stage next, checks that every neighbour the target stage reads from
// has itself reached a sufficient stage, and hands ready work to a
// pool of generator workers. It also drives the inverse direction:
// when a chunk's level rises past MaxLevel (no demand remains), it
// saves and evicts it from the store.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/gencache"
	"github.com/oriumgames/strata/listener"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/stage"
	"github.com/oriumgames/strata/store"
	"github.com/oriumgames/strata/ticket"
)

// ChunkSource is how the scheduler reaches persistent storage. Load
// must never return (nil, nil): if no payload exists for pos (or it's
// corrupt), implementations synthesize a fresh Empty-stage ProtoChunk
// instead of failing.
type ChunkSource interface {
	Load(pos chunkpos.ChunkPos) (*protochunk.ProtoChunk, error)
	Save(pos chunkpos.ChunkPos, proto *protochunk.ProtoChunk) error
}

// Config bundles the construction-time parameters a Scheduler needs
// beyond its collaborators (store, propagator, listener registry,
// chunk source), all supplied separately to New.
type Config struct {
	Range         cube.Range
	Generator     protochunk.Generator
	Seed          int64
	GeneratorPool int
	Logger        *log.Logger
}

// task represents advancing the chunk at pos from its current stage
// to the next one, queued with the level that drove the decision so
// the priority queue can order (level ASC, stage ASC): the chunks
// with the most urgent demand are dispatched first. window holds the
// (2*WriteRadius+1)^2 set of positions the step may write to (always
// at least {pos}) and is exactly what gets marked and later cleared
// in the occupied set.
type task struct {
	pos    chunkpos.ChunkPos
	to     stage.Stage
	level  int8
	window []chunkpos.ChunkPos
	index  int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].level != q[j].level {
		return q[i].level < q[j].level
	}
	return q[i].to < q[j].to
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *taskQueue) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

type taskResult struct {
	pos    chunkpos.ChunkPos
	to     stage.Stage
	window []chunkpos.ChunkPos
	err    error
}

type loadResult struct {
	pos   chunkpos.ChunkPos
	proto *protochunk.ProtoChunk
	err   error
}

// Scheduler owns the dispatch loop. Construct with New and run it on
// a dedicated goroutine via Run; it exits when ctx is cancelled.
type Scheduler struct {
	cfg    Config
	store  *store.Store
	tick   *ticket.Propagator
	listen *listener.Registry
	source ChunkSource
	log    *log.Logger

	mu       sync.Mutex
	levels   map[chunkpos.ChunkPos]int8
	reached  map[chunkpos.ChunkPos]stage.Stage
	occupied map[chunkpos.ChunkPos]bool
	pending  map[chunkpos.ChunkPos]bool
	loading  map[chunkpos.ChunkPos]bool
	queue    taskQueue

	taskCh     chan *task
	doneCh     chan taskResult
	loadCh     chan chunkpos.ChunkPos
	loadDoneCh chan loadResult
	unloadCh   chan chunkpos.ChunkPos
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New returns a Scheduler wired to its collaborators. Call Run to
// start the dispatch loop.
func New(cfg Config, st *store.Store, tick *ticket.Propagator, listen *listener.Registry, source ChunkSource) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		store:      st,
		tick:       tick,
		listen:     listen,
		source:     source,
		log:        logger,
		levels:     make(map[chunkpos.ChunkPos]int8),
		reached:    make(map[chunkpos.ChunkPos]stage.Stage),
		occupied:   make(map[chunkpos.ChunkPos]bool),
		pending:    make(map[chunkpos.ChunkPos]bool),
		loading:    make(map[chunkpos.ChunkPos]bool),
		taskCh:     make(chan *task, 256),
		doneCh:     make(chan taskResult, 256),
		loadCh:     make(chan chunkpos.ChunkPos, 256),
		loadDoneCh: make(chan loadResult, 256),
		unloadCh:   make(chan chunkpos.ChunkPos, 256),
		stopCh:     make(chan struct{}),
	}
}

// Run starts the worker pools and the dispatch loop, blocking until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.startWorkers()
	for {
		select {
		case <-ctx.Done():
			s.stopWorkers()
			return
		case snap := <-s.tick.Snapshots():
			s.applySnapshot(snap)
			s.dispatchReady()
		case lr := <-s.loadDoneCh:
			s.handleLoadResult(lr)
			s.dispatchReady()
		case res := <-s.doneCh:
			s.handleStepResult(res)
			s.dispatchReady()
		}
	}
}

// ReachedStage reports the highest stage the chunk at pos has
// completed, for diagnostics and the store-backed public API.
func (s *Scheduler) ReachedStage(pos chunkpos.ChunkPos) (stage.Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.reached[pos]
	return st, ok
}

func (s *Scheduler) startWorkers() {
	n := s.cfg.GeneratorPool
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.generatorWorker()
	}
	s.wg.Add(1)
	go s.ioWorker()
	s.wg.Add(1)
	go s.unloadWorker()
}

func (s *Scheduler) stopWorkers() {
	close(s.stopCh)
	close(s.taskCh)
	close(s.loadCh)
	close(s.unloadCh)
	s.wg.Wait()
}

// applySnapshot replaces the scheduler's cached level field and
// schedules an unload for any position that dropped out of it or
// whose level rose to MaxLevel: once nothing demands a chunk it
// becomes eligible for unload.
func (s *Scheduler) applySnapshot(snap ticket.Snapshot) {
	s.mu.Lock()
	prev := s.levels
	next := make(map[chunkpos.ChunkPos]int8, len(snap.Levels))
	for k, v := range snap.Levels {
		next[k] = v
	}
	s.levels = next
	s.mu.Unlock()

	for pos := range prev {
		if lvl, ok := next[pos]; ok && int(lvl) < stage.MaxLevel {
			continue
		}
		s.scheduleUnload(pos)
	}
}

// dispatchReady scans the current level field and, for every position
// that still needs to advance and isn't already in flight, checks
// whether its next stage's neighbour dependencies are satisfied and
// its write window is free; if so it's queued, and the queue is
// drained into the worker pool as capacity allows.
func (s *Scheduler) dispatchReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos, level := range s.levels {
		if int(level) >= stage.MaxLevel {
			continue
		}
		target, ok := stage.LevelToStage(int(level))
		if !ok {
			continue
		}
		if s.pending[pos] {
			continue
		}
		reached, loaded := s.reached[pos]
		if !loaded {
			s.ensureLoadingLocked(pos)
			continue
		}
		if reached >= target {
			continue
		}
		next, ok := reached.Next()
		if !ok {
			continue
		}
		dep, _ := stage.Dependencies(next)
		window := chunkpos.Window(pos, dep.WriteRadius)
		if s.windowOccupiedLocked(window) {
			continue
		}
		if !s.dependencySatisfiedLocked(pos, next) {
			continue
		}
		s.pending[pos] = true
		s.markOccupiedLocked(window)
		heap.Push(&s.queue, &task{pos: pos, to: next, level: level, window: window})
	}
	s.drainQueueLocked()
}

// windowOccupiedLocked reports whether any position in window is
// already claimed by an in-flight task's write window. Callers must
// hold s.mu.
func (s *Scheduler) windowOccupiedLocked(window []chunkpos.ChunkPos) bool {
	for _, q := range window {
		if s.occupied[q] {
			return true
		}
	}
	return false
}

// markOccupiedLocked claims every position in window for the
// duration of the task it belongs to, from the moment it's queued
// until handleStepResult releases it. Callers must hold s.mu.
func (s *Scheduler) markOccupiedLocked(window []chunkpos.ChunkPos) {
	for _, q := range window {
		s.occupied[q] = true
	}
}

// dependencySatisfiedLocked checks stage.Dependencies(to) against
// every neighbour in the target stage's read window, requesting a
// load for any neighbour not yet tracked. Callers must hold s.mu.
func (s *Scheduler) dependencySatisfiedLocked(pos chunkpos.ChunkPos, to stage.Stage) bool {
	dep, ok := stage.Dependencies(to)
	if !ok {
		return true
	}
	satisfied := true
	for _, q := range chunkpos.Window(pos, dep.ReadRadius) {
		d := chunkpos.Chebyshev(pos, q)
		want := dep.MinNeighborStage(d)
		got, loaded := s.reached[q]
		if !loaded {
			s.ensureLoadingLocked(q)
			satisfied = false
			continue
		}
		if got < want {
			satisfied = false
		}
	}
	return satisfied
}

func (s *Scheduler) ensureLoadingLocked(pos chunkpos.ChunkPos) {
	if s.loading[pos] {
		return
	}
	select {
	case s.loadCh <- pos:
		s.loading[pos] = true
	default:
		// Load queue momentarily full; the next snapshot or result
		// will retry.
	}
}

func (s *Scheduler) drainQueueLocked() {
	for s.queue.Len() > 0 {
		t := s.queue[0]
		select {
		case s.taskCh <- t:
			heap.Pop(&s.queue)
			delete(s.pending, t.pos)
		default:
			return
		}
	}
}

func (s *Scheduler) handleLoadResult(lr loadResult) {
	s.mu.Lock()
	delete(s.loading, lr.pos)
	s.mu.Unlock()

	if lr.err != nil {
		s.log.Printf("scheduler: load %v: %v", lr.pos, lr.err)
		return
	}
	h := s.store.PutProto(lr.pos, lr.proto)
	h.Release()
	if lr.proto.Stage == stage.Full {
		shared := chunk.NewSharedChunk(lr.proto.Chunk)
		if err := s.store.PromoteToFull(lr.pos, shared); err == nil {
			s.listen.Notify(lr.pos, shared)
		}
	}

	s.mu.Lock()
	s.reached[lr.pos] = lr.proto.Stage
	s.mu.Unlock()
}

func (s *Scheduler) handleStepResult(res taskResult) {
	s.mu.Lock()
	for _, q := range res.window {
		delete(s.occupied, q)
	}
	if res.err == nil {
		s.reached[res.pos] = res.to
	} else {
		s.log.Printf("scheduler: advance %v to %v: %v", res.pos, res.to, res.err)
	}
	s.mu.Unlock()
}

func (s *Scheduler) generatorWorker() {
	defer s.wg.Done()
	for t := range s.taskCh {
		res := s.runTask(t)
		select {
		case s.doneCh <- res:
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) ioWorker() {
	defer s.wg.Done()
	for pos := range s.loadCh {
		proto, err := s.source.Load(pos)
		select {
		case s.loadDoneCh <- loadResult{pos: pos, proto: proto, err: err}:
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) unloadWorker() {
	defer s.wg.Done()
	for pos := range s.unloadCh {
		s.performUnload(pos)
	}
}

func (s *Scheduler) scheduleUnload(pos chunkpos.ChunkPos) {
	select {
	case s.unloadCh <- pos:
	default:
		// Unload queue momentarily full; it'll be reconsidered on the
		// next snapshot that still shows no demand for pos.
	}
}

// performUnload persists whatever representation pos currently holds,
// including a chunk still mid-generation (partial state is saved, not
// dropped), and then asks the store to evict it. If leases are still
// outstanding the store refuses and this is a no-op; a later snapshot
// will retry.
func (s *Scheduler) performUnload(pos chunkpos.ChunkPos) {
	h, err := s.store.Get(pos)
	if err != nil {
		return
	}
	proto, full := h.Chunk()
	h.Release()

	var saveErr error
	switch {
	case proto != nil:
		saveErr = s.source.Save(pos, proto)
	case full != nil:
		full.Read(func(c *chunk.Chunk) {
			saveErr = s.source.Save(pos, protochunk.FromChunk(c, stage.Full))
		})
	default:
		return
	}
	if saveErr != nil {
		s.log.Printf("scheduler: save %v before unload: %v", pos, saveErr)
		return
	}
	if err := s.store.RequestUnload(pos); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.reached, pos)
	delete(s.levels, pos)
	s.mu.Unlock()
}

// runTask builds the generation window for t and runs the
// corresponding protochunk.ProtoChunk step, promoting to Full and
// notifying listeners when t.to is stage.Full.
func (s *Scheduler) runTask(t *task) taskResult {
	h, err := s.store.Get(t.pos)
	if err != nil {
		return taskResult{pos: t.pos, to: t.to, window: t.window, err: fmt.Errorf("scheduler: run task %v: %w", t.pos, err)}
	}
	proto, _ := h.Chunk()
	h.Release()
	if proto == nil {
		return taskResult{pos: t.pos, to: t.to, window: t.window, err: fmt.Errorf("scheduler: %v has no proto chunk to advance", t.pos)}
	}

	dep, hasDep := stage.Dependencies(t.to)
	var cache *gencache.Cache
	if hasDep {
		chunks := make(map[chunkpos.ChunkPos]*chunk.Chunk)
		for _, q := range chunkpos.Window(t.pos, dep.ReadRadius) {
			qh, err := s.store.Get(q)
			if err != nil {
				return taskResult{pos: t.pos, to: t.to, window: t.window, err: fmt.Errorf("scheduler: window for %v missing %v: %w", t.pos, q, err)}
			}
			qProto, qFull := qh.Chunk()
			qh.Release()
			switch {
			case qProto != nil:
				chunks[q] = qProto.Chunk
			case qFull != nil:
				qFull.Read(func(c *chunk.Chunk) { chunks[q] = c })
			default:
				return taskResult{pos: t.pos, to: t.to, window: t.window, err: fmt.Errorf("scheduler: window for %v empty at %v", t.pos, q)}
			}
		}
		cache, err = gencache.New(t.pos, dep.ReadRadius, chunks)
		if err != nil {
			return taskResult{pos: t.pos, to: t.to, window: t.window, err: fmt.Errorf("scheduler: build window for %v: %w", t.pos, err)}
		}
	}

	switch t.to {
	case stage.Biomes:
		err = proto.StepToBiomes(s.cfg.Generator, cache, s.cfg.Seed)
	case stage.Noise:
		err = proto.StepToNoise(s.cfg.Generator, cache, s.cfg.Seed)
	case stage.Surface:
		err = proto.StepToSurface(s.cfg.Generator, cache, s.cfg.Seed)
	case stage.Carvers:
		err = proto.StepToCarvers(s.cfg.Generator, cache, s.cfg.Seed)
	case stage.Features:
		err = proto.StepToFeatures(s.cfg.Generator, cache, s.cfg.Seed, s.lookupProto)
	case stage.Full:
		var shared *chunk.SharedChunk
		shared, err = proto.UpgradeToFull()
		if err == nil {
			if perr := s.store.PromoteToFull(t.pos, shared); perr != nil {
				err = perr
			} else {
				s.mu.Lock()
				s.reached[t.pos] = stage.Full
				s.mu.Unlock()
				s.listen.Notify(t.pos, shared)
			}
		}
	default:
		err = fmt.Errorf("scheduler: unexpected target stage %v", t.to)
	}
	return taskResult{pos: t.pos, to: t.to, window: t.window, err: err}
}

func (s *Scheduler) lookupProto(pos chunkpos.ChunkPos) (*protochunk.ProtoChunk, bool) {
	h, err := s.store.Get(pos)
	if err != nil {
		return nil, false
	}
	proto, _ := h.Chunk()
	h.Release()
	if proto == nil {
		return nil, false
	}
	return proto, true
}
