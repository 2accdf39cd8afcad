// Package store implements the sharded concurrent chunk map chunk
// lifecycle management is built on: every in-memory chunk, whether
// still a *protochunk.ProtoChunk under exclusive scheduler ownership
// or promoted to a *chunk.SharedChunk, lives in exactly one shard
// keyed by its position, guarded by that shard's own lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/protochunk"
)

// ErrNotFound is returned when no entry exists for a position. It
// wraps leveldb.ErrNotFound so callers already checking against that
// sentinel with errors.Is keep working unchanged.
var ErrNotFound = fmt.Errorf("store: %w", leveldb.ErrNotFound)

// ErrUnloading is returned by Get when an entry has already been
// marked for eviction; the caller should treat the chunk as absent
// and, if it still needs it, re-request it from the scheduler.
var ErrUnloading = errors.New("store: entry is unloading")

const shardCount = 64 // shardFor picks a shard as hash % shardCount

type entry struct {
	mu     sync.Mutex
	proto  *protochunk.ProtoChunk
	full   *chunk.SharedChunk
	leases int

	unloading bool
	cancel    context.CancelFunc
	ctx       context.Context
}

type shard struct {
	mu      sync.RWMutex
	entries map[chunkpos.ChunkPos]*entry
}

// Store is a sharded map of ChunkPos to chunk entries. All methods are
// safe for concurrent use.
type Store struct {
	shards [shardCount]*shard
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[chunkpos.ChunkPos]*entry)}
	}
	return s
}

func (s *Store) shardFor(pos chunkpos.ChunkPos) *shard {
	h := xxhash.Sum64String(fmt.Sprintf("%d,%d", pos.X, pos.Z))
	return s.shards[h%shardCount]
}

// Handle is a leased, revocable reference to a chunk entry. A
// Handle's Context is cancelled when the store decides to evict the
// underlying entry; holders may keep using the chunk they already
// retrieved, but must call Release so the store can tell when it is
// actually safe to unload.
type Handle struct {
	pos   chunkpos.ChunkPos
	entry *entry
	store *Store

	released bool
}

// Context is cancelled when the store begins evicting this entry. A
// long-lived reader should select on it and re-fetch if it needs the
// chunk again afterward.
func (h *Handle) Context() context.Context { return h.entry.ctx }

// Release decrements the entry's lease count. It must be called
// exactly once per Handle obtained from Get or Put.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	e := h.entry
	e.mu.Lock()
	e.leases--
	e.mu.Unlock()
}

// PutProto inserts or replaces a ProtoChunk under exclusive scheduler
// ownership, and returns a Handle the caller must Release.
func (s *Store) PutProto(pos chunkpos.ChunkPos, p *protochunk.ProtoChunk) *Handle {
	sh := s.shardFor(pos)
	sh.mu.Lock()
	e, ok := sh.entries[pos]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		e = &entry{ctx: ctx, cancel: cancel}
		sh.entries[pos] = e
	}
	sh.mu.Unlock()

	e.mu.Lock()
	e.proto = p
	e.full = nil
	e.leases++
	e.mu.Unlock()
	return &Handle{pos: pos, entry: e, store: s}
}

// PromoteToFull replaces a ProtoChunk entry with its Full
// representation once protochunk.ProtoChunk.UpgradeToFull succeeds.
// If pos has no entry (the entry was evicted mid-upgrade) it changes
// nothing and returns an error wrapping ErrNotFound.
func (s *Store) PromoteToFull(pos chunkpos.ChunkPos, shared *chunk.SharedChunk) error {
	sh := s.shardFor(pos)
	sh.mu.RLock()
	e, ok := sh.entries[pos]
	sh.mu.RUnlock()
	if !ok {
		return fmt.Errorf("store: promote %v: %w", pos, ErrNotFound)
	}
	e.mu.Lock()
	e.proto = nil
	e.full = shared
	e.mu.Unlock()
	return nil
}

// Get returns a leased Handle to the entry at pos, or ErrNotFound. A
// leased Handle on an entry already marked for unload returns
// ErrUnloading instead, since its generation data may be mid-flight
// to disk.
func (s *Store) Get(pos chunkpos.ChunkPos) (*Handle, error) {
	sh := s.shardFor(pos)
	sh.mu.RLock()
	e, ok := sh.entries[pos]
	sh.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: get %v: %w", pos, ErrNotFound)
	}
	e.mu.Lock()
	if e.unloading {
		e.mu.Unlock()
		return nil, fmt.Errorf("store: get %v: %w", pos, ErrUnloading)
	}
	e.leases++
	e.mu.Unlock()
	return &Handle{pos: pos, entry: e, store: s}, nil
}

// Chunk reports the current representation behind a Handle: either
// the in-progress ProtoChunk, or the promoted SharedChunk, whichever
// is currently set.
func (h *Handle) Chunk() (proto *protochunk.ProtoChunk, full *chunk.SharedChunk) {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	return h.entry.proto, h.entry.full
}

// RequestUnload marks the entry at pos for eviction, cancelling its
// Handle contexts, and removes it from the store once every
// outstanding lease has been Released. If leases are still
// outstanding when this is called, RequestUnload returns
// ErrUnloading to signal the caller should retry later; the entry
// remains marked so no new Handle will treat it as idle.
func (s *Store) RequestUnload(pos chunkpos.ChunkPos) error {
	sh := s.shardFor(pos)
	sh.mu.Lock()
	e, ok := sh.entries[pos]
	if !ok {
		sh.mu.Unlock()
		return fmt.Errorf("store: unload %v: %w", pos, ErrNotFound)
	}

	e.mu.Lock()
	if !e.unloading {
		e.unloading = true
		e.cancel()
	}
	leases := e.leases
	e.mu.Unlock()

	if leases > 0 {
		sh.mu.Unlock()
		return fmt.Errorf("store: unload %v: %w", pos, ErrUnloading)
	}
	delete(sh.entries, pos)
	sh.mu.Unlock()
	return nil
}

// Len returns the number of live entries across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Positions returns a snapshot of every position currently held,
// across all shards. Used by SaveAll and diagnostics.
func (s *Store) Positions() []chunkpos.ChunkPos {
	out := make([]chunkpos.ChunkPos, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for p := range sh.entries {
			out = append(out, p)
		}
		sh.mu.RUnlock()
	}
	return out
}
