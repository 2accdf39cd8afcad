// Package listener implements the two ways external code learns a
// chunk reached Full: a single-shot wait for one position, and a
// broadcast stream of every chunk that reaches Full.
package listener

import (
	"sync"

	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
)

// Registry tracks pending single-shot waiters and broadcast
// subscribers. All methods are safe for concurrent use; the scheduler
// calls Notify once each time a chunk reaches stage.Full.
type Registry struct {
	mu sync.Mutex

	once    map[chunkpos.ChunkPos][]chan *chunk.SharedChunk
	streams map[uuid.UUID]*subscriber
}

type subscriber struct {
	ch chan Event
}

// Event is delivered to every broadcast subscriber when a chunk
// reaches Full.
type Event struct {
	Pos   chunkpos.ChunkPos
	Chunk *chunk.SharedChunk
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		once:    make(map[chunkpos.ChunkPos][]chan *chunk.SharedChunk),
		streams: make(map[uuid.UUID]*subscriber),
	}
}

// ListenOnce returns a channel that receives exactly one value, the
// first time pos reaches Full after this call. If pos has already
// reached Full by the time the scheduler services this registration,
// callers should prefer querying the store directly; ListenOnce only
// observes future transitions.
func (r *Registry) ListenOnce(pos chunkpos.ChunkPos) <-chan *chunk.SharedChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan *chunk.SharedChunk, 1)
	r.once[pos] = append(r.once[pos], ch)
	return ch
}

// CancelOnce removes a previously registered ListenOnce channel
// without delivering to it, for a caller that gave up waiting (e.g.
// its own context was cancelled).
func (r *Registry) CancelOnce(pos chunkpos.ChunkPos, ch <-chan *chunk.SharedChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiters := r.once[pos]
	for i, w := range waiters {
		if w == ch {
			r.once[pos] = append(waiters[:i], waiters[i+1:]...)
			close(w)
			break
		}
	}
	if len(r.once[pos]) == 0 {
		delete(r.once, pos)
	}
}

// Subscription is a live handle to a broadcast stream. Close stops
// delivery and releases the subscriber's slot.
type Subscription struct {
	id uuid.UUID
	r  *Registry
	ch <-chan Event
}

// Events returns the channel this subscription receives on.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes this subscription. The channel is not closed
// (Notify may be sending to it concurrently); callers should simply
// stop reading from Events after calling Close.
func (s *Subscription) Close() {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	delete(s.r.streams, s.id)
}

// Subscribe opens a broadcast stream that receives every chunk's
// transition to Full until Close is called. The channel is buffered;
// a slow subscriber that falls behind has its oldest pending event
// dropped rather than blocking the notifier, since broadcast delivery
// must never stall generation.
func (r *Registry) Subscribe() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	sub := &subscriber{ch: make(chan Event, 64)}
	r.streams[id] = sub
	return &Subscription{id: id, r: r, ch: sub.ch}
}

// Notify delivers pos's promotion to every pending ListenOnce waiter
// and every broadcast subscriber. Each ListenOnce waiter for pos
// fires exactly once and is then discarded.
func (r *Registry) Notify(pos chunkpos.ChunkPos, full *chunk.SharedChunk) {
	r.mu.Lock()
	waiters := r.once[pos]
	delete(r.once, pos)

	subs := make([]*subscriber, 0, len(r.streams))
	for _, s := range r.streams {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, w := range waiters {
		w <- full
		close(w)
	}

	ev := Event{Pos: pos, Chunk: full}
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			// Drop the oldest pending event to make room rather than
			// block the notifier on a slow subscriber.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}
