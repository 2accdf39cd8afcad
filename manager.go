// Package strata wires the chunk lifecycle subsystem's packages
// behind the public scheduler surface the external gameplay layer
// consumes: ticket-driven demand in, notified Full chunks out.
package strata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/listener"
	"github.com/oriumgames/strata/protochunk"
	"github.com/oriumgames/strata/regionio"
	"github.com/oriumgames/strata/scheduler"
	"github.com/oriumgames/strata/stage"
	"github.com/oriumgames/strata/store"
	"github.com/oriumgames/strata/strataconf"
	"github.com/oriumgames/strata/ticket"
)

// Manager owns every collaborator one dimension's chunk lifecycle
// needs and exposes add_ticket/remove_ticket/get_chunk/wait_for_chunk/
// subscribe/save_all/shutdown as plain Go methods.
type Manager struct {
	cfg strataconf.Config

	tickets *ticket.Propagator
	chunks  *store.Store
	listen  *listener.Registry
	region  *regionio.Store
	sched   *scheduler.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg, wires every collaborator, and starts the
// scheduler's Run loop in a background goroutine. Call Shutdown to
// stop it.
func New(cfg strataconf.Config, gen protochunk.Generator, logger *log.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	region, err := regionio.New(regionio.Config{
		Dir:        cfg.WorldDir,
		Range:      cfg.Dimension.Range,
		Classifier: cfg.Dimension.Classifier,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("strata: open region store: %w", err)
	}

	chunks := store.New()
	tickets := ticket.New()
	listen := listener.New()

	sched := scheduler.New(scheduler.Config{
		Range:         cfg.Dimension.Range,
		Generator:     gen,
		Seed:          cfg.WorldSeed,
		GeneratorPool: cfg.GeneratorThreads,
		Logger:        logger,
	}, chunks, tickets, listen, region)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		tickets: tickets,
		chunks:  chunks,
		listen:  listen,
		region:  region,
		sched:   sched,
		cancel:  cancel,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sched.Run(ctx)
	}()
	return m, nil
}

// AddTicket registers a ticket at pos with the given level, owned by
// id, per the Public scheduler surface's add_ticket.
func (m *Manager) AddTicket(pos chunkpos.ChunkPos, level int, id uuid.UUID) error {
	return m.tickets.AddTicket(pos, level, id)
}

// RemoveTicket removes the (pos, level, id) ticket previously added
// with AddTicket.
func (m *Manager) RemoveTicket(pos chunkpos.ChunkPos, level int, id uuid.UUID) error {
	return m.tickets.RemoveTicket(pos, level, id)
}

// AddPlayerTicket is a convenience wrapper that computes the ticket
// level from the manager's configured view distance, the effect named
// by strataconf.Config.ViewDistance.
func (m *Manager) AddPlayerTicket(pos chunkpos.ChunkPos, id uuid.UUID) error {
	return m.AddTicket(pos, m.cfg.BaseTicketLevel(), id)
}

// GetChunk is a non-blocking read: it returns the chunk at pos and
// true only if it has already reached Full.
func (m *Manager) GetChunk(pos chunkpos.ChunkPos) (*chunk.SharedChunk, bool) {
	h, err := m.chunks.Get(pos)
	if err != nil {
		return nil, false
	}
	defer h.Release()
	_, full := h.Chunk()
	return full, full != nil
}

// WaitForChunk returns a channel that fires exactly once, when pos
// next reaches Full. Like listener.Registry.ListenOnce it only observes
// future transitions: if pos is already Full when this is called, the
// channel does not fire until pos reaches Full again.
func (m *Manager) WaitForChunk(pos chunkpos.ChunkPos) <-chan *chunk.SharedChunk {
	return m.listen.ListenOnce(pos)
}

// Subscribe opens a broadcast stream of every chunk's promotion to
// Full until the returned Subscription is closed.
func (m *Manager) Subscribe() *listener.Subscription {
	return m.listen.Subscribe()
}

// SaveAll persists every chunk currently held by the store, Proto or
// Full, then flushes every touched region file to disk.
func (m *Manager) SaveAll() error {
	var errs []error
	for _, pos := range m.chunks.Positions() {
		h, err := m.chunks.Get(pos)
		if err != nil {
			continue
		}
		proto, full := h.Chunk()
		h.Release()

		var saveErr error
		switch {
		case full != nil:
			full.Read(func(c *chunk.Chunk) {
				saveErr = m.region.Save(pos, protochunk.FromChunk(c, stage.Full))
			})
		case proto != nil:
			saveErr = m.region.Save(pos, proto)
		}
		if saveErr != nil {
			errs = append(errs, fmt.Errorf("save %v: %w", pos, saveErr))
		}
	}
	if err := m.region.FlushAll(); err != nil {
		errs = append(errs, fmt.Errorf("flush regions: %w", err))
	}
	return errors.Join(errs...)
}

// Shutdown stops the scheduler loop, performs a final SaveAll, and
// closes the region store. It blocks until the scheduler goroutine
// has exited.
func (m *Manager) Shutdown() error {
	m.cancel()
	m.wg.Wait()
	if err := m.SaveAll(); err != nil {
		return err
	}
	return m.region.Close()
}
