// Package regionio implements the region-file IO worker: it turns a
// ChunkPos into a *protochunk.ProtoChunk by locating its .mca region
// file, parsing it with anvil, and decoding the stored payload with
// chunkcodec — synthesising a fresh Empty-stage chunk whenever the
// payload is absent or corrupt, rather than failing the caller. Each
// region file's parsed form is kept in memory for as long as the
// region has an entry, so repeat access never re-parses from disk,
// and is written back by a dedicated flush worker.
package regionio

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/strata/anvil"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkcodec"
	"github.com/oriumgames/strata/chunkpos"
	"github.com/oriumgames/strata/protochunk"
)

// Store is the on-disk chunk source for one dimension's region files.
// It satisfies scheduler.ChunkSource.
type Store struct {
	dir        string
	rng        cube.Range
	classifier chunk.BlockClassifier
	compress   anvil.Compression
	log        *log.Logger

	mu      sync.Mutex
	regions map[chunkpos.RegionPos]*regionEntry

	flushCh chan chunkpos.RegionPos
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type regionEntry struct {
	mu    sync.Mutex
	rf    *anvil.RegionFile
	dirty bool
}

// Config bundles Store's construction parameters.
type Config struct {
	Dir         string
	Range       cube.Range
	Classifier  chunk.BlockClassifier
	Compression anvil.Compression // defaults to anvil.CompressionZLib
	Logger      *log.Logger
}

// New returns a Store rooted at cfg.Dir, creating the directory if it
// doesn't already exist.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("regionio: create %s: %w", cfg.Dir, err)
	}
	compress := cfg.Compression
	if compress == 0 {
		compress = anvil.CompressionZLib
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		dir:        cfg.Dir,
		rng:        cfg.Range,
		classifier: cfg.Classifier,
		compress:   compress,
		log:        logger,
		regions:    make(map[chunkpos.RegionPos]*regionEntry),
		flushCh:    make(chan chunkpos.RegionPos, 256),
		stopCh:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushWorker()
	return s, nil
}

// Close stops the flush worker after flushing every pending region.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return s.FlushAll()
}

func (s *Store) regionPath(r chunkpos.RegionPos) string {
	return filepath.Join(s.dir, fmt.Sprintf("r.%d.%d.mca", r.X, r.Z))
}

func (s *Store) entryFor(r chunkpos.RegionPos) (*regionEntry, error) {
	s.mu.Lock()
	e, ok := s.regions[r]
	if ok {
		s.mu.Unlock()
		return e, nil
	}
	e = &regionEntry{}
	s.regions[r] = e
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rf != nil {
		return e, nil
	}
	raw, err := os.ReadFile(s.regionPath(r))
	switch {
	case err == nil:
		rf, perr := anvil.Parse(raw)
		if perr != nil {
			s.log.Printf("regionio: parse %v: %v (starting fresh region)", r, perr)
			e.rf = anvil.New()
			return e, nil
		}
		e.rf = rf
	case os.IsNotExist(err):
		e.rf = anvil.New()
	default:
		return nil, fmt.Errorf("regionio: read region %v: %w", r, err)
	}
	return e, nil
}

// Load implements scheduler.ChunkSource.
func (s *Store) Load(pos chunkpos.ChunkPos) (*protochunk.ProtoChunk, error) {
	region, lx, lz := pos.Region()
	e, err := s.entryFor(region)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	payload, ok, err := e.rf.ReadChunk(lx, lz)
	e.mu.Unlock()

	if err != nil {
		s.log.Printf("regionio: read chunk %v: %v (synthesizing fresh chunk)", pos, err)
		return protochunk.New(pos, s.rng, s.classifier, false), nil
	}
	if !ok {
		return protochunk.New(pos, s.rng, s.classifier, false), nil
	}

	proto, err := chunkcodec.Decode(payload, s.classifier)
	if err != nil {
		s.log.Printf("regionio: decode chunk %v: %v (synthesizing fresh chunk)", pos, err)
		return protochunk.New(pos, s.rng, s.classifier, false), nil
	}
	return proto, nil
}

// Save implements scheduler.ChunkSource. It writes into the in-memory
// region file and marks the region dirty; the flush worker persists
// it to disk asynchronously. Save itself never fails on a full disk
// or a slow filesystem — callers that need a durability guarantee
// should follow up with FlushAll.
func (s *Store) Save(pos chunkpos.ChunkPos, proto *protochunk.ProtoChunk) error {
	data, err := chunkcodec.Encode(proto)
	if err != nil {
		return fmt.Errorf("regionio: encode %v: %w", pos, err)
	}

	region, lx, lz := pos.Region()
	e, err := s.entryFor(region)
	if err != nil {
		return err
	}

	e.mu.Lock()
	err = e.rf.WriteChunk(lx, lz, data, s.compress, uint32(time.Now().Unix()))
	if err == nil {
		e.dirty = true
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("regionio: write chunk %v: %w", pos, err)
	}

	select {
	case s.flushCh <- region:
	default:
		// A flush for this region is already pending or the worker
		// will pick it up on its next sweep.
	}
	return nil
}

func (s *Store) flushWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case r := <-s.flushCh:
			if err := s.flushRegion(r); err != nil {
				s.log.Printf("regionio: flush %v: %v", r, err)
			}
		}
	}
}

func (s *Store) flushRegion(r chunkpos.RegionPos) error {
	s.mu.Lock()
	e, ok := s.regions[r]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	raw, err := e.rf.ToBytes()
	if err != nil {
		return fmt.Errorf("serialize region: %w", err)
	}
	if err := writeFileAtomic(s.regionPath(r), raw); err != nil {
		return fmt.Errorf("write region file: %w", err)
	}
	e.dirty = false
	return nil
}

// FlushAll synchronously persists every dirty region to disk.
func (s *Store) FlushAll() error {
	s.mu.Lock()
	regions := make([]chunkpos.RegionPos, 0, len(s.regions))
	for r := range s.regions {
		regions = append(regions, r)
	}
	s.mu.Unlock()

	var firstErr error
	for _, r := range regions {
		if err := s.flushRegion(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
