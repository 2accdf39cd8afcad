// Command regioninspect opens one or more Anvil region files and
// prints their sector layout and generation-stage histogram. It never
// writes to the files it reads.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/oriumgames/strata/anvil"
	"github.com/oriumgames/strata/chunk"
	"github.com/oriumgames/strata/chunkcodec"
	"github.com/oriumgames/strata/stage"
)

// permissiveClassifier treats every non-air block as solid ground and
// nothing as a fluid or leaves, enough to let chunkcodec.Decode
// recompute heightmaps without a real block registry on hand.
type permissiveClassifier struct{}

func (permissiveClassifier) BlocksMovement(s chunk.BlockState) bool { return s != chunk.Air }
func (permissiveClassifier) IsLiquid(chunk.BlockState) bool         { return false }
func (permissiveClassifier) IsLeaves(chunk.BlockState) bool         { return false }

func main() {
	verbose := flag.Bool("v", false, "print a line per present chunk")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: regioninspect [-v] <region-file-or-directory>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "regioninspect: ", 0)
	var exit int
	for _, arg := range flag.Args() {
		if err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".mca" {
				return nil
			}
			if err := inspect(path, *verbose); err != nil {
				logger.Printf("%s: %v", path, err)
				exit = 1
			}
			return nil
		}); err != nil {
			logger.Printf("%s: %v", arg, err)
			exit = 1
		}
	}
	os.Exit(exit)
}

func inspect(path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	rf, err := anvil.Parse(data)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	sectors := len(data) / anvil.SectorSize
	present := rf.ChunkCount()
	fmt.Printf("%s: %d bytes (%d sectors), %d/%d chunks present\n", path, len(data), sectors, present, anvil.ChunkCount)

	var histogram [int(stage.Full) + 1]int
	var decodeErrs int
	for lz := 0; lz < anvil.RegionSize; lz++ {
		for lx := 0; lx < anvil.RegionSize; lx++ {
			payload, ok, err := rf.ReadChunk(lx, lz)
			if err != nil || !ok {
				continue
			}
			proto, err := chunkcodec.Decode(payload, permissiveClassifier{})
			if err != nil {
				decodeErrs++
				continue
			}
			histogram[proto.Stage]++
			if verbose {
				fmt.Printf("  (%d,%d) -> %s\n", proto.Pos.X, proto.Pos.Z, proto.Stage)
			}
		}
	}

	for s := stage.None; s <= stage.Full; s++ {
		if histogram[s] == 0 {
			continue
		}
		fmt.Printf("  %-8s %d\n", s, histogram[s])
	}
	if decodeErrs > 0 {
		fmt.Printf("  %d chunk(s) failed to decode\n", decodeErrs)
	}
	return nil
}
