// Lockbench soaks a gridlock.Grid with many workers acquiring overlapping
// random regions. It exists to shake out deadlocks and mutual-exclusion
// violations under load, and to compare the three locking strategies. Run
// summaries can be appended to a sqlite file and the acquisition pattern
// rendered as a heatmap.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/gridlock"
	"github.com/banshee-data/gridlock/internal/benchdb"
	"github.com/banshee-data/gridlock/monitor"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds configuration for one bench run.
type Config struct {
	Strategy     string
	CellsPerAxis int
	Workers      int
	Rounds       int
	Radius       int
	Seed         int64
	DBPath       string
	HeatmapPath  string
	HeatmapZ     int
	Verbose      bool
}

// workerResult is one worker's tallies, merged after the run.
type workerResult struct {
	attempts  int64
	acquired  int64
	conflicts int64
	counts    *monitor.Counts
	drained   bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.Strategy, "strategy", "binary", "locking strategy: binary, owner-ordered or mutex")
	flag.IntVar(&cfg.CellsPerAxis, "cells", 32, "grid cells per axis")
	flag.IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	flag.IntVar(&cfg.Rounds, "rounds", 20000, "region lock attempts per worker")
	flag.IntVar(&cfg.Radius, "radius", 1, "region radius in cells")
	flag.Int64Var(&cfg.Seed, "seed", 0, "random seed (0 = time-based)")
	flag.StringVar(&cfg.DBPath, "db", "", "sqlite file to append the run summary to")
	flag.StringVar(&cfg.HeatmapPath, "heatmap", "", "PNG file for the acquisition heatmap")
	flag.IntVar(&cfg.HeatmapZ, "heatmap-z", -1, "z plane to render (-1 = middle)")
	flag.BoolVar(&cfg.Verbose, "v", false, "per-worker output")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("[lockbench] %v", err)
	}
}

func run(cfg Config) error {
	strategy, err := gridlock.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	// Unit cells: bounds span one unit per cell on each axis.
	extent := float64(cfg.CellsPerAxis)
	bounds := gridlock.NewBounds(r3.Vec{}, r3.Vec{X: extent, Y: extent, Z: extent})
	g, err := gridlock.New(bounds, cfg.CellsPerAxis, gridlock.WithStrategy(strategy))
	if err != nil {
		return err
	}

	log.Printf("[lockbench] strategy=%s cells=%d workers=%d rounds=%d radius=%d seed=%d",
		strategy, cfg.CellsPerAxis, cfg.Workers, cfg.Rounds, cfg.Radius, cfg.Seed)

	results := make([]workerResult, cfg.Workers)
	started := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w] = soak(g, cfg, cfg.Seed+int64(w))
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(started)

	merged := monitor.NewCounts(cfg.CellsPerAxis)
	var attempts, acquired, conflicts int64
	for w, r := range results {
		attempts += r.attempts
		acquired += r.acquired
		conflicts += r.conflicts
		if err := merged.Merge(r.counts); err != nil {
			return err
		}
		if !r.drained {
			return fmt.Errorf("worker %d finished with cells still held", w)
		}
		if cfg.Verbose {
			log.Printf("[lockbench] worker %d: %d/%d acquired", w, r.acquired, r.attempts)
		}
	}

	rate := float64(attempts) / elapsed.Seconds()
	log.Printf("[lockbench] done in %.2fs: %d attempts (%.0f/s), %d acquired, %d conflicts (%.1f%%), %d clamped points",
		elapsed.Seconds(), attempts, rate, acquired, conflicts,
		100*float64(conflicts)/float64(attempts), g.ClampCount())

	if cfg.HeatmapPath != "" {
		z := cfg.HeatmapZ
		if z < 0 {
			z = cfg.CellsPerAxis / 2
		}
		if err := monitor.HeatmapPNG(merged, z, cfg.HeatmapPath); err != nil {
			return err
		}
		log.Printf("[lockbench] wrote heatmap %s (z=%d)", cfg.HeatmapPath, z)
	}

	if cfg.DBPath != "" {
		db, err := benchdb.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runRec := &benchdb.Run{
			RunID:        uuid.New().String(),
			Strategy:     strategy.String(),
			Workers:      cfg.Workers,
			CellsPerAxis: cfg.CellsPerAxis,
			Radius:       cfg.Radius,
			Rounds:       cfg.Rounds,
			Attempts:     attempts,
			Acquired:     acquired,
			Conflicts:    conflicts,
			Duration:     elapsed,
			StartedAt:    started,
		}
		if err := db.RecordRun(runRec); err != nil {
			return err
		}
		log.Printf("[lockbench] recorded run %s in %s", runRec.RunID, cfg.DBPath)
	}

	return nil
}

// soak runs one worker's share of the load: random region locks, a tally
// per successful center cell, and a full release between rounds.
func soak(g *gridlock.Grid, cfg Config, seed int64) workerResult {
	h := g.Handle()
	rng := rand.New(rand.NewSource(seed))
	extent := float64(cfg.CellsPerAxis)
	res := workerResult{counts: monitor.NewCounts(cfg.CellsPerAxis)}

	for i := 0; i < cfg.Rounds; i++ {
		p := r3.Vec{
			X: rng.Float64() * extent,
			Y: rng.Float64() * extent,
			Z: rng.Float64() * extent,
		}
		res.attempts++
		if ok, idx := h.TryLockRegion(p, cfg.Radius); ok {
			res.acquired++
			res.counts.Add(idx)
			h.ReleaseAll()
		} else {
			res.conflicts++
		}
	}

	h.ReleaseAll()
	res.drained = h.AllReleased()
	return res
}
