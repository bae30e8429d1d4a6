package symcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/symcache/internal/artifact"
	"github.com/jward/symcache/internal/debounce"
	"github.com/jward/symcache/internal/index"
	"github.com/jward/symcache/internal/isolation"
	"github.com/jward/symcache/internal/store"
	"github.com/jward/symcache/internal/workspace"
)

// rebuild produces a new generation. It runs under the debounce trigger,
// which never runs two rebuilds at once.
//
// The pipeline:
//  1. Drain the pending change set and apply each path to the provider.
//     A path that fails to apply drops its unit from the new index and is
//     queued again for the next rebuild.
//  2. Re-read the units.
//  3. For invalidation rebuilds, reset the isolation context; this unloads
//     every artifact of the previous generation and clears the reference
//     cache. The initial build uses the live context.
//  4. Index every unit against a fresh artifact cache. Nothing compiles
//     here; artifacts build on first demand.
//  5. Diff against the previous generation and journal the result.
func (c *Coordinator) rebuild(ctx context.Context, reason debounce.Reason) (*generation, error) {
	start := time.Now()
	gen := &generation{
		id:     uuid.NewString(),
		seq:    c.seq.Add(1),
		reason: reason,
	}
	batch := store.NewBatch(store.Generation{
		ID:        gen.id,
		Seq:       gen.seq,
		Reason:    reason.String(),
		StartedAt: start,
	})

	paths := c.changes.Drain()
	batch.AddPaths(paths...)
	skip := c.applyChanges(ctx, paths)

	units, err := c.provider.Units(ctx)
	if err != nil {
		return nil, c.failGeneration(batch, fmt.Errorf("list units: %w", err))
	}

	var target *isolation.Context
	if reason == debounce.ReasonInvalidate {
		target, err = c.host.Reset()
	} else {
		target, err = c.host.Current()
	}
	if err != nil {
		return nil, c.failGeneration(batch, err)
	}
	gen.artifacts = artifact.NewCache(c.compiler, target, artifact.WithObserver(c.compilationObserver(gen.id)))

	ix, stats, err := index.Build(ctx, units, index.Options{
		Include:   c.include,
		Exclude:   c.exclude,
		Workers:   c.workers,
		Skip:      skip,
		Artifacts: gen.artifacts,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, c.failGeneration(batch, err)
	}
	gen.index = ix
	gen.stats = stats
	gen.builtAt = time.Now()
	gen.fragments, err = lru.New[fragmentKey, string](c.fragmentSize)
	if err != nil {
		return nil, c.failGeneration(batch, err)
	}

	if reason == debounce.ReasonInvalidate {
		var prev *index.Index
		if old, ok := c.trigger.Peek(); ok {
			prev = old.index
		}
		changes := index.Compare(prev, ix)
		for _, ch := range changes {
			batch.AddChange(ch.DocID, string(ch.Kind), ch.Patch)
		}
		c.mu.Lock()
		c.lastChanges = changes
		c.mu.Unlock()
	}

	batch.Generation.FinishedAt = gen.builtAt
	batch.Generation.Units = stats.Units
	batch.Generation.Entries = stats.Entries
	batch.Generation.Duplicates = len(stats.Duplicates)
	batch.Generation.SyncFailures = len(skip)
	c.commit(batch)

	c.logger.Printf("generation %d (%s): %d units, %d files, %d symbols, %d duplicates, %d changed paths in %s",
		gen.seq, reason, stats.Units, stats.Files, stats.Entries, len(stats.Duplicates), len(paths),
		gen.builtAt.Sub(start).Round(time.Millisecond))
	return gen, nil
}

// applyChanges pushes drained paths into the provider and returns the ids
// of units whose changes could not be applied. Those paths go back into the
// change set, so their units stay out until the edit lands.
func (c *Coordinator) applyChanges(ctx context.Context, paths []string) map[string]bool {
	skip := make(map[string]bool)
	for _, p := range paths {
		err := c.provider.Apply(ctx, p)
		if err == nil {
			continue
		}
		var serr *workspace.SyncError
		if errors.As(err, &serr) && serr.Unit != "" {
			skip[serr.Unit] = true
			c.changes.Add(p)
			c.logger.Printf("warning: %v; dropping unit %s from this generation", err, serr.Unit)
			continue
		}
		c.logger.Printf("warning: apply %s: %v", p, err)
	}
	return skip
}

func (c *Coordinator) failGeneration(batch *store.Batch, err error) error {
	batch.Generation.FinishedAt = time.Now()
	batch.Generation.Error = err.Error()
	c.commit(batch)
	c.logger.Printf("warning: rebuild %d failed: %v", batch.Generation.Seq, err)
	return err
}

func (c *Coordinator) commit(batch *store.Batch) {
	if c.journal == nil {
		return
	}
	if err := c.journal.CommitBatch(batch); err != nil {
		c.logger.Printf("warning: journal generation %s: %v", batch.Generation.ID, err)
		return
	}
	if c.journalKeep <= 0 {
		return
	}
	if _, err := c.journal.Prune(c.journalKeep); err != nil {
		c.logger.Printf("warning: prune journal: %v", err)
	}
}

// compilationObserver logs failed compiles and journals every compile
// under genID.
func (c *Coordinator) compilationObserver(genID string) func(artifact.Compilation) {
	return func(cmp artifact.Compilation) {
		if !cmp.OK {
			c.logger.Printf("warning: compile %s failed (%d diagnostics)", cmp.Unit, len(cmp.Diagnostics))
		}
		if c.journal == nil {
			return
		}
		diags := make([]string, len(cmp.Diagnostics))
		for i, d := range cmp.Diagnostics {
			diags[i] = d.String()
		}
		if _, err := c.journal.InsertCompilation(&store.Compilation{
			GenerationID: genID,
			Unit:         cmp.Unit,
			OK:           cmp.OK,
			Diagnostics:  diags,
			Duration:     cmp.Duration,
		}); err != nil {
			c.logger.Printf("warning: journal compilation %s: %v", cmp.Unit, err)
		}
	}
}
