package symcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/symcache/internal/artifact"
	"github.com/jward/symcache/internal/index"
	"github.com/jward/symcache/internal/isolation"
)

// Fragment returns the normalized source of the declaration with docID.
// With bodyOnly it returns just the statements inside the body, with the
// signature and braces removed and the indentation re-based; declarations
// without a body return their full text either way.
func (c *Coordinator) Fragment(ctx context.Context, docID string, bodyOnly bool) (string, error) {
	gen, err := c.current(ctx)
	if err != nil {
		return "", err
	}
	e, ok := gen.index.Lookup(docID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	key := fragmentKey{docID: docID, bodyOnly: bodyOnly}
	if text, ok := gen.fragments.Get(key); ok {
		return text, nil
	}
	text := e.Fragment(bodyOnly)
	gen.fragments.Add(key, text)
	return text, nil
}

// ExecutionResult compiles the unit that declares docID if needed, invokes
// the method, and returns the named attachment. The empty name selects the
// console output.
func (c *Coordinator) ExecutionResult(ctx context.Context, docID, attachment string) (string, error) {
	// A rebuild may unload the artifact between resolving it and invoking
	// it; the second attempt sees the new generation.
	for attempt := 0; ; attempt++ {
		out, err := c.execute(ctx, docID)
		if errors.Is(err, isolation.ErrContextUnloaded) && attempt == 0 {
			continue
		}
		if err != nil {
			return "", err
		}
		v, ok := out[attachment]
		if !ok {
			return "", fmt.Errorf("%w: %q from %s", ErrAttachmentNotFound, attachment, docID)
		}
		return v, nil
	}
}

func (c *Coordinator) execute(ctx context.Context, docID string) (map[string]string, error) {
	gen, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := gen.index.Lookup(docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if e.Kind != KindMethod || e.Artifact == nil {
		return nil, fmt.Errorf("%w: %s is a %s", ErrSymbolNotExecutable, docID, e.Kind)
	}

	art, err := e.Artifact.Get(ctx)
	if err != nil {
		var cerr *artifact.CompilationError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, fmt.Errorf("symcache: load %s: %w", e.Unit.ID, err)
	}

	out, err := art.Invoke(ctx, docID)
	switch {
	case errors.Is(err, isolation.ErrNoEntryPoint):
		return nil, fmt.Errorf("%w: %s: %w", ErrSymbolNotExecutable, docID, err)
	case err != nil:
		return nil, fmt.Errorf("symcache: execute %s: %w", docID, err)
	}
	return out, nil
}

// AllSymbols resolves the artifact of every indexed symbol, compiling each
// unit at most once. Symbols of units that fail to compile are left out and
// logged; only an unavailable index or a cancelled ctx fails the call.
func (c *Coordinator) AllSymbols(ctx context.Context) (map[string]Symbol, error) {
	gen, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	entries := gen.index.Entries()
	handles := make(map[string]*artifact.Lazy)
	for _, e := range entries {
		if e.Artifact != nil {
			handles[e.Unit.ID] = e.Artifact
		}
	}

	var mu sync.Mutex
	resolved := make(map[string]*isolation.Artifact, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for unit, h := range handles {
		g.Go(func() error {
			art, err := h.Get(gctx)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Printf("warning: skipping unit %s: %v", unit, err)
				return nil
			}
			mu.Lock()
			resolved[unit] = art
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("symcache: all symbols: %w", err)
	}

	out := make(map[string]Symbol, len(entries))
	for _, e := range entries {
		art, ok := resolved[e.Unit.ID]
		if !ok {
			continue
		}
		out[e.DocID] = symbolOf(e, art)
	}
	return out, nil
}

// Symbols lists every indexed symbol in index order without compiling
// anything.
func (c *Coordinator) Symbols(ctx context.Context) ([]Symbol, error) {
	gen, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	entries := gen.index.Entries()
	out := make([]Symbol, len(entries))
	for i, e := range entries {
		out[i] = symbolOf(e, nil)
	}
	return out, nil
}

func symbolOf(e *index.Entry, art *isolation.Artifact) Symbol {
	file := e.File.Path
	if file == "" {
		file = e.File.ID
	}
	return Symbol{
		DocID:    e.DocID,
		Kind:     e.Kind,
		Name:     e.Name,
		Unit:     e.Unit.ID,
		File:     file,
		Artifact: art,
	}
}
