// Package index builds the symbol index: documentation id → declaring span,
// pinned snapshot, and the owning unit's lazy artifact.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/symcache/internal/artifact"
	"github.com/jward/symcache/internal/syntax"
	"github.com/jward/symcache/internal/workspace"
)

// ErrConflictingFilters is returned when both an include and an exclude
// list are given.
var ErrConflictingFilters = errors.New("index: include and exclude lists are mutually exclusive")

// Entry is one indexed declaration.
type Entry struct {
	DocID string
	Kind  syntax.Kind
	Name  string

	Unit *workspace.Unit
	File *workspace.SourceFile

	// Span is the declaration extended over its leading indentation,
	// relative to Snapshot.
	Span syntax.Span
	Body *syntax.Span

	// Snapshot is the file text the entry was indexed from. It does not
	// follow later edits.
	Snapshot workspace.Snapshot

	// Artifact is shared by every entry of the same unit. Nil when the
	// index was built without an artifact cache.
	Artifact *artifact.Lazy
}

// Text returns the raw declaration text, indentation included.
func (e *Entry) Text() string {
	return e.Span.Slice(e.Snapshot.Text)
}

// Fragment returns the normalized declaration text. With bodyOnly it
// returns just the statements of the body; declarations without a body
// fall back to the full text.
func (e *Entry) Fragment(bodyOnly bool) string {
	if bodyOnly && e.Body != nil {
		return syntax.BodyText(e.Body.Slice(e.Snapshot.Text))
	}
	return syntax.Dedent(e.Text())
}

// Index is an immutable snapshot of every indexed declaration.
type Index struct {
	entries map[string]*Entry
	order   []string
}

// Empty returns an index with no entries.
func Empty() *Index {
	return &Index{entries: map[string]*Entry{}}
}

// Lookup returns the entry for docID.
func (ix *Index) Lookup(docID string) (*Entry, bool) {
	e, ok := ix.entries[docID]
	return e, ok
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// ids returns the documentation ids in unit, file, and declaration order.
func (ix *Index) ids() []string {
	return append([]string(nil), ix.order...)
}

// Entries returns the entries in unit, file, and declaration order.
func (ix *Index) Entries() []*Entry {
	out := make([]*Entry, len(ix.order))
	for i, id := range ix.order {
		out[i] = ix.entries[id]
	}
	return out
}

// Options configures Build.
type Options struct {
	// Include keeps only units whose name or id is listed.
	Include []string
	// Exclude drops units whose name or id is listed.
	Exclude []string

	// Workers bounds parallel parsing. Defaults to runtime.NumCPU().
	Workers int

	// Skip lists ids of units to leave out, such as units that failed to
	// synchronise.
	Skip map[string]bool

	// Artifacts supplies each unit's lazy artifact handle.
	Artifacts *artifact.Cache

	Logger *log.Logger
}

// Duplicate records a declaration dropped because its id was already taken.
type Duplicate struct {
	DocID   string
	Kept    string // file id of the entry that was kept
	Dropped string // file id of the declaration that was dropped
}

// Stats summarises a build.
type Stats struct {
	Units      int
	Files      int
	Entries    int
	Duplicates []Duplicate
	FileErrors int
	Duration   time.Duration
}

// FilterUnits applies include/exclude lists to units.
func FilterUnits(units []*workspace.Unit, include, exclude []string) ([]*workspace.Unit, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, ErrConflictingFilters
	}
	if len(include) == 0 && len(exclude) == 0 {
		return units, nil
	}
	match := func(u *workspace.Unit, names []string) bool {
		for _, n := range names {
			if n == u.Name || n == u.ID {
				return true
			}
		}
		return false
	}
	var out []*workspace.Unit
	for _, u := range units {
		if len(include) > 0 && !match(u, include) {
			continue
		}
		if len(exclude) > 0 && match(u, exclude) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// fileJob is one file to parse; decls is written only by its own worker.
type fileJob struct {
	unit  int
	file  *workspace.SourceFile
	decls []syntax.Declaration
	err   error
}

// Build indexes every public declaration of units. Files are parsed in
// parallel; entries are then merged in unit, file, and declaration order so
// that the first declaration of a duplicated id always wins. Per-file parse
// errors are logged and the file skipped.
func Build(ctx context.Context, units []*workspace.Unit, opts Options) (*Index, Stats, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	units, err := FilterUnits(units, opts.Include, opts.Exclude)
	if err != nil {
		return nil, Stats{}, err
	}
	kept := units[:0:0]
	for _, u := range units {
		if !opts.Skip[u.ID] {
			kept = append(kept, u)
		}
	}
	units = kept

	var jobs []*fileJob
	for ui, u := range units {
		for _, f := range u.Files {
			jobs = append(jobs, &fileJob{unit: ui, file: f})
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job.decls, job.err = syntax.Declarations(gctx, job.file.Path, []byte(job.file.Snapshot.Text))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("index: build: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("index: build: %w", err)
	}

	ix := &Index{entries: make(map[string]*Entry)}
	stats := Stats{Units: len(units), Files: len(jobs)}
	handles := make([]*artifact.Lazy, len(units))
	if opts.Artifacts != nil {
		for i, u := range units {
			handles[i] = opts.Artifacts.Handle(u)
		}
	}

	for _, job := range jobs {
		if job.err != nil {
			stats.FileErrors++
			logger.Printf("warning: index %s: %v", job.file.ID, job.err)
			continue
		}
		for _, d := range job.decls {
			if d.DocID == "" {
				continue
			}
			if prev, ok := ix.entries[d.DocID]; ok {
				stats.Duplicates = append(stats.Duplicates, Duplicate{
					DocID:   d.DocID,
					Kept:    prev.File.ID,
					Dropped: job.file.ID,
				})
				logger.Printf("warning: duplicate documentation id %s in %s (keeping %s)", d.DocID, job.file.ID, prev.File.ID)
				continue
			}
			ix.entries[d.DocID] = &Entry{
				DocID:    d.DocID,
				Kind:     d.Kind,
				Name:     d.Name,
				Unit:     units[job.unit],
				File:     job.file,
				Span:     d.Span,
				Body:     d.Body,
				Snapshot: job.file.Snapshot,
				Artifact: handles[job.unit],
			}
			ix.order = append(ix.order, d.DocID)
		}
	}
	stats.Entries = len(ix.order)
	stats.Duration = time.Since(start)
	return ix, stats, nil
}
