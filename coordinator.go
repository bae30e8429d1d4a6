package symcache

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/symcache/internal/artifact"
	"github.com/jward/symcache/internal/compiler"
	"github.com/jward/symcache/internal/debounce"
	"github.com/jward/symcache/internal/index"
	"github.com/jward/symcache/internal/isolation"
	"github.com/jward/symcache/internal/store"
	"github.com/jward/symcache/internal/workspace"
)

// Coordinator owns the symbol index, the per-unit artifact cache, and the
// isolation context, and rebuilds them together when files change.
type Coordinator struct {
	provider workspace.Provider
	compiler compiler.Compiler

	include      []string
	exclude      []string
	window       time.Duration
	workers      int
	logger       *log.Logger
	journal      *store.Store
	journalKeep  int
	fragmentSize int
	refs         isolation.References
	tempDir      string

	host    *isolation.Host
	changes *debounce.ChangeSet
	trigger *debounce.Trigger[*generation]

	seq atomic.Int64

	mu          sync.Mutex
	lastChanges []index.Change
	closed      bool
}

// generation is one complete build: index, artifact cache, and the
// isolation context behind it.
type generation struct {
	id        string
	seq       int64
	reason    debounce.Reason
	index     *index.Index
	artifacts *artifact.Cache
	fragments *lru.Cache[fragmentKey, string]
	stats     index.Stats
	builtAt   time.Time
}

type fragmentKey struct {
	docID    string
	bodyOnly bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIncludeUnits indexes only the named units. Cannot be combined with
// WithExcludeUnits.
func WithIncludeUnits(names ...string) Option {
	return func(c *Coordinator) {
		c.include = append(c.include, names...)
	}
}

// WithExcludeUnits skips the named units. Cannot be combined with
// WithIncludeUnits.
func WithExcludeUnits(names ...string) Option {
	return func(c *Coordinator) {
		c.exclude = append(c.exclude, names...)
	}
}

// WithDebounce sets the quiet window after the last invalidation before a
// rebuild starts. Defaults to 500ms.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		c.window = d
	}
}

// WithWorkers bounds parallel work during indexing and AllSymbols.
// Defaults to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		c.workers = n
	}
}

// WithLogger sets the logger for warnings and rebuild summaries.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithJournal records every generation, compile, and symbol change in the
// given journal. The Coordinator closes it on Close.
func WithJournal(j *Journal) Option {
	return func(c *Coordinator) {
		c.journal = j
	}
}

// WithJournalKeep prunes the journal to the newest n generations after
// each commit. Zero keeps everything.
func WithJournalKeep(n int) Option {
	return func(c *Coordinator) {
		c.journalKeep = n
	}
}

// WithFragmentCacheSize sets how many rendered fragments each generation
// keeps. Defaults to 1024.
func WithFragmentCacheSize(n int) Option {
	return func(c *Coordinator) {
		c.fragmentSize = n
	}
}

// WithReferenceCache replaces the cache that reference artifacts are read
// through. It is cleared whenever the isolation context is reset.
func WithReferenceCache(r References) Option {
	return func(c *Coordinator) {
		c.refs = r
	}
}

// WithTempDir sets where isolation contexts keep their loaded references.
func WithTempDir(dir string) Option {
	return func(c *Coordinator) {
		c.tempDir = dir
	}
}

// New creates a Coordinator over provider. Nothing is built until the
// first read. A nil compiler makes every unit fail to compile.
func New(provider Provider, comp Compiler, opts ...Option) (*Coordinator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil workspace provider", ErrConfig)
	}
	if comp == nil {
		comp = compiler.Unavailable
	}
	c := &Coordinator{
		provider:     provider,
		compiler:     comp,
		window:       debounce.DefaultWindow,
		workers:      runtime.NumCPU(),
		logger:       log.New(os.Stderr, "symcache: ", log.LstdFlags),
		fragmentSize: 1024,
		changes:      debounce.NewChangeSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.include) > 0 && len(c.exclude) > 0 {
		return nil, fmt.Errorf("%w: include and exclude lists are mutually exclusive", ErrConfig)
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	if c.fragmentSize <= 0 {
		c.fragmentSize = 1
	}

	hostOpts := []isolation.HostOption{isolation.WithLogger(c.logger)}
	if c.refs != nil {
		hostOpts = append(hostOpts, isolation.WithReferences(c.refs))
	}
	if c.tempDir != "" {
		hostOpts = append(hostOpts, isolation.WithTempDir(c.tempDir))
	}
	c.host = isolation.NewHost(hostOpts...)
	c.trigger = debounce.NewTrigger(c.window, c.rebuild)
	return c, nil
}

// Close stops pending rebuilds, unloads the live isolation context, and
// closes the journal.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.trigger.Close()
	err := c.host.Close()
	if c.journal != nil {
		if jerr := c.journal.Close(); jerr != nil && err == nil {
			err = jerr
		}
	}
	if err != nil {
		return fmt.Errorf("symcache: close: %w", err)
	}
	return nil
}

// InvalidateFile records that path changed and schedules a rebuild after
// the debounce window. It never blocks on a rebuild. Invalidations that
// arrive while a rebuild runs are picked up by one follow-up rebuild.
func (c *Coordinator) InvalidateFile(path string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.changes.Add(path)
	c.trigger.Invalidate()
}

// current waits for the latest complete generation.
func (c *Coordinator) current(ctx context.Context) (*generation, error) {
	gen, err := c.trigger.Get(ctx)
	if err == debounce.ErrClosed {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("symcache: index: %w", err)
	}
	return gen, nil
}

// Stats describes the Coordinator's current state.
type Stats struct {
	Generation   string
	Seq          int64
	Entries      int
	Units        int
	Duplicates   int
	Rebuilds     int64
	Compilations int64
	State        string
	Pending      int
	BuiltAt      time.Time
}

// Stats returns a snapshot of the current generation without waiting for
// pending rebuilds.
func (c *Coordinator) Stats() Stats {
	s := Stats{
		Rebuilds: c.trigger.Builds(),
		State:    c.trigger.State().String(),
		Pending:  c.changes.Len(),
	}
	if gen, ok := c.trigger.Peek(); ok {
		s.Generation = gen.id
		s.Seq = gen.seq
		s.Entries = gen.index.Len()
		s.Units = gen.stats.Units
		s.Duplicates = len(gen.stats.Duplicates)
		s.Compilations = gen.artifacts.Builds()
		s.BuiltAt = gen.builtAt
	}
	return s
}

// LastChanges returns the symbols that changed in the most recent rebuild
// triggered by an invalidation.
func (c *Coordinator) LastChanges() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.lastChanges...)
}
