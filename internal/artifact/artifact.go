// Package artifact caches the compiled main artifact of each unit. Every
// unit is compiled at most once per cache, on first demand, and all callers
// share the outcome, including failure.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jward/symcache/internal/compiler"
	"github.com/jward/symcache/internal/isolation"
	"github.com/jward/symcache/internal/workspace"
)

// CompilationError reports a unit whose compilation produced errors.
type CompilationError struct {
	Unit        string
	Diagnostics []compiler.Diagnostic

	// Err is set when the front end itself failed to run.
	Err error
}

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compilation of %s failed: %v", e.Unit, e.Err)
	}
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return fmt.Sprintf("compilation of %s failed: %s", e.Unit, strings.Join(msgs, "; "))
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Compilation describes one finished compile, reported to observers.
type Compilation struct {
	Unit        string
	OK          bool
	Diagnostics []compiler.Diagnostic
	Duration    time.Duration
}

// Lazy is a handle to a unit's artifact that compiles on first Get.
type Lazy struct {
	build func(ctx context.Context) (*isolation.Artifact, error)

	once sync.Once
	done chan struct{}
	art  *isolation.Artifact
	err  error
}

// Get returns the artifact, compiling it if no caller has yet. The build
// is detached from ctx: a cancelled caller stops waiting, but the build
// runs to completion for the others.
func (l *Lazy) Get(ctx context.Context) (*isolation.Artifact, error) {
	l.once.Do(func() {
		go l.run(context.WithoutCancel(ctx))
	})
	select {
	case <-l.done:
		return l.art, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finished reports whether the build has completed.
func (l *Lazy) finished() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Lazy) run(ctx context.Context) {
	defer close(l.done)
	l.art, l.err = l.build(ctx)
}

// Cache holds one Lazy per unit, loading artifacts into one isolation
// Context.
type Cache struct {
	compiler compiler.Compiler
	target   *isolation.Context
	observer func(Compilation)

	mu      sync.Mutex
	handles map[string]*Lazy
	builds  atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver registers a function called after every compile.
func WithObserver(fn func(Compilation)) Option {
	return func(c *Cache) {
		c.observer = fn
	}
}

// NewCache creates a Cache that compiles with comp and loads into target.
func NewCache(comp compiler.Compiler, target *isolation.Context, opts ...Option) *Cache {
	c := &Cache{
		compiler: comp,
		target:   target,
		handles:  make(map[string]*Lazy),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle returns the unit's handle, creating it on first request. Creating
// a handle does not compile anything.
func (c *Cache) Handle(unit *workspace.Unit) *Lazy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.handles[unit.ID]; ok {
		return l
	}
	l := &Lazy{
		done: make(chan struct{}),
		build: func(ctx context.Context) (*isolation.Artifact, error) {
			return c.compile(ctx, unit)
		},
	}
	c.handles[unit.ID] = l
	return l
}

// Builds returns how many compiles the cache has started.
func (c *Cache) Builds() int64 { return c.builds.Load() }

func (c *Cache) compile(ctx context.Context, unit *workspace.Unit) (*isolation.Artifact, error) {
	c.builds.Add(1)
	start := time.Now()

	out, err := c.compiler.Compile(ctx, unit)
	if err != nil {
		cerr := &CompilationError{
			Unit: unit.ID,
			Err:  err,
			Diagnostics: []compiler.Diagnostic{{
				Severity: compiler.SeverityError,
				Message:  err.Error(),
				Path:     unit.Path,
			}},
		}
		c.observe(unit.ID, false, cerr.Diagnostics, start)
		return nil, cerr
	}
	if errs := out.Errors(); len(errs) > 0 {
		c.observe(unit.ID, false, out.Diagnostics, start)
		return nil, &CompilationError{Unit: unit.ID, Diagnostics: errs}
	}

	art, err := c.target.LoadUnit(ctx, unit.ID, out.Image, unit.References, out.EntryPoints)
	if err != nil {
		c.observe(unit.ID, false, out.Diagnostics, start)
		return nil, fmt.Errorf("artifact: %s: %w", unit.ID, err)
	}
	c.observe(unit.ID, true, out.Diagnostics, start)
	return art, nil
}

func (c *Cache) observe(unit string, ok bool, diags []compiler.Diagnostic, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer(Compilation{
		Unit:        unit,
		OK:          ok,
		Diagnostics: diags,
		Duration:    time.Since(start),
	})
}
