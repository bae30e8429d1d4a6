// Package isolation owns the scope in which compiled artifacts and their
// references are loaded. Exactly one Context is live per Host; resetting
// the Host unloads everything loaded into the previous Context.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jward/symcache/internal/compiler"
	"github.com/jward/symcache/internal/runtime"
)

var (
	// ErrContextUnloaded is returned when an Artifact is used after the
	// Context it was loaded into has been closed.
	ErrContextUnloaded = errors.New("isolation: context unloaded")

	// ErrNoEntryPoint is returned when an artifact has no entry for a
	// documentation id.
	ErrNoEntryPoint = errors.New("isolation: no entry point")

	// ErrAlreadyLoaded is returned when a unit's main artifact is loaded
	// twice into the same Context.
	ErrAlreadyLoaded = errors.New("isolation: unit already loaded")
)

// Host owns the reference cache and the live Context.
type Host struct {
	refs    References
	tempDir string
	logger  *log.Logger

	mu      sync.Mutex
	current *Context
	seq     uint64
	closed  bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithReferences replaces the default RefCache.
func WithReferences(r References) HostOption {
	return func(h *Host) {
		h.refs = r
	}
}

// WithTempDir sets the directory under which contexts create their
// import directories. Defaults to os.TempDir.
func WithTempDir(dir string) HostOption {
	return func(h *Host) {
		h.tempDir = dir
	}
}

// WithLogger sets the logger handed to each Context's runtime.
func WithLogger(l *log.Logger) HostOption {
	return func(h *Host) {
		h.logger = l
	}
}

// NewHost creates a Host with no live Context; one is created on first use.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		refs:   NewRefCache(),
		logger: log.New(os.Stderr, "", 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current returns the live Context, creating it if needed.
func (h *Host) Current() (*Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("isolation: host closed")
	}
	if h.current == nil {
		c, err := h.newContextLocked()
		if err != nil {
			return nil, err
		}
		h.current = c
	}
	return h.current, nil
}

// Reset unloads the live Context, clears the reference cache, and installs
// a fresh Context.
func (h *Host) Reset() (*Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("isolation: host closed")
	}
	old := h.current
	h.current = nil
	if old != nil {
		if err := old.Close(); err != nil {
			h.logger.Printf("warning: close context %d: %v", old.id, err)
		}
	}
	h.refs.Clear()

	c, err := h.newContextLocked()
	if err != nil {
		return nil, err
	}
	h.current = c
	return c, nil
}

// Close unloads the live Context. The Host cannot be used afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.current == nil {
		return nil
	}
	err := h.current.Close()
	h.current = nil
	return err
}

func (h *Host) newContextLocked() (*Context, error) {
	dir, err := os.MkdirTemp(h.tempDir, "symcache-ctx-*")
	if err != nil {
		return nil, fmt.Errorf("isolation: create context dir: %w", err)
	}
	h.seq++
	return &Context{
		id:      h.seq,
		dir:     dir,
		refs:    h.refs,
		rt:      runtime.New(dir, runtime.WithLogger(h.logger)),
		units:   make(map[string]*Artifact),
		modules: make(map[string]string),
	}, nil
}

// Context is one load scope. Artifacts loaded into it stay valid until it
// is closed.
type Context struct {
	id   uint64
	dir  string
	refs References
	rt   *runtime.Runtime

	mu      sync.Mutex
	closed  bool
	units   map[string]*Artifact
	modules map[string]string // module name → reference path
	calls   sync.WaitGroup
}

// ID identifies the Context within its Host; later contexts have larger ids.
func (c *Context) ID() uint64 { return c.id }

// LoadUnit loads the main artifact of a unit along with its references.
// entries maps documentation ids to entry names; when it is empty, entry
// names follow compiler.EntryName.
func (c *Context) LoadUnit(ctx context.Context, unit string, image []byte, references []string, entries map[string]string) (*Artifact, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrContextUnloaded
	}
	if _, ok := c.units[unit]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, unit)
	}
	c.mu.Unlock()

	for _, ref := range references {
		if err := c.loadReference(ctx, ref); err != nil {
			return nil, err
		}
	}

	prog, err := c.rt.Load(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("isolation: load %s: %w", unit, err)
	}

	a := &Artifact{owner: c, unit: unit, prog: prog, entries: entries}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextUnloaded
	}
	if _, ok := c.units[unit]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, unit)
	}
	c.units[unit] = a
	return a, nil
}

// loadReference makes a reference importable under its module name. A
// module name already taken by another path keeps its first binding.
func (c *Context) loadReference(ctx context.Context, path string) error {
	name := ModuleName(path)
	c.mu.Lock()
	if _, ok := c.modules[name]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := c.refs.Get(ctx, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextUnloaded
	}
	if _, ok := c.modules[name]; ok {
		return nil
	}
	if err := os.WriteFile(filepath.Join(c.dir, name+runtime.ModuleExt), data, 0o644); err != nil {
		return fmt.Errorf("isolation: load reference %s: %w", path, err)
	}
	c.modules[name] = path
	return nil
}

// loaded returns the ids of the units loaded into the Context.
func (c *Context) loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	return ids
}

// Close unloads the Context. It waits for in-flight invocations to finish.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.units = nil
	c.mu.Unlock()

	c.calls.Wait()
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("isolation: remove context dir: %w", err)
	}
	return nil
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// enter registers an invocation, failing once the Context is closed.
func (c *Context) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextUnloaded
	}
	c.calls.Add(1)
	return nil
}

// Artifact is a unit's main artifact loaded into a Context.
type Artifact struct {
	owner   *Context
	unit    string
	prog    *runtime.Program
	entries map[string]string
}

// Unit returns the id of the unit the artifact was compiled from.
func (a *Artifact) Unit() string { return a.unit }

// Entry returns the entry name for docID.
func (a *Artifact) Entry(docID string) (string, bool) {
	if len(a.entries) == 0 {
		return compiler.EntryName(docID), true
	}
	name, ok := a.entries[docID]
	return name, ok
}

// Invoke runs the entry point of docID and returns its attachments.
func (a *Artifact) Invoke(ctx context.Context, docID string) (map[string]string, error) {
	entry, ok := a.Entry(docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, docID)
	}
	if err := a.owner.enter(); err != nil {
		return nil, err
	}
	defer a.owner.calls.Done()
	return a.prog.Call(ctx, entry)
}

// ModuleName derives the import name of a reference path: its base name
// without extension, restricted to identifier characters.
func ModuleName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return compiler.EntryName(base)
}
