// Package workspace defines the compilation units symcache indexes and the
// providers that supply them. A provider is the source of truth; symcache
// only re-reads units after asking the provider to apply a change.
package workspace

import (
	"context"
	"errors"
	"fmt"
)

// Snapshot is an immutable view of a file's text at a given version.
type Snapshot struct {
	Text    string
	Version int64
}

// SourceFile is one file of a compilation unit. Path is empty for synthetic
// files that have no location on disk.
type SourceFile struct {
	ID       string
	Path     string
	Snapshot Snapshot
}

// Unit is one independently compiled group of source files. Units handed out
// by a Provider must not be mutated by callers.
type Unit struct {
	ID    string
	Name  string
	Path  string
	Files []*SourceFile

	// References are file paths of reference artifacts the unit's compiled
	// image imports. They are loaded into the isolation context before the
	// unit itself.
	References []string
}

// Provider supplies compilation units.
type Provider interface {
	// Units returns the current units in a stable order.
	Units(ctx context.Context) ([]*Unit, error)

	// Apply re-synchronises a single changed, added, or removed path.
	// Failures scoped to one unit are returned as *SyncError.
	Apply(ctx context.Context, path string) error
}

// ErrSync marks workspace synchronisation failures.
var ErrSync = errors.New("workspace sync failed")

// SyncError reports that a change to Path could not be applied to Unit.
type SyncError struct {
	Unit string
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("workspace: sync %s (unit %s): %v", e.Path, e.Unit, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrSync, e.Err}
}
