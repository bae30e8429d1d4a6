package symcache

import (
	"errors"

	"github.com/jward/symcache/internal/isolation"
)

var (
	// ErrNotFound is returned when a documentation id is not in the index.
	ErrNotFound = errors.New("symcache: symbol not found")

	// ErrSymbolNotExecutable is returned when execution is requested for a
	// symbol that is not a method or has no entry point.
	ErrSymbolNotExecutable = errors.New("symcache: symbol is not executable")

	// ErrAttachmentNotFound is returned when an execution did not produce
	// the requested attachment.
	ErrAttachmentNotFound = errors.New("symcache: attachment not found")

	// ErrConfig is returned by New for invalid option combinations.
	ErrConfig = errors.New("symcache: invalid configuration")

	// ErrClosed is returned by operations on a closed Coordinator.
	ErrClosed = errors.New("symcache: coordinator closed")

	// ErrContextUnloaded is returned when an Artifact is invoked after the
	// generation that loaded it was replaced.
	ErrContextUnloaded = isolation.ErrContextUnloaded
)
