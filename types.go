package symcache

import (
	"github.com/jward/symcache/internal/artifact"
	"github.com/jward/symcache/internal/compiler"
	"github.com/jward/symcache/internal/index"
	"github.com/jward/symcache/internal/isolation"
	"github.com/jward/symcache/internal/store"
	"github.com/jward/symcache/internal/syntax"
	"github.com/jward/symcache/internal/workspace"
)

// Public type aliases for internal types used in the Coordinator API.
// These are Go type aliases (=), identical to the internal types at compile
// time, so no conversion is needed.

type Unit = workspace.Unit
type SourceFile = workspace.SourceFile
type Snapshot = workspace.Snapshot
type Provider = workspace.Provider
type SyncError = workspace.SyncError
type MemoryWorkspace = workspace.Memory
type DirWorkspace = workspace.Dir

type Compiler = compiler.Compiler
type CompilerFunc = compiler.Func
type CompilerOutput = compiler.Output
type Diagnostic = compiler.Diagnostic

type CompilationError = artifact.CompilationError
type Artifact = isolation.Artifact
type References = isolation.References

type Kind = syntax.Kind
type Change = index.Change
type Journal = store.Store

// Symbol kinds.
const (
	KindType     = syntax.KindType
	KindMethod   = syntax.KindMethod
	KindProperty = syntax.KindProperty
	KindField    = syntax.KindField
	KindEvent    = syntax.KindEvent
)

// Symbol is one resolved entry returned by AllSymbols.
type Symbol struct {
	DocID string
	Kind  Kind
	Name  string
	Unit  string
	// File is the source path, or the file id for synthetic files.
	File     string
	Artifact *Artifact
}

// NewMemoryWorkspace returns an empty in-memory workspace.
func NewMemoryWorkspace() *MemoryWorkspace {
	return workspace.NewMemory()
}

// OpenDir scans root for C# projects.
func OpenDir(root string) (*DirWorkspace, error) {
	return workspace.OpenDir(root)
}

// ParseCompilerCommand builds a Compiler that runs an external front end.
func ParseCompilerCommand(line string) (Compiler, error) {
	return compiler.ParseCommand(line)
}
