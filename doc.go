// Package symcache is an incremental symbol-to-artifact compilation cache
// for C# workspaces. It keeps an index from documentation ids (such as
// "M:Acme.Demo.Run(System.Int32)") to the source span that declares each
// public type, method, property, field, and event, and to a lazily compiled
// artifact of the unit that owns it.
//
// # Generations
//
// The index, the per-unit artifact cache, and the isolation context that
// artifacts are loaded into form one generation. The first read builds the
// initial generation. [Coordinator.InvalidateFile] records a changed path
// and schedules a rebuild once no further invalidations arrive for the
// debounce window; reads issued meanwhile wait for the rebuild and then see
// the complete new generation. Artifacts of the previous generation are
// unloaded when its replacement starts building.
//
// # Usage
//
//	ws, err := symcache.OpenDir("path/to/solution")
//	comp, err := symcache.ParseCompilerCommand("build-unit {path}")
//	c, err := symcache.New(ws, comp, symcache.WithDebounce(300*time.Millisecond))
//	if err != nil { ... }
//	defer c.Close()
//
//	text, err := c.Fragment(ctx, "M:Acme.Demo.Run", true)
//	out, err := c.ExecutionResult(ctx, "M:Acme.Demo.Run", "")
//
// # Errors
//
// Lookups of unknown ids return [ErrNotFound]. Units whose compilation
// reports errors fail with [*CompilationError] for their own symbols only;
// other units are unaffected. Workspace changes that cannot be applied
// drop the affected unit from the next generation and are logged.
package symcache
