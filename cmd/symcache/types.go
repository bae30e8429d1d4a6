package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbol is a JSON-friendly symbol representation.
type CLISymbol struct {
	DocID string `json:"doc_id"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Unit  string `json:"unit"`
	File  string `json:"file,omitempty"`
}

// CLIFragment is the source text of one declaration.
type CLIFragment struct {
	DocID    string `json:"doc_id"`
	BodyOnly bool   `json:"body_only"`
	Text     string `json:"text"`
}

// CLIExecution is one attachment produced by running a method.
type CLIExecution struct {
	DocID      string `json:"doc_id"`
	Attachment string `json:"attachment"`
	Output     string `json:"output"`
}

// CLICompileFailure is the structured form of a compilation failure.
type CLICompileFailure struct {
	DocID       string   `json:"doc_id"`
	Unit        string   `json:"unit"`
	Diagnostics []string `json:"diagnostics"`
}

// CLIGeneration is a journaled rebuild.
type CLIGeneration struct {
	ID           string           `json:"id"`
	Seq          int64            `json:"seq"`
	Reason       string           `json:"reason"`
	StartedAt    string           `json:"started_at"`
	DurationMS   int64            `json:"duration_ms"`
	Units        int              `json:"units"`
	Entries      int              `json:"entries"`
	Duplicates   int              `json:"duplicates"`
	SyncFailures int              `json:"sync_failures,omitempty"`
	Paths        []string         `json:"paths,omitempty"`
	Changes      []CLIChange      `json:"changes,omitempty"`
	Compilations []CLICompilation `json:"compilations,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// CLIChange is one symbol that changed in a generation.
type CLIChange struct {
	DocID  string `json:"doc_id"`
	Change string `json:"change"`
	Patch  string `json:"patch,omitempty"`
}

// CLICompilation is one journaled unit compile.
type CLICompilation struct {
	Unit        string   `json:"unit"`
	OK          bool     `json:"ok"`
	DurationMS  int64    `json:"duration_ms"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// CLISymbolChange is one journaled change of a single symbol.
type CLISymbolChange struct {
	GenerationID string `json:"generation_id"`
	Seq          int64  `json:"seq"`
	StartedAt    string `json:"started_at,omitempty"`
	DocID        string `json:"doc_id"`
	Change       string `json:"change"`
	Patch        string `json:"patch,omitempty"`
}
