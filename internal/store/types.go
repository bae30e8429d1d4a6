package store

import "time"

// Generation is one completed (or failed) index build.
type Generation struct {
	ID           string
	Seq          int64
	Reason       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Units        int
	Entries      int
	Duplicates   int
	SyncFailures int
	Error        string
}

// Compilation is one unit compile within a generation.
type Compilation struct {
	ID           int64
	GenerationID string
	Unit         string
	OK           bool
	Diagnostics  []string
	Duration     time.Duration
}

// SymbolChange is one symbol that differs from the previous generation.
type SymbolChange struct {
	ID           int64
	GenerationID string
	DocID        string
	Change       string
	Patch        string
}
