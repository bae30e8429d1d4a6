package store

import "sync"

// Batch buffers everything recorded about one generation while it builds,
// so the generation lands in the journal in a single transaction.
//
// Thread safety: the mutex protects the slices; a rebuild may record
// drained paths and symbol changes from different goroutines.
type Batch struct {
	mu sync.Mutex

	Generation Generation
	Paths      []string
	Changes    []SymbolChange
}

// NewBatch starts a batch for generation g.
func NewBatch(g Generation) *Batch {
	return &Batch{Generation: g}
}

// AddPaths records drained paths.
func (b *Batch) AddPaths(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Paths = append(b.Paths, paths...)
}

// AddChange records a symbol change.
func (b *Batch) AddChange(docID, change, patch string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Changes = append(b.Changes, SymbolChange{
		GenerationID: b.Generation.ID,
		DocID:        docID,
		Change:       change,
		Patch:        patch,
	})
}
