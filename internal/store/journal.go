package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Compilation operations ---

// InsertCompilation records one unit compile. Compiles happen lazily after
// their generation is committed, so they are written individually.
func (s *Store) InsertCompilation(c *Compilation) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO compilations (generation_id, unit, ok, diagnostics, duration_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		c.GenerationID, c.Unit, c.OK, marshalStrings(c.Diagnostics), c.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert compilation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return id, nil
}

func (s *Store) CompilationsForGeneration(genID string) ([]*Compilation, error) {
	rows, err := s.db.Query(
		`SELECT id, generation_id, unit, ok, diagnostics, duration_ms
		 FROM compilations WHERE generation_id = ? ORDER BY id`, genID,
	)
	if err != nil {
		return nil, fmt.Errorf("compilations for generation: %w", err)
	}
	defer rows.Close()
	var out []*Compilation
	for rows.Next() {
		c := &Compilation{}
		var diags string
		var ms int64
		if err := rows.Scan(&c.ID, &c.GenerationID, &c.Unit, &c.OK, &diags, &ms); err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		c.Diagnostics = unmarshalStrings(diags)
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Generation operations ---

const generationColumns = `id, seq, reason, started_at, finished_at, units, entries,
	duplicates, sync_failures, error`

func scanGeneration(row interface{ Scan(...any) error }) (*Generation, error) {
	g := &Generation{}
	err := row.Scan(&g.ID, &g.Seq, &g.Reason, &g.StartedAt, &g.FinishedAt, &g.Units,
		&g.Entries, &g.Duplicates, &g.SyncFailures, &g.Error)
	return g, err
}

// Generations returns the most recent generations, newest first. A limit
// of zero or less returns all of them.
func (s *Store) Generations(limit int) ([]*Generation, error) {
	query := "SELECT " + generationColumns + " FROM generations ORDER BY seq DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("generations: %w", err)
	}
	defer rows.Close()
	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GenerationByID returns the generation with id, or nil if there is none.
func (s *Store) GenerationByID(id string) (*Generation, error) {
	g, err := scanGeneration(s.db.QueryRow(
		"SELECT "+generationColumns+" FROM generations WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("generation by id: %w", err)
	}
	return g, nil
}

func (s *Store) PathsForGeneration(genID string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT path FROM generation_changes WHERE generation_id = ? ORDER BY id", genID,
	)
	if err != nil {
		return nil, fmt.Errorf("paths for generation: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep generations and their rows.
func (s *Store) Prune(keep int) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM generations WHERE id NOT IN (
			SELECT id FROM generations ORDER BY seq DESC LIMIT ?)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// --- Symbol change operations ---

func (s *Store) SymbolChangesForGeneration(genID string) ([]*SymbolChange, error) {
	return s.querySymbolChanges(
		`SELECT id, generation_id, doc_id, change, patch
		 FROM symbol_changes WHERE generation_id = ? ORDER BY id`, genID,
	)
}

// SymbolHistory returns every recorded change of docID, newest first.
func (s *Store) SymbolHistory(docID string) ([]*SymbolChange, error) {
	return s.querySymbolChanges(
		`SELECT c.id, c.generation_id, c.doc_id, c.change, c.patch
		 FROM symbol_changes c JOIN generations g ON g.id = c.generation_id
		 WHERE c.doc_id = ? ORDER BY g.seq DESC, c.id DESC`, docID,
	)
}

func (s *Store) querySymbolChanges(query string, args ...any) ([]*SymbolChange, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("symbol changes: %w", err)
	}
	defer rows.Close()
	var out []*SymbolChange
	for rows.Next() {
		c := &SymbolChange{}
		if err := rows.Scan(&c.ID, &c.GenerationID, &c.DocID, &c.Change, &c.Patch); err != nil {
			return nil, fmt.Errorf("scan symbol change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
