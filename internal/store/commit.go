package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts a buffered generation with its drained paths and
// symbol changes within a single transaction. The generation row goes
// first; the other rows reference it.
func (s *Store) CommitBatch(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	g := &batch.Generation
	if g.Seq == 0 {
		if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM generations").Scan(&g.Seq); err != nil {
			return fmt.Errorf("commit batch: next seq: %w", err)
		}
	}
	if err := insertGenerationTx(tx, g); err != nil {
		return fmt.Errorf("commit batch: generation %s: %w", g.ID, err)
	}

	for _, p := range batch.Paths {
		if _, err := tx.Exec(
			"INSERT INTO generation_changes (generation_id, path) VALUES (?, ?)", g.ID, p,
		); err != nil {
			return fmt.Errorf("commit batch: path %q: %w", p, err)
		}
	}

	for i := range batch.Changes {
		c := &batch.Changes[i]
		c.GenerationID = g.ID
		id, err := insertSymbolChangeTx(tx, c)
		if err != nil {
			return fmt.Errorf("commit batch: symbol change %q: %w", c.DocID, err)
		}
		c.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}

func insertGenerationTx(tx *sql.Tx, g *Generation) error {
	_, err := tx.Exec(
		`INSERT INTO generations (id, seq, reason, started_at, finished_at, units, entries,
			duplicates, sync_failures, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Seq, g.Reason, g.StartedAt, g.FinishedAt, g.Units, g.Entries,
		g.Duplicates, g.SyncFailures, g.Error,
	)
	return err
}

func insertSymbolChangeTx(tx *sql.Tx, c *SymbolChange) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO symbol_changes (generation_id, doc_id, change, patch) VALUES (?, ?, ?, ?)",
		c.GenerationID, c.DocID, c.Change, c.Patch,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
