package store

import (
	"context"
	"fmt"
)

// PurgeAll deletes every row from every entity table. This is the explicit
// data-purge admin operation — the only path that removes evidence. The
// API layer gates it behind a confirmation token.
func (c *Client) PurgeAll(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Child tables first; research_tasks cascades would cover most of
	// these, but explicit order keeps the purge independent of FK wiring.
	for _, table := range []string{
		"operation_evidence",
		"task_operations",
		"subtasks",
		"artifacts",
		"sources",
		"research_tasks",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}
	return nil
}
