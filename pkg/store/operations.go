package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
)

const operationColumns = `id, task_id, stage, status, started_at, ended_at,
	error, retry_marker, counts`

// OpenOperation records the start of one stage execution and returns the
// new row.
func (c *Client) OpenOperation(ctx context.Context, taskID string, stage models.Stage) (*models.TaskOperation, error) {
	if taskID == "" {
		return nil, NewValidationError("task_id", "required")
	}
	op := &models.TaskOperation{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Stage:     stage,
		Status:    models.OperationStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO task_operations (id, task_id, stage, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		op.ID, op.TaskID, op.Stage, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation: %w", err)
	}
	return op, nil
}

// CloseOperation finalizes an operation row with its terminal status,
// counts, and error. A row that already reached a final status rejects the
// write with ErrAlreadyFinal; only the retry-marker increment may touch it
// afterwards.
func (c *Client) CloseOperation(ctx context.Context, operationID string, status models.OperationStatus, counts map[string]int, opErr string) error {
	if !status.Final() {
		return NewValidationError("status", "must be a final status")
	}
	countsV, err := jsonbCounts(counts)
	if err != nil {
		return err
	}
	var errField any
	if opErr != "" {
		errField = opErr
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE task_operations
		SET status = $2, ended_at = $3, counts = $4, error = $5
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		operationID, status, time.Now().UTC(), countsV, errField)
	if err != nil {
		return fmt.Errorf("failed to close operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := c.db.QueryRowContext(ctx,
			"SELECT status FROM task_operations WHERE id = $1", operationID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: operation %s is %s", ErrAlreadyFinal, operationID, current)
	}
	return nil
}

// IncrementRetryMarker applies the single write a finalized operation still
// accepts: one +1 per retry event id. Replaying the same event id is a
// no-op, keeping the marker idempotent under duplicate delivery. The guard
// remembers only the most recent event id, so an out-of-order replay that
// interleaves two different ids (A, B, A) counts the stale id again; the
// marker is a monitoring aid, not an exact retry count.
func (c *Client) IncrementRetryMarker(ctx context.Context, operationID, retryEventID string) error {
	if retryEventID == "" {
		return NewValidationError("retry_event_id", "required")
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE task_operations
		SET retry_marker = retry_marker + 1, last_retry_event_id = $2
		WHERE id = $1 AND (last_retry_event_id IS NULL OR last_retry_event_id <> $2)`,
		operationID, retryEventID)
	if err != nil {
		return fmt.Errorf("failed to increment retry marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the row is absent or this event id was already applied.
		var exists bool
		if err := c.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM task_operations WHERE id = $1)", operationID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// HasCompletedOperation reports whether the (task, stage) pair already has
// a completed execution. The pipeline skips such stages on replay.
func (c *Client) HasCompletedOperation(ctx context.Context, taskID string, stage models.Stage) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM task_operations
			WHERE task_id = $1 AND stage = $2 AND status = 'completed'
		)`, taskID, stage).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completed operation: %w", err)
	}
	return exists, nil
}

// GetOperation returns one operation row by id.
func (c *Client) GetOperation(ctx context.Context, operationID string) (*models.TaskOperation, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM task_operations WHERE id = $1`, operationID)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return op, err
}

// ListOperations returns all operations for a task in start order.
func (c *Client) ListOperations(ctx context.Context, taskID string) ([]*models.TaskOperation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM task_operations WHERE task_id = $1 ORDER BY started_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*models.TaskOperation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanOperation(row rowScanner) (*models.TaskOperation, error) {
	op := &models.TaskOperation{}
	var counts []byte
	err := row.Scan(
		&op.ID, &op.TaskID, &op.Stage, &op.Status,
		&op.StartedAt, &op.EndedAt, &op.Error, &op.RetryMarker, &counts,
	)
	if err != nil {
		return nil, err
	}
	if op.Counts, err = scanCounts(counts); err != nil {
		return nil, err
	}
	return op, nil
}
