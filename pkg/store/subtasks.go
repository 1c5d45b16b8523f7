package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
)

// UpsertSubtask writes one decomposition node. Re-writing the same id
// refreshes the mutable fields, keeping the stage that owns the phase
// idempotent.
func (c *Client) UpsertSubtask(ctx context.Context, st *models.Subtask) (*models.Subtask, error) {
	if st.TaskID == "" {
		return nil, NewValidationError("task_id", "required")
	}
	if st.ID == "" {
		st.ID = uuid.New().String()
	}

	resultV, err := jsonbValue(st.Result)
	if err != nil {
		return nil, err
	}
	childIDsV, err := jsonbStrings(st.ChildIDs)
	if err != nil {
		return nil, err
	}
	status := st.Status
	if status == "" {
		status = models.SubtaskStatusPending
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, parent_id, description, status, agent_type, result, child_ids, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			agent_type = EXCLUDED.agent_type,
			result = COALESCE(EXCLUDED.result, subtasks.result),
			child_ids = COALESCE(EXCLUDED.child_ids, subtasks.child_ids),
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at`,
		st.ID, st.TaskID, st.ParentID, st.Description, status, st.AgentType,
		resultV, childIDsV, st.Position, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subtask: %w", err)
	}

	st.Status = status
	st.UpdatedAt = now
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	return st, nil
}

// ListSubtasks returns every decomposition node for a task in tree position
// order.
func (c *Client) ListSubtasks(ctx context.Context, taskID string) ([]*models.Subtask, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, task_id, parent_id, description, status, agent_type, result, child_ids, position, created_at, updated_at
		FROM subtasks WHERE task_id = $1 ORDER BY position, created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	items := []*models.Subtask{}
	for rows.Next() {
		st := &models.Subtask{}
		var result, childIDs []byte
		if err := rows.Scan(&st.ID, &st.TaskID, &st.ParentID, &st.Description,
			&st.Status, &st.AgentType, &result, &childIDs, &st.Position,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		if st.Result, err = scanJSONMap(result); err != nil {
			return nil, err
		}
		if st.ChildIDs, err = scanStrings(childIDs); err != nil {
			return nil, err
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

// UpdateSubtaskStatus moves one node through its lifecycle.
func (c *Client) UpdateSubtaskStatus(ctx context.Context, subtaskID string, status models.SubtaskStatus) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE subtasks SET status = $2, updated_at = $3 WHERE id = $1`,
		subtaskID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update subtask status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
