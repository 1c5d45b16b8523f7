package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nexus-research/nexus/pkg/models"
)

const taskColumns = `id, title, description, status, continuous_mode,
	continuous_interval_hours, run_counter, metadata, results, summary,
	reasoning, error, error_category, created_at, updated_at, completed_at`

// CreateOrUpdateTask upserts a task row. An existing row keeps its status
// and lifecycle fields; title/description/continuous settings are refreshed
// from the request. Idempotent under at-least-once queue delivery.
func (c *Client) CreateOrUpdateTask(ctx context.Context, req models.CreateTaskRequest) (*models.ResearchTask, error) {
	if req.TaskID == "" {
		return nil, NewValidationError("task_id", "required")
	}

	title := req.Title
	metadata, err := jsonbValue(req.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO research_tasks
			(id, title, description, status, continuous_mode, continuous_interval_hours, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			continuous_mode = EXCLUDED.continuous_mode,
			continuous_interval_hours = EXCLUDED.continuous_interval_hours,
			updated_at = EXCLUDED.updated_at
		RETURNING `+taskColumns,
		req.TaskID, ClipTitle(&title), req.Description, models.TaskStatusCreated,
		req.ContinuousMode, req.ContinuousIntervalHours, metadata, now)

	return scanTask(row)
}

// GetTask returns one task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM research_tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// ListTasks returns tasks matching the filters, newest first.
func (c *Client) ListTasks(ctx context.Context, filters models.TaskFilters) (*models.TaskListResponse, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.CreatedAfter != nil {
		args = append(args, *filters.CreatedAfter)
		where += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if filters.CreatedBefore != nil {
		args = append(args, *filters.CreatedBefore)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var total int
	if err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM research_tasks"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf("SELECT %s FROM research_tasks%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		taskColumns, where, len(args)-1, len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.ResearchTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.TaskListResponse{
		Tasks:      tasks,
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}, nil
}

// UpdateTaskStatus advances a task's status. Terminal rows reject further
// transitions, preserving the monotonic lifecycle.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	var completedAt any
	if status.Terminal() {
		completedAt = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE research_tasks
		SET status = $2, updated_at = $3, completed_at = COALESCE($4, completed_at)
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, status, time.Now().UTC(), completedAt)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return c.checkTaskWritable(ctx, taskID, res)
}

// SetTaskResults persists the pipeline output blobs on the task row.
func (c *Client) SetTaskResults(ctx context.Context, taskID string, results, summary, reasoning map[string]any) error {
	resultsV, err := jsonbValue(results)
	if err != nil {
		return err
	}
	summaryV, err := jsonbValue(summary)
	if err != nil {
		return err
	}
	reasoningV, err := jsonbValue(reasoning)
	if err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE research_tasks
		SET results = COALESCE($2, results),
		    summary = COALESCE($3, summary),
		    reasoning = COALESCE($4, reasoning),
		    updated_at = $5
		WHERE id = $1`,
		taskID, resultsV, summaryV, reasoningV, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set task results: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTaskFailed records a terminal failure with its error and category.
// Already-terminal rows are left untouched.
func (c *Client) MarkTaskFailed(ctx context.Context, taskID, errMsg, category string) error {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		UPDATE research_tasks
		SET status = 'failed', error = $2, error_category = $3,
		    metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('error', $2::text),
		    updated_at = $4, completed_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, errMsg, category, now)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return c.checkTaskWritable(ctx, taskID, res)
}

// IncrementRunCounter bumps the continuous-mode run counter and returns the
// new value.
func (c *Client) IncrementRunCounter(ctx context.Context, taskID string) (int, error) {
	var counter int
	err := c.db.QueryRowContext(ctx, `
		UPDATE research_tasks
		SET run_counter = run_counter + 1, updated_at = $2
		WHERE id = $1
		RETURNING run_counter`,
		taskID, time.Now().UTC()).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment run counter: %w", err)
	}
	return counter, nil
}

// ResetTaskForRerun returns a terminal continuous-mode task to created so
// its next scheduled run can advance through the pipeline again. The stage
// result blobs are cleared too: completed operation rows from earlier runs
// remain, and a stage without a persisted payload is what tells the
// pipeline to execute it rather than replay it.
func (c *Client) ResetTaskForRerun(ctx context.Context, taskID string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE research_tasks
		SET status = 'created', error = NULL, error_category = NULL,
		    completed_at = NULL, results = NULL, summary = NULL,
		    reasoning = NULL, updated_at = $2
		WHERE id = $1`,
		taskID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to reset task for rerun: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOldTasks removes terminal non-continuous tasks whose last update is
// older than retentionDays, cascading to subtasks, operations, evidence, and
// artifact rows. Returns the number of tasks deleted.
func (c *Client) DeleteOldTasks(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM research_tasks
		WHERE status IN ('completed', 'failed')
		  AND continuous_mode = FALSE
		  AND updated_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// checkTaskWritable distinguishes a missing row from a terminal one when a
// guarded update matched nothing.
func (c *Client) checkTaskWritable(ctx context.Context, taskID string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = c.db.QueryRowContext(ctx,
		"SELECT status FROM research_tasks WHERE id = $1", taskID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: task %s is %s", ErrAlreadyFinal, taskID, status)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.ResearchTask, error) {
	task := &models.ResearchTask{}
	var metadata, results, summary, reasoning []byte
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Status,
		&task.ContinuousMode, &task.ContinuousIntervalHours, &task.RunCounter,
		&metadata, &results, &summary, &reasoning,
		&task.Error, &task.ErrorCategory,
		&task.CreatedAt, &task.UpdatedAt, &task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if task.Metadata, err = scanJSONMap(metadata); err != nil {
		return nil, err
	}
	if task.Results, err = scanJSONMap(results); err != nil {
		return nil, err
	}
	if task.Summary, err = scanJSONMap(summary); err != nil {
		return nil, err
	}
	if task.Reasoning, err = scanJSONMap(reasoning); err != nil {
		return nil, err
	}
	return task, nil
}
