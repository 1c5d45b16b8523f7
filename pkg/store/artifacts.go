package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
)

// CreateArtifact records one generated output for a task.
func (c *Client) CreateArtifact(ctx context.Context, art *models.Artifact) (*models.Artifact, error) {
	if art.TaskID == "" {
		return nil, NewValidationError("task_id", "required")
	}
	switch art.MediaKind {
	case models.MediaMarkdown, models.MediaJSON, models.MediaPDF:
	default:
		return nil, NewValidationError("media_kind", "must be markdown, json, or pdf")
	}

	if art.ID == "" {
		art.ID = uuid.New().String()
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now().UTC()
	}
	title := art.Title
	art.Title = ClipTitle(&title)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, task_id, title, media_kind, content, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		art.ID, art.TaskID, art.Title, art.MediaKind, art.Content, art.FilePath, art.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	return art, nil
}

// ListArtifacts returns a task's artifacts in creation order.
func (c *Client) ListArtifacts(ctx context.Context, taskID string) ([]*models.Artifact, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, task_id, title, media_kind, content, file_path, created_at
		FROM artifacts WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	items := []*models.Artifact{}
	for rows.Next() {
		art := &models.Artifact{}
		if err := rows.Scan(&art.ID, &art.TaskID, &art.Title, &art.MediaKind,
			&art.Content, &art.FilePath, &art.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, art)
	}
	return items, rows.Err()
}
