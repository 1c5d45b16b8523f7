package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
)

// AppendEvidence writes one append-only evidence record and returns it with
// its store-generated id.
func (c *Client) AppendEvidence(ctx context.Context, operationID string, kind models.EvidenceKind, payload map[string]any, sourceURL, provider string, retrievedAt *time.Time) (*models.OperationEvidence, error) {
	if operationID == "" {
		return nil, NewValidationError("operation_id", "required")
	}
	payloadV, err := jsonbValue(payload)
	if err != nil {
		return nil, err
	}

	ev := &models.OperationEvidence{
		ID:          uuid.New().String(),
		OperationID: operationID,
		Kind:        kind,
		Payload:     payload,
		SourceURL:   sourceURL,
		Provider:    provider,
		RetrievedAt: retrievedAt,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO operation_evidence (id, operation_id, kind, payload, source_url, provider, retrieved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.OperationID, ev.Kind, payloadV, ev.SourceURL, ev.Provider, ev.RetrievedAt, ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append evidence: %w", err)
	}
	return ev, nil
}

// ListEvidence returns all evidence for an operation in creation order.
func (c *Client) ListEvidence(ctx context.Context, operationID string) ([]*models.OperationEvidence, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, operation_id, kind, payload, source_url, provider, retrieved_at, created_at
		FROM operation_evidence WHERE operation_id = $1 ORDER BY created_at`, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	items := []*models.OperationEvidence{}
	for rows.Next() {
		ev := &models.OperationEvidence{}
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.OperationID, &ev.Kind, &payload,
			&ev.SourceURL, &ev.Provider, &ev.RetrievedAt, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if ev.Payload, err = scanJSONMap(payload); err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	return items, rows.Err()
}

// CountEvidence returns the evidence count per kind for an operation,
// feeding the phase_completed counts.
func (c *Client) CountEvidence(ctx context.Context, operationID string) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM operation_evidence
		WHERE operation_id = $1 GROUP BY kind`, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count evidence: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
