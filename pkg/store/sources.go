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

const sourceColumns = `id, url, title, provider, content_hash, extracted_text, accessed_at, created_at`

// UpsertSource writes a canonical retrieved document, deduplicating by URL.
// An existing row keeps its established fields; the write advances
// accessed_at to the later of the two timestamps and fills fields the row
// does not have yet. A duplicate URL never inserts a second row.
func (c *Client) UpsertSource(ctx context.Context, src *models.Source) (*models.Source, error) {
	if src.URL == "" {
		return nil, NewValidationError("url", "required")
	}

	id := src.ID
	if id == "" {
		id = uuid.New().String()
	}
	accessedAt := src.AccessedAt
	if accessedAt.IsZero() {
		accessedAt = time.Now().UTC()
	}
	title := src.Title

	row := c.db.QueryRowContext(ctx, `
		INSERT INTO sources (id, url, title, provider, content_hash, extracted_text, accessed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (url) DO UPDATE SET
			accessed_at = GREATEST(sources.accessed_at, EXCLUDED.accessed_at),
			title = CASE WHEN sources.title = 'Untitled' THEN EXCLUDED.title ELSE sources.title END,
			provider = CASE WHEN sources.provider = '' THEN EXCLUDED.provider ELSE sources.provider END,
			content_hash = COALESCE(sources.content_hash, EXCLUDED.content_hash),
			extracted_text = COALESCE(sources.extracted_text, EXCLUDED.extracted_text)
		RETURNING `+sourceColumns,
		id, src.URL, ClipTitle(&title), src.Provider, src.ContentHash, src.ExtractedText, accessedAt)

	return scanSource(row)
}

// GetSourceByURL returns the canonical row for a URL.
func (c *Client) GetSourceByURL(ctx context.Context, url string) (*models.Source, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE url = $1`, url)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

// CountSources returns the total number of canonical sources.
func (c *Client) CountSources(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return n, nil
}

func scanSource(row rowScanner) (*models.Source, error) {
	src := &models.Source{}
	err := row.Scan(&src.ID, &src.URL, &src.Title, &src.Provider,
		&src.ContentHash, &src.ExtractedText, &src.AccessedAt, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	return src, nil
}
