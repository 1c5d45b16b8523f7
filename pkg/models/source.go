package models

import "time"

// Source is a canonical retrieved document, deduplicated by URL. Writing a
// source whose URL already exists updates accessed_at and merges non-null
// fields; it never inserts a duplicate.
type Source struct {
	ID            string    `json:"source_id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Provider      string    `json:"provider,omitempty"`
	ContentHash   *string   `json:"content_hash,omitempty"`
	ExtractedText *string   `json:"extracted_text,omitempty"`
	AccessedAt    time.Time `json:"accessed_at"`
	CreatedAt     time.Time `json:"created_at"`
}
