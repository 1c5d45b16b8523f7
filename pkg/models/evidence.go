package models

import "time"

// EvidenceKind classifies an append-only evidence record.
type EvidenceKind string

const (
	EvidenceSearchResult        EvidenceKind = "search_result"
	EvidenceExtractedFact       EvidenceKind = "extracted_fact"
	EvidenceSummaryFragment     EvidenceKind = "summary_fragment"
	EvidenceReasoningConclusion EvidenceKind = "reasoning_conclusion"
)

// OperationEvidence is an append-only record attached to an operation.
// Evidence is never deleted except by the explicit data-purge admin operation.
type OperationEvidence struct {
	ID          string         `json:"evidence_id"`
	OperationID string         `json:"operation_id"`
	Kind        EvidenceKind   `json:"kind"`
	Payload     map[string]any `json:"payload"`
	SourceURL   string         `json:"source_url,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	RetrievedAt *time.Time     `json:"retrieved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
