package agents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
)

// fakeStore is the in-memory KnowledgeStore used by the agent tests.
type fakeStore struct {
	mu        sync.Mutex
	evidence  []*models.OperationEvidence
	sources   map[string]*models.Source
	subtasks  []*models.Subtask
	artifacts []*models.Artifact
}

func newFakeStore() *fakeStore {
	return &fakeStore{sources: map[string]*models.Source{}}
}

func (f *fakeStore) AppendEvidence(_ context.Context, operationID string, kind models.EvidenceKind, payload map[string]any, sourceURL, provider string, retrievedAt *time.Time) (*models.OperationEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.evidence = append(f.evidence, ev)
	return ev, nil
}

func (f *fakeStore) UpsertSource(_ context.Context, src *models.Source) (*models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.sources[src.URL]; ok {
		existing.AccessedAt = src.AccessedAt
		return existing, nil
	}
	cp := *src
	cp.ID = uuid.New().String()
	f.sources[src.URL] = &cp
	return &cp, nil
}

func (f *fakeStore) UpsertSubtask(_ context.Context, st *models.Subtask) (*models.Subtask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *st
	f.subtasks = append(f.subtasks, &cp)
	return &cp, nil
}

func (f *fakeStore) CreateArtifact(_ context.Context, art *models.Artifact) (*models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *art
	cp.ID = uuid.New().String()
	f.artifacts = append(f.artifacts, &cp)
	return &cp, nil
}

func (f *fakeStore) evidenceOfKind(kind models.EvidenceKind) []*models.OperationEvidence {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OperationEvidence
	for _, ev := range f.evidence {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
