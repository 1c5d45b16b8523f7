package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/llm"
)

// Subspace is one enumerated slice of a search space.
type Subspace struct {
	ID       string            `json:"id"`
	Query    string            `json:"query"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Enumerator expands a categorical search-space constraint into the next
// hierarchical level (country → states/provinces/departments, state →
// counties, and so on) by prompting the LLM.
type Enumerator struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewEnumerator creates an enumerator on the given completion client.
func NewEnumerator(client llm.Client, logger *slog.Logger) *Enumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{llm: client, logger: logger.With("component", "enumerator")}
}

type enumerationResponse struct {
	Subspaces []struct {
		Name  string `json:"name"`
		Query string `json:"query"`
		Type  string `json:"type"`
	} `json:"subspaces"`
}

// Enumerate returns the ordered subspaces for baseQuery within searchSpace.
// It never fails: malformed model output degrades to one direct subspace
// querying "{base_query} {search_space}", and an LLM error does the same
// with the error recorded in the subspace metadata.
func (e *Enumerator) Enumerate(ctx context.Context, baseQuery, searchSpace string) []Subspace {
	resp, err := e.llm.Complete(ctx, llm.Request{
		System: enumerateSystem,
		Prompt: enumeratePrompt(baseQuery, searchSpace),
	})
	if err != nil {
		e.logger.Warn("Enumeration completion failed, falling back to direct query",
			"search_space", searchSpace, "error", err)
		sub := directSubspace(baseQuery, searchSpace)
		sub.Metadata["error"] = err.Error()
		return []Subspace{sub}
	}

	var parsed enumerationResponse
	if parseErr := ParseJSONOrExtract(resp.Text, &parsed); parseErr != nil || len(parsed.Subspaces) == 0 {
		e.logger.Warn("Enumeration output unparseable, falling back to direct query",
			"search_space", searchSpace, "error", parseErr)
		return []Subspace{directSubspace(baseQuery, searchSpace)}
	}

	out := make([]Subspace, 0, len(parsed.Subspaces))
	for _, s := range parsed.Subspaces {
		if s.Query == "" {
			continue
		}
		meta := map[string]string{"name": s.Name}
		if s.Type != "" {
			meta["type"] = s.Type
		}
		out = append(out, Subspace{
			ID:       uuid.New().String(),
			Query:    s.Query,
			Metadata: meta,
		})
	}
	if len(out) == 0 {
		return []Subspace{directSubspace(baseQuery, searchSpace)}
	}
	return out
}

func directSubspace(baseQuery, searchSpace string) Subspace {
	return Subspace{
		ID:       uuid.New().String(),
		Query:    fmt.Sprintf("%s %s", baseQuery, searchSpace),
		Metadata: map[string]string{"type": "direct"},
	}
}
