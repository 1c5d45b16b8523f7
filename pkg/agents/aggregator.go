package agents

import (
	"context"
	"sort"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypeAggregator is the registry key of the aggregator agent.
const AgentTypeAggregator = "aggregator"

// AggregateRequest is the payload on TopicAggregating.
type AggregateRequest struct {
	TaskID      string             `json:"task_id"`
	OperationID string             `json:"operation_id"`
	Responses   []QuestionResponse `json:"responses"`
}

// AggregatedSource is one deduplicated source with unioned key points and
// the questions that surfaced it.
type AggregatedSource struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Provider  string   `json:"provider"`
	Snippet   string   `json:"snippet"`
	KeyPoints []string `json:"key_points,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// AggregateResult is the success reply payload.
type AggregateResult struct {
	Sources   []AggregatedSource `json:"sources"`
	KeyPoints []string           `json:"key_points"`
}

// Aggregator normalizes the per-question search responses: deduplicates
// sources by URL (longest snippet wins, first retrieval wins ties), unions
// key points into one set, and preserves which questions surfaced each
// source.
type Aggregator struct {
	base
}

// NewAggregator creates the aggregator agent.
func NewAggregator(deps Deps) *Aggregator {
	return &Aggregator{base: newBase(AgentTypeAggregator, TopicAggregating, deps)}
}

func (a *Aggregator) Start(ctx context.Context) error {
	return a.start(ctx, a.HandleEnvelope)
}

func (a *Aggregator) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req AggregateRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	result := Aggregate(req.Responses)

	for _, src := range result.Sources {
		payload := map[string]any{
			"url":        src.URL,
			"title":      src.Title,
			"key_points": src.KeyPoints,
			"questions":  src.Questions,
		}
		if _, err := a.deps.Store.AppendEvidence(ctx, req.OperationID,
			models.EvidenceExtractedFact, payload, src.URL, src.Provider, nil); err != nil {
			a.replyErr(ctx, env, models.ErrKindStore, err)
			return
		}
	}

	payload, err := encodePayload(result)
	if err != nil {
		a.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	a.reply(ctx, env, okPayload(payload))
}

// Aggregate performs the pure normalization. Exported for direct use in
// tests and the pipeline's counting.
func Aggregate(responses []QuestionResponse) *AggregateResult {
	order := []string{}
	byURL := map[string]*AggregatedSource{}
	keyPointSet := map[string]struct{}{}

	for _, resp := range responses {
		for _, hit := range resp.Results {
			if hit.Snippet != "" {
				keyPointSet[hit.Snippet] = struct{}{}
			}
			existing, seen := byURL[hit.URL]
			if !seen {
				src := &AggregatedSource{
					URL:      hit.URL,
					Title:    hit.Title,
					Provider: hit.Provider,
					Snippet:  hit.Snippet,
				}
				byURL[hit.URL] = src
				order = append(order, hit.URL)
				existing = src
			} else if len(hit.Snippet) > len(existing.Snippet) {
				// Longest extracted text wins; on a tie the first
				// retrieval is kept.
				existing.Title = hit.Title
				existing.Provider = hit.Provider
				existing.Snippet = hit.Snippet
			}
			existing.KeyPoints = appendUnique(existing.KeyPoints, hit.Snippet)
			existing.Questions = appendUnique(existing.Questions, resp.Question)
		}
	}

	result := &AggregateResult{}
	for _, url := range order {
		result.Sources = append(result.Sources, *byURL[url])
	}
	result.KeyPoints = make([]string, 0, len(keyPointSet))
	for kp := range keyPointSet {
		result.KeyPoints = append(result.KeyPoints, kp)
	}
	sort.Strings(result.KeyPoints)
	return result
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
