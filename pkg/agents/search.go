package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/search"
)

// AgentTypeSearch is the registry key of the search agent.
const AgentTypeSearch = "search"

// SearchStageRequest is the payload on TopicSearching.
type SearchStageRequest struct {
	TaskID      string         `json:"task_id"`
	OperationID string         `json:"operation_id"`
	Questions   []PlanQuestion `json:"questions"`
}

// QuestionResponse carries one question's provider results and failures.
type QuestionResponse struct {
	SubtaskID string          `json:"subtask_id,omitempty"`
	Question  string          `json:"question"`
	Results   []search.Result `json:"results"`
	Errors    []string        `json:"errors,omitempty"`
}

// SearchStageResult is the success reply payload.
type SearchStageResult struct {
	Responses    []QuestionResponse `json:"responses"`
	ResultCount  int                `json:"result_count"`
	FailureCount int                `json:"failure_count"`
}

// SearchAgent fans leaf questions across the registered providers, records
// every hit and every provider failure as operation evidence, and upserts
// the retrieved sources. The stage never fails wholesale: a question whose
// providers all error still yields a response with its failures recorded.
type SearchAgent struct {
	base
	enumerator *Enumerator
}

// NewSearchAgent creates the search agent.
func NewSearchAgent(deps Deps) *SearchAgent {
	return &SearchAgent{
		base:       newBase(AgentTypeSearch, TopicSearching, deps),
		enumerator: NewEnumerator(deps.LLM, deps.Logger),
	}
}

func (s *SearchAgent) Start(ctx context.Context) error {
	return s.start(ctx, s.HandleEnvelope)
}

func (s *SearchAgent) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req SearchStageRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	result := &SearchStageResult{}
	for _, q := range req.Questions {
		resp := s.answerQuestion(ctx, req.OperationID, q)
		result.ResultCount += len(resp.Results)
		result.FailureCount += len(resp.Errors)
		result.Responses = append(result.Responses, resp)
	}

	payload, err := encodePayload(result)
	if err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	s.reply(ctx, env, okPayload(payload))
}

// answerQuestion runs one leaf question, expanding categorical constraints
// through the enumerator first.
func (s *SearchAgent) answerQuestion(ctx context.Context, operationID string, q PlanQuestion) QuestionResponse {
	resp := QuestionResponse{SubtaskID: q.SubtaskID, Question: q.Question}

	queries := []string{q.Question}
	if base, space, ok := splitCategoricalQuestion(q.Question); ok {
		queries = queries[:0]
		for _, sub := range s.enumerator.Enumerate(ctx, base, space) {
			queries = append(queries, sub.Query)
		}
	}

	for _, query := range queries {
		for _, provider := range s.deps.Search.Providers() {
			hits, err := provider.Search(ctx, query, search.Options{})
			if err != nil {
				resp.Errors = append(resp.Errors,
					fmt.Sprintf("%s: %v", provider.Name(), err))
				s.recordFailure(ctx, operationID, q.Question, provider.Name(), err)
				continue
			}
			for _, hit := range hits {
				resp.Results = append(resp.Results, hit)
				s.recordHit(ctx, operationID, q.Question, hit)
			}
		}
	}
	return resp
}

func (s *SearchAgent) recordHit(ctx context.Context, operationID, question string, hit search.Result) {
	now := time.Now().UTC()
	if _, err := s.deps.Store.UpsertSource(ctx, &models.Source{
		URL:        hit.URL,
		Title:      hit.Title,
		Provider:   hit.Provider,
		AccessedAt: now,
	}); err != nil {
		s.logger.Error("Failed to upsert source", "url", hit.URL, "error", err)
	}

	payload := map[string]any{
		"question": question,
		"title":    hit.Title,
		"url":      hit.URL,
		"snippet":  hit.Snippet,
	}
	if hit.Score > 0 {
		payload["score"] = hit.Score
	}
	if _, err := s.deps.Store.AppendEvidence(ctx, operationID,
		models.EvidenceSearchResult, payload, hit.URL, hit.Provider, &now); err != nil {
		s.logger.Error("Failed to append search evidence", "url", hit.URL, "error", err)
	}
}

func (s *SearchAgent) recordFailure(ctx context.Context, operationID, question, provider string, searchErr error) {
	now := time.Now().UTC()
	payload := map[string]any{
		"question":   question,
		"error":      searchErr.Error(),
		"error_kind": string(models.ErrKindProvider),
	}
	if _, err := s.deps.Store.AppendEvidence(ctx, operationID,
		models.EvidenceSearchResult, payload, "", provider, &now); err != nil {
		s.logger.Error("Failed to append failure evidence", "provider", provider, "error", err)
	}
}

// categoricalRe matches questions scoped to a place or category, e.g.
// "universities in Colombia" or "hospitals across New South Wales". The
// trailing capitalized phrase is the search space to enumerate.
var categoricalRe = regexp.MustCompile(`^(.*\S)\s+((?:in|across|throughout)\s+[A-Z][\w' ]*)$`)

// splitCategoricalQuestion splits a question into base query and search
// space when it carries a categorical constraint.
func splitCategoricalQuestion(question string) (base, space string, ok bool) {
	m := categoricalRe.FindStringSubmatch(strings.TrimSpace(question))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
