package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypeSummarizer is the registry key of the summarizer agent.
const AgentTypeSummarizer = "summarizer"

// SummarizeRequest is the payload on TopicSummarizing.
type SummarizeRequest struct {
	TaskID      string           `json:"task_id"`
	OperationID string           `json:"operation_id"`
	Query       string           `json:"query"`
	Bundle      *AggregateResult `json:"bundle"`
}

// Summary is the structured summarization output.
type Summary struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyFindings      []string `json:"key_findings"`
	Sources          []string `json:"sources"`
}

// SummarizeResult is the success reply payload.
type SummarizeResult struct {
	Summary Summary `json:"summary"`
}

// Summarizer prompts the LLM for a structured summary of the aggregated
// bundle and records it as evidence.
type Summarizer struct {
	base
}

// NewSummarizer creates the summarizer agent.
func NewSummarizer(deps Deps) *Summarizer {
	return &Summarizer{base: newBase(AgentTypeSummarizer, TopicSummarizing, deps)}
}

func (s *Summarizer) Start(ctx context.Context) error {
	return s.start(ctx, s.HandleEnvelope)
}

func (s *Summarizer) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req SummarizeRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	bundleJSON, err := json.Marshal(req.Bundle)
	if err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.Request{
		System: summarizeSystem,
		Prompt: summarizePrompt(req.Query, string(bundleJSON)),
	})
	if err != nil {
		s.replyErr(ctx, env, llmErrorKind(err), fmt.Errorf("summarization completion: %w", err))
		return
	}

	var summary Summary
	if err := ParseJSONOrExtract(resp.Text, &summary); err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, fmt.Errorf("summary output: %w", err))
		return
	}

	evidence := map[string]any{
		"executive_summary": summary.ExecutiveSummary,
		"key_findings":      summary.KeyFindings,
		"sources":           summary.Sources,
	}
	if _, err := s.deps.Store.AppendEvidence(ctx, req.OperationID,
		models.EvidenceSummaryFragment, evidence, "", "", nil); err != nil {
		s.replyErr(ctx, env, models.ErrKindStore, err)
		return
	}

	payload, err := encodePayload(SummarizeResult{Summary: summary})
	if err != nil {
		s.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	s.reply(ctx, env, okPayload(payload))
}

// PlaceholderSummary is recorded when summarization fails past its retry.
func PlaceholderSummary(query string) Summary {
	return Summary{
		ExecutiveSummary: fmt.Sprintf("Summary unavailable for %q; summarization failed.", query),
		KeyFindings:      []string{},
		Sources:          []string{},
	}
}
