package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypeReasoner is the registry key of the reasoner agent.
const AgentTypeReasoner = "reasoner"

// ReasonRequest is the payload on TopicReasoning.
type ReasonRequest struct {
	TaskID      string  `json:"task_id"`
	OperationID string  `json:"operation_id"`
	Query       string  `json:"query"`
	Summary     Summary `json:"summary"`
}

// Reasoning is the structured higher-order analysis output.
type Reasoning struct {
	Synthesis       string   `json:"synthesis"`
	Contradictions  []string `json:"contradictions"`
	Credibility     string   `json:"credibility"`
	Gaps            []string `json:"gaps"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// ReasonResult is the success reply payload.
type ReasonResult struct {
	Reasoning Reasoning `json:"reasoning"`
}

// Reasoner performs higher-order analysis over the summary and records the
// conclusion as evidence.
type Reasoner struct {
	base
}

// NewReasoner creates the reasoner agent.
func NewReasoner(deps Deps) *Reasoner {
	return &Reasoner{base: newBase(AgentTypeReasoner, TopicReasoning, deps)}
}

func (r *Reasoner) Start(ctx context.Context) error {
	return r.start(ctx, r.HandleEnvelope)
}

func (r *Reasoner) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req ReasonRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		r.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	summaryJSON, err := json.Marshal(req.Summary)
	if err != nil {
		r.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	resp, err := r.deps.LLM.Complete(ctx, llm.Request{
		System: reasonSystem,
		Prompt: reasonPrompt(req.Query, string(summaryJSON)),
	})
	if err != nil {
		r.replyErr(ctx, env, llmErrorKind(err), fmt.Errorf("reasoning completion: %w", err))
		return
	}

	var reasoning Reasoning
	if err := ParseJSONOrExtract(resp.Text, &reasoning); err != nil {
		r.replyErr(ctx, env, models.ErrKindParse, fmt.Errorf("reasoning output: %w", err))
		return
	}

	evidence := map[string]any{
		"synthesis":       reasoning.Synthesis,
		"contradictions":  reasoning.Contradictions,
		"credibility":     reasoning.Credibility,
		"gaps":            reasoning.Gaps,
		"insights":        reasoning.Insights,
		"recommendations": reasoning.Recommendations,
	}
	if _, err := r.deps.Store.AppendEvidence(ctx, req.OperationID,
		models.EvidenceReasoningConclusion, evidence, "", "", nil); err != nil {
		r.replyErr(ctx, env, models.ErrKindStore, err)
		return
	}

	payload, err := encodePayload(ReasonResult{Reasoning: reasoning})
	if err != nil {
		r.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	r.reply(ctx, env, okPayload(payload))
}

// PlaceholderReasoning is recorded when reasoning fails past its retry.
func PlaceholderReasoning(query string) Reasoning {
	return Reasoning{
		Synthesis:       fmt.Sprintf("Reasoning unavailable for %q; analysis failed.", query),
		Contradictions:  []string{},
		Gaps:            []string{},
		Insights:        []string{},
		Recommendations: []string{},
	}
}
