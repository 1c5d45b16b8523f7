package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypeDecomposer is the registry key of the decomposer agent.
const AgentTypeDecomposer = "decomposer"

// Decomposition defaults applied when the request leaves them zero.
const (
	DefaultMaxDepth   = 3
	DefaultMaxBreadth = 5
)

// ErrDecompositionFailed indicates model output that could not be parsed
// into a topic tree even after extraction recovery.
var ErrDecompositionFailed = errors.New("decomposition_failed")

// TopicNode is one node of the decomposition tree.
type TopicNode struct {
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	KeyQuestions []string    `json:"key_questions,omitempty"`
	DataSources  []string    `json:"data_sources,omitempty"`
	Subtopics    []TopicNode `json:"subtopics,omitempty"`
}

// DecomposeRequest is the payload on TopicDecompose.
type DecomposeRequest struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MaxDepth    int    `json:"max_depth,omitempty"`
	MaxBreadth  int    `json:"max_breadth,omitempty"`
}

// DecomposeResult is the success reply payload.
type DecomposeResult struct {
	Tree TopicNode `json:"tree"`
}

// Decomposer prompts the LLM for a JSON topic tree.
type Decomposer struct {
	base
}

// NewDecomposer creates the decomposer agent.
func NewDecomposer(deps Deps) *Decomposer {
	return &Decomposer{base: newBase(AgentTypeDecomposer, TopicDecompose, deps)}
}

func (d *Decomposer) Start(ctx context.Context) error {
	return d.start(ctx, d.HandleEnvelope)
}

func (d *Decomposer) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req DecomposeRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		d.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxBreadth := req.MaxBreadth
	if maxBreadth <= 0 {
		maxBreadth = DefaultMaxBreadth
	}

	resp, err := d.deps.LLM.Complete(ctx, llm.Request{
		System: decomposeSystem,
		Prompt: decomposePrompt(req.Title, req.Description, maxDepth, maxBreadth),
	})
	if err != nil {
		d.replyErr(ctx, env, llmErrorKind(err), fmt.Errorf("decomposition completion: %w", err))
		return
	}

	var tree TopicNode
	if err := ParseJSONOrExtract(resp.Text, &tree); err != nil {
		d.replyErr(ctx, env, models.ErrKindParse,
			fmt.Errorf("%w: %w", ErrDecompositionFailed, err))
		return
	}
	if tree.Title == "" && tree.Description == "" {
		d.replyErr(ctx, env, models.ErrKindParse,
			fmt.Errorf("%w: empty root node", ErrDecompositionFailed))
		return
	}

	payload, err := encodePayload(DecomposeResult{Tree: tree})
	if err != nil {
		d.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	d.reply(ctx, env, okPayload(payload))
}

// llmErrorKind maps an LLM client error onto the failure taxonomy.
func llmErrorKind(err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return models.ErrKindCancelled
	case errors.Is(err, llm.ErrRateLimited):
		return models.ErrKindTransientNetwork
	default:
		return models.ErrKindProvider
	}
}
