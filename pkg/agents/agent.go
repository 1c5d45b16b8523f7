// Package agents provides the stage handlers of the research pipeline. Each
// agent subscribes to exactly one request topic on the messaging bus,
// optionally queries the LLM or the search providers, writes evidence to the
// knowledge store, and replies on the canonical reply topic with the
// conversation id and in_reply_to copied from the request. Agents are
// stateless between invocations; all continuity lives in the knowledge store.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/search"
)

// Request topics, one per agent. Replies always go to TopicReplies.
const (
	TopicDecompose           = "nexus.agents.decompose"
	TopicPlanning            = "nexus.agents.planning"
	TopicSearching           = "nexus.agents.searching"
	TopicAggregating         = "nexus.agents.aggregating"
	TopicSummarizing         = "nexus.agents.summarizing"
	TopicReasoning           = "nexus.agents.reasoning"
	TopicGeneratingArtifacts = "nexus.agents.generating_artifacts"

	TopicReplies = "nexus.agents.replies"
)

// Agent is the uniform capability set every stage handler implements.
type Agent interface {
	// Type returns the stable agent_type registry key.
	Type() string

	// Start subscribes the agent to its request topic.
	Start(ctx context.Context) error

	// Stop removes the subscription. Idempotent.
	Stop() error

	// HandleEnvelope processes one request envelope. Exposed for direct
	// invocation in tests; normal delivery goes through the bus.
	HandleEnvelope(ctx context.Context, env *bus.Envelope)
}

// KnowledgeStore is the slice of the store the agents write through.
// Satisfied by *store.Client.
type KnowledgeStore interface {
	AppendEvidence(ctx context.Context, operationID string, kind models.EvidenceKind, payload map[string]any, sourceURL, provider string, retrievedAt *time.Time) (*models.OperationEvidence, error)
	UpsertSource(ctx context.Context, src *models.Source) (*models.Source, error)
	UpsertSubtask(ctx context.Context, st *models.Subtask) (*models.Subtask, error)
	CreateArtifact(ctx context.Context, art *models.Artifact) (*models.Artifact, error)
}

// Deps carries the shared collaborators injected into every agent
// constructor.
type Deps struct {
	Bus    *bus.Bus
	LLM    llm.Client
	Store  KnowledgeStore
	Search *search.Registry
	Logger *slog.Logger

	// StoragePath is the artifact output directory.
	StoragePath string
}

func (d Deps) logger(agentType string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("agent", agentType)
}

// base carries the subscription plumbing shared by all agents.
type base struct {
	agentType string
	topic     string
	deps      Deps
	logger    *slog.Logger
	sub       *bus.Subscription
}

func newBase(agentType, topic string, deps Deps) base {
	return base{
		agentType: agentType,
		topic:     topic,
		deps:      deps,
		logger:    deps.logger(agentType),
	}
}

func (b *base) Type() string { return b.agentType }

func (b *base) start(ctx context.Context, h bus.Handler) error {
	sub, err := b.deps.Bus.Subscribe(b.topic, h)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", b.agentType, b.topic, err)
	}
	b.sub = sub
	b.logger.Info("Agent started", "topic", b.topic)
	return nil
}

func (b *base) Stop() error {
	if b.sub != nil {
		b.deps.Bus.Unsubscribe(b.sub)
		b.sub = nil
		b.logger.Info("Agent stopped")
	}
	return nil
}

// reply publishes a result envelope on the reply topic. Publish failures
// are logged; the requester's wait will time out.
func (b *base) reply(ctx context.Context, req *bus.Envelope, payload map[string]any) {
	env := req.Reply(b.agentType, TopicReplies, payload)
	if err := b.deps.Bus.Publish(ctx, env); err != nil {
		b.logger.Error("Failed to publish reply",
			"conversation_id", req.ConversationID, "error", err)
	}
}

// replyErr publishes an error reply carrying the failure kind.
func (b *base) replyErr(ctx context.Context, req *bus.Envelope, kind models.ErrorKind, err error) {
	b.logger.Error("Agent request failed",
		"conversation_id", req.ConversationID,
		"error_kind", string(kind),
		"error", err)
	b.reply(ctx, req, map[string]any{
		"status":     "error",
		"error":      err.Error(),
		"error_kind": string(kind),
	})
}

// okPayload wraps result fields with the success status.
func okPayload(result map[string]any) map[string]any {
	if result == nil {
		result = map[string]any{}
	}
	result["status"] = "ok"
	return result
}

// decodePayload binds an envelope payload onto a typed request struct via a
// JSON round trip.
func decodePayload(payload map[string]any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// encodePayload converts a typed value into the envelope payload form.
func encodePayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}

// ReplyStatus extracts the status and error fields from a reply payload.
func ReplyStatus(payload map[string]any) (ok bool, kind models.ErrorKind, errMsg string) {
	status, _ := payload["status"].(string)
	if status == "ok" {
		return true, "", ""
	}
	k, _ := payload["error_kind"].(string)
	msg, _ := payload["error"].(string)
	return false, models.ErrorKind(k), msg
}
