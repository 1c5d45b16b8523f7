package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypePlanner is the registry key of the planner agent.
const AgentTypePlanner = "planner"

// Agent types assigned to subtasks by structure.
const (
	subtaskAgentBrowser    = "search_browser"
	subtaskAgentQuery      = "search_query"
	subtaskAgentSummarizer = "summarizer"
)

// PlanRequest is the payload on TopicPlanning.
type PlanRequest struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MaxDepth    int    `json:"max_depth,omitempty"`
	MaxBreadth  int    `json:"max_breadth,omitempty"`
}

// PlanQuestion is one leaf sub-question handed to the searching stage.
type PlanQuestion struct {
	SubtaskID string `json:"subtask_id"`
	Question  string `json:"question"`
}

// PlanResult is the success reply payload.
type PlanResult struct {
	SubtaskCount int            `json:"subtask_count"`
	LeafCount    int            `json:"leaf_count"`
	Questions    []PlanQuestion `json:"questions"`
}

// Planner obtains a decomposition via a correlated bus request, persists the
// subtask tree with expected-time estimates, and returns the leaf questions.
type Planner struct {
	base
}

// NewPlanner creates the planner agent.
func NewPlanner(deps Deps) *Planner {
	return &Planner{base: newBase(AgentTypePlanner, TopicPlanning, deps)}
}

func (p *Planner) Start(ctx context.Context) error {
	return p.start(ctx, p.HandleEnvelope)
}

func (p *Planner) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req PlanRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		p.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	tree, kind, err := p.decompose(ctx, req)
	if err != nil {
		p.replyErr(ctx, env, kind, err)
		return
	}

	// A tree with no usable root degrades to a single leaf carrying the
	// task description.
	if tree.Title == "" && tree.Description == "" && len(tree.Subtopics) == 0 {
		tree = &TopicNode{Title: req.Title, Description: req.Description}
	}

	plan, err := p.persistPlan(ctx, req.TaskID, tree)
	if err != nil {
		p.replyErr(ctx, env, models.ErrKindStore, err)
		return
	}

	payload, err := encodePayload(plan)
	if err != nil {
		p.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	p.reply(ctx, env, okPayload(payload))
}

// decompose issues the correlated decomposition request on the bus.
func (p *Planner) decompose(ctx context.Context, req PlanRequest) (*TopicNode, models.ErrorKind, error) {
	payload, err := encodePayload(DecomposeRequest{
		TaskID:      req.TaskID,
		Title:       req.Title,
		Description: req.Description,
		MaxDepth:    req.MaxDepth,
		MaxBreadth:  req.MaxBreadth,
	})
	if err != nil {
		return nil, models.ErrKindParse, err
	}
	request := bus.NewEnvelope(p.agentType, TopicDecompose, payload)
	request.ConversationID = uuid.New().String()

	if err := p.deps.Bus.Publish(ctx, request); err != nil {
		return nil, models.ErrKindCancelled, fmt.Errorf("failed to publish decompose request: %w", err)
	}
	reply, err := p.deps.Bus.WaitForReply(ctx, TopicReplies, request.ConversationID, request.MessageID, -1)
	if err != nil {
		return nil, models.ErrKindTimeout, fmt.Errorf("decompose wait: %w", err)
	}
	if ok, kind, msg := ReplyStatus(reply.Payload); !ok {
		return nil, kind, fmt.Errorf("decompose failed: %s", msg)
	}

	var result DecomposeResult
	if err := decodePayload(reply.Payload, &result); err != nil {
		return nil, models.ErrKindParse, err
	}
	return &result.Tree, "", nil
}

// persistPlan walks the tree breadth-first, writing subtask rows in schedule
// order: parents before children, siblings side by side.
func (p *Planner) persistPlan(ctx context.Context, taskID string, root *TopicNode) (*PlanResult, error) {
	type queued struct {
		node     *TopicNode
		parentID *string
		depth    int
	}

	plan := &PlanResult{}
	position := 0
	queue := []queued{{node: root, depth: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		node := item.node
		subtaskID := uuid.New().String()
		description := node.Description
		if description == "" {
			description = node.Title
		}

		st := &models.Subtask{
			ID:          subtaskID,
			TaskID:      taskID,
			ParentID:    item.parentID,
			Description: description,
			Status:      models.SubtaskStatusScheduled,
			AgentType:   selectAgentType(node),
			Position:    position,
			Result: map[string]any{
				"title":         node.Title,
				"depth":         item.depth,
				"expected_time": expectedTime(item.depth, len(node.Subtopics), len(node.KeyQuestions)),
			},
		}
		if _, err := p.deps.Store.UpsertSubtask(ctx, st); err != nil {
			return nil, fmt.Errorf("failed to persist subtask: %w", err)
		}
		position++
		plan.SubtaskCount++

		if len(node.Subtopics) == 0 {
			plan.LeafCount++
			for _, q := range leafQuestions(node) {
				plan.Questions = append(plan.Questions, PlanQuestion{
					SubtaskID: subtaskID,
					Question:  q,
				})
			}
			continue
		}
		for i := range node.Subtopics {
			queue = append(queue, queued{
				node:     &node.Subtopics[i],
				parentID: &subtaskID,
				depth:    item.depth + 1,
			})
		}
	}
	return plan, nil
}

// expectedTime is the planning time estimate for one subtask:
// 1 + 2/(depth+1) + 0.5·children + 0.2·key_questions.
func expectedTime(depth, children, keyQuestions int) float64 {
	return 1 + 2/float64(depth+1) + 0.5*float64(children) + 0.2*float64(keyQuestions)
}

// selectAgentType picks the handler for a subtask from its structure: a leaf
// with concrete URLs gets the browser-style search agent, a leaf without
// gets the query search agent, a non-leaf gets the summarizer.
func selectAgentType(node *TopicNode) string {
	if len(node.Subtopics) > 0 {
		return subtaskAgentSummarizer
	}
	for _, src := range node.DataSources {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			return subtaskAgentBrowser
		}
	}
	return subtaskAgentQuery
}

// leafQuestions returns a leaf's searchable questions, falling back to its
// description when the model supplied none.
func leafQuestions(node *TopicNode) []string {
	if len(node.KeyQuestions) > 0 {
		return node.KeyQuestions
	}
	if node.Description != "" {
		return []string{node.Description}
	}
	if node.Title != "" {
		return []string{node.Title}
	}
	return nil
}
