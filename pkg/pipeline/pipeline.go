// Package pipeline drives one research task through the staged orchestration
// sequence: planning, searching, aggregating, summarizing, reasoning,
// generating_artifacts. Each stage execution is a correlated request/reply to
// the responsible agent over the messaging bus, bracketed by an operation row
// in the knowledge store and phase events on the monitoring bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/agents"
	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/metrics"
	"github.com/nexus-research/nexus/pkg/models"
)

const senderName = "pipeline"

// Store is the slice of the knowledge store the pipeline needs.
// *store.Client satisfies it.
type Store interface {
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	SetTaskResults(ctx context.Context, taskID string, results, summary, reasoning map[string]any) error
	OpenOperation(ctx context.Context, taskID string, stage models.Stage) (*models.TaskOperation, error)
	CloseOperation(ctx context.Context, operationID string, status models.OperationStatus, counts map[string]int, opErr string) error
	HasCompletedOperation(ctx context.Context, taskID string, stage models.Stage) (bool, error)
	IncrementRetryMarker(ctx context.Context, operationID, retryEventID string) error
}

// Result is the accumulated output of a full pipeline run. Results holds the
// raw reply payload of every stage keyed by stage name; Summary and Reasoning
// are the final blobs persisted onto the task row.
type Result struct {
	Results   map[string]any
	Summary   map[string]any
	Reasoning map[string]any
}

// Pipeline executes research tasks. One Pipeline is shared by all workers in
// a process; it holds no per-task state.
type Pipeline struct {
	bus    *bus.Bus
	store  Store
	events *events.Publisher
	cfg    *config.QueueConfig
	logger *slog.Logger
}

// New creates a pipeline. events may be nil when monitoring is disabled.
func New(b *bus.Bus, store Store, pub *events.Publisher, cfg *config.QueueConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		bus:    b,
		store:  store,
		events: pub,
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
	}
}

// run carries the inter-stage data of one execution.
type run struct {
	task     *models.ResearchTask
	workerID string
	query    string

	results   map[string]any
	plan      agents.PlanResult
	searched  agents.SearchStageResult
	bundle    agents.AggregateResult
	summary   agents.Summary
	reasoning agents.Reasoning
}

// Run executes every pipeline stage for the task. Stages that already have a
// completed operation row are skipped and their output reconstructed from the
// persisted task results, so a requeued task never repeats finished work.
// Returns a StageError on terminal failure.
func (p *Pipeline) Run(ctx context.Context, workerID string, task *models.ResearchTask) (*Result, error) {
	r := &run{
		task:     task,
		workerID: workerID,
		query:    task.Title,
		results:  map[string]any{},
	}
	for k, v := range task.Results {
		r.results[k] = v
	}

	for _, stage := range models.PipelineStages {
		if err := p.runStage(ctx, r, stage); err != nil {
			return nil, err
		}
	}

	summaryBlob, err := toMap(r.summary)
	if err != nil {
		return nil, &StageError{Stage: models.StageSummarizing, Kind: models.ErrKindParse, Err: err}
	}
	reasoningBlob, err := toMap(r.reasoning)
	if err != nil {
		return nil, &StageError{Stage: models.StageReasoning, Kind: models.ErrKindParse, Err: err}
	}
	return &Result{Results: r.results, Summary: summaryBlob, Reasoning: reasoningBlob}, nil
}

// runStage executes one stage with its retry policy, or replays its persisted
// output when a completed operation row already exists.
func (p *Pipeline) runStage(ctx context.Context, r *run, stage models.Stage) error {
	done, err := p.store.HasCompletedOperation(ctx, r.task.ID, stage)
	if err != nil {
		return &StageError{Stage: stage, Kind: models.ErrKindStore, Err: err}
	}
	if done {
		if prior, ok := r.results[string(stage)].(map[string]any); ok {
			p.logger.Info("Skipping completed stage", "task_id", r.task.ID, "stage", stage)
			return p.absorb(r, stage, prior)
		}
		// Completed row without a persisted payload: the blob write lost a
		// race with the crash. Re-run the stage rather than continue blind.
		p.logger.Warn("Completed stage has no persisted payload, re-running",
			"task_id", r.task.ID, "stage", stage)
	}

	if err := p.store.UpdateTaskStatus(ctx, r.task.ID, stage.Status()); err != nil {
		return &StageError{Stage: stage, Kind: models.ErrKindStore, Err: err}
	}

	policy := stagePolicies[stage]
	var lastErr *StageError
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		payload, stageErr := p.attempt(ctx, r, stage, attempt)
		if stageErr == nil {
			if err := p.absorb(r, stage, payload); err != nil {
				return err
			}
			return p.persist(ctx, r, stage)
		}
		lastErr = stageErr
		if stageErr.Kind == models.ErrKindCancelled || ctx.Err() != nil {
			return stageErr
		}
	}

	if policy.OnExhaust == continueWithPlaceholder {
		return p.placeholder(ctx, r, stage, lastErr)
	}
	return lastErr
}

// attempt runs a single stage attempt: operation row, request, reply,
// operation close, events. A failed attempt also publishes the task_retry
// event and bumps the retry marker when another attempt will follow.
func (p *Pipeline) attempt(ctx context.Context, r *run, stage models.Stage, attempt int) (map[string]any, *StageError) {
	op, err := p.store.OpenOperation(ctx, r.task.ID, stage)
	if err != nil {
		return nil, &StageError{Stage: stage, Kind: models.ErrKindStore, Err: err}
	}

	started := time.Now()
	evt := events.New(events.TypePhaseStarted)
	evt.TaskID = r.task.ID
	evt.Phase = string(stage)
	evt.WorkerID = r.workerID
	evt.RetryCount = attempt
	p.publish(ctx, evt)

	payload, stageErr := p.request(ctx, r, stage, op.ID)
	if stageErr != nil {
		metrics.StageDuration.WithLabelValues(string(stage), string(models.OperationStatusFailed)).
			Observe(time.Since(started).Seconds())
		if err := p.store.CloseOperation(ctx, op.ID, models.OperationStatusFailed, nil, stageErr.Err.Error()); err != nil {
			p.logger.Error("Failed to close operation", "operation_id", op.ID, "error", err)
		}
		p.logger.Warn("Stage attempt failed",
			"task_id", r.task.ID, "stage", stage, "attempt", attempt,
			"error_kind", stageErr.Kind, "error", stageErr.Err)
		if attempt < stagePolicies[stage].Retries && stageErr.Kind != models.ErrKindCancelled {
			retry := events.New(events.TypeTaskRetry)
			retry.TaskID = r.task.ID
			retry.Phase = string(stage)
			retry.WorkerID = r.workerID
			retry.RetryCount = attempt + 1
			retry.Error = string(stageErr.Kind)
			retry.Message = stageErr.Err.Error()
			p.publish(ctx, retry)
			metrics.StageRetries.WithLabelValues(string(stage)).Inc()
			if err := p.store.IncrementRetryMarker(ctx, op.ID, retry.EventID); err != nil {
				p.logger.Error("Failed to record retry marker", "operation_id", op.ID, "error", err)
			}
		}
		return nil, stageErr
	}

	metrics.StageDuration.WithLabelValues(string(stage), string(models.OperationStatusCompleted)).
		Observe(time.Since(started).Seconds())
	counts := stageCounts(stage, payload)
	if err := p.store.CloseOperation(ctx, op.ID, models.OperationStatusCompleted, counts, ""); err != nil {
		return nil, &StageError{Stage: stage, Kind: models.ErrKindStore, Err: err}
	}

	doneEvt := events.New(events.TypePhaseCompleted)
	doneEvt.TaskID = r.task.ID
	doneEvt.Phase = string(stage)
	doneEvt.WorkerID = r.workerID
	doneEvt.Status = string(models.OperationStatusCompleted)
	doneEvt.DurationMS = time.Since(started).Milliseconds()
	doneEvt.Counts = counts
	p.publish(ctx, doneEvt)

	return payload, nil
}

// request sends the stage request over the bus and waits for the correlated
// reply under the stage deadline.
func (p *Pipeline) request(ctx context.Context, r *run, stage models.Stage, operationID string) (map[string]any, *StageError) {
	body, err := p.buildRequest(r, stage, operationID)
	if err != nil {
		return nil, &StageError{Stage: stage, Kind: models.ErrKindParse, Err: err}
	}

	env := bus.NewEnvelope(senderName, stageTopics[stage], body)
	env.ConversationID = uuid.New().String()

	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	if err := p.bus.Publish(sctx, env); err != nil {
		return nil, &StageError{Stage: stage, Kind: models.ErrKindTransientNetwork, Err: err}
	}
	reply, err := p.bus.WaitForReply(sctx, agents.TopicReplies, env.ConversationID, env.MessageID, p.cfg.StageTimeout)
	if err != nil {
		return nil, &StageError{Stage: stage, Kind: waitErrorKind(ctx, err), Err: err}
	}

	ok, kind, errMsg := agents.ReplyStatus(reply.Payload)
	if !ok {
		if kind == "" {
			kind = models.ErrKindProvider
		}
		return nil, &StageError{Stage: stage, Kind: kind, Err: errors.New(errMsg)}
	}
	return reply.Payload, nil
}

// buildRequest assembles the stage request payload from the run state
// accumulated by earlier stages.
func (p *Pipeline) buildRequest(r *run, stage models.Stage, operationID string) (map[string]any, error) {
	switch stage {
	case models.StagePlanning:
		return toMap(agents.PlanRequest{
			TaskID:      r.task.ID,
			Title:       r.task.Title,
			Description: r.task.Description,
		})
	case models.StageSearching:
		return toMap(agents.SearchStageRequest{
			TaskID:      r.task.ID,
			OperationID: operationID,
			Questions:   r.plan.Questions,
		})
	case models.StageAggregating:
		return toMap(agents.AggregateRequest{
			TaskID:      r.task.ID,
			OperationID: operationID,
			Responses:   r.searched.Responses,
		})
	case models.StageSummarizing:
		return toMap(agents.SummarizeRequest{
			TaskID:      r.task.ID,
			OperationID: operationID,
			Query:       r.query,
			Bundle:      &r.bundle,
		})
	case models.StageReasoning:
		return toMap(agents.ReasonRequest{
			TaskID:      r.task.ID,
			OperationID: operationID,
			Query:       r.query,
			Summary:     r.summary,
		})
	case models.StageGeneratingArtifacts:
		return toMap(agents.ArtifactRequest{
			TaskID:      r.task.ID,
			OperationID: operationID,
			Title:       r.task.Title,
			Query:       r.query,
			Summary:     r.summary,
			Reasoning:   r.reasoning,
		})
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// absorb decodes a stage payload into the run state so later stages can
// build on it.
func (p *Pipeline) absorb(r *run, stage models.Stage, payload map[string]any) error {
	var err error
	switch stage {
	case models.StagePlanning:
		err = fromMap(payload, &r.plan)
	case models.StageSearching:
		err = fromMap(payload, &r.searched)
	case models.StageAggregating:
		err = fromMap(payload, &r.bundle)
	case models.StageSummarizing:
		var res agents.SummarizeResult
		if err = fromMap(payload, &res); err == nil {
			r.summary = res.Summary
		}
	case models.StageReasoning:
		var res agents.ReasonResult
		if err = fromMap(payload, &res); err == nil {
			r.reasoning = res.Reasoning
		}
	}
	if err != nil {
		return &StageError{Stage: stage, Kind: models.ErrKindParse, Err: err}
	}
	r.results[string(stage)] = payload
	return nil
}

// persist writes the accumulated stage payloads onto the task row so a
// replayed run can reconstruct the state of every completed stage.
func (p *Pipeline) persist(ctx context.Context, r *run, stage models.Stage) error {
	var summary, reasoning map[string]any
	var err error
	if stage == models.StageSummarizing {
		if summary, err = toMap(r.summary); err != nil {
			return &StageError{Stage: stage, Kind: models.ErrKindParse, Err: err}
		}
	}
	if stage == models.StageReasoning {
		if reasoning, err = toMap(r.reasoning); err != nil {
			return &StageError{Stage: stage, Kind: models.ErrKindParse, Err: err}
		}
	}
	if err := p.store.SetTaskResults(ctx, r.task.ID, r.results, summary, reasoning); err != nil {
		return &StageError{Stage: stage, Kind: models.ErrKindStore, Err: err}
	}
	return nil
}

// placeholder substitutes a degraded blob for an exhausted summarizing or
// reasoning stage and lets the pipeline continue.
func (p *Pipeline) placeholder(ctx context.Context, r *run, stage models.Stage, cause *StageError) error {
	p.logger.Warn("Stage exhausted retries, continuing with placeholder",
		"task_id", r.task.ID, "stage", stage, "error", cause.Err)

	var payload map[string]any
	var err error
	switch stage {
	case models.StageSummarizing:
		r.summary = agents.PlaceholderSummary(r.query)
		payload, err = toMap(agents.SummarizeResult{Summary: r.summary})
	case models.StageReasoning:
		r.reasoning = agents.PlaceholderReasoning(r.query)
		payload, err = toMap(agents.ReasonResult{Reasoning: r.reasoning})
	default:
		return cause
	}
	if err != nil {
		return &StageError{Stage: stage, Kind: models.ErrKindParse, Err: err}
	}
	r.results[string(stage)] = payload
	return p.persist(ctx, r, stage)
}

// waitErrorKind classifies a WaitForReply failure.
func waitErrorKind(ctx context.Context, err error) models.ErrorKind {
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return models.ErrKindCancelled
	case errors.Is(err, bus.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.ErrKindTimeout
	default:
		return models.ErrKindTransientNetwork
	}
}

func (p *Pipeline) publish(ctx context.Context, evt *events.Event) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, evt)
}
