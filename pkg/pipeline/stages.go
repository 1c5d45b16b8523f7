package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/nexus-research/nexus/pkg/agents"
	"github.com/nexus-research/nexus/pkg/models"
)

// stageTopics maps each stage to its agent request topic.
var stageTopics = map[models.Stage]string{
	models.StagePlanning:            agents.TopicPlanning,
	models.StageSearching:           agents.TopicSearching,
	models.StageAggregating:         agents.TopicAggregating,
	models.StageSummarizing:         agents.TopicSummarizing,
	models.StageReasoning:           agents.TopicReasoning,
	models.StageGeneratingArtifacts: agents.TopicGeneratingArtifacts,
}

// toMap converts a typed value to the envelope payload form.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode stage payload: %w", err)
	}
	return out, nil
}

// fromMap binds an envelope payload onto a typed struct.
func fromMap(payload map[string]any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode stage payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode stage payload: %w", err)
	}
	return nil
}

// stageCounts extracts the phase_completed counts from a stage result.
func stageCounts(stage models.Stage, payload map[string]any) map[string]int {
	counts := map[string]int{}
	switch stage {
	case models.StagePlanning:
		var r agents.PlanResult
		if fromMap(payload, &r) == nil {
			counts["subtasks"] = r.SubtaskCount
			counts["leaves"] = r.LeafCount
			counts["questions"] = len(r.Questions)
		}
	case models.StageSearching:
		var r agents.SearchStageResult
		if fromMap(payload, &r) == nil {
			counts["questions"] = len(r.Responses)
			counts["results"] = r.ResultCount
			counts["failures"] = r.FailureCount
		}
	case models.StageAggregating:
		var r agents.AggregateResult
		if fromMap(payload, &r) == nil {
			counts["sources"] = len(r.Sources)
			counts["key_points"] = len(r.KeyPoints)
		}
	case models.StageSummarizing:
		var r agents.SummarizeResult
		if fromMap(payload, &r) == nil {
			counts["key_findings"] = len(r.Summary.KeyFindings)
			counts["sources"] = len(r.Summary.Sources)
		}
	case models.StageReasoning:
		var r agents.ReasonResult
		if fromMap(payload, &r) == nil {
			counts["insights"] = len(r.Reasoning.Insights)
			counts["recommendations"] = len(r.Reasoning.Recommendations)
		}
	case models.StageGeneratingArtifacts:
		var r agents.ArtifactResult
		if fromMap(payload, &r) == nil {
			counts["artifacts"] = len(r.Artifacts)
		}
	}
	return counts
}
