package models

// Stage is one phase of the research pipeline. Each stage execution owns one
// operation row.
type Stage string

const (
	StagePlanning            Stage = "planning"
	StageSearching           Stage = "searching"
	StageAggregating         Stage = "aggregating"
	StageSummarizing         Stage = "summarizing"
	StageReasoning           Stage = "reasoning"
	StageGeneratingArtifacts Stage = "generating_artifacts"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []Stage{
	StagePlanning,
	StageSearching,
	StageAggregating,
	StageSummarizing,
	StageReasoning,
	StageGeneratingArtifacts,
}

// Status returns the task status a task carries while this stage runs.
func (s Stage) Status() TaskStatus {
	return TaskStatus(s)
}
