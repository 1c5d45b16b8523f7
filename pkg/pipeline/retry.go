package pipeline

import "github.com/nexus-research/nexus/pkg/models"

// failureMode selects what happens when a stage exhausts its retries.
type failureMode int

const (
	// failTask terminates the pipeline with a StageError.
	failTask failureMode = iota

	// continueWithPlaceholder records a placeholder blob and proceeds to
	// the next stage.
	continueWithPlaceholder
)

// stagePolicy is the retry behavior of one stage.
type stagePolicy struct {
	Retries   int
	OnExhaust failureMode
}

// stagePolicies is the retry table. Searching has no wholesale retry: its
// per-question failures are recorded as evidence and the stage succeeds
// regardless. Aggregating fails only on internal error, also without retry.
var stagePolicies = map[models.Stage]stagePolicy{
	models.StagePlanning:            {Retries: 1, OnExhaust: failTask},
	models.StageSearching:           {Retries: 0, OnExhaust: failTask},
	models.StageAggregating:         {Retries: 0, OnExhaust: failTask},
	models.StageSummarizing:         {Retries: 1, OnExhaust: continueWithPlaceholder},
	models.StageReasoning:           {Retries: 1, OnExhaust: continueWithPlaceholder},
	models.StageGeneratingArtifacts: {Retries: 1, OnExhaust: failTask},
}
