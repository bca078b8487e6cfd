// Package pipeline implements the card enrichment orchestrator and its
// stages: classification, link categorization, AI metadata generation and
// renderable generation.
package pipeline

// OutcomeKind discriminates a stage run's result. Readiness is data
// consumed by the orchestrator's retry scheduler, not control flow: a stage
// whose prerequisite has not landed yet returns NotReady instead of failing.
type OutcomeKind int

// Possible stage outcomes.
const (
	OutcomeReady OutcomeKind = iota
	OutcomeNotReady
	OutcomeFailed
)

// StageOutcome is the result of one stage attempt.
type StageOutcome struct {
	Kind OutcomeKind

	// Confidence, when set, is recorded on the stage's processing status.
	Confidence *float64

	// Err carries the failure cause for OutcomeFailed, or the missing
	// prerequisite for OutcomeNotReady.
	Err error
}

// Ready builds a successful outcome with an optional confidence.
func Ready(confidence *float64) StageOutcome {
	return StageOutcome{Kind: OutcomeReady, Confidence: confidence}
}

// NotReady signals a missing prerequisite; the orchestrator re-attempts the
// stage after backoff.
func NotReady(err error) StageOutcome {
	return StageOutcome{Kind: OutcomeNotReady, Err: err}
}

// Failed signals a stage failure. After retries are exhausted the stage is
// recorded as failed without blocking sibling stages.
func Failed(err error) StageOutcome {
	return StageOutcome{Kind: OutcomeFailed, Err: err}
}

func confidenceOf(v float64) *float64 {
	return &v
}
