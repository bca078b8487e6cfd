package domain

import (
	"errors"
	"time"
)

// Stage identifies one step of the enrichment pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageClassify    Stage = "classify"
	StageCategorize  Stage = "categorize"
	StageMetadata    Stage = "metadata"
	StageRenderables Stage = "renderables"
)

// StageState is the completion state of a single stage on a card.
type StageState string

// Possible stage states.
const (
	StageStatePending   StageState = "pending"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
)

// Stage transition errors
var (
	// ErrStageTransition is returned when a stage status update would move a
	// stage backward without an explicit reset.
	ErrStageTransition = errors.New("invalid stage state transition")

	// ErrStageUnknown is returned for a stage name outside the fixed topology.
	ErrStageUnknown = errors.New("unknown stage")

	// ErrConfidenceRange is returned when a confidence value falls outside [0,1].
	ErrConfidenceRange = errors.New("confidence must be within [0,1]")
)

// StageStatus records the processing state of one stage on one card.
type StageStatus struct {
	State       StageState `json:"status"`
	Confidence  *float64   `json:"confidence,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AllStages lists the fixed stage topology in execution order.
func AllStages() []Stage {
	return []Stage{StageClassify, StageCategorize, StageMetadata, StageRenderables}
}

// IsValidStage checks whether s names one of the fixed pipeline stages.
func IsValidStage(s Stage) bool {
	switch s {
	case StageClassify, StageCategorize, StageMetadata, StageRenderables:
		return true
	default:
		return false
	}
}

// InitStage sets the stage to pending if it has no recorded status yet. It is
// a no-op for stages that already have a status, which keeps orchestrator
// re-invocations from clobbering completed stages.
func (c *Card) InitStage(stage Stage) error {
	if !IsValidStage(stage) {
		return ErrStageUnknown
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[Stage]StageStatus)
	}
	if _, ok := c.ProcessingStatus[stage]; ok {
		return nil
	}
	c.ProcessingStatus[stage] = StageStatus{State: StageStatePending}
	return nil
}

// CompleteStage transitions a stage from pending to completed, recording the
// completion time and optional confidence. Completing an already-completed
// stage is a no-op so idempotent re-execution stays safe; completing a failed
// stage is rejected.
func (c *Card) CompleteStage(stage Stage, confidence *float64, at time.Time) error {
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return ErrConfidenceRange
	}
	return c.transitionStage(stage, StageStateCompleted, confidence, &at)
}

// FailStage transitions a stage from pending to failed. Failing an
// already-failed stage is a no-op; failing a completed stage is rejected.
func (c *Card) FailStage(stage Stage) error {
	return c.transitionStage(stage, StageStateFailed, nil, nil)
}

// ResetStage explicitly moves a stage back to pending, clearing its recorded
// confidence and completion time. This is the only sanctioned backward move
// and is used when a superseding edit invalidates earlier results.
func (c *Card) ResetStage(stage Stage) error {
	if !IsValidStage(stage) {
		return ErrStageUnknown
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[Stage]StageStatus)
	}
	c.ProcessingStatus[stage] = StageStatus{State: StageStatePending}
	return nil
}

// StageState returns the recorded state for a stage, or pending when the
// stage has no status yet.
func (c *Card) StageState(stage Stage) StageState {
	if st, ok := c.ProcessingStatus[stage]; ok {
		return st.State
	}
	return StageStatePending
}

func (c *Card) transitionStage(stage Stage, to StageState, confidence *float64, at *time.Time) error {
	if !IsValidStage(stage) {
		return ErrStageUnknown
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[Stage]StageStatus)
	}

	current := c.StageState(stage)
	if current == to {
		return nil
	}
	if current != StageStatePending {
		return ErrStageTransition
	}

	c.ProcessingStatus[stage] = StageStatus{
		State:       to,
		Confidence:  confidence,
		CompletedAt: at,
	}
	return nil
}
