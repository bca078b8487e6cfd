package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/store"
)

// Orchestrator sequences the enrichment stages for a card, persisting
// per-stage processing status and a durable step cursor after every stage.
// It is the only component triggered directly by card mutations, and its
// Start is idempotent: re-invocation for a card already in flight resumes
// the persisted run instead of double-initializing completed stages.
type Orchestrator struct {
	cards     store.CardStore
	workflows store.WorkflowStore

	classifier  *Classifier
	categorizer *Categorizer
	metadata    *MetadataStage
	renderables *RenderableStage

	policies map[domain.Stage]RetryPolicy
	logger   *slog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the orchestrator with its stages and stores. Nil
// policies fall back to DefaultPolicies.
func NewOrchestrator(
	cards store.CardStore,
	workflows store.WorkflowStore,
	classifier *Classifier,
	categorizer *Categorizer,
	metadata *MetadataStage,
	renderables *RenderableStage,
	policies map[domain.Stage]RetryPolicy,
	logger *slog.Logger,
) *Orchestrator {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cards:       cards,
		workflows:   workflows,
		classifier:  classifier,
		categorizer: categorizer,
		metadata:    metadata,
		renderables: renderables,
		policies:    policies,
		logger:      logger.With("component", "orchestrator"),
		sleep:       sleepCtx,
	}
}

// Start runs (or resumes) the enrichment workflow for a card and returns
// the workflow identifier. A missing or deleted card aborts before any
// stage runs or any status is touched.
func (o *Orchestrator) Start(ctx context.Context, cardID uuid.UUID) (string, error) {
	card, err := o.cards.GetByID(ctx, cardID)
	if err != nil {
		return "", fmt.Errorf("orchestrator start: %w", err)
	}
	if card.IsDeleted {
		return "", fmt.Errorf("orchestrator start card %s: %w", cardID, domain.ErrCardDeleted)
	}

	wf, err := o.workflows.FindRunning(ctx, cardID, card.Revision)
	if errors.Is(err, store.ErrWorkflowNotFound) {
		wf, err = domain.NewWorkflow(cardID, card.Revision, domain.AllStages())
		if err != nil {
			return "", fmt.Errorf("orchestrator start: %w", err)
		}
		if err := o.workflows.Create(ctx, wf); err != nil {
			return "", fmt.Errorf("orchestrator start: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("orchestrator start: %w", err)
	}

	logger := o.logger.With("workflow_id", wf.ID, "card_id", cardID)
	logger.Info("enrichment workflow running", "cursor", wf.Cursor)

	// Required stages go pending up front; conditional ones are added once
	// classification decides they apply. InitStages never touches a stage
	// that already has a status, so double starts stay harmless.
	required := []domain.Stage{domain.StageClassify, domain.StageMetadata}
	if err := o.cards.InitStages(ctx, cardID, card.Revision, required); err != nil {
		if errors.Is(err, store.ErrStaleRevision) {
			return o.abandonStale(ctx, wf, logger)
		}
		return "", fmt.Errorf("orchestrator start: %w", err)
	}

	if err := o.run(ctx, wf, card, logger); err != nil {
		if errors.Is(err, errStaleRun) {
			// Not a failure: the superseding edit re-enqueued the pipeline
			// and the fresher run owns the card now.
			return wf.ID, nil
		}
		return wf.ID, err
	}
	return wf.ID, nil
}

// run executes the planned stages from the persisted cursor.
func (o *Orchestrator) run(ctx context.Context, wf *domain.Workflow, card *domain.Card, logger *slog.Logger) error {
	// Derived from card state rather than kept in memory so a resumed run
	// past classification plans the same conditional stages the original
	// did. A fresh run overwrites this with the classifier's output.
	cls := o.replanFromCard(card)

	for wf.CurrentStage() != "" {
		stage := wf.CurrentStage()

		switch stage {
		case domain.StageClassify:
			if card.StageState(stage) == domain.StageStateCompleted {
				break
			}
			var outcome StageOutcome
			cls, outcome = o.runClassify(ctx, wf, card)
			if outcome.Kind != OutcomeReady {
				// Everything downstream depends on classification; record
				// the failure and abort the run without touching siblings.
				if err := o.recordOutcome(ctx, wf, card, stage, outcome, logger); err != nil {
					return err
				}
				wf.Abort()
				if err := o.workflows.Update(ctx, wf); err != nil {
					logger.Error("failed to persist aborted workflow", "error", err)
				}
				logger.Warn("workflow aborted: classification did not complete", "error", outcome.Err)
				return nil
			}
			if err := o.recordOutcome(ctx, wf, card, stage, outcome, logger); err != nil {
				return err
			}
			if err := o.planConditional(ctx, card, cls); err != nil {
				if errors.Is(err, store.ErrStaleRevision) {
					_, err = o.abandonStale(ctx, wf, logger)
					return err
				}
				return err
			}

		case domain.StageCategorize:
			if !cls.ShouldCategorize || card.StageState(stage) == domain.StageStateCompleted {
				break
			}
			outcome := o.runWithRetry(ctx, wf, stage, logger, func() StageOutcome {
				return o.categorizer.Run(ctx, card)
			})
			if err := o.recordOutcome(ctx, wf, card, stage, outcome, logger); err != nil {
				return err
			}

		case domain.StageMetadata:
			if card.StageState(stage) == domain.StageStateCompleted {
				break
			}
			outcome := o.runWithRetry(ctx, wf, stage, logger, func() StageOutcome {
				return o.metadata.Run(ctx, card)
			})
			if err := o.recordOutcome(ctx, wf, card, stage, outcome, logger); err != nil {
				return err
			}

		case domain.StageRenderables:
			if !cls.ShouldGenerateRenderables || card.StageState(stage) == domain.StageStateCompleted {
				break
			}
			outcome := o.runWithRetry(ctx, wf, stage, logger, func() StageOutcome {
				return o.renderables.Run(ctx, card)
			})
			if err := o.recordOutcome(ctx, wf, card, stage, outcome, logger); err != nil {
				return err
			}
		}

		wf.Advance()
		if err := o.workflows.Update(ctx, wf); err != nil {
			return fmt.Errorf("persist workflow cursor: %w", err)
		}
	}

	wf.Complete()
	if err := o.workflows.Update(ctx, wf); err != nil {
		return fmt.Errorf("persist completed workflow: %w", err)
	}
	logger.Info("enrichment workflow completed")
	return nil
}

// runClassify wraps the classifier in its retry policy.
func (o *Orchestrator) runClassify(ctx context.Context, wf *domain.Workflow, card *domain.Card) (Classification, StageOutcome) {
	var cls Classification
	outcome := o.runWithRetry(ctx, wf, domain.StageClassify, o.logger, func() StageOutcome {
		var out StageOutcome
		cls, out = o.classifier.Run(ctx, card)
		return out
	})
	return cls, outcome
}

// replanFromCard rebuilds the conditional stage plan from persisted card
// state, used when a resumed run skips an already-completed classification.
func (o *Orchestrator) replanFromCard(card *domain.Card) Classification {
	return Classification{
		Type:                      card.Type,
		ShouldCategorize:          card.IsLinkLike(),
		ShouldGenerateRenderables: card.HasVisualAsset(),
	}
}

// planConditional initializes the conditional stages classification turned on.
func (o *Orchestrator) planConditional(ctx context.Context, card *domain.Card, cls Classification) error {
	var stages []domain.Stage
	if cls.ShouldCategorize {
		stages = append(stages, domain.StageCategorize)
	}
	if cls.ShouldGenerateRenderables {
		stages = append(stages, domain.StageRenderables)
	}
	if len(stages) == 0 {
		return nil
	}
	return o.cards.InitStages(ctx, card.ID, card.Revision, stages)
}

// runWithRetry re-attempts a stage on failure or missing prerequisites,
// backing off exponentially per the stage's policy. Attempt counts persist
// on the workflow so a resumed run keeps its budget.
func (o *Orchestrator) runWithRetry(ctx context.Context, wf *domain.Workflow, stage domain.Stage, logger *slog.Logger, fn func() StageOutcome) StageOutcome {
	policy := o.policies[stage]
	if policy.MaxAttempts < 1 {
		policy = RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Second, BackoffBase: 2}
	}

	for {
		attempt := wf.RecordAttempt(stage)
		if err := o.workflows.Update(ctx, wf); err != nil {
			logger.Error("failed to persist stage attempt", "stage", stage, "error", err)
		}

		outcome := fn()
		if outcome.Kind == OutcomeReady {
			return outcome
		}
		if outcome.Err != nil && errors.Is(outcome.Err, store.ErrStaleRevision) {
			return outcome
		}

		if attempt >= policy.MaxAttempts {
			logger.Warn("stage exhausted retry budget",
				"stage", stage,
				"attempts", attempt,
				"not_ready", outcome.Kind == OutcomeNotReady,
				"error", outcome.Err)
			return Failed(outcome.Err)
		}

		delay := policy.Backoff(attempt)
		logger.Info("retrying stage after backoff",
			"stage", stage,
			"attempt", attempt,
			"delay", delay,
			"not_ready", outcome.Kind == OutcomeNotReady)
		if err := o.sleep(ctx, delay); err != nil {
			return Failed(err)
		}
	}
}

// recordOutcome persists the stage's terminal status on the card. A stale
// revision means the card was edited mid-flight: the result is dropped and
// the workflow abandoned, leaving the field to the fresher run.
func (o *Orchestrator) recordOutcome(ctx context.Context, wf *domain.Workflow, card *domain.Card, stage domain.Stage, outcome StageOutcome, logger *slog.Logger) error {
	now := time.Now().UTC()
	var status domain.StageStatus
	if outcome.Kind == OutcomeReady {
		status = domain.StageStatus{
			State:       domain.StageStateCompleted,
			Confidence:  outcome.Confidence,
			CompletedAt: &now,
		}
	} else {
		status = domain.StageStatus{State: domain.StageStateFailed}
	}

	err := o.cards.SetStageStatus(ctx, card.ID, card.Revision, stage, status)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrStaleRevision) {
		_, abandonErr := o.abandonStale(ctx, wf, logger)
		if abandonErr != nil {
			return abandonErr
		}
		return errStaleRun
	}
	return fmt.Errorf("record stage %s status: %w", stage, err)
}

// errStaleRun unwinds a run whose card was superseded by an edit.
var errStaleRun = errors.New("workflow superseded by newer card revision")

// abandonStale marks the workflow aborted after a stale-revision write.
func (o *Orchestrator) abandonStale(ctx context.Context, wf *domain.Workflow, logger *slog.Logger) (string, error) {
	wf.Abort()
	if err := o.workflows.Update(ctx, wf); err != nil {
		logger.Error("failed to persist superseded workflow", "error", err)
	}
	logger.Info("workflow abandoned: card revision superseded")
	return wf.ID, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
