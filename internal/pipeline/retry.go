package pipeline

import (
	"math"
	"time"

	"github.com/pinbox/pinbox-api/internal/domain"
)

// RetryPolicy bounds how often one stage is re-attempted within a single
// orchestrator run. Failed and not-ready attempts both count.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffBase    float64
}

// Backoff returns the delay before the given 1-based attempt's successor.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(p.BackoffBase, float64(attempt-1))
	return time.Duration(d)
}

// DefaultPolicies returns the per-stage retry policies. Categorization gets
// more attempts because it legitimately waits on link-preview data;
// generation calls are expensive and capped tighter.
func DefaultPolicies() map[domain.Stage]RetryPolicy {
	return map[domain.Stage]RetryPolicy{
		domain.StageClassify:    {MaxAttempts: 3, InitialBackoff: time.Second, BackoffBase: 2},
		domain.StageCategorize:  {MaxAttempts: 5, InitialBackoff: 2 * time.Second, BackoffBase: 2},
		domain.StageMetadata:    {MaxAttempts: 3, InitialBackoff: 2 * time.Second, BackoffBase: 2},
		domain.StageRenderables: {MaxAttempts: 3, InitialBackoff: time.Second, BackoffBase: 2},
	}
}
