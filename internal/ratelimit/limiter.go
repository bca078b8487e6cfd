// Package ratelimit implements the token-bucket admission limiter guarding
// card-creation and external-call throughput.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind names an operation class with its own bucket configuration.
type Kind string

// Operation kinds guarded by the limiter.
const (
	KindCardCreate  Kind = "card_create"
	KindExternalAPI Kind = "external_api"
)

// Limit configures one kind's buckets: a refill rate and a capacity.
type Limit struct {
	PerMinute float64
	Burst     int
}

// Decision is the outcome of an admission check. When OK is false, RetryAt
// is strictly in the future and tells the caller when the tokens it asked
// for will be available.
type Decision struct {
	OK      bool
	RetryAt time.Time
}

// maxIdleBuckets caps how many per-identifier buckets are kept before idle
// ones are pruned.
const maxIdleBuckets = 10000

// bucketIdleAfter is how long an untouched bucket survives a prune pass.
const bucketIdleAfter = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter maintains one token bucket per (kind, identifier) pair. It is used
// as a pre-condition before scheduling work, not inside the pipeline itself.
type Limiter struct {
	mu      sync.Mutex
	limits  map[Kind]Limit
	buckets map[string]*entry
	now     func() time.Time
}

// New creates a Limiter with per-kind bucket configurations.
func New(limits map[Kind]Limit) *Limiter {
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*entry),
		now:     time.Now,
	}
}

// Check consumes count tokens from the bucket for (kind, identifier) when
// capacity allows. Unknown kinds are admitted unconditionally: the limiter
// guards configured hot paths, it is not an allow-list.
func (l *Limiter) Check(kind Kind, identifier string, count int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[kind]
	if !ok {
		return Decision{OK: true}
	}

	now := l.now()
	key := fmt.Sprintf("%s:%s", kind, identifier)

	e, ok := l.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(limit.PerMinute/60.0), limit.Burst)}
		l.buckets[key] = e
		l.pruneLocked(now)
	}
	e.lastSeen = now

	rsv := e.limiter.ReserveN(now, count)
	if !rsv.OK() {
		// count exceeds the bucket capacity outright; it can never succeed.
		return Decision{OK: false, RetryAt: now.Add(bucketIdleAfter)}
	}
	if delay := rsv.DelayFrom(now); delay > 0 {
		rsv.CancelAt(now)
		return Decision{OK: false, RetryAt: now.Add(delay)}
	}
	return Decision{OK: true}
}

// pruneLocked drops buckets idle past bucketIdleAfter once the map grows
// beyond maxIdleBuckets. Callers hold l.mu.
func (l *Limiter) pruneLocked(now time.Time) {
	if len(l.buckets) <= maxIdleBuckets {
		return
	}
	for key, e := range l.buckets {
		if now.Sub(e.lastSeen) > bucketIdleAfter {
			delete(l.buckets, key)
		}
	}
}
