// Package governor implements an in-process admission-control governor for
// high-cost outbound calls. Callers obtain a short-lived Lease before
// performing external work (typically an AI model API request) and
// surrender it afterward; the governor grants or denies each request
// against three orthogonal limiters — weighted concurrency, request-rate,
// and token-rate — augmented by optional per-actor fairness and a
// self-tuning adaptive controller.
package governor

import (
	"sync"
	"time"

	"github.com/throttleai/governor/internal/adaptive"
	"github.com/throttleai/governor/internal/clampms"
	"github.com/throttleai/governor/internal/clock"
	"github.com/throttleai/governor/internal/concurrency"
	"github.com/throttleai/governor/internal/fairness"
	"github.com/throttleai/governor/internal/govlog"
	"github.com/throttleai/governor/internal/idset"
	"github.com/throttleai/governor/internal/leasestore"
	"github.com/throttleai/governor/internal/requestrate"
	"github.com/throttleai/governor/internal/tokenrate"
)

const strictReleasedCapacity = 10_000

// Governor is the single facade composing the lease store and the four
// limiter subcomponents. All exported methods are safe for concurrent use:
// every state-mutating operation behaves as if serialized under one
// top-level mutex. Splitting the lock per component would break the
// rollback discipline Acquire relies on, so there is exactly one.
type Governor struct {
	mu sync.Mutex

	cfg    Config
	clock  clockSource
	logger *govlog.Logger

	leases *leasestore.Store

	concurrency *concurrency.Pool
	requestRate *requestrate.Pool
	tokenRate   *tokenrate.Pool
	fairness    *fairness.Tracker
	adaptive    *adaptive.Controller

	strictSeen *idset.Set

	reaper *leasestore.Reaper

	lastDeny *LastDeny
}

// New validates cfg and constructs a Governor. It returns ErrInvalidConfig
// if cfg is internally inconsistent.
func New(cfg Config) (*Governor, error) {
	resolved := cfg.withDefaults()
	if err := resolved.validate(); err != nil {
		return nil, err
	}

	var cl clockSource = resolved.clock
	if cl == nil {
		cl = clock.Real{}
	}

	logger := resolved.Logger
	if logger == nil {
		logger = govlog.Noop()
	}

	g := &Governor{
		cfg:    resolved,
		clock:  cl,
		logger: logger,
		leases: leasestore.New(),
	}

	if resolved.Concurrency != nil {
		pool, err := concurrency.New(resolved.Concurrency.MaxInFlight, resolved.Concurrency.InteractiveReserve)
		if err != nil {
			return nil, ErrInvalidConfig
		}
		g.concurrency = pool
	}

	if resolved.Rate != nil {
		if resolved.Rate.RequestsPerMinute > 0 {
			g.requestRate = requestrate.New(resolved.Rate.WindowMs, resolved.Rate.RequestsPerMinute)
		}
		if resolved.Rate.TokensPerMinute > 0 {
			g.tokenRate = tokenrate.New(resolved.Rate.WindowMs, resolved.Rate.TokensPerMinute)
		}
	}

	if resolved.Fairness != nil && g.concurrency != nil {
		g.fairness = fairness.New(resolved.Fairness.SoftCapRatio, resolved.Fairness.StarvationWindowMs)
	}

	if resolved.Adaptive != nil && g.concurrency != nil {
		g.adaptive = adaptive.New(adaptive.Config{
			Alpha:            resolved.Adaptive.Alpha,
			TargetDenyRate:   resolved.Adaptive.TargetDenyRate,
			LatencyThreshold: resolved.Adaptive.LatencyThreshold,
			AdjustIntervalMs: resolved.Adaptive.AdjustIntervalMs,
			MinConcurrency:   resolved.Adaptive.MinConcurrency,
		}, g.concurrency.MaxWeight(), cl.NowMs())
	}

	if resolved.Strict {
		g.strictSeen = idset.New(strictReleasedCapacity)
	}

	g.reaper = leasestore.NewReaper(time.Duration(resolved.ReaperIntervalMs)*time.Millisecond, g.reapTick)

	return g, nil
}

// Acquire asks the governor for a lease. The returned decision is always
// meaningful — a denial is ordinary data, not an error.
func (g *Governor) Acquire(req AcquireRequest) AcquireDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMs()

	priority := req.Priority
	if priority == "" {
		priority = PriorityInteractive
	}
	weight := req.Estimate.Weight
	if weight == 0 {
		weight = 1
	}

	if g.adaptive != nil {
		g.concurrency.SetEffectiveMax(g.adaptive.MaybeAdjust(now), g.cfg.Adaptive.MinConcurrency)
	}

	if req.IdempotencyKey != "" {
		if existing, ok := g.leases.GetByIdempotencyKey(req.IdempotencyKey); ok && existing.ExpiresAtMs > now {
			return AcquireDecision{Granted: true, LeaseID: existing.ID, ExpiresAt: existing.ExpiresAtMs}
		}
	}

	concurrencyPriority := concurrency.Interactive
	if priority == PriorityBackground {
		concurrencyPriority = concurrency.Background
	}

	if g.concurrency != nil {
		if !g.concurrency.Admit(weight, concurrencyPriority) {
			hint := LimitsHint{InFlight: g.concurrency.InFlightWeight(), MaxInFlight: g.concurrency.EffectiveMax()}
			return g.denyLocked(now, req.ActorID, req.Action, ReasonConcurrency, weight, hint, g.concurrencyRetryHint(now))
		}
	}

	if g.fairness != nil {
		maxWeight := int64(0)
		inFlight := int64(0)
		if g.concurrency != nil {
			maxWeight = g.concurrency.MaxWeight()
			inFlight = g.concurrency.InFlightWeight()
		}
		if !g.fairness.Check(req.ActorID, weight, maxWeight, inFlight, now) {
			if g.concurrency != nil {
				g.concurrency.Release(weight)
			}
			return g.denyLocked(now, req.ActorID, req.Action, ReasonPolicy, weight, LimitsHint{}, policyRetryAfterMs())
		}
	}

	if g.requestRate != nil {
		if ok, retryAfter := g.requestRate.Admit(now); !ok {
			if g.concurrency != nil {
				g.concurrency.Release(weight)
			}
			hint := LimitsHint{RateUsed: g.requestRate.Current(now), RateLimit: g.requestRate.Limit()}
			return g.denyLocked(now, req.ActorID, req.Action, ReasonRate, weight, hint, retryAfter)
		}
	}

	needed := req.Estimate.PromptTokens + req.Estimate.MaxOutputTokens
	if g.tokenRate != nil && needed > 0 {
		if ok, retryAfter := g.tokenRate.Admit(now, needed); !ok {
			if g.concurrency != nil {
				g.concurrency.Release(weight)
			}
			hint := LimitsHint{RateUsed: g.tokenRate.Current(now), RateLimit: g.tokenRate.Limit()}
			return g.denyLocked(now, req.ActorID, req.Action, ReasonRate, weight, hint, retryAfter)
		}
	}

	leaseID := generateLeaseID(now)
	expiresAt := now + g.cfg.LeaseTTLMs
	lease := &Lease{
		ID:              leaseID,
		ActorID:         req.ActorID,
		Action:          req.Action,
		Priority:        string(priority),
		Weight:          weight,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAtMs:     now,
		ExpiresAtMs:     expiresAt,
		EstimatedTokens: needed,
	}

	if g.requestRate != nil {
		g.requestRate.Record(now)
	}
	if g.tokenRate != nil && needed > 0 {
		g.tokenRate.Charge(now, needed, leaseID)
	}
	g.leases.Add(lease)
	if g.fairness != nil {
		g.fairness.RecordAcquire(req.ActorID, weight)
	}
	if g.adaptive != nil {
		g.adaptive.RecordAcquire()
	}

	g.emit(newAcquireEvent(now, lease))
	g.logger.Debug().Str("lease_id", leaseID).Str("actor_id", req.ActorID).Int64("weight", weight).Msg("acquire granted")

	return AcquireDecision{Granted: true, LeaseID: leaseID, ExpiresAt: expiresAt}
}

// Release surrenders a lease. report is optional; pass a zero-value
// ReleaseReport when there's nothing to report.
func (g *Governor) Release(leaseID string, report ReleaseReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMs()

	if g.strictSeen != nil && g.strictSeen.Contains(leaseID) {
		return ErrDoubleRelease
	}

	lease, ok := g.leases.Remove(leaseID)
	if !ok {
		if g.cfg.Strict {
			return ErrUnknownLease
		}
		return nil
	}

	if g.strictSeen != nil {
		g.strictSeen.Add(leaseID)
	}

	if g.concurrency != nil {
		g.concurrency.Release(lease.Weight)
	}
	if g.fairness != nil {
		g.fairness.RecordRelease(lease.ActorID, lease.Weight)
	}

	if report.Usage != nil && g.tokenRate != nil {
		g.tokenRate.Reconcile(leaseID, report.Usage.PromptTokens+report.Usage.OutputTokens)
	}

	if report.LatencyMs > 0 && g.adaptive != nil {
		g.adaptive.RecordLatency(report.LatencyMs)
	}

	if g.cfg.Strict {
		held := now - lease.CreatedAtMs
		if float64(held) > 0.8*float64(g.cfg.LeaseTTLMs) {
			msg := "lease held past 80% of its TTL before release; release sooner or increase lease_ttl_ms"
			g.emit(newWarnEvent(now, msg, leaseID))
			g.logger.Warn().Str("lease_id", leaseID).Int64("held_ms", held).Msg(msg)
		}
	}

	outcome := report.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	g.emit(newReleaseEvent(now, lease, outcome))

	return nil
}

// Snapshot returns a read-only view of the governor's current state.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMs()
	snap := Snapshot{
		Timestamp:    now,
		ActiveLeases: int64(g.leases.Len()),
		Fairness:     g.fairness != nil,
		Adaptive:     g.adaptive != nil,
		LastDeny:     g.lastDeny,
	}

	if g.concurrency != nil {
		snap.Concurrency = &ConcurrencySnapshot{
			InFlightWeight: g.concurrency.InFlightWeight(),
			InFlightCount:  int64(g.leases.Len()),
			Available:      g.concurrency.EffectiveMax() - g.concurrency.InFlightWeight(),
			Max:            g.concurrency.MaxWeight(),
			EffectiveMax:   g.concurrency.EffectiveMax(),
		}
	}
	if g.requestRate != nil {
		snap.RequestRate = &RateSnapshot{Current: g.requestRate.Current(now), Limit: g.requestRate.Limit()}
	}
	if g.tokenRate != nil {
		snap.TokenRate = &RateSnapshot{Current: g.tokenRate.Current(now), Limit: g.tokenRate.Limit()}
	}

	return snap
}

// Dispose stops the reaper. It is idempotent. Acquire and Release remain
// functional afterward; only automatic expiry halts.
func (g *Governor) Dispose() {
	g.reaper.Dispose()
}

// denyLocked finalizes a denial: bookkeeping, event emission, and the
// structured return value. Called with g.mu held.
func (g *Governor) denyLocked(now int64, actorID, action string, reason DenyReason, weight int64, hint LimitsHint, retryAfterMs int64) AcquireDecision {
	if g.adaptive != nil {
		g.adaptive.RecordDenial()
	}
	if g.fairness != nil {
		g.fairness.RecordDenial(actorID, now)
	}
	g.lastDeny = &LastDeny{Reason: reason, Timestamp: now, ActorID: actorID}

	recommendation := denyRecommendation(reason)
	g.emit(newDenyEvent(now, actorID, action, reason, retryAfterMs, recommendation, weight))
	g.logger.Debug().Str("actor_id", actorID).Str("reason", string(reason)).Int64("retry_after_ms", retryAfterMs).Msg("acquire denied")

	return AcquireDecision{
		Granted:        false,
		Reason:         reason,
		RetryAfterMs:   retryAfterMs,
		Recommendation: recommendation,
		LimitsHint:     hint,
	}
}

func denyRecommendation(reason DenyReason) string {
	switch reason {
	case ReasonConcurrency:
		return "retry after in-flight capacity frees up"
	case ReasonRate:
		return "retry after the rolling window advances"
	case ReasonPolicy:
		return "this actor is over its fair share; retry shortly"
	default:
		return "retry later"
	}
}

func (g *Governor) concurrencyRetryHint(now int64) int64 {
	if earliest, ok := g.leases.EarliestExpiry(); ok {
		if hint := earliest - now; hint > 0 {
			return clampms.Clamp(hint)
		}
	}
	return g.concurrency.PressureRetryAfterMs()
}

// policyRetryAfterMs is the fixed retry hint for fairness denials: the
// spec gives a formula for concurrency and rate denials but leaves policy
// denials unspecified beyond the universal [25, 5000] bound.
func policyRetryAfterMs() int64 { return clampms.Clamp(250) }

// emit invokes the user-supplied event handler, if any, swallowing any
// panic it raises — a failing observability callback may never corrupt
// state or propagate into the caller.
func (g *Governor) emit(ev Event) {
	if g.cfg.OnEvent == nil {
		return
	}
	defer func() { recover() }()
	g.cfg.OnEvent(ev)
}

// reapTick is invoked periodically by the reaper. It sweeps expired leases
// and reverses their bookkeeping under the same lock every public method
// uses, so a sweep can never race with an in-flight Acquire/Release.
func (g *Governor) reapTick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMs()
	for _, lease := range g.leases.Sweep(now) {
		if g.concurrency != nil {
			g.concurrency.Release(lease.Weight)
		}
		if g.fairness != nil {
			g.fairness.RecordRelease(lease.ActorID, lease.Weight)
		}
		g.emit(newExpireEvent(now, lease))
	}
}
