package governor

import (
	"testing"

	"github.com/throttleai/governor/internal/clock"
)

func newTestGovernor(t *testing.T, cfg Config, cl *clock.Manual) *Governor {
	t.Helper()
	cfg = cfg.withClock(cl)
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error constructing governor: %v", err)
	}
	t.Cleanup(g.Dispose)
	return g
}

func TestScenarioS1ConcurrencyDenialAndRecovery(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 1},
		LeaseTTLMs:  1000,
	}, cl)

	d1 := g.Acquire(AcquireRequest{ActorID: "a", Action: "call"})
	if !d1.Granted || d1.ExpiresAt != 1000 {
		t.Fatalf("expected grant with expires_at=1000, got %+v", d1)
	}

	cl.Set(10)
	d2 := g.Acquire(AcquireRequest{ActorID: "a", Action: "call"})
	if d2.Granted || d2.Reason != ReasonConcurrency || d2.RetryAfterMs != 990 {
		t.Fatalf("expected concurrency denial with retry_after_ms=990, got %+v", d2)
	}

	cl.Set(500)
	if err := g.Release(d1.LeaseID, ReleaseReport{}); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	cl.Set(501)
	d3 := g.Acquire(AcquireRequest{ActorID: "a", Action: "call"})
	if !d3.Granted {
		t.Fatalf("expected grant after release freed capacity, got %+v", d3)
	}
}

func TestScenarioS2RateWindowSlide(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Rate: &RateConfig{RequestsPerMinute: 2, WindowMs: 1000},
	}, cl)

	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x"}))
	cl.Set(100)
	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x"}))
	cl.Set(200)
	d := g.Acquire(AcquireRequest{ActorID: "a", Action: "x"})
	if d.Granted || d.Reason != ReasonRate {
		t.Fatalf("expected rate denial, got %+v", d)
	}

	cl.Set(1050)
	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x"}))
}

func TestScenarioS3TokenReconciliation(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Rate: &RateConfig{TokensPerMinute: 1000, WindowMs: 60_000},
	}, cl)

	d1 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{PromptTokens: 500, MaxOutputTokens: 300}})
	assertGranted(t, d1)

	d2 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{PromptTokens: 100, MaxOutputTokens: 200}})
	if d2.Granted {
		t.Fatalf("expected denial: 800+300 exceeds 1000 cap, got %+v", d2)
	}

	if err := g.Release(d1.LeaseID, ReleaseReport{Usage: &Usage{PromptTokens: 500, OutputTokens: 100}}); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	d3 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{PromptTokens: 100, MaxOutputTokens: 200}})
	assertGranted(t, d3)
}

func TestScenarioS4FairnessSoftCap(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 10},
		Fairness:    &FairnessConfig{SoftCapRatio: 0.5},
	}, cl)

	for i := 0; i < 5; i++ {
		d := g.Acquire(AcquireRequest{ActorID: "actor-a", Action: "x"})
		if !d.Granted {
			t.Fatalf("expected grant %d for actor-a, got %+v", i, d)
		}
	}

	d6 := g.Acquire(AcquireRequest{ActorID: "actor-a", Action: "x"})
	if d6.Granted || d6.Reason != ReasonPolicy {
		t.Fatalf("expected policy denial on actor-a's 6th acquire, got %+v", d6)
	}

	dB := g.Acquire(AcquireRequest{ActorID: "actor-b", Action: "x"})
	assertGranted(t, dB)
}

func TestScenarioS5RollbackOnLaterLimiterDenial(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 10},
		Rate:        &RateConfig{RequestsPerMinute: 1, WindowMs: 60_000},
	}, cl)

	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x"}))
	d2 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x"})
	if d2.Granted || d2.Reason != ReasonRate {
		t.Fatalf("expected rate denial, got %+v", d2)
	}

	snap := g.Snapshot()
	if snap.Concurrency.InFlightWeight != 1 {
		t.Fatalf("expected in_flight_weight rolled back to 1, got %d", snap.Concurrency.InFlightWeight)
	}
}

func TestScenarioS6WeightedConcurrency(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 10},
	}, cl)

	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{Weight: 5}}))
	assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{Weight: 5}}))

	d := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", Estimate: Estimate{Weight: 1}})
	if d.Granted || d.Reason != ReasonConcurrency {
		t.Fatalf("expected concurrency denial once at 10/10, got %+v", d)
	}
}

func TestScenarioS7AdaptiveReduction(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 5},
		Adaptive: &AdaptiveConfig{
			Alpha: 1.0, TargetDenyRate: 0.05, AdjustIntervalMs: 100,
		},
	}, cl)

	for i := 0; i < 5; i++ {
		assertGranted(t, g.Acquire(AcquireRequest{ActorID: "a", Action: "x"}))
	}
	for i := 0; i < 20; i++ {
		d := g.Acquire(AcquireRequest{ActorID: "a", Action: "x"})
		if d.Granted {
			t.Fatalf("expected denial at capacity, got %+v", d)
		}
	}

	cl.Set(150)
	g.Acquire(AcquireRequest{ActorID: "b", Action: "x"})

	snap := g.Snapshot()
	if snap.Concurrency.EffectiveMax != 4 {
		t.Fatalf("expected effective_max to drop to 4 after the tick, got %d", snap.Concurrency.EffectiveMax)
	}
}

func TestIdempotentAcquireReturnsSameLease(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 10},
	}, cl)

	d1 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", IdempotencyKey: "k1"})
	d2 := g.Acquire(AcquireRequest{ActorID: "a", Action: "x", IdempotencyKey: "k1"})
	if d1.LeaseID != d2.LeaseID {
		t.Fatalf("expected the same lease id for repeated idempotency key, got %q vs %q", d1.LeaseID, d2.LeaseID)
	}

	snap := g.Snapshot()
	if snap.Concurrency.InFlightWeight != 1 {
		t.Fatalf("expected only one unit of capacity consumed, got %d", snap.Concurrency.InFlightWeight)
	}
}

func TestStrictModeDoubleRelease(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency: &ConcurrencyConfig{MaxInFlight: 10},
		Strict:      true,
	}, cl)

	d := g.Acquire(AcquireRequest{ActorID: "a", Action: "x"})
	assertGranted(t, d)

	if err := g.Release(d.LeaseID, ReleaseReport{}); err != nil {
		t.Fatalf("unexpected error on first release: %v", err)
	}
	if err := g.Release(d.LeaseID, ReleaseReport{}); err != ErrDoubleRelease {
		t.Fatalf("expected ErrDoubleRelease, got %v", err)
	}
}

func TestStrictModeUnknownLease(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{Strict: true}, cl)

	if err := g.Release("does-not-exist", ReleaseReport{}); err != ErrUnknownLease {
		t.Fatalf("expected ErrUnknownLease, got %v", err)
	}
}

func TestNonStrictModeTolerantOfMisuse(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{}, cl)

	if err := g.Release("does-not-exist", ReleaseReport{}); err != nil {
		t.Fatalf("expected silent no-op in non-strict mode, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Concurrency: &ConcurrencyConfig{MaxInFlight: 5, InteractiveReserve: 5}})
	if err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestReaperReclaimsExpiredLeases(t *testing.T) {
	cl := clock.NewManual(0)
	g := newTestGovernor(t, Config{
		Concurrency:      &ConcurrencyConfig{MaxInFlight: 1},
		LeaseTTLMs:       1000,
		ReaperIntervalMs: 1,
	}, cl)

	d := g.Acquire(AcquireRequest{ActorID: "a", Action: "x"})
	assertGranted(t, d)

	cl.Set(1001)
	g.reapTick()

	snap := g.Snapshot()
	if snap.Concurrency.InFlightWeight != 0 {
		t.Fatalf("expected the reaper to free the expired lease's weight, got %d", snap.Concurrency.InFlightWeight)
	}
}

func assertGranted(t *testing.T, d AcquireDecision) {
	t.Helper()
	if !d.Granted {
		t.Fatalf("expected grant, got denial: %+v", d)
	}
}
