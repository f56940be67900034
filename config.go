package governor

import "github.com/throttleai/governor/internal/govlog"

// ConcurrencyConfig enables the weighted concurrency pool. MaxInFlight is
// required; InteractiveReserve defaults to 0 (background priority
// unrestricted).
type ConcurrencyConfig struct {
	MaxInFlight        int64
	InteractiveReserve int64
}

// RateConfig enables the request-rate and/or token-rate pools.
// RequestsPerMinute and TokensPerMinute are each independently optional —
// a zero value leaves that pool disabled.
type RateConfig struct {
	RequestsPerMinute int64
	TokensPerMinute   int64
	WindowMs          int64
}

// FairnessConfig enables the per-actor soft cap. Requires Concurrency to
// be configured; ignored otherwise.
type FairnessConfig struct {
	SoftCapRatio       float64
	StarvationWindowMs int64
}

// AdaptiveConfig enables the EMA-based effective-max feedback loop.
// Requires Concurrency to be configured; ignored otherwise.
type AdaptiveConfig struct {
	Alpha            float64
	TargetDenyRate   float64
	LatencyThreshold float64
	AdjustIntervalMs int64
	MinConcurrency   int64
}

// Config is consumed once, at construction. Every sub-config is optional;
// a nil pointer disables that component entirely.
type Config struct {
	Concurrency *ConcurrencyConfig
	Rate        *RateConfig
	Fairness    *FairnessConfig
	Adaptive    *AdaptiveConfig

	LeaseTTLMs      int64
	ReaperIntervalMs int64
	Strict          bool

	// Logger receives structured diagnostics. Nil falls back to a no-op
	// logger — never to zerolog's global logger.
	Logger *govlog.Logger

	// OnEvent, if set, is invoked inline (under the governor's lock) for
	// every acquire/deny/release/expire/warn. Panics inside it are caught
	// and discarded; it must never be relied on for correctness.
	OnEvent func(Event)

	// clock is unexported: production callers never set it directly. It
	// exists so tests can install a manual clock via withClock.
	clock clockSource
}

// clockSource mirrors internal/clock.Clock so that Config does not depend
// on the internal clock package.
type clockSource interface {
	NowMs() int64
}

// withClock installs a custom clock source, used by this package's own
// tests to drive rolling windows and lease expiry deterministically. It is
// unexported because production callers have no business overriding the
// clock the governor itself relies on.
func (c Config) withClock(cl clockSource) Config {
	c.clock = cl
	return c
}

// withDefaults returns a copy of c with every zero-valued default filled
// in. Each non-nil sub-config is copied to a fresh struct first — c's
// sub-config pointers must never be mutated in place, or constructing a
// Governor would silently rewrite the caller's own Config.
func (c *Config) withDefaults() Config {
	out := *c
	if out.LeaseTTLMs == 0 {
		out.LeaseTTLMs = 60_000
	}
	if out.ReaperIntervalMs == 0 {
		out.ReaperIntervalMs = 5_000
	}
	if out.Rate != nil {
		rate := *out.Rate
		out.Rate = &rate
	}
	if out.Rate != nil && out.Rate.WindowMs == 0 {
		out.Rate.WindowMs = 60_000
	}
	if out.Fairness != nil {
		fairness := *out.Fairness
		out.Fairness = &fairness
	}
	if out.Fairness != nil {
		if out.Fairness.SoftCapRatio == 0 {
			out.Fairness.SoftCapRatio = 0.6
		}
		if out.Fairness.StarvationWindowMs == 0 {
			out.Fairness.StarvationWindowMs = 5_000
		}
	}
	if out.Adaptive != nil {
		adaptive := *out.Adaptive
		out.Adaptive = &adaptive
	}
	if out.Adaptive != nil {
		if out.Adaptive.Alpha == 0 {
			out.Adaptive.Alpha = 0.2
		}
		if out.Adaptive.TargetDenyRate == 0 {
			out.Adaptive.TargetDenyRate = 0.05
		}
		if out.Adaptive.LatencyThreshold == 0 {
			out.Adaptive.LatencyThreshold = 1.5
		}
		if out.Adaptive.AdjustIntervalMs == 0 {
			out.Adaptive.AdjustIntervalMs = 5_000
		}
		if out.Adaptive.MinConcurrency == 0 {
			out.Adaptive.MinConcurrency = 1
		}
	}
	return out
}

// validate rejects configurations that are internally inconsistent.
// Fairness/Adaptive being set without Concurrency is not an error — §6
// says they're simply ignored in that case.
func (c *Config) validate() error {
	if c.Concurrency != nil && c.Concurrency.InteractiveReserve >= c.Concurrency.MaxInFlight {
		return ErrInvalidConfig
	}
	if c.Concurrency != nil && c.Concurrency.MaxInFlight <= 0 {
		return ErrInvalidConfig
	}
	if c.Adaptive != nil && c.Adaptive.MinConcurrency < 1 {
		return ErrInvalidConfig
	}
	return nil
}
