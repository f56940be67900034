// Package adaptive implements the EMA-based feedback loop that nudges the
// concurrency pool's effective ceiling up or down based on recent deny rate
// and completion latency. The tick piggy-backs on acquire calls rather than
// running its own goroutine — see Config.AdjustIntervalMs — so adjustments
// stay synchronous with the decisions they affect.
package adaptive

// Config holds the controller's tuning knobs. Zero values are not valid
// defaults for every field (e.g. AdjustIntervalMs=0 would tick on every
// call); the facade is responsible for applying the documented defaults
// before constructing a Controller.
type Config struct {
	Alpha            float64
	TargetDenyRate   float64
	LatencyThreshold float64
	AdjustIntervalMs int64
	MinConcurrency   int64
}

// Controller tracks EMAs of deny rate and latency and owns the
// authoritative effective_max value; the facade copies it onto the
// concurrency pool after every tick.
type Controller struct {
	cfg       Config
	maxWeight int64

	effectiveMax int64
	lastTickMs   int64
	ticked       bool

	emaDenyRate    float64
	denyRateSet    bool
	emaLatency     float64
	latencySet     bool
	baseline       float64
	baselineSet    bool
	acquireCount   int64
	denyCount      int64
	latencySum     float64
	latencyCount   int64
}

// New constructs a Controller. initialNowMs seeds the tick gate so the
// first adjustment happens adjust_interval_ms after construction, not on
// the very first acquire.
func New(cfg Config, maxWeight int64, initialNowMs int64) *Controller {
	return &Controller{
		cfg:          cfg,
		maxWeight:    maxWeight,
		effectiveMax: maxWeight,
		lastTickMs:   initialNowMs,
	}
}

// EffectiveMax returns the controller's current ceiling without ticking.
func (c *Controller) EffectiveMax() int64 { return c.effectiveMax }

// RecordAcquire counts a granted acquire toward the current interval's
// deny-rate denominator.
func (c *Controller) RecordAcquire() { c.acquireCount++ }

// RecordDenial counts a denial toward the current interval's deny rate.
// Per spec, this happens for every denial, regardless of which limiter
// produced it.
func (c *Controller) RecordDenial() { c.denyCount++ }

// RecordLatency adds one completion-latency sample to the current interval.
func (c *Controller) RecordLatency(ms float64) {
	c.latencySum += ms
	c.latencyCount++
}

// MaybeAdjust runs the tick if at least adjust_interval_ms has elapsed
// since the last one, then returns the (possibly updated) effective_max.
// If the interval hasn't elapsed, it returns the current value unchanged.
func (c *Controller) MaybeAdjust(nowMs int64) int64 {
	if nowMs-c.lastTickMs < c.cfg.AdjustIntervalMs {
		return c.effectiveMax
	}

	total := c.acquireCount + c.denyCount
	denyRate := 0.0
	if total > 0 {
		denyRate = float64(c.denyCount) / float64(total)
	}
	c.emaDenyRate = ema(c.emaDenyRate, denyRate, c.cfg.Alpha, c.denyRateSet)
	c.denyRateSet = true

	if c.latencyCount > 0 {
		avgLatency := c.latencySum / float64(c.latencyCount)
		if !c.baselineSet {
			c.baseline = avgLatency
			c.baselineSet = true
		}
		c.emaLatency = ema(c.emaLatency, avgLatency, c.cfg.Alpha, c.latencySet)
		c.latencySet = true
	}

	latencyOverThreshold := c.baselineSet && c.emaLatency > c.baseline*c.cfg.LatencyThreshold

	switch {
	case c.emaDenyRate > c.cfg.TargetDenyRate || latencyOverThreshold:
		c.effectiveMax--
		if c.effectiveMax < c.cfg.MinConcurrency {
			c.effectiveMax = c.cfg.MinConcurrency
		}
	case c.effectiveMax < c.maxWeight &&
		c.emaDenyRate < c.cfg.TargetDenyRate/2 &&
		(!c.baselineSet || c.emaLatency <= c.baseline*1.1):
		c.effectiveMax++
	}

	c.acquireCount, c.denyCount = 0, 0
	c.latencySum, c.latencyCount = 0, 0
	c.lastTickMs = nowMs
	c.ticked = true

	return c.effectiveMax
}

func ema(prev, sample, alpha float64, hasPrev bool) float64 {
	if !hasPrev {
		return sample
	}
	return prev + alpha*(sample-prev)
}
