// Package fairness implements the per-actor soft-cap with anti-starvation
// exemption: once the pool is under pressure, no actor may hold more than
// soft_cap_ratio of max_weight, except that an actor denied within the
// starvation window gets one exempted admission.
package fairness

// Tracker holds per-actor weight and last-denial bookkeeping.
type Tracker struct {
	softCapRatio       float64
	starvationWindowMs int64

	actorWeight map[string]int64
	lastDenial  map[string]int64
}

// New constructs a Tracker.
func New(softCapRatio float64, starvationWindowMs int64) *Tracker {
	return &Tracker{
		softCapRatio:       softCapRatio,
		starvationWindowMs: starvationWindowMs,
		actorWeight:        make(map[string]int64),
		lastDenial:         make(map[string]int64),
	}
}

// Check reports whether actor may admit one more lease of the given
// weight, given the pool's current maxWeight/inFlightWeight. Enforcement
// only applies once the pool is under pressure (in_flight_weight >=
// 0.5*max_weight); below that threshold every actor is admitted.
func (t *Tracker) Check(actor string, weight, maxWeight, inFlightWeight int64, nowMs int64) bool {
	if inFlightWeight*2 < maxWeight {
		return true
	}
	if float64(t.actorWeight[actor]+weight) <= t.softCapRatio*float64(maxWeight) {
		return true
	}
	if last, denied := t.lastDenial[actor]; denied && nowMs-last <= t.starvationWindowMs {
		delete(t.lastDenial, actor)
		return true
	}
	return false
}

// RecordAcquire adds weight to the actor's in-flight total.
func (t *Tracker) RecordAcquire(actor string, weight int64) {
	t.actorWeight[actor] += weight
}

// RecordRelease subtracts weight from the actor's in-flight total, removing
// the entry once it reaches zero.
func (t *Tracker) RecordRelease(actor string, weight int64) {
	remaining := t.actorWeight[actor] - weight
	if remaining <= 0 {
		delete(t.actorWeight, actor)
		return
	}
	t.actorWeight[actor] = remaining
}

// RecordDenial timestamps actor's most recent denial, arming the
// anti-starvation exemption for the next Check within the starvation window.
func (t *Tracker) RecordDenial(actor string, nowMs int64) {
	t.lastDenial[actor] = nowMs
}

// ActorWeight returns the current tracked weight for actor (used by
// tests).
func (t *Tracker) ActorWeight(actor string) int64 {
	return t.actorWeight[actor]
}

// TotalWeight sums weight across all tracked actors — used by tests to
// check invariant 1 (sum of actor weights equals in-flight weight).
func (t *Tracker) TotalWeight() int64 {
	var total int64
	for _, w := range t.actorWeight {
		total += w
	}
	return total
}
