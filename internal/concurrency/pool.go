// Package concurrency implements the weighted admission pool: a hard
// ceiling (max_weight), an adjustable effective ceiling the adaptive
// controller can move, an interactive reserve background requests may
// never consume, and the current in-flight weight.
//
// Pool holds no lock of its own — like every leaf component, it is mutated
// only while the governor's single top-level mutex is held.
package concurrency

import (
	"errors"
	"math"

	"github.com/throttleai/governor/internal/clampms"
)

// ErrInvalidReserve is returned by New when interactive_reserve >= max_weight.
var ErrInvalidReserve = errors.New("concurrency: interactive_reserve must be less than max_weight")

// Priority distinguishes interactive callers (never blocked by the
// interactive reserve) from background callers (blocked from eating into it).
type Priority int

const (
	Interactive Priority = iota
	Background
)

// Pool is the weighted concurrency limiter.
type Pool struct {
	maxWeight          int64
	effectiveMax       int64
	interactiveReserve int64
	inFlightWeight     int64
}

// New constructs a Pool. interactiveReserve must be strictly less than
// maxWeight; the zero reserve means background priority is unrestricted.
func New(maxWeight, interactiveReserve int64) (*Pool, error) {
	if interactiveReserve >= maxWeight {
		return nil, ErrInvalidReserve
	}
	return &Pool{
		maxWeight:          maxWeight,
		effectiveMax:       maxWeight,
		interactiveReserve: interactiveReserve,
	}, nil
}

// Admit applies the three-step admission rule for a request of the given
// weight and priority. On success it reserves the weight immediately
// (in_flight_weight += weight) and returns true; callers that later deny
// the request for an unrelated reason must call Release to roll back.
func (p *Pool) Admit(weight int64, priority Priority) bool {
	available := p.effectiveMax - p.inFlightWeight
	if available < weight {
		return false
	}
	if priority == Background && available-weight < p.interactiveReserve {
		return false
	}
	p.inFlightWeight += weight
	return true
}

// Release returns weight to the pool. Over-release is clamped at zero
// rather than going negative — the facade's strict mode catches the
// double-release case before it ever reaches here.
func (p *Pool) Release(weight int64) {
	p.inFlightWeight -= weight
	if p.inFlightWeight < 0 {
		p.inFlightWeight = 0
	}
}

// SetEffectiveMax installs a new ceiling, clamped to [minConcurrency, max_weight].
// The adaptive controller is the only caller; it already enforces the same
// floor, but the pool re-asserts invariant 7 (effective_max >= min_concurrency >= 1)
// independently of its caller.
func (p *Pool) SetEffectiveMax(v, minConcurrency int64) {
	if v < minConcurrency {
		v = minConcurrency
	}
	if v > p.maxWeight {
		v = p.maxWeight
	}
	p.effectiveMax = v
}

// InFlightWeight returns the current reserved weight.
func (p *Pool) InFlightWeight() int64 { return p.inFlightWeight }

// EffectiveMax returns the current adjustable ceiling.
func (p *Pool) EffectiveMax() int64 { return p.effectiveMax }

// MaxWeight returns the hard ceiling.
func (p *Pool) MaxWeight() int64 { return p.maxWeight }

// PressureRetryAfterMs computes the fallback retry hint used when no
// earlier-expiring lease is known: round(250 + pressure*750), clamped to
// [25, 5000], where pressure = in_flight_weight / effective_max.
func (p *Pool) PressureRetryAfterMs() int64 {
	if p.effectiveMax <= 0 {
		return clampms.Max
	}
	pressure := float64(p.inFlightWeight) / float64(p.effectiveMax)
	return clampms.Clamp(int64(math.Round(250 + pressure*750)))
}
