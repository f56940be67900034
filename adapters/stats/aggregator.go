// Package stats is a peripheral adapter that subscribes to a governor's
// event stream and maintains cumulative per-actor counters; counts are
// never aged out or reset. Expire and warn events are not counted. It is grounded on
// the shape of the teacher's own LimiterStore/Registry split: a collaborator
// that only observes the core's public events, never its internals.
package stats

import (
	"sync"

	"github.com/throttleai/governor"
)

// ActorStats is the aggregated counters for one actor.
type ActorStats struct {
	Acquires int64
	Releases int64
	Denials  int64

	DenialsByReason map[governor.DenyReason]int64
}

// Aggregator accumulates ActorStats from a governor's event stream. Attach
// it by passing its Observe method as Config.OnEvent (directly, or chained
// after another handler).
type Aggregator struct {
	mu     sync.Mutex
	actors map[string]*ActorStats
}

// New constructs an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{actors: make(map[string]*ActorStats)}
}

// Observe is the governor.Event handler. It is safe to call concurrently,
// though in practice the governor only ever invokes it inline under its own
// lock.
func (a *Aggregator) Observe(ev governor.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case governor.AcquireEvent:
		a.entry(e.ActorID).Acquires++
	case governor.ReleaseEvent:
		a.entry(e.ActorID).Releases++
	case governor.DenyEvent:
		s := a.entry(e.ActorID)
		s.Denials++
		if s.DenialsByReason == nil {
			s.DenialsByReason = make(map[governor.DenyReason]int64)
		}
		s.DenialsByReason[e.Reason]++
	}
}

func (a *Aggregator) entry(actorID string) *ActorStats {
	s, ok := a.actors[actorID]
	if !ok {
		s = &ActorStats{DenialsByReason: make(map[governor.DenyReason]int64)}
		a.actors[actorID] = s
	}
	return s
}

// Snapshot returns a copy of the current per-actor counters.
func (a *Aggregator) Snapshot() map[string]ActorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]ActorStats, len(a.actors))
	for actorID, s := range a.actors {
		reasons := make(map[governor.DenyReason]int64, len(s.DenialsByReason))
		for r, n := range s.DenialsByReason {
			reasons[r] = n
		}
		out[actorID] = ActorStats{
			Acquires:        s.Acquires,
			Releases:        s.Releases,
			Denials:         s.Denials,
			DenialsByReason: reasons,
		}
	}
	return out
}
