package governor

// ConcurrencySnapshot reports the live state of the concurrency pool.
type ConcurrencySnapshot struct {
	InFlightWeight int64
	InFlightCount  int64
	Available      int64
	Max            int64
	EffectiveMax   int64
}

// RateSnapshot reports the live state of a rolling-window pool.
type RateSnapshot struct {
	Current int64
	Limit   int64
}

// LastDeny records the most recent denial, surfaced for diagnostics.
type LastDeny struct {
	Reason    DenyReason
	Timestamp int64
	ActorID   string
}

// Snapshot is a read-only view of the governor's current state.
type Snapshot struct {
	Timestamp    int64
	ActiveLeases int64

	Concurrency *ConcurrencySnapshot
	RequestRate *RateSnapshot
	TokenRate   *RateSnapshot

	Fairness bool
	Adaptive bool

	LastDeny *LastDeny
}
