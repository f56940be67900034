// Package leasestore owns the set of active leases, indexed both by id and
// by idempotency key, and the background reaper that expires them.
package leasestore

// Lease is an issued permission to perform work. The governor package
// re-exports this type (governor.Lease = leasestore.Lease) so callers never
// import this package directly.
type Lease struct {
	ID              string
	ActorID         string
	Action          string
	Priority        string
	Weight          int64
	IdempotencyKey  string
	CreatedAtMs     int64
	ExpiresAtMs     int64
	EstimatedTokens int64
}

// Store maps lease id to Lease and idempotency key to lease id.
type Store struct {
	leases           map[string]*Lease
	byIdempotencyKey map[string]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		leases:           make(map[string]*Lease),
		byIdempotencyKey: make(map[string]string),
	}
}

// Add inserts the lease, indexing it by idempotency key too if one is set.
func (s *Store) Add(l *Lease) {
	s.leases[l.ID] = l
	if l.IdempotencyKey != "" {
		s.byIdempotencyKey[l.IdempotencyKey] = l.ID
	}
}

// Get looks up a lease by id.
func (s *Store) Get(id string) (*Lease, bool) {
	l, ok := s.leases[id]
	return l, ok
}

// GetByIdempotencyKey looks up a lease by its idempotency key, cleaning up
// the index entry if the underlying lease is already gone (e.g. reaped).
// It does not itself check ExpiresAtMs: the store has no notion of "now",
// so a lease that has expired but not yet been swept is still returned.
// Callers that care about liveness (the idempotency-hit path in Acquire)
// must compare ExpiresAtMs against their own clock.
func (s *Store) GetByIdempotencyKey(key string) (*Lease, bool) {
	id, ok := s.byIdempotencyKey[key]
	if !ok {
		return nil, false
	}
	l, ok := s.leases[id]
	if !ok {
		delete(s.byIdempotencyKey, key)
		return nil, false
	}
	return l, true
}

// Remove deletes the lease and its idempotency index entry, returning the
// prior value if one existed.
func (s *Store) Remove(id string) (*Lease, bool) {
	l, ok := s.leases[id]
	if !ok {
		return nil, false
	}
	delete(s.leases, id)
	if l.IdempotencyKey != "" {
		delete(s.byIdempotencyKey, l.IdempotencyKey)
	}
	return l, true
}

// EarliestExpiry returns the minimum ExpiresAtMs among all active leases.
func (s *Store) EarliestExpiry() (int64, bool) {
	var min int64
	found := false
	for _, l := range s.leases {
		if !found || l.ExpiresAtMs < min {
			min = l.ExpiresAtMs
			found = true
		}
	}
	return min, found
}

// Sweep removes and returns every lease with ExpiresAtMs <= now. Safe to
// call when there is nothing to reap.
func (s *Store) Sweep(nowMs int64) []*Lease {
	var expired []*Lease
	for id, l := range s.leases {
		if l.ExpiresAtMs <= nowMs {
			expired = append(expired, l)
			delete(s.leases, id)
			if l.IdempotencyKey != "" {
				delete(s.byIdempotencyKey, l.IdempotencyKey)
			}
		}
	}
	return expired
}

// Len returns the number of active leases.
func (s *Store) Len() int { return len(s.leases) }
