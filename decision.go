package governor

// DenyReason is the closed set of reasons an acquire may be refused.
// ReasonBudget is reserved for future cost-based limiting — the core
// currently never emits it, per the open question in its design notes.
type DenyReason string

const (
	ReasonConcurrency DenyReason = "concurrency"
	ReasonRate        DenyReason = "rate"
	ReasonBudget       DenyReason = "budget"
	ReasonPolicy      DenyReason = "policy"
)

// Outcome describes how the caller's actual work concluded, reported back
// at Release time. It informs adaptive tuning only indirectly, via
// latency.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Estimate is the caller's forecast of what a request will cost, used to
// charge the concurrency and token-rate pools at acquisition time.
type Estimate struct {
	Weight         int64
	PromptTokens   int64
	MaxOutputTokens int64
}

// AcquireRequest is the input to Acquire.
type AcquireRequest struct {
	ActorID        string
	Action         string
	Priority       Priority
	Estimate       Estimate
	IdempotencyKey string
}

// LimitsHint carries the state of whichever limiter produced a denial, so
// callers can make an informed backoff decision without re-querying a
// snapshot.
type LimitsHint struct {
	InFlight    int64
	MaxInFlight int64
	RateUsed    int64
	RateLimit   int64
}

// AcquireDecision is the tagged result of Acquire: exactly one of Granted
// or Denied is meaningful, distinguished by Granted.
type AcquireDecision struct {
	Granted bool

	// Populated when Granted.
	LeaseID   string
	ExpiresAt int64

	// Populated when !Granted.
	Reason         DenyReason
	RetryAfterMs   int64
	Recommendation string
	LimitsHint     LimitsHint
}

// Usage is the caller-reported actual token consumption of a completed
// request, used to reconcile the token-rate pool's estimate.
type Usage struct {
	PromptTokens int64
	OutputTokens int64
}

// ReleaseReport is the optional second argument to Release.
type ReleaseReport struct {
	Outcome   Outcome
	Usage     *Usage
	LatencyMs float64
}
