// Package httpretry is a peripheral adapter layering HTTP execution on top
// of a governor.Governor: every round trip is wrapped in an acquire/release
// pair, and transport-level failures (as opposed to governor denials) are
// retried with retryablehttp's exponential backoff. It consumes the
// governor's public contract only — it never reaches into core internals.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/throttleai/governor"
)

// Client executes HTTP requests behind a governor lease.
type Client struct {
	gov    *governor.Governor
	retry  *retryablehttp.Client
	sleep  func(time.Duration)
	maxGovernorWait time.Duration
}

// New constructs a Client. gov must be non-nil. maxGovernorWait bounds how
// long Do will keep retrying a governor denial before giving up; zero
// means no bound.
func New(gov *governor.Governor, maxGovernorWait time.Duration) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	return &Client{
		gov:             gov,
		retry:           retryClient,
		sleep:           time.Sleep,
		maxGovernorWait: maxGovernorWait,
	}
}

// ErrGovernorBackoffExceeded is returned by Do when maxGovernorWait elapses
// without the governor granting a lease.
var ErrGovernorBackoffExceeded = errors.New("httpretry: exceeded governor backoff budget")

// Do acquires a lease for actorID/action, executes req through the
// retryablehttp client (which handles transport-level retries on its own),
// and releases the lease with the outcome derived from the response/error.
// Governor denials are backed off between with the denial's own
// retry_after_ms — the core itself never sleeps; all waiting happens here,
// outside its concurrency contract.
func (c *Client) Do(ctx context.Context, actorID, action string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	deadline := time.Time{}
	if c.maxGovernorWait > 0 {
		deadline = start.Add(c.maxGovernorWait)
	}

	for {
		decision := c.gov.Acquire(governor.AcquireRequest{
			ActorID: actorID,
			Action:  action,
		})
		if decision.Granted {
			return c.doGranted(ctx, decision.LeaseID, req)
		}
		if !deadline.IsZero() && time.Now().Add(time.Duration(decision.RetryAfterMs)*time.Millisecond).After(deadline) {
			return nil, ErrGovernorBackoffExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c.sleep(time.Duration(decision.RetryAfterMs) * time.Millisecond)
	}
}

func (c *Client) doGranted(ctx context.Context, leaseID string, req *http.Request) (*http.Response, error) {
	started := time.Now()

	retryableReq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		c.gov.Release(leaseID, governor.ReleaseReport{Outcome: governor.OutcomeError})
		return nil, fmt.Errorf("httpretry: building retryable request: %w", err)
	}

	resp, err := c.retry.Do(retryableReq)
	latency := float64(time.Since(started).Milliseconds())

	outcome := governor.OutcomeSuccess
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = governor.OutcomeCancelled
	case err != nil:
		outcome = governor.OutcomeError
	case resp != nil && resp.StatusCode >= 500:
		outcome = governor.OutcomeError
	}

	c.gov.Release(leaseID, governor.ReleaseReport{Outcome: outcome, LatencyMs: latency})

	return resp, err
}
