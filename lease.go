package governor

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"github.com/throttleai/governor/internal/leasestore"
)

// Lease is an issued permission to perform work, returned opaquely to
// callers as a lease id and looked up internally by the store.
type Lease = leasestore.Lease

// Priority distinguishes interactive callers, which are never blocked by
// the interactive reserve, from background callers, which are.
type Priority string

const (
	PriorityInteractive Priority = "interactive"
	PriorityBackground  Priority = "background"
)

// generateLeaseID returns 8 random bytes hex-encoded. If crypto/rand ever
// fails to read (it practically never does), a timestamp-based string is
// used instead rather than panicking mid-acquire.
func generateLeaseID(nowMs int64) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "lease-" + strconv.FormatInt(nowMs, 10)
	}
	return hex.EncodeToString(buf)
}
