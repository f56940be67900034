package governor

import "errors"

// ErrInvalidConfig is returned by New when the supplied Config is
// internally inconsistent (e.g. InteractiveReserve >= MaxInFlight).
var ErrInvalidConfig = errors.New("governor: invalid configuration")

// ErrDoubleRelease is returned by Release in strict mode when lease_id was
// already released recently. In non-strict mode the same condition is a
// silent no-op.
var ErrDoubleRelease = errors.New("governor: lease already released")

// ErrUnknownLease is returned by Release in strict mode when lease_id was
// never issued, or has already been forgotten (e.g. reaped). In
// non-strict mode the same condition is a silent no-op.
var ErrUnknownLease = errors.New("governor: unknown lease id")
