// Package wallerr defines the error kinds from spec.md §7 as sentinel
// errors so callers can classify a failure with errors.Is rather than
// string matching, mirroring the teacher's fmt.Errorf("...: %w", err)
// wrapping style throughout internal/ibkrcp.
package wallerr

import "errors"

var (
	// ErrConfig: missing token, malformed YAML, unknown symbol syntax.
	// Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrResolver: instrument not found. Fatal at startup; partial
	// resolution is not allowed.
	ErrResolver = errors.New("resolver error")

	// ErrTransport: connection drop, stream end, deadline, auth refresh.
	// Recovered locally via reconnect with exponential backoff.
	ErrTransport = errors.New("transport error")

	// ErrAuthPermanent: credentials rejected with a non-transient code.
	// Fatal; never retried.
	ErrAuthPermanent = errors.New("auth permanent error")

	// ErrDetectorLogic: invariant violation such as a negative quantity
	// or a crossed book. The offending frame is dropped; detector state
	// is left untouched so the next valid snapshot re-synchronizes.
	ErrDetectorLogic = errors.New("detector logic error")

	// ErrSink: a sink failed to deliver. The dispatcher logs the failure
	// and never propagates it to the supervisor; failed deliveries are
	// not counted.
	ErrSink = errors.New("sink error")
)

// ExitCode maps a fatal startup error to the process exit code from
// spec.md §6. Retryable transport errors drive reconnect and never reach
// this function; a transport error that does end the run (such as a
// failed initial subscribe) maps to 4. Any other error maps to 1.
func ExitCode(err error) int {
	switch {
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrResolver), errors.Is(err, ErrAuthPermanent):
		return 3
	case errors.Is(err, ErrTransport):
		return 4
	default:
		return 1
	}
}
