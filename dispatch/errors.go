package dispatch

import "errors"

// Outcome taxonomy. Conflict and forbidden are deliberately distinct: a
// conflict means "someone else resolved this first, stop retrying this
// attempt", forbidden means "the caller was never allowed to do this".
var (
	// ErrInvalidInput covers missing pickup coordinates, unknown tenants
	// and malformed payloads. Rejected synchronously, never defaulted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the referenced trip, driver or zone does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCandidates is a first-class empty result, not a failure: no
	// eligible driver exists for the trip right now.
	ErrNoCandidates = errors.New("no drivers available")

	// ErrConflict is the optimistic-concurrency loss: the trip was already
	// assigned, declined or otherwise resolved by another process.
	ErrConflict = errors.New("trip already resolved")

	// ErrForbidden means a driver attempted a transition on a trip that was
	// never theirs. Logged as an integrity signal.
	ErrForbidden = errors.New("driver not assigned to trip")
)
