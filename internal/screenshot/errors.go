package screenshot

import "errors"

// Sentinel errors surfaced by JobStore implementations.
var (
	// ErrJobNotFound is returned when a job ID does not resolve to a record.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a create or edit would give an owner
	// two jobs with the same URL or the same title.
	ErrDuplicateJob = errors.New("duplicate job for owner")

	// ErrNoOwnerAddress is returned when a job's owner has no resolvable
	// notification address. Callers treat it as a soft failure.
	ErrNoOwnerAddress = errors.New("no owner address")
)
