package quarry

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("quarry: no store configured")
	ErrStoreClosed = errors.New("quarry: store closed")

	// Not found errors.
	ErrJobNotFound    = errors.New("quarry: job not found")
	ErrResultNotFound = errors.New("quarry: result not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("quarry: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("quarry: invalid state transition")
	ErrJobNotActive      = errors.New("quarry: job is not active")
	ErrUnknownKind       = errors.New("quarry: no strategy registered for kind")

	// ErrJobCancelled is the cancellation signal. Strategies return it from a
	// checkpoint when the job has been marked for cancellation; the supervisor
	// translates it into the cancelled state rather than a failure.
	ErrJobCancelled = errors.New("quarry: job cancelled")
)
