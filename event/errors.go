package event

import "errors"

// Validation errors a caller can act on. All are produced by Validate and
// never by Create, which only operates on locally-trusted input.
var (
	ErrHashMismatch     = errors.New("event: claimed hash does not match recomputed hash")
	ErrBadSignature     = errors.New("event: signature verification failed")
	ErrMalformedParents = errors.New("event: malformed parents")
	ErrUnknownParent    = errors.New("event: parent not found in local store")
)
