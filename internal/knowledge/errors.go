package knowledge

import (
	"errors"
	"fmt"
)

// Error classes. Callers select retry behavior with errors.Is: validation
// and not-found errors are never retried, persistence errors are.
var (
	// ErrValidation marks a malformed request. Surfaced immediately,
	// never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a reference to an entity or relationship that does
	// not exist or belongs to a different user. Not retried.
	ErrNotFound = errors.New("not found")

	// ErrPersistence marks a storage-layer failure. Retryable by the
	// caller's task executor.
	ErrPersistence = errors.New("persistence error")
)

// Specific errors, each wrapping its class.
var (
	ErrEntityNotFound       = fmt.Errorf("%w: entity", ErrNotFound)
	ErrRelationshipNotFound = fmt.Errorf("%w: relationship", ErrNotFound)
	ErrNoTarget             = fmt.Errorf("%w: neither entity nor relationship target specified", ErrValidation)
	ErrEmptyUserID          = fmt.Errorf("%w: user ID cannot be empty", ErrValidation)
	ErrEmptyEntityName      = fmt.Errorf("%w: entity name cannot be empty", ErrValidation)
	ErrUnknownEvidenceType  = fmt.Errorf("%w: unknown evidence type", ErrValidation)
	ErrUnknownEntityType    = fmt.Errorf("%w: unknown entity type", ErrValidation)
	ErrUnknownRelationType  = fmt.Errorf("%w: unknown relationship type", ErrValidation)
	ErrInvalidConfidence    = fmt.Errorf("%w: confidence must be between 0.0 and 1.0", ErrValidation)
	ErrAmbiguousEvidence    = fmt.Errorf("%w: evidence must reference exactly one of entity or relationship", ErrValidation)
)

// IsRetryable reports whether an error should be retried by an external
// task executor. Only persistence failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
