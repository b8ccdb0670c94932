package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown connector or source type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrRunInProgress indicates a run for the city is already executing.
	ErrRunInProgress = errors.New("run in progress")

	// ErrRunAborted indicates the run was cancelled between steps.
	ErrRunAborted = errors.New("run aborted")

	// ErrClassifierUnavailable indicates no classifier is configured.
	// Tag aggregation falls back to rule tags only.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Connector Errors.

	// ErrQuotaExhausted indicates a source's daily quota is used up.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrRateLimited indicates the upstream API throttled the request.
	ErrRateLimited = errors.New("rate limited")
)

// TransientError is a connector failure worth retrying
// (timeouts, 5xx, throttling responses).
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError wraps err as a retryable connector failure.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a connector failure that must not be retried
// (4xx other than throttling, parse failures).
type PermanentError struct {
	Op  string
	Err error
}

// NewPermanentError wraps err as a non-retryable connector failure.
func NewPermanentError(op string, err error) *PermanentError {
	return &PermanentError{Op: op, Err: err}
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PermanentError) Unwrap() error { return e.Err }

// QuotaError reports a request deferred because a source's quota window is spent.
type QuotaError struct {
	Source  SourceType
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: daily quota exhausted, resets at %s", e.Source, e.ResetAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrQuotaExhausted.
func (e *QuotaError) Unwrap() error { return ErrQuotaExhausted }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsQuota reports whether err is a quota deferral.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// ResolutionInputError marks a malformed signal. It is a data-quality issue:
// the signal is skipped and counted, never dead-lettered.
type ResolutionInputError struct {
	Fingerprint string
	Reason      string
}

func (e *ResolutionInputError) Error() string {
	return fmt.Sprintf("unusable signal %s: %s", e.Fingerprint, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ResolutionInputError) Unwrap() error { return ErrInvalidInput }

// ScoringInconsistencyError is raised when a node's signals cannot produce a
// valid score. It is fatal to the scoring step.
type ScoringInconsistencyError struct {
	NodeID string
	Reason string
}

func (e *ScoringInconsistencyError) Error() string {
	return fmt.Sprintf("scoring inconsistency on node %s: %s", e.NodeID, e.Reason)
}

// ParityDriftError reports that the vector index and the canonical store disagree
// for a city. It is surfaced, never repaired automatically.
type ParityDriftError struct {
	CityID           string
	MissingFromIndex []string
	OrphanedInIndex  []string
}

func (e *ParityDriftError) Error() string {
	return fmt.Sprintf("index parity drift for %s: %d missing from index, %d orphaned in index",
		e.CityID, len(e.MissingFromIndex), len(e.OrphanedInIndex))
}
