package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// FailureReason classifies why a fetch was dead-lettered.
type FailureReason string

// Failure reasons.
const (
	FailureTransient FailureReason = "transient"
	FailurePermanent FailureReason = "permanent"
	FailureQuota     FailureReason = "quota"
)

// ClassifyFailure maps a connector error onto a failure reason.
// Unclassified errors are treated as transient.
func ClassifyFailure(err error) FailureReason {
	var qe *QuotaError
	switch {
	case errors.As(err, &qe), errors.Is(err, ErrQuotaExhausted):
		return FailureQuota
	case IsPermanent(err):
		return FailurePermanent
	default:
		return FailureTransient
	}
}

// DeadLetterEntry records a permanently failed fetch or parse attempt.
// Entries are never silently dropped.
type DeadLetterEntry struct {
	// ID is deterministic over (run, source, request) so reruns upsert.
	ID string

	RunID      string
	CityID     string
	SourceID   string
	SourceType SourceType

	// Params are the original request parameters.
	Params map[string]string

	Reason    FailureReason
	Attempts  int
	LastError string

	FirstSeen time.Time
	LastSeen  time.Time
}

// DeadLetterID derives the entry id for a request within a run.
func DeadLetterID(runID, sourceID string, q Query) string {
	h := sha256.Sum256([]byte(runID + "\x00" + sourceID + "\x00" + q.Key()))
	return hex.EncodeToString(h[:16])
}

// DeadLetterFilter selects dead-letter entries.
type DeadLetterFilter struct {
	RunID      string
	CityID     string
	SourceType SourceType
	Limit      int
}
