package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors of the match pipeline. Extraction sentinels live in the
// extractor package; these cover the stages above it.
var (
	// ErrEmbeddingServiceUnavailable means the embedding API kept failing
	// after bounded retries. Transient; the user should retry later.
	ErrEmbeddingServiceUnavailable = errors.New("embedding service unavailable")

	// ErrDocumentNotFound means a referenced resume or job id has no row.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrMatchNotFound means the requested match id has no row.
	ErrMatchNotFound = errors.New("match not found")

	// ErrRateLimited means the user exhausted their operation window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrMatchInProgress means another run currently holds the pair lock.
	ErrMatchInProgress = errors.New("match computation already in progress")
)

// MatchError wraps a stage failure with the operation name and the pair
// identity, so one log line places the error in the pipeline.
type MatchError struct {
	Op       string // pipeline stage, e.g. "extract", "embed", "score"
	ResumeID string
	JobID    string
	BaseErr  error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match %s/%s: %s failed: %v", e.ResumeID, e.JobID, e.Op, e.BaseErr)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is lets errors.Is match on another MatchError with the same Op, in
// addition to the wrapped sentinel chain via Unwrap.
func (e *MatchError) Is(target error) bool {
	t, ok := target.(*MatchError)
	if !ok {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// NewMatchError builds a stage error for a pair.
func NewMatchError(op, resumeID, jobID string, baseErr error) *MatchError {
	return &MatchError{Op: op, ResumeID: resumeID, JobID: jobID, BaseErr: baseErr}
}
