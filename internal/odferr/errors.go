// Package odferr holds the small, exported error types of the
// cross-cutting parts of spec.md §7's taxonomy that don't have a single
// natural home in one domain package (transform's engine contract,
// sync's divergence/CAS outcomes). Errors scoped entirely within one
// package (object-repository hash mismatches, chain validation
// failures) stay defined there, generalizing the plain
// fmt.Errorf("...: %w", err)-at-the-boundary style into typed structs
// implementing error and Unwrap.
package odferr

import "fmt"

// CorruptedSource reports an internal-consistency violation discovered
// while reading a dataset's own chain or a dependency's chain — e.g. a
// non-contiguous offset interval — that the original implementation
// treats as a developer assertion (a panic). spec.md §9's Open Question
// decides this must surface as a structured, non-panicking error at the
// nearest exported boundary instead.
type CorruptedSource struct {
	Message string
	Err     error
}

func (e *CorruptedSource) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupted source: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("corrupted source: %s", e.Message)
}

func (e *CorruptedSource) Unwrap() error { return e.Err }

// EngineContract reports an engine response that violates the
// request/response contract of spec.md §4.5.2 (e.g. a data_interval not
// starting at the requested offset, or a missing output file).
type EngineContract struct {
	Message string
}

func (e *EngineContract) Error() string {
	return fmt.Sprintf("engine contract violation: %s", e.Message)
}

// EngineInvalidQuery wraps an engine.ResponseInvalidQuery message,
// surfaced verbatim to the user per spec.md §7.
type EngineInvalidQuery struct {
	Message string
}

func (e *EngineInvalidQuery) Error() string { return fmt.Sprintf("invalid query: %s", e.Message) }

// EngineInternalError wraps an engine.ResponseInternalError message,
// logged with its backtrace and treated as fatal for the operation.
type EngineInternalError struct {
	Message   string
	Backtrace string
}

func (e *EngineInternalError) Error() string {
	return fmt.Sprintf("engine internal error: %s", e.Message)
}

// DatasetsDiverged reports that neither side of a sync is a prefix of
// the other (spec.md §4.6.1 Divergence / §4.6.2).
type DatasetsDiverged struct {
	UncommonSrc int
	UncommonDst int
}

func (e *DatasetsDiverged) Error() string {
	return fmt.Sprintf("datasets diverged: %d uncommon source block(s), %d uncommon destination block(s)",
		e.UncommonSrc, e.UncommonDst)
}

// DestinationAhead reports that the sync destination is strictly ahead
// of the source (spec.md §4.6.1 LhsBehind / §4.6.2), without `force`.
type DestinationAhead struct {
	AheadBlocks int
}

func (e *DestinationAhead) Error() string {
	return fmt.Sprintf("destination is %d block(s) ahead of source", e.AheadBlocks)
}

// UpdatedConcurrently reports that the destination's HEAD moved between
// a sync's comparison step and its final CAS (spec.md §4.6.3 step 3).
type UpdatedConcurrently struct{}

func (e *UpdatedConcurrently) Error() string { return "destination ref was updated concurrently" }

// VerificationError reports that a recomputed ExecuteQuery block does
// not match the one recorded in the chain (spec.md §4.5.4 / §7).
type VerificationError struct {
	ExpectedBlockHash string
	ActualBlockHash   string
	Detail            string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("data not reproducible: expected block %s, got %s (%s)",
		e.ExpectedBlockHash, e.ActualBlockHash, e.Detail)
}
