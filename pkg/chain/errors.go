package chain

import (
	"fmt"

	"github.com/cuemby/odf/pkg/multihash"
)

// InvalidBlockReason enumerates why Append rejected a candidate block.
type InvalidBlockReason string

const (
	ReasonHashMismatch           InvalidBlockReason = "hash_mismatch"
	ReasonPrevBlockNotFound      InvalidBlockReason = "prev_block_not_found"
	ReasonSequenceMismatch       InvalidBlockReason = "sequence_mismatch"
	ReasonSystemTimeNonMonotonic InvalidBlockReason = "system_time_non_monotonic"
	ReasonWatermarkNonMonotonic  InvalidBlockReason = "watermark_non_monotonic"
	ReasonOffsetsNotContiguous   InvalidBlockReason = "offsets_not_contiguous"
	ReasonEventVariantIllegal    InvalidBlockReason = "event_variant_illegal"
)

// InvalidBlock is returned by Append when a candidate block fails one of
// the structural or ordering checks of spec.md §4.3 step 2.
type InvalidBlock struct {
	Reason  InvalidBlockReason
	Message string
}

func (e *InvalidBlock) Error() string {
	return fmt.Sprintf("chain: invalid block (%s): %s", e.Reason, e.Message)
}

func invalidBlock(reason InvalidBlockReason, format string, args ...any) *InvalidBlock {
	return &InvalidBlock{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RefCASFailed is returned when a SetRef (or Append's internal HEAD
// update) loses a compare-and-swap race against a concurrent writer.
type RefCASFailed struct {
	Ref      string
	Expected *multihash.Multihash // nil means "expected absent"
	Actual   *multihash.Multihash // nil means "absent"
}

func (e *RefCASFailed) Error() string {
	expected := "<absent>"
	if e.Expected != nil {
		expected = e.Expected.String()
	}
	actual := "<absent>"
	if e.Actual != nil {
		actual = e.Actual.String()
	}
	return fmt.Sprintf("chain: ref %q CAS failed: expected %s, found %s", e.Ref, expected, actual)
}

// Access wraps a failure reading or writing the underlying block or
// reference stores (network errors, permission errors).
type Access struct {
	Op  string
	Err error
}

func (e *Access) Error() string { return fmt.Sprintf("chain: access error during %s: %v", e.Op, e.Err) }
func (e *Access) Unwrap() error { return e.Err }

// Internal wraps an unexpected failure that should not occur in correct
// operation (e.g. a block decoding successfully into an unexpected shape).
type Internal struct {
	Message string
	Err     error
}

func (e *Internal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain: internal error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("chain: internal error: %s", e.Message)
}
func (e *Internal) Unwrap() error { return e.Err }
