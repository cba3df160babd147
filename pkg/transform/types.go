// Package transform implements the TransformService of spec.md §4.5:
// planning an ExecuteQuery round against a derivative dataset's declared
// inputs, dispatching it to an out-of-process engine.Client, committing
// the result as a new block, and later re-executing a committed block to
// verify it is reproducible.
package transform

import (
	"time"

	"github.com/cuemby/odf/internal/odferr"
	"github.com/cuemby/odf/pkg/engine"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
)

// ErrCorruptedSource is transform's name for the shared CorruptedSource
// error (internal/odferr), the type spec.md §9's Open Question decision
// routes a recovered planning-time panic into: a non-contiguous offset
// interval encountered while walking an input's chain indicates the
// input dataset's own invariants were violated upstream, which the
// original implementation treats as a developer assertion. This module
// surfaces it as a typed error at GetNextOperation's boundary instead of
// letting the panic escape.
type ErrCorruptedSource = odferr.CorruptedSource

// PlannedInput is one upstream dataset's resolved contribution to a
// planned ExecuteQuery round: the block-hash range being consumed from
// its chain, and the data offset range it contributes, if any.
type PlannedInput struct {
	DatasetID     identity.DatasetID
	BlockInterval odf.BlockInterval
	DataInterval  *odf.OffsetInterval
}

// PlannedOperation is GetNextOperation's result: a fully-resolved engine
// request plus the bookkeeping Commit needs to build the resulting
// ExecuteQuery block (spec.md §4.5.1 step 7).
type PlannedOperation struct {
	Request        engine.ExecuteQueryRequest
	Inputs         []PlannedInput
	PrevCheckpoint *odf.Checkpoint
	SystemTime     time.Time
}
