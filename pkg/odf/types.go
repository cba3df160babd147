package odf

import (
	"time"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
)

// DatasetKind distinguishes root datasets (external ingestion) from
// derivative datasets (computed via SQL transforms over other datasets).
type DatasetKind string

const (
	DatasetKindRoot       DatasetKind = "root"
	DatasetKindDerivative DatasetKind = "derivative"
)

// OffsetInterval is a half-closed [start, end] range of record offsets
// within a dataset's logical data stream. end >= start.
type OffsetInterval struct {
	Start int64
	End   int64
}

// PrecedesContiguously reports whether this interval directly precedes
// next, i.e. next.Start == this.End + 1, the contiguity rule of spec.md
// invariant 6.
func (oi OffsetInterval) PrecedesContiguously(next OffsetInterval) bool {
	return next.Start == oi.End+1
}

// Len returns the number of records in the interval.
func (oi OffsetInterval) Len() int64 { return oi.End - oi.Start + 1 }

// BlockInterval is a hash range [start, end] within an input's metadata
// chain, recorded by ExecuteQuery to mark how far that input has been
// consumed.
type BlockInterval struct {
	Start multihash.Multihash
	End   multihash.Multihash
}

// DataSlice describes one immutable output data file.
//
// PhysicalHash identifies the stored bytes exactly (the Parquet file as
// written); LogicalHash is a reproducibility hash computed over column
// values so that file-format non-determinism (compression settings, row
// group layout, Parquet library version) never breaks verification.
type DataSlice struct {
	LogicalHash  multihash.Multihash
	PhysicalHash multihash.Multihash
	Interval     OffsetInterval
	Size         int64
}

// Checkpoint is opaque per-engine state carried between transform
// invocations. Its hash identifies it for storage purposes only: by
// design it is excluded from verification equality (spec.md §9).
type Checkpoint struct {
	PhysicalHash multihash.Multihash
	Size         int64
}

// MetadataBlock is one entry in a dataset's metadata chain.
type MetadataBlock struct {
	SystemTime     time.Time
	PrevBlockHash  multihash.Multihash // zero value for the Seed block
	SequenceNumber int64
	Event          MetadataEvent
}

// IsGenesis reports whether this block has no predecessor.
func (b MetadataBlock) IsGenesis() bool {
	return b.PrevBlockHash.IsZero()
}

// DatasetSummary is a derived (never stored) aggregate over a dataset's
// chain, produced by dataset.Dataset.GetSummary.
type DatasetSummary struct {
	ID            identity.DatasetID
	Name          DatasetName
	Kind          DatasetKind
	Dependencies  []identity.DatasetID // derivative only
	LastWatermark *time.Time
	DataSize      int64
	NumBlocks     int64
}
