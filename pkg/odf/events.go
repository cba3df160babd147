package odf

import (
	"time"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
)

// MetadataEvent is the sealed tagged union of everything that can appear
// in a MetadataBlock. Concrete types are defined in this file only;
// eventMarker is unexported so no type outside this package can
// implement the interface, matching the "sum type, not subclassing"
// note in spec.md §9.
type MetadataEvent interface {
	eventMarker()
	// RootOnly reports whether this event may only appear in a Root
	// dataset's chain.
	RootOnly() bool
	// DerivativeOnly reports whether this event may only appear in a
	// Derivative dataset's chain.
	DerivativeOnly() bool
}

type baseEvent struct{}

func (baseEvent) eventMarker() {}

// Seed is always the first and only Seed event in a chain.
type Seed struct {
	baseEvent
	DatasetID identity.DatasetID
	Kind      DatasetKind
}

func (Seed) RootOnly() bool       { return false }
func (Seed) DerivativeOnly() bool { return false }

// SetPollingSource declares how a root dataset ingests external data.
// Root-only.
type SetPollingSource struct {
	baseEvent
	Ingest IngestSpec
}

func (SetPollingSource) RootOnly() bool       { return true }
func (SetPollingSource) DerivativeOnly() bool { return false }

// IngestSpec is the boundary contract handed to the (out-of-scope)
// ingestion fetch/prepare/read pipeline: this core only stores and
// replays the declaration, it never executes a fetch itself.
type IngestSpec struct {
	FetchStep   string // opaque descriptor, e.g. "url", "filesGlob", "container"
	FetchConfig map[string]string
	ReadSchema  []string // declared column names, for schema evolution checks
}

// SetTransform declares the inputs and SQL query steps of a derivative
// dataset. Derivative-only.
type SetTransform struct {
	baseEvent
	Inputs     []TransformInput
	QuerySteps []SqlQueryStep
}

func (SetTransform) RootOnly() bool       { return false }
func (SetTransform) DerivativeOnly() bool { return true }

// TransformInput names one upstream dataset a transform reads from,
// with the local alias it is addressed by within the SQL.
type TransformInput struct {
	DatasetRef DatasetRef
	Alias      string
}

// SqlQueryStep is one named SQL statement in a (possibly multi-step)
// transform. Defining a new SQL dialect is explicitly out of scope;
// this is an opaque string handed to the engine verbatim.
type SqlQueryStep struct {
	Alias string // empty for the final/only step
	Query string
}

// SetVocab declares canonical column names for a dataset (offset,
// system time, event time columns).
type SetVocab struct {
	baseEvent
	OffsetColumn     string
	SystemTimeColumn string
	EventTimeColumn  string
}

func (SetVocab) RootOnly() bool       { return false }
func (SetVocab) DerivativeOnly() bool { return false }

// SetWatermark declares an explicit watermark independent of any data
// slice (e.g. "no new data will arrive before this timestamp").
type SetWatermark struct {
	baseEvent
	OutputWatermark time.Time
}

func (SetWatermark) RootOnly() bool       { return false }
func (SetWatermark) DerivativeOnly() bool { return false }

// AddData records one batch of externally-ingested data. Root-only.
type AddData struct {
	baseEvent
	OutputData       *DataSlice // nil if the ingest round produced no new records
	OutputWatermark  *time.Time
	OutputCheckpoint *Checkpoint
}

func (AddData) RootOnly() bool       { return true }
func (AddData) DerivativeOnly() bool { return false }

// ExecuteQuery records one SQL transformation batch. Derivative-only.
type ExecuteQuery struct {
	baseEvent
	InputSlices      []ExecuteQueryInputSlice
	InputCheckpoint  *Checkpoint
	OutputData       *DataSlice
	OutputCheckpoint *Checkpoint
	OutputWatermark  *time.Time
}

func (ExecuteQuery) RootOnly() bool       { return false }
func (ExecuteQuery) DerivativeOnly() bool { return true }

// ExecuteQueryInputSlice records, for one input dataset, the block
// interval consumed and the resulting data interval, so future planning
// can resume exactly where this block left off.
type ExecuteQueryInputSlice struct {
	DatasetID     identity.DatasetID
	BlockInterval BlockInterval
	DataInterval  *OffsetInterval // nil if the input contributed no new records
}

// Attachment is one piece of supplementary documentation for a dataset.
type Attachment struct {
	Path    string // logical path/name, e.g. "README.md"
	Content string // embedded content; mutually exclusive with a future referenced form
}

// SetAttachments attaches documentation files to a dataset.
type SetAttachments struct {
	baseEvent
	Attachments []Attachment
}

func (SetAttachments) RootOnly() bool       { return false }
func (SetAttachments) DerivativeOnly() bool { return false }

// SetInfo attaches free-form descriptive metadata.
type SetInfo struct {
	baseEvent
	Description string
	Keywords    []string
}

func (SetInfo) RootOnly() bool       { return false }
func (SetInfo) DerivativeOnly() bool { return false }

// SetLicense attaches licensing information.
type SetLicense struct {
	baseEvent
	ShortName  string
	Name       string
	SpdxID     string
	WebsiteURL string
}

func (SetLicense) RootOnly() bool       { return false }
func (SetLicense) DerivativeOnly() bool { return false }

// ComputeHash returns the multihash of an object's canonical bytes,
// used to compute PhysicalHash for committed data/checkpoint files.
func ComputeHash(data []byte) multihash.Multihash {
	return multihash.SumDefault(data)
}
