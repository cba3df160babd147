// Package engine implements the query engine RPC contract of spec.md §6: a
// fixed request/response shape exchanged with an out-of-process compute
// engine over a bidirectional-streaming gRPC call. The wire codec used on
// that stream is out of this core's scope (spec.md §1); what this package
// owns is the Go-native contract (ExecuteQueryRequest/Response and the
// tagged response messages) and one transport, GRPCClient.
package engine

import (
	"time"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
)

// ExecuteQueryInput is one resolved input to a transform round: the data
// files and schema an engine needs to read one upstream dataset, plus the
// watermarks/interval the transform service computed for it during
// planning (spec.md §4.5.1 step 7).
type ExecuteQueryInput struct {
	DatasetID          identity.DatasetID
	DataPaths          []string
	SchemaFile         string
	ExplicitWatermarks []time.Time
	DataInterval       *odf.OffsetInterval
}

// ExecuteQueryRequest bundles everything an engine needs to run one
// transform round without ever talking to the chain or object stores
// itself (spec.md §6, §4.5.1 step 7).
type ExecuteQueryRequest struct {
	DatasetID          identity.DatasetID
	DatasetName        odf.DatasetName
	SystemTime         time.Time
	OffsetBase         int64
	Vocab              odf.SetVocab
	Transform          odf.SetTransform
	Inputs             []ExecuteQueryInput
	PrevCheckpointPath string
	NewCheckpointPath  string
	OutDataPath        string
}

// ResponseKind tags which variant of the engine's response union a
// Response carries (spec.md §6: "Progress | Success | InvalidQuery |
// InternalError").
type ResponseKind int

const (
	ResponseProgress ResponseKind = iota
	ResponseSuccess
	ResponseInvalidQuery
	ResponseInternalError
)

// Response is one message off the engine's response stream. Only the
// fields matching Kind are meaningful.
type Response struct {
	Kind ResponseKind

	// Success fields. DataInterval/OutputWatermark are nil when the
	// round produced no new records.
	DataInterval    *odf.OffsetInterval
	OutputWatermark *time.Time

	// InvalidQuery / InternalError fields.
	Message   string
	Backtrace string
}

// TranslatePath rewrites a host-absolute path into the engine's
// container-relative view, rooted at containerRoot (spec.md §9 Design
// Notes: "the engine sees a fixed root such as /opt/engine/volume").
// hostRoot is the host-side directory that containerRoot is bind-mounted
// from; path must lie under it. TranslatePath does not require path to
// exist: it canonicalizes via the nearest existing parent, so staging
// paths for not-yet-created output files translate correctly too.
func TranslatePath(hostRoot, containerRoot, path string) (string, error) {
	return translatePath(hostRoot, containerRoot, path)
}
