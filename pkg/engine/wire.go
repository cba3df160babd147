package engine

import (
	"fmt"
	"time"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
)

// wireExecuteQueryInput/wireExecuteQueryRequest/wireResponse are the
// gob-encodable shadow of the exported contract types: DatasetID carries
// an unexported field, so the request/response structs are flattened to
// their string form before hitting the codec and rebuilt on the other
// side.

type wireExecuteQueryInput struct {
	DatasetID          string
	DataPaths          []string
	SchemaFile         string
	ExplicitWatermarks []time.Time
	DataInterval       *odf.OffsetInterval
}

// wireTransformInput flattens odf.TransformInput: DatasetRef embeds an
// identity.DatasetID when its Kind is by-ID, which (like DatasetID
// itself) carries an unexported field gob would otherwise drop silently.
type wireTransformInput struct {
	DatasetRef string // DatasetRef.String() form, reparsed with odf.ParseDatasetRefAny
	Alias      string
}

type wireTransform struct {
	Inputs     []wireTransformInput
	QuerySteps []odf.SqlQueryStep
}

type wireExecuteQueryRequest struct {
	DatasetID          string
	DatasetName        string
	SystemTime         time.Time
	OffsetBase         int64
	Vocab              odf.SetVocab
	Transform          wireTransform
	Inputs             []wireExecuteQueryInput
	PrevCheckpointPath string
	NewCheckpointPath  string
	OutDataPath        string
}

type wireResponse struct {
	Kind            ResponseKind
	DataInterval    *odf.OffsetInterval
	OutputWatermark *time.Time
	Message         string
	Backtrace       string
}

func toWireRequest(req ExecuteQueryRequest) wireExecuteQueryRequest {
	inputs := make([]wireExecuteQueryInput, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = wireExecuteQueryInput{
			DatasetID:          in.DatasetID.String(),
			DataPaths:          in.DataPaths,
			SchemaFile:         in.SchemaFile,
			ExplicitWatermarks: in.ExplicitWatermarks,
			DataInterval:       in.DataInterval,
		}
	}

	transformInputs := make([]wireTransformInput, len(req.Transform.Inputs))
	for i, in := range req.Transform.Inputs {
		transformInputs[i] = wireTransformInput{DatasetRef: in.DatasetRef.String(), Alias: in.Alias}
	}

	return wireExecuteQueryRequest{
		DatasetID:   req.DatasetID.String(),
		DatasetName: string(req.DatasetName),
		SystemTime:  req.SystemTime,
		OffsetBase:  req.OffsetBase,
		Vocab:       req.Vocab,
		Transform: wireTransform{
			Inputs:     transformInputs,
			QuerySteps: req.Transform.QuerySteps,
		},
		Inputs:             inputs,
		PrevCheckpointPath: req.PrevCheckpointPath,
		NewCheckpointPath:  req.NewCheckpointPath,
		OutDataPath:        req.OutDataPath,
	}
}

func fromWireRequest(w wireExecuteQueryRequest) (ExecuteQueryRequest, error) {
	id, err := identity.ParseDatasetID(w.DatasetID)
	if err != nil {
		return ExecuteQueryRequest{}, fmt.Errorf("engine: request dataset id: %w", err)
	}
	inputs := make([]ExecuteQueryInput, len(w.Inputs))
	for i, in := range w.Inputs {
		inID, err := identity.ParseDatasetID(in.DatasetID)
		if err != nil {
			return ExecuteQueryRequest{}, fmt.Errorf("engine: input %d dataset id: %w", i, err)
		}
		inputs[i] = ExecuteQueryInput{
			DatasetID:          inID,
			DataPaths:          in.DataPaths,
			SchemaFile:         in.SchemaFile,
			ExplicitWatermarks: in.ExplicitWatermarks,
			DataInterval:       in.DataInterval,
		}
	}

	transformInputs := make([]odf.TransformInput, len(w.Transform.Inputs))
	for i, in := range w.Transform.Inputs {
		ref, err := odf.ParseDatasetRefAny(in.DatasetRef)
		if err != nil {
			return ExecuteQueryRequest{}, fmt.Errorf("engine: transform input %d ref: %w", i, err)
		}
		transformInputs[i] = odf.TransformInput{DatasetRef: ref, Alias: in.Alias}
	}

	return ExecuteQueryRequest{
		DatasetID:   id,
		DatasetName: odf.DatasetName(w.DatasetName),
		SystemTime:  w.SystemTime,
		OffsetBase:  w.OffsetBase,
		Vocab:       w.Vocab,
		Transform: odf.SetTransform{
			Inputs:     transformInputs,
			QuerySteps: w.Transform.QuerySteps,
		},
		Inputs:             inputs,
		PrevCheckpointPath: w.PrevCheckpointPath,
		NewCheckpointPath:  w.NewCheckpointPath,
		OutDataPath:        w.OutDataPath,
	}, nil
}

func toWireResponse(r Response) wireResponse {
	return wireResponse{
		Kind:            r.Kind,
		DataInterval:    r.DataInterval,
		OutputWatermark: r.OutputWatermark,
		Message:         r.Message,
		Backtrace:       r.Backtrace,
	}
}

func fromWireResponse(w wireResponse) Response {
	return Response{
		Kind:            w.Kind,
		DataInterval:    w.DataInterval,
		OutputWatermark: w.OutputWatermark,
		Message:         w.Message,
		Backtrace:       w.Backtrace,
	}
}
