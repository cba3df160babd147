package blockcodec

import (
	"fmt"

	"github.com/cuemby/odf/pkg/odf"
)

// Event type tags. Order here is the wire format; a tag is never
// reassigned to a different event type once it ships.
const (
	eventTypeSeed             byte = 1
	eventTypeSetPollingSource byte = 2
	eventTypeSetTransform     byte = 3
	eventTypeSetVocab         byte = 4
	eventTypeSetWatermark     byte = 5
	eventTypeAddData          byte = 6
	eventTypeExecuteQuery     byte = 7
	eventTypeSetAttachments   byte = 8
	eventTypeSetInfo          byte = 9
	eventTypeSetLicense       byte = 10
)

// encodeEvent returns the event's type tag and its deterministically
// serialized payload.
func encodeEvent(event odf.MetadataEvent) (byte, []byte, error) {
	w := newFieldWriter()
	switch e := event.(type) {
	case odf.Seed:
		w.WriteDatasetID(e.DatasetID)
		w.WriteString(string(e.Kind))
		return eventTypeSeed, w.Bytes(), nil

	case odf.SetPollingSource:
		encodeIngestSpec(w, e.Ingest)
		return eventTypeSetPollingSource, w.Bytes(), nil

	case odf.SetTransform:
		w.WriteInt64(int64(len(e.Inputs)))
		for _, in := range e.Inputs {
			w.WriteDatasetRef(in.DatasetRef)
			w.WriteString(in.Alias)
		}
		w.WriteInt64(int64(len(e.QuerySteps)))
		for _, step := range e.QuerySteps {
			w.WriteString(step.Alias)
			w.WriteString(step.Query)
		}
		return eventTypeSetTransform, w.Bytes(), nil

	case odf.SetVocab:
		w.WriteString(e.OffsetColumn)
		w.WriteString(e.SystemTimeColumn)
		w.WriteString(e.EventTimeColumn)
		return eventTypeSetVocab, w.Bytes(), nil

	case odf.SetWatermark:
		w.WriteTime(e.OutputWatermark)
		return eventTypeSetWatermark, w.Bytes(), nil

	case odf.AddData:
		w.WriteOptionalDataSlice(e.OutputData)
		w.WriteOptionalTime(e.OutputWatermark)
		w.WriteOptionalCheckpoint(e.OutputCheckpoint)
		return eventTypeAddData, w.Bytes(), nil

	case odf.ExecuteQuery:
		w.WriteInt64(int64(len(e.InputSlices)))
		for _, s := range e.InputSlices {
			w.WriteDatasetID(s.DatasetID)
			w.WriteBlockInterval(s.BlockInterval)
			w.WriteOptionalOffsetInterval(s.DataInterval)
		}
		w.WriteOptionalCheckpoint(e.InputCheckpoint)
		w.WriteOptionalDataSlice(e.OutputData)
		w.WriteOptionalCheckpoint(e.OutputCheckpoint)
		w.WriteOptionalTime(e.OutputWatermark)
		return eventTypeExecuteQuery, w.Bytes(), nil

	case odf.SetAttachments:
		w.WriteInt64(int64(len(e.Attachments)))
		for _, a := range e.Attachments {
			w.WriteString(a.Path)
			w.WriteString(a.Content)
		}
		return eventTypeSetAttachments, w.Bytes(), nil

	case odf.SetInfo:
		w.WriteString(e.Description)
		w.WriteStringSlice(e.Keywords)
		return eventTypeSetInfo, w.Bytes(), nil

	case odf.SetLicense:
		w.WriteString(e.ShortName)
		w.WriteString(e.Name)
		w.WriteString(e.SpdxID)
		w.WriteString(e.WebsiteURL)
		return eventTypeSetLicense, w.Bytes(), nil

	default:
		return 0, nil, fmt.Errorf("blockcodec: unknown event type %T", event)
	}
}

func encodeIngestSpec(w *fieldWriter, spec odf.IngestSpec) {
	w.WriteString(spec.FetchStep)
	w.WriteStringMap(spec.FetchConfig)
	w.WriteStringSlice(spec.ReadSchema)
}

func decodeIngestSpec(r *fieldReader) (odf.IngestSpec, error) {
	step, err := r.ReadString()
	if err != nil {
		return odf.IngestSpec{}, err
	}
	cfg, err := r.ReadStringMap()
	if err != nil {
		return odf.IngestSpec{}, err
	}
	schema, err := r.ReadStringSlice()
	if err != nil {
		return odf.IngestSpec{}, err
	}
	return odf.IngestSpec{FetchStep: step, FetchConfig: cfg, ReadSchema: schema}, nil
}

// decodeEvent reconstructs the event named by eventType from payload.
func decodeEvent(eventType byte, payload []byte) (odf.MetadataEvent, error) {
	r := newFieldReader(payload)
	switch eventType {
	case eventTypeSeed:
		id, err := r.ReadDatasetID()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return odf.Seed{DatasetID: id, Kind: odf.DatasetKind(kind)}, nil

	case eventTypeSetPollingSource:
		spec, err := decodeIngestSpec(r)
		if err != nil {
			return nil, err
		}
		return odf.SetPollingSource{Ingest: spec}, nil

	case eventTypeSetTransform:
		n, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		inputs := make([]odf.TransformInput, 0, n)
		for i := int64(0); i < n; i++ {
			ref, err := r.ReadDatasetRef()
			if err != nil {
				return nil, err
			}
			alias, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, odf.TransformInput{DatasetRef: ref, Alias: alias})
		}
		m, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		steps := make([]odf.SqlQueryStep, 0, m)
		for i := int64(0); i < m; i++ {
			alias, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			query, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			steps = append(steps, odf.SqlQueryStep{Alias: alias, Query: query})
		}
		return odf.SetTransform{Inputs: inputs, QuerySteps: steps}, nil

	case eventTypeSetVocab:
		offsetCol, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		sysCol, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		evtCol, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return odf.SetVocab{OffsetColumn: offsetCol, SystemTimeColumn: sysCol, EventTimeColumn: evtCol}, nil

	case eventTypeSetWatermark:
		t, err := r.ReadTime()
		if err != nil {
			return nil, err
		}
		return odf.SetWatermark{OutputWatermark: t}, nil

	case eventTypeAddData:
		data, err := r.ReadOptionalDataSlice()
		if err != nil {
			return nil, err
		}
		watermark, err := r.ReadOptionalTime()
		if err != nil {
			return nil, err
		}
		checkpoint, err := r.ReadOptionalCheckpoint()
		if err != nil {
			return nil, err
		}
		return odf.AddData{OutputData: data, OutputWatermark: watermark, OutputCheckpoint: checkpoint}, nil

	case eventTypeExecuteQuery:
		n, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		slices := make([]odf.ExecuteQueryInputSlice, 0, n)
		for i := int64(0); i < n; i++ {
			id, err := r.ReadDatasetID()
			if err != nil {
				return nil, err
			}
			bi, err := r.ReadBlockInterval()
			if err != nil {
				return nil, err
			}
			di, err := r.ReadOptionalOffsetInterval()
			if err != nil {
				return nil, err
			}
			slices = append(slices, odf.ExecuteQueryInputSlice{DatasetID: id, BlockInterval: bi, DataInterval: di})
		}
		inputCheckpoint, err := r.ReadOptionalCheckpoint()
		if err != nil {
			return nil, err
		}
		outputData, err := r.ReadOptionalDataSlice()
		if err != nil {
			return nil, err
		}
		outputCheckpoint, err := r.ReadOptionalCheckpoint()
		if err != nil {
			return nil, err
		}
		outputWatermark, err := r.ReadOptionalTime()
		if err != nil {
			return nil, err
		}
		return odf.ExecuteQuery{
			InputSlices:      slices,
			InputCheckpoint:  inputCheckpoint,
			OutputData:       outputData,
			OutputCheckpoint: outputCheckpoint,
			OutputWatermark:  outputWatermark,
		}, nil

	case eventTypeSetAttachments:
		n, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		attachments := make([]odf.Attachment, 0, n)
		for i := int64(0); i < n; i++ {
			path, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			content, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			attachments = append(attachments, odf.Attachment{Path: path, Content: content})
		}
		return odf.SetAttachments{Attachments: attachments}, nil

	case eventTypeSetInfo:
		desc, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		keywords, err := r.ReadStringSlice()
		if err != nil {
			return nil, err
		}
		return odf.SetInfo{Description: desc, Keywords: keywords}, nil

	case eventTypeSetLicense:
		shortName, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		spdx, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		url, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return odf.SetLicense{ShortName: shortName, Name: name, SpdxID: spdx, WebsiteURL: url}, nil

	default:
		return nil, fmt.Errorf("blockcodec: unknown event type tag %d", eventType)
	}
}
