package dataset

import (
	"fmt"

	"github.com/cuemby/odf/pkg/odf"
)

// EventManifest is the YAML-facing shape of one event in a
// DatasetSnapshot: a discriminator plus a loosely-typed spec, mirroring
// the WarrenResource{Kind, Spec map[string]interface{}} idiom this
// workspace catalog is adapted from.
type EventManifest struct {
	Kind string                 `yaml:"kind"`
	Spec map[string]interface{} `yaml:"spec"`
}

// DatasetSnapshot is the YAML manifest accepted by Repository.Create: a
// Seed plus the sequence of events to build atomically on top of it.
type DatasetSnapshot struct {
	APIVersion string          `yaml:"apiVersion"`
	Kind       odf.DatasetKind `yaml:"kind"`
	Name       odf.DatasetName `yaml:"name"`
	Events     []EventManifest `yaml:"events"`
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getStringSlice(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func getStringMap(m map[string]interface{}, key string) map[string]string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}

// toEvent translates one manifest entry to its typed odf.MetadataEvent.
func toEvent(m EventManifest) (odf.MetadataEvent, error) {
	switch m.Kind {
	case "SetPollingSource":
		return odf.SetPollingSource{
			Ingest: odf.IngestSpec{
				FetchStep:   getString(m.Spec, "fetchStep", ""),
				FetchConfig: getStringMap(m.Spec, "fetchConfig"),
				ReadSchema:  getStringSlice(m.Spec, "readSchema"),
			},
		}, nil

	case "SetTransform":
		inputsRaw, _ := m.Spec["inputs"].([]interface{})
		inputs := make([]odf.TransformInput, 0, len(inputsRaw))
		for _, raw := range inputsRaw {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			ref, err := odf.ParseDatasetRefAny(getString(entry, "dataset", ""))
			if err != nil {
				return nil, fmt.Errorf("dataset: SetTransform input: %w", err)
			}
			inputs = append(inputs, odf.TransformInput{DatasetRef: ref, Alias: getString(entry, "alias", "")})
		}

		stepsRaw, _ := m.Spec["querySteps"].([]interface{})
		steps := make([]odf.SqlQueryStep, 0, len(stepsRaw))
		for _, raw := range stepsRaw {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			steps = append(steps, odf.SqlQueryStep{
				Alias: getString(entry, "alias", ""),
				Query: getString(entry, "query", ""),
			})
		}
		return odf.SetTransform{Inputs: inputs, QuerySteps: steps}, nil

	case "SetVocab":
		return odf.SetVocab{
			OffsetColumn:     getString(m.Spec, "offsetColumn", "offset"),
			SystemTimeColumn: getString(m.Spec, "systemTimeColumn", "system_time"),
			EventTimeColumn:  getString(m.Spec, "eventTimeColumn", "event_time"),
		}, nil

	case "SetInfo":
		return odf.SetInfo{
			Description: getString(m.Spec, "description", ""),
			Keywords:    getStringSlice(m.Spec, "keywords"),
		}, nil

	case "SetLicense":
		return odf.SetLicense{
			ShortName:  getString(m.Spec, "shortName", ""),
			Name:       getString(m.Spec, "name", ""),
			SpdxID:     getString(m.Spec, "spdxId", ""),
			WebsiteURL: getString(m.Spec, "websiteUrl", ""),
		}, nil

	case "SetAttachments":
		itemsRaw, _ := m.Spec["attachments"].([]interface{})
		attachments := make([]odf.Attachment, 0, len(itemsRaw))
		for _, raw := range itemsRaw {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			attachments = append(attachments, odf.Attachment{
				Path:    getString(entry, "path", ""),
				Content: getString(entry, "content", ""),
			})
		}
		return odf.SetAttachments{Attachments: attachments}, nil

	default:
		return nil, fmt.Errorf("dataset: unsupported snapshot event kind %q", m.Kind)
	}
}
