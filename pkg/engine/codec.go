package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is registered with grpc's encoding registry so GRPCClient
// can open a stream without a protoc-generated message type. spec.md §6
// scopes the wire codec itself out of this core ("Request carries one
// Flatbuffers-encoded ExecuteQueryRequest" is the out-of-process engine's
// concern) — what this package needs is any codec that round-trips the
// Go contract types deterministically over grpc's framing, which
// encoding/gob does without pulling in a second serialization library
// purely for an internal, single-process-pair stream.
const gobCodecName = "odfenginegob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Name() string { return gobCodecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("engine: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("engine: gob decode: %w", err)
	}
	return nil
}
