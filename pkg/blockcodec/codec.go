// Package blockcodec implements the canonical, byte-stable serialization
// of MetadataBlock values, used both to compute a block's hash and to
// persist it in the object repository.
//
// The envelope (system time, previous block hash, sequence number, event
// type tag, event payload) is a flatbuffers table, hand-written in the
// shape flatc would generate (see block_generated.go). Event payloads
// themselves are encoded with a small fixed-field-order binary writer
// (fieldio.go, events_codec.go) rather than one flatbuffers table per
// event variant: the ten event schemas carry no forward-compatibility
// requirement beyond the envelope's own, so a single deterministic
// writer covers them without hand-authoring ten more generated-code
// files for no behavioral difference.
package blockcodec

import (
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/odf"
)

func timeFromUnixNano(nano int64) time.Time { return time.Unix(0, nano).UTC() }

// Encode serializes a MetadataBlock to its canonical byte representation.
func Encode(block odf.MetadataBlock) ([]byte, error) {
	eventType, eventData, err := encodeEvent(block.Event)
	if err != nil {
		return nil, fmt.Errorf("blockcodec: encode event: %w", err)
	}

	var prevHashBytes []byte
	if !block.PrevBlockHash.IsZero() {
		prevHashBytes, err = block.PrevBlockHash.Bytes()
		if err != nil {
			return nil, fmt.Errorf("blockcodec: encode prev block hash: %w", err)
		}
	}

	builder := flatbuffers.NewBuilder(256 + len(eventData))

	eventDataOffset := builder.CreateByteVector(eventData)
	prevHashOffset := builder.CreateByteVector(prevHashBytes)

	FBBlockStart(builder)
	FBBlockAddSystemTimeUnixNano(builder, block.SystemTime.UTC().UnixNano())
	FBBlockAddPrevBlockHash(builder, prevHashOffset)
	FBBlockAddSequenceNumber(builder, block.SequenceNumber)
	FBBlockAddEventType(builder, eventType)
	FBBlockAddEventData(builder, eventDataOffset)
	root := FBBlockEnd(builder)

	builder.Finish(root)
	return builder.FinishedBytes(), nil
}

// Decode parses a MetadataBlock previously produced by Encode.
func Decode(buf []byte) (odf.MetadataBlock, error) {
	if len(buf) == 0 {
		return odf.MetadataBlock{}, fmt.Errorf("blockcodec: empty buffer")
	}
	fb := GetRootAsFBBlock(buf, 0)

	var prevHash multihash.Multihash
	if raw := fb.PrevBlockHashBytes(); len(raw) > 0 {
		h, err := multihash.FromBytes(raw)
		if err != nil {
			return odf.MetadataBlock{}, fmt.Errorf("blockcodec: decode prev block hash: %w", err)
		}
		prevHash = h
	}

	event, err := decodeEvent(fb.EventType(), fb.EventDataBytes())
	if err != nil {
		return odf.MetadataBlock{}, fmt.Errorf("blockcodec: decode event: %w", err)
	}

	return odf.MetadataBlock{
		SystemTime:     timeFromUnixNano(fb.SystemTimeUnixNano()),
		PrevBlockHash:  prevHash,
		SequenceNumber: fb.SequenceNumber(),
		Event:          event,
	}, nil
}

// HashBlock computes the canonical multihash of a block's encoded bytes,
// the value stored as the next block's PrevBlockHash.
func HashBlock(block odf.MetadataBlock) (multihash.Multihash, error) {
	buf, err := Encode(block)
	if err != nil {
		return multihash.Multihash{}, err
	}
	return multihash.SumDefault(buf), nil
}
