package blockcodec

// Hand-written in the shape flatc would emit for the following schema,
// kept here rather than checked in as a .fbs + generated pair because
// this module vendors no code-generation step:
//
//	table Block {
//	  system_time_unix_nano: int64;
//	  prev_block_hash: [ubyte];
//	  sequence_number: int64;
//	  event_type: ubyte;
//	  event_data: [ubyte];
//	}
//	root_type Block;
//
// Field order below is fixed and never changes across versions: adding
// a field means appending a new slot, never renumbering existing ones,
// so that old buffers keep decoding correctly (flatbuffers' forward
// compatibility guarantee, relied upon by spec.md §6's byte-stability
// requirement).

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

const (
	blockFieldSystemTime     = 0
	blockFieldPrevBlockHash  = 1
	blockFieldSequenceNumber = 2
	blockFieldEventType      = 3
	blockFieldEventData      = 4
	blockNumFields           = 5
)

// FBBlock is the generated-style accessor over a serialized Block table.
type FBBlock struct {
	tab flatbuffers.Table
}

// GetRootAsFBBlock interprets buf as a Block table rooted at offset.
func GetRootAsFBBlock(buf []byte, offset flatbuffers.UOffsetT) *FBBlock {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &FBBlock{}
	x.Init(buf, n+offset)
	return x
}

func (b *FBBlock) Init(buf []byte, i flatbuffers.UOffsetT) {
	b.tab.Bytes = buf
	b.tab.Pos = i
}

func (b *FBBlock) SystemTimeUnixNano() int64 {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldSystemTime))
	if o != 0 {
		return b.tab.GetInt64(o + b.tab.Pos)
	}
	return 0
}

func (b *FBBlock) PrevBlockHashLength() int {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldPrevBlockHash))
	if o == 0 {
		return 0
	}
	return b.tab.VectorLen(o)
}

func (b *FBBlock) PrevBlockHashBytes() []byte {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldPrevBlockHash))
	if o == 0 {
		return nil
	}
	start := b.tab.Vector(o)
	length := b.tab.VectorLen(o)
	return b.tab.Bytes[start : start+flatbuffers.UOffsetT(length)]
}

func (b *FBBlock) SequenceNumber() int64 {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldSequenceNumber))
	if o != 0 {
		return b.tab.GetInt64(o + b.tab.Pos)
	}
	return 0
}

func (b *FBBlock) EventType() byte {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldEventType))
	if o != 0 {
		return b.tab.GetByte(o + b.tab.Pos)
	}
	return 0
}

func (b *FBBlock) EventDataBytes() []byte {
	o := flatbuffers.UOffsetT(b.tab.Offset(4 + 2*blockFieldEventData))
	if o == 0 {
		return nil
	}
	start := b.tab.Vector(o)
	length := b.tab.VectorLen(o)
	return b.tab.Bytes[start : start+flatbuffers.UOffsetT(length)]
}

// Builder-side helpers, in flatc's Start/Add/End shape.

func FBBlockStart(builder *flatbuffers.Builder) {
	builder.StartObject(blockNumFields)
}

func FBBlockAddSystemTimeUnixNano(builder *flatbuffers.Builder, v int64) {
	builder.PrependInt64Slot(blockFieldSystemTime, v, 0)
}

func FBBlockAddPrevBlockHash(builder *flatbuffers.Builder, v flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(blockFieldPrevBlockHash, v, 0)
}

func FBBlockAddSequenceNumber(builder *flatbuffers.Builder, v int64) {
	builder.PrependInt64Slot(blockFieldSequenceNumber, v, 0)
}

func FBBlockAddEventType(builder *flatbuffers.Builder, v byte) {
	builder.PrependByteSlot(blockFieldEventType, v, 0)
}

func FBBlockAddEventData(builder *flatbuffers.Builder, v flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(blockFieldEventData, v, 0)
}

func FBBlockEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
