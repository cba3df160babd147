package blockcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/odf"
)

// fieldWriter and fieldReader implement the deterministic, fixed-field-
// order binary encoding used for each event variant's payload (the
// event_data vector embedded in the FBBlock envelope). Field order is
// part of the format: it is never reordered across versions, only
// appended to, mirroring the append-only discipline of the flatbuffers
// envelope itself.
type fieldWriter struct {
	buf bytes.Buffer
}

func newFieldWriter() *fieldWriter { return &fieldWriter{} }

func (w *fieldWriter) Bytes() []byte { return w.buf.Bytes() }

func (w *fieldWriter) WriteInt64(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	w.buf.Write(tmp[:])
}

func (w *fieldWriter) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *fieldWriter) WriteBytes(b []byte) {
	w.WriteInt64(int64(len(b)))
	w.buf.Write(b)
}

func (w *fieldWriter) WriteString(s string) { w.WriteBytes([]byte(s)) }

func (w *fieldWriter) WriteTime(t time.Time) { w.WriteInt64(t.UTC().UnixNano()) }

func (w *fieldWriter) WriteOptionalTime(t *time.Time) {
	w.WriteBool(t != nil)
	if t != nil {
		w.WriteTime(*t)
	}
}

func (w *fieldWriter) WriteMultihash(h multihash.Multihash) {
	raw, err := h.Bytes()
	if err != nil {
		// Multihash values passed through this codec are always
		// well-formed (produced by multihash.Sum/SumDefault); a
		// failure here means the caller built a Multihash by hand
		// with an unsupported codec, a programmer error.
		panic(fmt.Sprintf("blockcodec: invalid multihash: %v", err))
	}
	w.WriteBytes(raw)
}

func (w *fieldWriter) WriteOptionalMultihash(h *multihash.Multihash) {
	w.WriteBool(h != nil)
	if h != nil {
		w.WriteMultihash(*h)
	}
}

func (w *fieldWriter) WriteDatasetID(id identity.DatasetID) { w.WriteString(id.String()) }

func (w *fieldWriter) WriteStringSlice(ss []string) {
	w.WriteInt64(int64(len(ss)))
	for _, s := range ss {
		w.WriteString(s)
	}
}

func (w *fieldWriter) WriteStringMap(m map[string]string) {
	w.WriteInt64(int64(len(m)))
	for _, kv := range sortedMapKV(m) {
		w.WriteString(kv[0])
		w.WriteString(kv[1])
	}
}

func (w *fieldWriter) WriteOffsetInterval(oi odf.OffsetInterval) {
	w.WriteInt64(oi.Start)
	w.WriteInt64(oi.End)
}

func (w *fieldWriter) WriteOptionalOffsetInterval(oi *odf.OffsetInterval) {
	w.WriteBool(oi != nil)
	if oi != nil {
		w.WriteOffsetInterval(*oi)
	}
}

func (w *fieldWriter) WriteBlockInterval(bi odf.BlockInterval) {
	w.WriteMultihash(bi.Start)
	w.WriteMultihash(bi.End)
}

func (w *fieldWriter) WriteDataSlice(ds odf.DataSlice) {
	w.WriteMultihash(ds.LogicalHash)
	w.WriteMultihash(ds.PhysicalHash)
	w.WriteOffsetInterval(ds.Interval)
	w.WriteInt64(ds.Size)
}

func (w *fieldWriter) WriteOptionalDataSlice(ds *odf.DataSlice) {
	w.WriteBool(ds != nil)
	if ds != nil {
		w.WriteDataSlice(*ds)
	}
}

func (w *fieldWriter) WriteCheckpoint(c odf.Checkpoint) {
	w.WriteMultihash(c.PhysicalHash)
	w.WriteInt64(c.Size)
}

func (w *fieldWriter) WriteOptionalCheckpoint(c *odf.Checkpoint) {
	w.WriteBool(c != nil)
	if c != nil {
		w.WriteCheckpoint(*c)
	}
}

func (w *fieldWriter) WriteDatasetRef(r odf.DatasetRef) { w.WriteString(r.String()) }

type fieldReader struct {
	buf []byte
	pos int
}

func newFieldReader(data []byte) *fieldReader { return &fieldReader{buf: data} }

func (r *fieldReader) ReadInt64() (int64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("blockcodec: truncated int64")
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *fieldReader) ReadBool() (bool, error) {
	if r.pos+1 > len(r.buf) {
		return false, fmt.Errorf("blockcodec: truncated bool")
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *fieldReader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	if n < 0 || r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("blockcodec: truncated bytes field")
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *fieldReader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *fieldReader) ReadTime() (time.Time, error) {
	n, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func (r *fieldReader) ReadOptionalTime() (*time.Time, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	t, err := r.ReadTime()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *fieldReader) ReadMultihash() (multihash.Multihash, error) {
	raw, err := r.ReadBytes()
	if err != nil {
		return multihash.Multihash{}, err
	}
	return decodeRawMultihash(raw)
}

func (r *fieldReader) ReadOptionalMultihash() (*multihash.Multihash, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	h, err := r.ReadMultihash()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *fieldReader) ReadDatasetID() (identity.DatasetID, error) {
	s, err := r.ReadString()
	if err != nil {
		return identity.DatasetID{}, err
	}
	return identity.ParseDatasetID(s)
}

func (r *fieldReader) ReadStringSlice() ([]string, error) {
	n, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fieldReader) ReadStringMap() (map[string]string, error) {
	n, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := int64(0); i < n; i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (r *fieldReader) ReadOffsetInterval() (odf.OffsetInterval, error) {
	start, err := r.ReadInt64()
	if err != nil {
		return odf.OffsetInterval{}, err
	}
	end, err := r.ReadInt64()
	if err != nil {
		return odf.OffsetInterval{}, err
	}
	return odf.OffsetInterval{Start: start, End: end}, nil
}

func (r *fieldReader) ReadOptionalOffsetInterval() (*odf.OffsetInterval, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	oi, err := r.ReadOffsetInterval()
	if err != nil {
		return nil, err
	}
	return &oi, nil
}

func (r *fieldReader) ReadBlockInterval() (odf.BlockInterval, error) {
	start, err := r.ReadMultihash()
	if err != nil {
		return odf.BlockInterval{}, err
	}
	end, err := r.ReadMultihash()
	if err != nil {
		return odf.BlockInterval{}, err
	}
	return odf.BlockInterval{Start: start, End: end}, nil
}

func (r *fieldReader) ReadDataSlice() (odf.DataSlice, error) {
	logical, err := r.ReadMultihash()
	if err != nil {
		return odf.DataSlice{}, err
	}
	physical, err := r.ReadMultihash()
	if err != nil {
		return odf.DataSlice{}, err
	}
	interval, err := r.ReadOffsetInterval()
	if err != nil {
		return odf.DataSlice{}, err
	}
	size, err := r.ReadInt64()
	if err != nil {
		return odf.DataSlice{}, err
	}
	return odf.DataSlice{LogicalHash: logical, PhysicalHash: physical, Interval: interval, Size: size}, nil
}

func (r *fieldReader) ReadOptionalDataSlice() (*odf.DataSlice, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	ds, err := r.ReadDataSlice()
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *fieldReader) ReadCheckpoint() (odf.Checkpoint, error) {
	hash, err := r.ReadMultihash()
	if err != nil {
		return odf.Checkpoint{}, err
	}
	size, err := r.ReadInt64()
	if err != nil {
		return odf.Checkpoint{}, err
	}
	return odf.Checkpoint{PhysicalHash: hash, Size: size}, nil
}

func (r *fieldReader) ReadOptionalCheckpoint() (*odf.Checkpoint, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	c, err := r.ReadCheckpoint()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *fieldReader) ReadDatasetRef() (odf.DatasetRef, error) {
	s, err := r.ReadString()
	if err != nil {
		return odf.DatasetRef{}, err
	}
	return odf.ParseDatasetRefAny(s)
}

// decodeRawMultihash parses the raw multihash-encoded bytes (varint
// codec + length + digest), as produced by multihash.Multihash.Bytes.
func decodeRawMultihash(raw []byte) (multihash.Multihash, error) {
	return multihash.FromBytes(raw)
}

// sortedMapKV returns m's entries ordered by key, so map encoding is
// deterministic across runs (Go's map iteration order is randomized).
func sortedMapKV(m map[string]string) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, m[k]}
	}
	return out
}
