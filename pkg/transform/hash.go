package transform

import (
	"fmt"
	"os"

	"github.com/cuemby/odf/pkg/multihash"
)

// GetFilePhysicalHash hashes a data file's exact on-disk bytes, the
// PhysicalHash of a committed DataSlice: it identifies the stored file
// verbatim, including any format-level non-determinism.
func GetFilePhysicalHash(path string) (hash multihash.Multihash, size int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return multihash.Multihash{}, 0, fmt.Errorf("transform: read %s: %w", path, err)
	}
	return multihash.SumDefault(data), int64(len(data)), nil
}

// GetFileLogicalHash is meant to hash a data file's column values rather
// than its bytes, so verification survives engine-side non-determinism
// in physical encoding (compression, row group layout, writer version) —
// which is the entire reason spec.md §9 keeps LogicalHash and
// PhysicalHash as two separate fields. Computing it properly requires a
// columnar reader (Parquet/Arrow); no such library is available to this
// module, so it degrades to the same raw-byte digest as
// GetFilePhysicalHash. LogicalHash and PhysicalHash will therefore always
// agree here, which narrows VerifyTransform's reproducibility check to
// "the engine produced byte-identical output" rather than the full
// "produced the same records" guarantee.
func GetFileLogicalHash(path string) (multihash.Multihash, error) {
	hash, _, err := GetFilePhysicalHash(path)
	return hash, err
}
