// Compression for stored-field records.
//
// A segment's stored-fields file holds one JSON object per document.
// Stored values are written once at commit and read back only when a
// hit is materialized, so the encode side runs on the indexing hot
// path while decodes are comparatively rare.
package structio

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder — both are documented as safe for concurrent
// use. Allocated once because zstd encoder/decoder construction is
// expensive (internal state tables, dictionaries); creating one per
// record would dominate the cost of compressing small documents.
//
// SpeedFastest: compression runs on every committed document while
// decompression runs only on stored-field retrieval.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// WriteCompressedObject JSON-encodes v, zstd-compresses the result,
// and appends it as a length-prefixed byte string. The inverse is
// ReadCompressedObject.
func (w *Writer) WriteCompressedObject(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("structio: marshal object: %w", err)
	}
	return w.WriteBytes(zstdEncoder.EncodeAll(data, nil))
}

// ReadCompressedObject reads a length-prefixed byte string,
// decompresses it, and JSON-decodes the result into v.
func (r *Reader) ReadCompressedObject(v any) error {
	compressed, err := r.ReadBytes()
	if err != nil {
		return err
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("structio: decompress object: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("structio: unmarshal object: %w", err)
	}
	return nil
}
