package reduce

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// Compressor runs chunk data through zstd and records the observed
// bytes-in/bytes-out onto a Metrics instance, giving the
// compress_bytes_{in,out} counters an actual producer instead of being
// write-only.
type Compressor struct {
	metrics *Metrics
	level   zstd.EncoderLevel
}

// NewCompressor returns a Compressor that records onto m at the given
// zstd level.
func NewCompressor(m *Metrics, level zstd.EncoderLevel) *Compressor {
	return &Compressor{metrics: m, level: level}
}

// Compress compresses chunk and records the transfer onto the bound
// Metrics. Returns the compressed bytes.
func (c *Compressor) Compress(chunk []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}
	if _, err := enc.Write(chunk); err != nil {
		_ = enc.Close()
		return nil, claudefserrs.SerializationError(err.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}

	out := buf.Bytes()
	c.metrics.RecordCompress(uint64(len(chunk)), uint64(len(out)))
	return out, nil
}

// Decompress reverses Compress. It does not adjust metrics, since the
// compress_bytes counters track the write-path compression step only.
func (c *Compressor) Decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}
	defer dec.Close()

	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}
	return out, nil
}
