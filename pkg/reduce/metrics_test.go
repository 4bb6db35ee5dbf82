package reduce_test

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/reduce"
)

func TestDedupRatio(t *testing.T) {
	m := reduce.New()
	assert.Equal(t, 0.0, m.DedupRatio(), "no attempts yet")

	m.RecordDedupHit()
	m.RecordDedupHit()
	m.RecordDedupHit()
	m.RecordDedupMiss()

	assert.InDelta(t, 0.75, m.DedupRatio(), 0.0001)
}

func TestCompressionAndOverallRatio(t *testing.T) {
	m := reduce.New()
	m.RecordCompress(1000, 250)
	assert.InDelta(t, 4.0, m.CompressionRatio(), 0.0001)

	m.RecordChunk(1000, 250)
	assert.InDelta(t, 4.0, m.OverallReductionRatio(), 0.0001)
}

func TestSnapshotReflectsAllCounters(t *testing.T) {
	m := reduce.New()
	m.RecordChunk(100, 50)
	m.RecordDedupHit()
	m.RecordDedupMiss()
	m.RecordCompress(100, 50)
	m.RecordEncrypt()
	m.RecordGCCycle(25)
	m.RecordKeyRotation()

	s := m.Snapshot()
	assert.Equal(t, uint64(1), s.ChunksProcessed)
	assert.Equal(t, uint64(100), s.BytesIn)
	assert.Equal(t, uint64(50), s.BytesOut)
	assert.Equal(t, uint64(1), s.DedupHits)
	assert.Equal(t, uint64(1), s.DedupMisses)
	assert.Equal(t, uint64(1), s.EncryptOps)
	assert.Equal(t, uint64(1), s.GCCycles)
	assert.Equal(t, uint64(25), s.GCBytesFreed)
	assert.Equal(t, uint64(1), s.KeyRotations)
}

func TestCompressorRecordsMetricsAndRoundTrips(t *testing.T) {
	m := reduce.New()
	c := reduce.NewCompressor(m, zstd.SpeedDefault)

	data := bytes.Repeat([]byte("claudefs-segment-data-"), 500)
	compressed, err := c.Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, decompressed)

	snap := m.Snapshot()
	assert.Equal(t, uint64(len(data)), snap.CompressBytesIn)
	assert.Equal(t, uint64(len(compressed)), snap.CompressBytesOut)
}
