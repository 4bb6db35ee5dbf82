package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/segment"
)

func testBlockRef() segment.BlockRef {
	return segment.BlockRef{DeviceIndex: 0, ByteOffset: 100, Size: segment.Size4K}
}

func TestPackerCreation(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())
	assert.Equal(t, 0, p.PendingBytes())
	assert.Equal(t, 0, p.PendingCount())

	stats := p.Stats()
	assert.Equal(t, uint64(0), stats.SegmentsSealed)
	assert.Equal(t, uint64(1), stats.NextSegmentID)
}

func TestAddSingleEntryDoesNotSeal(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())
	sealed, err := p.AddEntry(1, testBlockRef(), make([]byte, 4096), segment.HintJournal)
	require.NoError(t, err)
	assert.Nil(t, sealed)
	assert.Equal(t, 1, p.PendingCount())
	assert.Equal(t, 4096, p.PendingBytes())
}

func TestSealSegment(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())
	for i := uint64(1); i <= 3; i++ {
		data := make([]byte, 1000)
		_, err := p.AddEntry(i, testBlockRef(), data, segment.HintJournal)
		require.NoError(t, err)
	}

	sealed := p.Seal()
	require.NotNil(t, sealed)
	assert.Equal(t, uint64(1), sealed.Header.SegmentID)
	assert.Len(t, sealed.Entries, 3)
	assert.Len(t, sealed.Data, 3000)
	assert.Equal(t, uint64(1), sealed.Header.FirstSequence)
	assert.Equal(t, uint64(3), sealed.Header.LastSequence)

	assert.Equal(t, 0, p.PendingCount())
	assert.Equal(t, 0, p.PendingBytes())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.SegmentsSealed)
	assert.Equal(t, uint64(3), stats.EntriesPacked)
	assert.Equal(t, uint64(3000), stats.BytesPacked)
}

// TestAutoSealOnOverflow is scenario S1 from spec.md §8.
func TestAutoSealOnOverflow(t *testing.T) {
	p := segment.New(nil, segment.Config{TargetSize: 1000, ChecksumAlgorithm: segment.Crc32c})

	data := make([]byte, 600)
	sealed, err := p.AddEntry(1, testBlockRef(), data, segment.HintJournal)
	require.NoError(t, err)
	assert.Nil(t, sealed, "first entry must not seal")
	assert.Equal(t, 1, p.PendingCount())

	sealed, err = p.AddEntry(2, testBlockRef(), data, segment.HintJournal)
	require.NoError(t, err)
	require.NotNil(t, sealed, "second add must auto-seal the first segment")

	assert.Equal(t, uint64(1), sealed.Header.SegmentID)
	assert.Equal(t, uint32(1), sealed.Header.EntryCount)
	assert.Equal(t, uint64(600), sealed.Header.DataBytes)
	assert.Equal(t, uint64(1), sealed.Header.FirstSequence)
	assert.Equal(t, uint64(1), sealed.Header.LastSequence)

	assert.Equal(t, 1, p.PendingCount())
	assert.Equal(t, 600, p.PendingBytes())

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.NextSegmentID)
}

func TestSealEmptyReturnsNil(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())
	assert.Nil(t, p.Seal())
}

func TestSegmentHeaderFields(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())
	_, err := p.AddEntry(10, testBlockRef(), make([]byte, 4096), segment.HintHotData)
	require.NoError(t, err)

	sealed := p.Seal()
	require.NotNil(t, sealed)

	assert.Equal(t, segment.Magic, sealed.Header.Magic)
	assert.Equal(t, segment.Version, sealed.Header.Version)
	assert.Equal(t, uint64(1), sealed.Header.SegmentID)
	assert.Equal(t, uint32(1), sealed.Header.EntryCount)
	assert.Equal(t, uint64(4096), sealed.Header.DataBytes)
	assert.Equal(t, uint64(10), sealed.Header.FirstSequence)
	assert.Equal(t, uint64(10), sealed.Header.LastSequence)
	assert.True(t, sealed.Header.SealedAtSecs > 0)
	assert.NotZero(t, sealed.Header.Checksum.Value)
}

// TestEntryDataOffsets checks universal invariant #1: data_offset equals
// the prefix sum of preceding entries' data_len, with no gaps or overlap.
func TestEntryDataOffsets(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())

	sizes := []int{100, 200, 300}
	for i, size := range sizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i + 1)
		}
		_, err := p.AddEntry(uint64(i+1), testBlockRef(), data, segment.HintJournal)
		require.NoError(t, err)
	}

	sealed := p.Seal()
	require.NotNil(t, sealed)
	require.Len(t, sealed.Entries, 3)

	assert.Equal(t, uint32(0), sealed.Entries[0].DataOffset)
	assert.Equal(t, uint32(100), sealed.Entries[0].DataLen)
	assert.Equal(t, uint32(100), sealed.Entries[1].DataOffset)
	assert.Equal(t, uint32(200), sealed.Entries[1].DataLen)
	assert.Equal(t, uint32(300), sealed.Entries[2].DataOffset)
	assert.Equal(t, uint32(300), sealed.Entries[2].DataLen)

	var sum uint32
	for _, e := range sealed.Entries {
		sum += e.DataLen
	}
	assert.Equal(t, sealed.Header.DataBytes, uint64(sum))

	assert.Len(t, sealed.Data, 600)
	for _, b := range sealed.Data[:100] {
		assert.Equal(t, byte(1), b)
	}
	for _, b := range sealed.Data[100:300] {
		assert.Equal(t, byte(2), b)
	}
	for _, b := range sealed.Data[300:600] {
		assert.Equal(t, byte(3), b)
	}
}

func TestSegmentChecksum(t *testing.T) {
	p := segment.New(nil, segment.Config{TargetSize: segment.DefaultTargetSize, ChecksumAlgorithm: segment.Crc32c})
	data := []byte("hello world")
	_, err := p.AddEntry(1, testBlockRef(), data, segment.HintJournal)
	require.NoError(t, err)

	sealed := p.Seal()
	require.NotNil(t, sealed)

	expected := segment.Compute(segment.Crc32c, data)
	assert.Equal(t, expected, sealed.Header.Checksum)
	assert.True(t, segment.Verify(sealed.Header.Checksum, sealed.Data))
}

// TestMultipleSealsSegmentIDMonotonic checks universal invariant #2:
// seal_k.segment_id = k+1, monotone with no gaps.
func TestMultipleSealsSegmentIDMonotonic(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())

	for i := uint64(1); i <= 3; i++ {
		_, err := p.AddEntry(i, testBlockRef(), make([]byte, 1000), segment.HintJournal)
		require.NoError(t, err)
		sealed := p.Seal()
		require.NotNil(t, sealed)
		assert.Equal(t, i, sealed.Header.SegmentID)
	}

	assert.Equal(t, uint64(4), p.Stats().NextSegmentID)
}

func TestPlacementHintAndBlockRefPreserved(t *testing.T) {
	p := segment.New(nil, segment.DefaultConfig())

	ref1 := segment.BlockRef{DeviceIndex: 0, ByteOffset: 100, Size: segment.Size4K}
	ref2 := segment.BlockRef{DeviceIndex: 1, ByteOffset: 200, Size: segment.Size64K}

	_, err := p.AddEntry(1, ref1, make([]byte, 100), segment.HintHotData)
	require.NoError(t, err)
	_, err = p.AddEntry(2, ref2, make([]byte, 100), segment.HintColdData)
	require.NoError(t, err)

	sealed := p.Seal()
	require.NotNil(t, sealed)

	assert.Equal(t, segment.HintHotData, sealed.Entries[0].PlacementHint)
	assert.Equal(t, segment.HintColdData, sealed.Entries[1].PlacementHint)
	assert.Equal(t, ref1, sealed.Entries[0].BlockRef)
	assert.Equal(t, ref2, sealed.Entries[1].BlockRef)
}
