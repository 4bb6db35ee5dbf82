package ec_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/ec"
)

func randData(n int) []byte {
	b := make([]byte, n)
	rand.Read(b) //nolint:errcheck
	return b
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	scheme, err := ec.NewDefault(nil)
	require.NoError(t, err)

	data := randData(32 * 1024)
	shards, err := scheme.Encode(data)
	require.NoError(t, err)
	require.Len(t, shards, ec.DefaultDataShards+ec.DefaultParityShards)

	decoded, err := scheme.Decode(shards[:ec.DefaultDataShards], len(data))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded))
}

func TestDecodeToleratesDataShardLoss(t *testing.T) {
	scheme, err := ec.NewDefault(nil)
	require.NoError(t, err)

	data := randData(16 * 1024)
	shards, err := scheme.Encode(data)
	require.NoError(t, err)

	// Drop two data shards, keep the rest including parity.
	surviving := append([]ec.Shard{}, shards[2:]...)

	decoded, err := scheme.Decode(surviving, len(data))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded))
}

func TestDecodeFailsWithTooFewShards(t *testing.T) {
	scheme, err := ec.NewDefault(nil)
	require.NoError(t, err)

	data := randData(4096)
	shards, err := scheme.Encode(data)
	require.NoError(t, err)

	_, err = scheme.Decode(shards[:ec.DefaultDataShards-1], len(data))
	assert.Error(t, err)
}

func TestEncodePadsToShardMultiple(t *testing.T) {
	scheme, err := ec.New(nil, 4, 2)
	require.NoError(t, err)

	data := randData(10) // not a multiple of 4
	shards, err := scheme.Encode(data)
	require.NoError(t, err)
	require.Len(t, shards, 6)

	decoded, err := scheme.Decode(shards[:4], len(data))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded))
}

func TestCustomShardCounts(t *testing.T) {
	scheme, err := ec.New(nil, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, scheme.DataShards())
	assert.Equal(t, 12, scheme.TotalShards())

	data := randData(64 * 1024)
	shards, err := scheme.Encode(data)
	require.NoError(t, err)
	require.Len(t, shards, 12)

	decoded, err := scheme.Decode(shards[4:], len(data))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded))
}
