package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigCommandDumpsValidYAML(t *testing.T) {
	nc := defaultNodeConfig()

	var buf bytes.Buffer
	out, err := yaml.Marshal(nc)
	require.NoError(t, err)
	buf.Write(out)

	var roundtripped NodeConfig
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &roundtripped))
	assert.Equal(t, nc.NodeID, roundtripped.NodeID)
	assert.Equal(t, nc.Quota.BytesHard, roundtripped.Quota.BytesHard)
	assert.Equal(t, nc.Paths, roundtripped.Paths)
}
