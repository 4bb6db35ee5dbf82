package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNodeConfigIdentityAndPaths(t *testing.T) {
	nc := defaultNodeConfig()

	assert.Equal(t, "claudefs-node-0", nc.NodeID)
	assert.Equal(t, uint64(1), nc.LocalSiteID)
	assert.NotEmpty(t, nc.Paths)
	assert.Equal(t, "primary", nc.Paths[0].Name)
}

func TestBuildWritePathConfigCarriesQuotaAndFlowControl(t *testing.T) {
	nc := defaultNodeConfig()
	nc.Quota.BytesHard = 1024
	nc.FlowControl.MaxRequests = 7
	nc.LocalSiteID = 42
	nc.StreamID = 9

	wpCfg := buildWritePathConfig(nc)

	require.Equal(t, uint64(1024), wpCfg.DefaultQuota.BytesHard)
	require.Equal(t, uint32(7), wpCfg.FlowControl.MaxRequests)
	require.Equal(t, uint64(42), wpCfg.LocalSiteID)
	require.Equal(t, uint64(9), wpCfg.StreamID)
	require.Equal(t, uint64(42), wpCfg.ReplConfig.LocalSiteID)
}

func TestBuildWritePathConfigDefaultsUnexposedSubConfigs(t *testing.T) {
	wpCfg := buildWritePathConfig(defaultNodeConfig())

	assert.NotZero(t, wpCfg.NVMeConfig.SQDepth)
	assert.NotZero(t, wpCfg.SegmentConfig.TargetSize)
	assert.NotZero(t, wpCfg.WearConfig.HotThresholdPct)
	assert.NotZero(t, wpCfg.PathConfig.MaxPaths)
	assert.True(t, wpCfg.MigConfig.Enabled)
}
