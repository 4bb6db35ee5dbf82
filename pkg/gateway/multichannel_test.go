package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/gateway"
)

func TestDefaultMultichannelConfig(t *testing.T) {
	cfg := gateway.DefaultMultichannelConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, uint32(8), cfg.MaxChannels)
	assert.Equal(t, uint32(2), cfg.MinChannels)
	assert.Equal(t, gateway.ChannelWeightedBySpeed, cfg.ChannelSelection)
}

func TestAddInterfaceRejectsDuplicate(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	require.NoError(t, m.AddInterface(gateway.NewNicCapabilities("eth0", "10.0.0.1")))

	err := m.AddInterface(gateway.NewNicCapabilities("eth0", "10.0.0.2"))
	assert.Error(t, err)
}

func TestRemoveInterface(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	m.AddInterface(gateway.NewNicCapabilities("eth0", "10.0.0.1"))

	assert.True(t, m.RemoveInterface("eth0"))
	assert.False(t, m.RemoveInterface("eth0"))
}

func TestSelectInterfacesDisabledReturnsEmpty(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	m.AddInterface(gateway.NewNicCapabilities("eth0", "10.0.0.1"))

	assert.Empty(t, m.SelectInterfacesForClient(2))
}

func TestSelectInterfacesWeightedBySpeed(t *testing.T) {
	cfg := gateway.DefaultMultichannelConfig()
	cfg.Enabled = true
	m := gateway.NewMultichannelManager(nil, cfg)

	slow := gateway.NewNicCapabilities("eth0", "10.0.0.1")
	slow.LinkSpeedMbps = 1000
	fast := gateway.NewNicCapabilities("eth1", "10.0.0.2")
	fast.LinkSpeedMbps = 10000
	m.AddInterface(slow)
	m.AddInterface(fast)

	selected := m.SelectInterfacesForClient(1)
	require.Len(t, selected, 1)
	assert.Equal(t, "eth1", selected[0].InterfaceName)
}

func TestSelectInterfacesPreferRDMA(t *testing.T) {
	cfg := gateway.DefaultMultichannelConfig()
	cfg.Enabled = true
	cfg.ChannelSelection = gateway.ChannelPreferRDMA
	m := gateway.NewMultichannelManager(nil, cfg)

	fastNoRDMA := gateway.NewNicCapabilities("eth0", "10.0.0.1")
	fastNoRDMA.LinkSpeedMbps = 10000
	slowRDMA := gateway.NewNicCapabilities("eth1", "10.0.0.2")
	slowRDMA.LinkSpeedMbps = 1000
	slowRDMA.Capabilities.RDMA = true
	m.AddInterface(fastNoRDMA)
	m.AddInterface(slowRDMA)

	selected := m.SelectInterfacesForClient(1)
	require.Len(t, selected, 1)
	assert.Equal(t, "eth1", selected[0].InterfaceName, "RDMA-capable interface is preferred over raw speed")
}

func TestSessionLifecycle(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	now := time.Unix(0, 0)
	session := m.CreateSession(1, now)
	assert.Equal(t, uint64(1), session.SessionID)

	got, ok := m.GetSession(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.SessionID)

	assert.Equal(t, 1, m.SessionCount())
	assert.True(t, m.RemoveSession(1))
	assert.Equal(t, 0, m.SessionCount())
}

func TestSessionUpdateStatsAccumulates(t *testing.T) {
	s := gateway.Session{SessionID: 1}
	s.AddChannel(gateway.ChannelInfo{ChannelID: 1})
	s.UpdateStats(1, 100, 50)
	s.UpdateStats(1, 200, 0)

	assert.Equal(t, uint64(300), s.Channels[0].BytesSent)
	assert.Equal(t, uint64(300), s.TotalBytesSent)
	assert.Equal(t, uint64(50), s.TotalBytesReceived)
}

func TestTotalChannelCount(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	m.CreateSession(1, time.Unix(0, 0))
	require.True(t, m.AddChannelToSession(1, gateway.ChannelInfo{ChannelID: 1}))

	assert.Equal(t, 1, m.TotalChannelCount())
}

func TestUpdateSessionStatsUnknownSession(t *testing.T) {
	m := gateway.NewMultichannelManager(nil, gateway.DefaultMultichannelConfig())
	assert.False(t, m.UpdateSessionStats(999, 1, 100, 100))
}
