package gateway

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// MultichannelRole is a channel's role within an SMB3 multichannel session.
type MultichannelRole int

const (
	ChannelPrimary MultichannelRole = iota
	ChannelSecondary
	ChannelStandby
)

// InterfaceCapabilities describes a NIC's offload/feature support.
type InterfaceCapabilities struct {
	RDMA             bool
	RSS              bool
	TSO              bool
	ChecksumOffload  bool
}

// NicCapabilities describes one registered network interface.
type NicCapabilities struct {
	InterfaceName  string
	IPAddress      string
	Port           uint16
	LinkSpeedMbps  uint64
	Capabilities   InterfaceCapabilities
	Enabled        bool
}

// NewNicCapabilities returns a NIC entry bound to SMB's default port.
func NewNicCapabilities(name, ip string) NicCapabilities {
	return NicCapabilities{InterfaceName: name, IPAddress: ip, Port: 445, Enabled: true}
}

// ChannelSelectionPolicy chooses how MultichannelManager picks
// interfaces for a client.
type ChannelSelectionPolicy int

const (
	ChannelRoundRobin ChannelSelectionPolicy = iota
	ChannelWeightedBySpeed
	ChannelPreferRDMA
)

// MultichannelConfig bounds SMB3 multichannel behavior.
type MultichannelConfig struct {
	Enabled           bool
	MaxChannels       uint32
	MinChannels       uint32
	PreferRDMA        bool
	Interfaces        []NicCapabilities
	ChannelSelection  ChannelSelectionPolicy
}

// DefaultMultichannelConfig matches the Rust source's MultichannelConfig::default.
func DefaultMultichannelConfig() MultichannelConfig {
	return MultichannelConfig{
		Enabled:          false,
		MaxChannels:      8,
		MinChannels:      2,
		ChannelSelection: ChannelWeightedBySpeed,
	}
}

// ChannelInfo is one established channel within a session.
type ChannelInfo struct {
	ChannelID      uint32
	Interface      string
	Role           MultichannelRole
	IsActive       bool
	BytesSent      uint64
	BytesReceived  uint64
}

// Session is one client's multichannel SMB3 session.
type Session struct {
	SessionID          uint64
	Channels           []ChannelInfo
	CreatedAt          time.Time
	TotalBytesSent     uint64
	TotalBytesReceived uint64
}

// AddChannel appends channel to the session.
func (s *Session) AddChannel(channel ChannelInfo) {
	s.Channels = append(s.Channels, channel)
}

// UpdateStats accumulates sent/received bytes for channelID and the
// session total.
func (s *Session) UpdateStats(channelID uint32, sent, received uint64) {
	for i := range s.Channels {
		if s.Channels[i].ChannelID == channelID {
			s.Channels[i].BytesSent += sent
			s.Channels[i].BytesReceived += received
			break
		}
	}
	s.TotalBytesSent += sent
	s.TotalBytesReceived += received
}

// MultichannelManager manages registered NICs and active multichannel
// sessions for the SMB3 gateway.
type MultichannelManager struct {
	log *zap.Logger

	mu            sync.Mutex
	cfg           MultichannelConfig
	sessions      map[uint64]*Session
	roundRobinIdx int
}

// NewMultichannelManager returns a MultichannelManager configured per cfg.
func NewMultichannelManager(log *zap.Logger, cfg MultichannelConfig) *MultichannelManager {
	return &MultichannelManager{log: log, cfg: cfg, sessions: make(map[uint64]*Session)}
}

// Config returns the manager's current configuration.
func (m *MultichannelManager) Config() MultichannelConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// AddInterface registers nic, rejecting a duplicate interface name.
func (m *MultichannelManager) AddInterface(nic NicCapabilities) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.cfg.Interfaces {
		if existing.InterfaceName == nic.InterfaceName {
			return claudefserrs.ErrDuplicateInterface
		}
	}
	m.cfg.Interfaces = append(m.cfg.Interfaces, nic)
	return nil
}

// RemoveInterface unregisters the named interface, reporting whether
// it was present.
func (m *MultichannelManager) RemoveInterface(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, nic := range m.cfg.Interfaces {
		if nic.InterfaceName == name {
			m.cfg.Interfaces = append(m.cfg.Interfaces[:i], m.cfg.Interfaces[i+1:]...)
			return true
		}
	}
	return false
}

func (m *MultichannelManager) availableInterfacesLocked() []NicCapabilities {
	var out []NicCapabilities
	for _, nic := range m.cfg.Interfaces {
		if nic.Enabled {
			out = append(out, nic)
		}
	}
	return out
}

// AvailableInterfaces returns every currently enabled interface.
func (m *MultichannelManager) AvailableInterfaces() []NicCapabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableInterfacesLocked()
}

// SelectInterfacesForClient picks up to n interfaces under the
// manager's configured selection policy, returning nil if
// multichannel is disabled or no interface is enabled.
func (m *MultichannelManager) SelectInterfacesForClient(n uint32) []NicCapabilities {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		return nil
	}
	enabled := m.availableInterfacesLocked()
	if len(enabled) == 0 {
		return nil
	}

	switch m.cfg.ChannelSelection {
	case ChannelWeightedBySpeed:
		sorted := append([]NicCapabilities(nil), enabled...)
		sortBySpeedDesc(sorted)
		return takeN(sorted, n)
	case ChannelPreferRDMA:
		sorted := append([]NicCapabilities(nil), enabled...)
		sortByRDMAThenSpeed(sorted)
		return takeN(sorted, n)
	case ChannelRoundRobin:
		out := make([]NicCapabilities, 0, n)
		l := len(enabled)
		start := m.roundRobinIdx % l
		for i := uint32(0); i < n; i++ {
			out = append(out, enabled[(start+int(i))%l])
		}
		m.roundRobinIdx = (start + int(n)) % l
		return out
	default:
		return takeN(enabled, n)
	}
}

func sortBySpeedDesc(nics []NicCapabilities) {
	for i := 1; i < len(nics); i++ {
		for j := i; j > 0 && nics[j].LinkSpeedMbps > nics[j-1].LinkSpeedMbps; j-- {
			nics[j], nics[j-1] = nics[j-1], nics[j]
		}
	}
}

func sortByRDMAThenSpeed(nics []NicCapabilities) {
	for i := 1; i < len(nics); i++ {
		for j := i; j > 0 && lessRDMAThenSpeed(nics[j-1], nics[j]); j-- {
			nics[j], nics[j-1] = nics[j-1], nics[j]
		}
	}
}

func lessRDMAThenSpeed(a, b NicCapabilities) bool {
	if a.Capabilities.RDMA != b.Capabilities.RDMA {
		return b.Capabilities.RDMA
	}
	return b.LinkSpeedMbps > a.LinkSpeedMbps
}

func takeN(nics []NicCapabilities, n uint32) []NicCapabilities {
	if uint32(len(nics)) <= n {
		return nics
	}
	return nics[:n]
}

// CreateSession starts tracking a new multichannel session.
func (m *MultichannelManager) CreateSession(sessionID uint64, now time.Time) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := Session{SessionID: sessionID, CreatedAt: now}
	m.sessions[sessionID] = &session
	return session
}

// GetSession returns a copy of sessionID's session, if tracked.
func (m *MultichannelManager) GetSession(sessionID uint64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// RemoveSession stops tracking sessionID, reporting whether it was present.
func (m *MultichannelManager) RemoveSession(sessionID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}

// AddChannelToSession appends channel to sessionID's session, reporting
// whether the session was tracked.
func (m *MultichannelManager) AddChannelToSession(sessionID uint64, channel ChannelInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.AddChannel(channel)
	return true
}

// UpdateSessionStats accumulates sent/received bytes for channelID
// within sessionID's session, reporting whether the session was tracked.
func (m *MultichannelManager) UpdateSessionStats(sessionID uint64, channelID uint32, sent, received uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.UpdateStats(channelID, sent, received)
	return true
}

// SessionCount returns the number of tracked sessions.
func (m *MultichannelManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TotalChannelCount sums channels across every tracked session.
func (m *MultichannelManager) TotalChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.sessions {
		total += len(s.Channels)
	}
	return total
}
