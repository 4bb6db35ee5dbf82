// Package nvme implements the per-core NVMe passthrough queue-pair manager
// of spec §4.7 (C8): submission/completion bookkeeping and latency
// tracking for a fixed pool of hardware queue pairs.
package nvme

import (
	"sync"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

var mon = monkit.Package()

// QueueState is a queue pair's lifecycle state.
type QueueState int

const (
	StateActive QueueState = iota
	StateDraining
	StateIdle
	StateFailed
)

func (s QueueState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateIdle:
		return "idle"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OpType is the NVMe command category carried by a submission.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
	OpFlush
	OpWriteZeroes
	OpDatasetManagement
	OpAtomicWrite
)

// CompletionStatus classifies how a submitted command resolved.
type CompletionStatus int

const (
	StatusSuccess CompletionStatus = iota
	StatusNamespaceNotReady
	StatusCommandAborted
	StatusMediaError
	StatusInternalError
)

// SubmissionEntry records an in-flight command.
type SubmissionEntry struct {
	CommandID   uint64
	CoreID      uint32
	OpType      OpType
	Namespace   uint32
	LBAStart    uint64
	LBACount    uint32
	DataLen     int
	SubmittedAt uint64
}

// CompletionEntry records a resolved command.
type CompletionEntry struct {
	CommandID   uint64
	Status      CompletionStatus
	ErrorCode   uint16
	CompletedAt uint64
	LatencyNs   uint64
}

// QueuePair is one hardware submission/completion queue bound to a core.
type QueuePair struct {
	ID                 uint32
	CoreID             uint32
	Namespace          uint32
	SQDepth            uint32
	CQDepth            uint32
	State              QueueState
	FailureReason      string
	PendingSubmissions uint32
	CompletedCount     uint64
	ErrorCount         uint64
}

// Config bounds the passthrough manager, matching the Rust source's
// PassthroughConfig defaults.
type Config struct {
	SQDepth             uint32
	CQDepth             uint32
	MaxQueuePairs       uint32
	AtomicWrites        bool
	MaxAtomicWriteBytes uint32
	MinKernelMajor      uint32
	MinKernelMinor      uint32
}

// DefaultConfig matches the Rust source's Default impl.
func DefaultConfig() Config {
	return Config{
		SQDepth:             1024,
		CQDepth:             1024,
		MaxQueuePairs:       64,
		AtomicWrites:        true,
		MaxAtomicWriteBytes: 65536,
		MinKernelMajor:      6,
		MinKernelMinor:      20,
	}
}

// Stats summarizes the manager's cumulative submission/completion activity.
type Stats struct {
	TotalSubmissions  uint64
	TotalCompletions  uint64
	TotalErrors       uint64
	Reads             uint64
	Writes            uint64
	Flushes           uint64
	AtomicWrites      uint64
	AvgLatencyNs      uint64
	MaxLatencyNs      uint64
	QueuePairsActive  uint32
}

// Manager tracks a fixed pool of NVMe queue pairs, one per core, and the
// submissions/completions flowing through them.
type Manager struct {
	log *zap.Logger
	cfg Config

	mu            sync.Mutex
	queuePairs    map[uint32]*QueuePair
	coreToQueue   map[uint32]uint32
	submissions   map[uint64]SubmissionEntry
	completions   []CompletionEntry
	nextQueueID   uint32
	nextCommandID uint64
	stats         Stats
}

// New returns a Manager configured per cfg.
func New(log *zap.Logger, cfg Config) *Manager {
	return &Manager{
		log:         log,
		cfg:         cfg,
		queuePairs:  make(map[uint32]*QueuePair),
		coreToQueue: make(map[uint32]uint32),
		submissions: make(map[uint64]SubmissionEntry),
		nextCommandID: 1,
	}
}

// CreateQueuePair binds a new active queue pair to coreID for namespace,
// rejecting a core that already has one and a pool already at capacity.
func (m *Manager) CreateQueuePair(coreID, namespace uint32) (uint32, error) {
	defer mon.Task()(nil)(nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.coreToQueue[coreID]; ok {
		if m.log != nil {
			m.log.Warn("core already has a queue pair", zap.Uint32("core_id", coreID))
		}
		return 0, claudefserrs.CoreAlreadyBound(coreID)
	}

	if uint32(len(m.queuePairs)) >= m.cfg.MaxQueuePairs {
		if m.log != nil {
			m.log.Warn("max queue pairs reached", zap.Uint32("max", m.cfg.MaxQueuePairs))
		}
		return 0, claudefserrs.MaxQueuePairsReached(m.cfg.MaxQueuePairs)
	}

	qpID := m.nextQueueID
	m.nextQueueID++

	m.queuePairs[qpID] = &QueuePair{
		ID:        qpID,
		CoreID:    coreID,
		Namespace: namespace,
		SQDepth:   m.cfg.SQDepth,
		CQDepth:   m.cfg.CQDepth,
		State:     StateActive,
	}
	m.coreToQueue[coreID] = qpID

	if m.log != nil {
		m.log.Debug("created queue pair",
			zap.Uint32("qp_id", qpID), zap.Uint32("core_id", coreID), zap.Uint32("namespace", namespace))
	}
	return qpID, nil
}

// RemoveQueuePair unbinds qpID and discards any pending submissions for
// its core.
func (m *Manager) RemoveQueuePair(qpID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, ok := m.queuePairs[qpID]
	if !ok {
		return claudefserrs.ErrQueueNotFound
	}
	delete(m.queuePairs, qpID)
	delete(m.coreToQueue, queue.CoreID)

	for cmdID, s := range m.submissions {
		if s.CoreID == queue.CoreID {
			delete(m.submissions, cmdID)
		}
	}

	if m.log != nil {
		m.log.Info("removed queue pair", zap.Uint32("qp_id", qpID))
	}
	return nil
}

// GetQueuePair returns a copy of qpID's current state.
func (m *Manager) GetQueuePair(qpID uint32) (QueuePair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queuePairs[qpID]
	if !ok {
		return QueuePair{}, false
	}
	return *q, true
}

// GetQueueForCore returns the queue pair ID bound to coreID, if any.
func (m *Manager) GetQueueForCore(coreID uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qpID, ok := m.coreToQueue[coreID]
	return qpID, ok
}

// Submit enqueues a new command on coreID's queue pair, returning its
// command ID. Rejects a queue pair that isn't Active, a full submission
// queue, and atomic writes when the pool disables them (spec §4.7).
func (m *Manager) Submit(coreID uint32, op OpType, namespace uint32, lbaStart uint64, lbaCount uint32, dataLen int, timestamp uint64) (uint64, error) {
	defer mon.Task()(nil)(nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	qpID, ok := m.coreToQueue[coreID]
	if !ok {
		return 0, claudefserrs.ErrNoQueueForCore
	}
	queue := m.queuePairs[qpID]

	if queue.State != StateActive {
		if m.log != nil {
			m.log.Error("queue not active", zap.Uint32("qp_id", qpID), zap.Stringer("state", queue.State))
		}
		return 0, claudefserrs.ErrQueueNotActive
	}

	if queue.PendingSubmissions >= queue.SQDepth {
		if m.log != nil {
			m.log.Warn("queue full", zap.Uint32("qp_id", qpID), zap.Uint32("depth", queue.SQDepth))
		}
		return 0, claudefserrs.ErrQueueFull
	}

	if op == OpAtomicWrite && !m.cfg.AtomicWrites {
		if m.log != nil {
			m.log.Warn("atomic writes attempted but disabled")
		}
		return 0, claudefserrs.ErrAtomicWritesDisabled
	}

	cmdID := m.nextCommandID
	m.nextCommandID++

	m.submissions[cmdID] = SubmissionEntry{
		CommandID:   cmdID,
		CoreID:      coreID,
		OpType:      op,
		Namespace:   namespace,
		LBAStart:    lbaStart,
		LBACount:    lbaCount,
		DataLen:     dataLen,
		SubmittedAt: timestamp,
	}
	queue.PendingSubmissions++
	m.stats.TotalSubmissions++

	switch op {
	case OpRead:
		m.stats.Reads++
	case OpWrite:
		m.stats.Writes++
	case OpFlush:
		m.stats.Flushes++
	case OpAtomicWrite:
		m.stats.AtomicWrites++
	}

	if m.log != nil {
		m.log.Debug("submitted command", zap.Uint64("command_id", cmdID), zap.Uint32("qp_id", qpID))
	}
	return cmdID, nil
}

// Complete resolves commandID with status at timestamp, updating the
// owning queue pair's pending count and the manager's cumulative latency
// stats.
func (m *Manager) Complete(commandID uint64, status CompletionStatus, errorCode uint16, timestamp uint64) (CompletionEntry, error) {
	defer mon.Task()(nil)(nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	submission, ok := m.submissions[commandID]
	if !ok {
		return CompletionEntry{}, claudefserrs.ErrCommandNotFound
	}
	delete(m.submissions, commandID)

	var latencyNs uint64
	if timestamp > submission.SubmittedAt {
		latencyNs = timestamp - submission.SubmittedAt
	}

	for _, queue := range m.queuePairs {
		if queue.CoreID == submission.CoreID {
			if queue.PendingSubmissions > 0 {
				queue.PendingSubmissions--
			}
			queue.CompletedCount++
			if status != StatusSuccess {
				queue.ErrorCount++
				m.stats.TotalErrors++
			}
			break
		}
	}

	entry := CompletionEntry{
		CommandID:   commandID,
		Status:      status,
		ErrorCode:   errorCode,
		CompletedAt: timestamp,
		LatencyNs:   latencyNs,
	}
	m.completions = append(m.completions, entry)
	m.stats.TotalCompletions++

	if latencyNs > m.stats.MaxLatencyNs {
		m.stats.MaxLatencyNs = latencyNs
	}
	if m.stats.TotalCompletions > 0 {
		sum := m.stats.AvgLatencyNs*(m.stats.TotalCompletions-1) + latencyNs
		m.stats.AvgLatencyNs = sum / m.stats.TotalCompletions
	}

	if m.log != nil {
		m.log.Debug("completed command", zap.Uint64("command_id", commandID), zap.Uint64("latency_ns", latencyNs))
	}
	return entry, nil
}

// DrainQueue transitions qpID to Draining: no new submissions should be
// accepted, but in-flight commands still complete.
func (m *Manager) DrainQueue(qpID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.queuePairs[qpID]
	if !ok {
		return claudefserrs.ErrQueueNotFound
	}
	queue.State = StateDraining
	if m.log != nil {
		m.log.Info("queue draining", zap.Uint32("qp_id", qpID))
	}
	return nil
}

// ResetQueue transitions qpID back to Active.
func (m *Manager) ResetQueue(qpID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.queuePairs[qpID]
	if !ok {
		return claudefserrs.ErrQueueNotFound
	}
	queue.State = StateActive
	if m.log != nil {
		m.log.Info("queue reset to active", zap.Uint32("qp_id", qpID))
	}
	return nil
}

// PendingCount returns qpID's current pending submission count, or 0 if
// qpID is unknown.
func (m *Manager) PendingCount(qpID uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queuePairs[qpID]
	if !ok {
		return 0
	}
	return q.PendingSubmissions
}

// IsQueueFull reports whether qpID's submission queue is at depth.
func (m *Manager) IsQueueFull(qpID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queuePairs[qpID]
	if !ok {
		return false
	}
	return q.PendingSubmissions >= q.SQDepth
}

// SupportsAtomicWrites reports whether the pool accepts atomic writes.
func (m *Manager) SupportsAtomicWrites() bool {
	return m.cfg.AtomicWrites
}

// QueuePairCount returns the number of queue pairs currently registered.
func (m *Manager) QueuePairCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queuePairs)
}

// ActiveQueuePairs returns the IDs of all queue pairs currently Active.
func (m *Manager) ActiveQueuePairs() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, 0, len(m.queuePairs))
	for id, q := range m.queuePairs {
		if q.State == StateActive {
			out = append(out, id)
		}
	}
	return out
}

// Stats returns a snapshot of the manager's cumulative statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	for _, q := range m.queuePairs {
		if q.State == StateActive {
			s.QueuePairsActive++
		}
	}
	return s
}
