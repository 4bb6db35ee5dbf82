// Package migration implements connection migration for seamless
// request handoff during rolling upgrades or node failures (spec
// §4.11, C12).
package migration

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

var mon = monkit.Package()

// ConnectionID identifies one transport-level connection.
type ConnectionID uint64

// State is a migration's lifecycle state.
type State int

const (
	Idle State = iota
	Preparing
	Migrating
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Migrating:
		return "migrating"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason explains why a migration was initiated.
type Reason int

const (
	NodeDrain Reason = iota
	HealthDegraded
	ConnectionLost
	LoadBalance
	VersionUpgrade
)

// Record tracks one migration operation end to end.
type Record struct {
	ID               uint64
	Source           ConnectionID
	Target           ConnectionID
	Reason           Reason
	State            State
	RequestsMigrated uint64
	RequestsFailed   uint64
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Config bounds the migration manager's concurrency and retry policy.
type Config struct {
	MaxConcurrentMigrations int
	MigrationTimeoutMs      uint64
	RetryFailedRequests     bool
	MaxRetries              uint32
	QuiesceTimeoutMs        uint64
	Enabled                 bool
}

// DefaultConfig matches the Rust source's MigrationConfig::default.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMigrations: 4,
		MigrationTimeoutMs:      10000,
		RetryFailedRequests:     true,
		MaxRetries:              3,
		QuiesceTimeoutMs:        5000,
		Enabled:                 true,
	}
}

// Stats summarizes cumulative migration activity.
type Stats struct {
	TotalMigrations      uint64
	SuccessfulMigrations uint64
	FailedMigrations     uint64
	RequestsMigrated     uint64
	RequestsFailed       uint64
	ActiveMigrations     int
}

// Manager tracks in-flight and historical migrations. At most one
// migration may be active (Preparing or Migrating) per endpoint at a
// time (universal invariant: at most one active migration per
// endpoint).
type Manager struct {
	log *zap.Logger
	cfg Config

	mu           sync.Mutex
	migrations   []*Record
	nextID       uint64
	totalOK      uint64
	totalFailed  uint64
	reqMigrated  uint64
	reqFailed    uint64
}

// New returns a Manager configured per cfg.
func New(log *zap.Logger, cfg Config) *Manager {
	return &Manager{log: log, cfg: cfg, nextID: 1}
}

// WithDefaultConfig returns a Manager using DefaultConfig().
func WithDefaultConfig(log *zap.Logger) *Manager {
	return New(log, DefaultConfig())
}

func (m *Manager) isConnectionMigratingLocked(conn ConnectionID) bool {
	for _, r := range m.migrations {
		if (r.Source == conn || r.Target == conn) && (r.State == Preparing || r.State == Migrating) {
			return true
		}
	}
	return false
}

// StartMigration begins migrating source's in-flight requests to
// target, returning the new migration's ID. It rejects the request
// when migration is disabled, when MaxConcurrentMigrations active
// migrations already exist, or when source or target already takes
// part in an active migration.
func (m *Manager) StartMigration(source, target ConnectionID, reason Reason, now time.Time) (uint64, error) {
	defer mon.Task()(nil)(nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		return 0, claudefserrs.ErrMigrationDisabled
	}

	if m.isConnectionMigratingLocked(source) {
		return 0, claudefserrs.AlreadyMigrating(source.String())
	}
	if m.isConnectionMigratingLocked(target) {
		return 0, claudefserrs.AlreadyMigrating(target.String())
	}

	active := 0
	for _, r := range m.migrations {
		if r.State == Preparing || r.State == Migrating {
			active++
		}
	}
	if active >= m.cfg.MaxConcurrentMigrations {
		return 0, claudefserrs.TooManyConcurrent(m.cfg.MaxConcurrentMigrations)
	}

	id := m.nextID
	m.nextID++

	m.migrations = append(m.migrations, &Record{
		ID:        id,
		Source:    source,
		Target:    target,
		Reason:    reason,
		State:     Preparing,
		StartedAt: now,
	})

	return id, nil
}

// String renders a ConnectionID for logging and error messages.
func (c ConnectionID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func (m *Manager) findLocked(id uint64) *Record {
	for _, r := range m.migrations {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// RecordRequestMigrated increments id's migrated-request counter,
// advancing Preparing to Migrating on first call.
func (m *Manager) RecordRequestMigrated(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.findLocked(id)
	if r == nil {
		return false
	}
	r.RequestsMigrated++
	if r.State == Preparing {
		r.State = Migrating
	}
	m.reqMigrated++
	return true
}

// RecordRequestFailed increments id's failed-request counter.
func (m *Manager) RecordRequestFailed(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.findLocked(id)
	if r == nil {
		return false
	}
	r.RequestsFailed++
	m.reqFailed++
	return true
}

// CompleteMigration marks id Completed. A migration reaches a
// terminal state (Completed or Failed) at most once.
func (m *Manager) CompleteMigration(id uint64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.findLocked(id)
	if r == nil || r.State == Completed || r.State == Failed {
		return false
	}
	r.State = Completed
	r.CompletedAt = now
	m.totalOK++
	if m.log != nil {
		m.log.Info("migration completed", zap.Uint64("migration_id", id))
	}
	return true
}

// FailMigration marks id Failed.
func (m *Manager) FailMigration(id uint64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.findLocked(id)
	if r == nil || r.State == Completed || r.State == Failed {
		return false
	}
	r.State = Failed
	r.CompletedAt = now
	m.totalFailed++
	if m.log != nil {
		m.log.Warn("migration failed", zap.Uint64("migration_id", id))
	}
	return true
}

// GetMigration returns a copy of id's record, if tracked.
func (m *Manager) GetMigration(id uint64) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.findLocked(id)
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// ActiveCount returns the number of migrations currently Preparing or
// Migrating.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	count := 0
	for _, r := range m.migrations {
		if r.State == Preparing || r.State == Migrating {
			count++
		}
	}
	return count
}

// IsMigrating reports whether conn is the source or target of any
// active migration.
func (m *Manager) IsMigrating(conn ConnectionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isConnectionMigratingLocked(conn)
}

// Stats returns a snapshot of cumulative migration statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalMigrations:      uint64(len(m.migrations)),
		SuccessfulMigrations: m.totalOK,
		FailedMigrations:     m.totalFailed,
		RequestsMigrated:     m.reqMigrated,
		RequestsFailed:       m.reqFailed,
		ActiveMigrations:     m.activeCountLocked(),
	}
}
