package replication

import (
	"sync"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/dirkpetersen/claudefs/internal/ccmetric"
	"github.com/dirkpetersen/claudefs/pkg/gateway"
)

var mon = monkit.Package()

// State is the engine's lifecycle state (spec §4.9: Idle → Running →
// Draining → Stopped).
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config bounds the engine's batching behavior.
type Config struct {
	LocalSiteID        uint64
	MaxBatchSize       int
	BatchTimeoutMs     uint64
	CompactBeforeSend  bool
	MaxConcurrentSends int
}

// DefaultConfig matches the Rust source's EngineConfig::default.
func DefaultConfig() Config {
	return Config{
		LocalSiteID:        0,
		MaxBatchSize:       1000,
		BatchTimeoutMs:     100,
		CompactBeforeSend:  true,
		MaxConcurrentSends: 4,
	}
}

// SiteStats tracks one remote site's cumulative replication activity.
type SiteStats struct {
	RemoteSiteID       uint64
	EntriesSent        uint64
	EntriesReceived    uint64
	BatchesSent        uint64
	BatchesReceived    uint64
	ConflictsDetected  uint64
	CurrentLagEntries  uint64
}

// Engine is the central replication engine: it owns the topology, the
// per-site statistics, the WAL cursors, and a conflict detector.
type Engine struct {
	log    *zap.Logger
	cfg    Config
	topo   *Topology
	wal    *WAL
	detect *ConflictDetector

	mu    sync.Mutex
	state State
	stats map[uint64]SiteStats

	totalConflicts ccmetric.Counter
}

// New returns an Engine over topo, starting Idle.
func New(log *zap.Logger, cfg Config, topo *Topology, store *CursorStore) *Engine {
	return &Engine{
		log:    log,
		cfg:    cfg,
		topo:   topo,
		wal:    NewWAL(store),
		detect: NewConflictDetector(cfg.LocalSiteID),
		state:  StateIdle,
		stats:  make(map[uint64]SiteStats),
	}
}

// Start transitions Idle → Running; a no-op from any other state.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		e.state = StateRunning
	}
}

// Stop transitions Running → Draining → Stopped, completing outstanding
// sends cooperatively (spec §5's cancellation contract); from Idle it
// moves straight to Stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.state = StateDraining
	}
	e.state = StateStopped
	if e.log != nil {
		e.log.Info("replication engine stopped")
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddSite registers a remote site in the topology and initializes its
// statistics.
func (e *Engine) AddSite(info SiteInfo) {
	e.topo.UpsertSite(info)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats[info.SiteID] = SiteStats{RemoteSiteID: info.SiteID}
}

// RemoveSite unregisters a remote site from the topology and discards
// its statistics.
func (e *Engine) RemoveSite(siteID uint64) {
	e.topo.RemoveSite(siteID)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stats, siteID)
}

// TopologySnapshot returns every currently registered remote site.
func (e *Engine) TopologySnapshot() []SiteInfo {
	return e.topo.AllSites()
}

// SiteStats returns a snapshot of remoteSiteID's statistics.
func (e *Engine) SiteStats(remoteSiteID uint64) (SiteStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[remoteSiteID]
	return s, ok
}

// AllSiteStats returns a snapshot of every tracked site's statistics.
func (e *Engine) AllSiteStats() []SiteStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SiteStats, 0, len(e.stats))
	for _, s := range e.stats {
		out = append(out, s)
	}
	return out
}

// RecordSend accumulates entries/batches sent to remoteSiteID.
func (e *Engine) RecordSend(remoteSiteID uint64, entries, batches uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stats[remoteSiteID]; ok {
		s.EntriesSent += entries
		s.BatchesSent += batches
		e.stats[remoteSiteID] = s
	}
}

// RecordReceive accumulates entries/batches received from remoteSiteID.
func (e *Engine) RecordReceive(remoteSiteID uint64, entries, batches uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stats[remoteSiteID]; ok {
		s.EntriesReceived += entries
		s.BatchesReceived += batches
		e.stats[remoteSiteID] = s
	}
}

// RecordConflict increments remoteSiteID's conflict counter. The engine
// never fails a write over a conflict; it is surfaced as a stat only.
func (e *Engine) RecordConflict(remoteSiteID uint64) {
	e.totalConflicts.Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stats[remoteSiteID]; ok {
		s.ConflictsDetected++
		e.stats[remoteSiteID] = s
	}
}

// TotalConflictsDetected returns the engine-wide conflict count across
// every remote site, tracked independently of the per-site stats map.
func (e *Engine) TotalConflictsDetected() uint64 {
	return e.totalConflicts.Load()
}

// UpdateLag sets remoteSiteID's current replication lag, in entries.
func (e *Engine) UpdateLag(remoteSiteID, lagEntries uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stats[remoteSiteID]; ok {
		s.CurrentLagEntries = lagEntries
		e.stats[remoteSiteID] = s
	}
}

// Advance moves (site, stream)'s WAL cursor to (seq, lsn, bytes); see
// WAL.Advance for the monotonicity contract.
func (e *Engine) Advance(site, stream, seq, lsn, bytes uint64) error {
	defer mon.Task()(nil)(nil)
	return e.wal.Advance(site, stream, seq, lsn, bytes)
}

// WALSnapshot returns every cursor currently tracked by the engine's WAL.
func (e *Engine) WALSnapshot() []Cursor {
	return e.wal.AllCursors()
}

// Cursor returns the current (site, stream) cursor, if one has been
// advanced.
func (e *Engine) Cursor(site, stream uint64) (Cursor, bool) {
	return e.wal.Cursor(site, stream)
}

// TargetSiteIDs resolves a bucket's replication rules against one object
// key's write, returning the remote sites it must be replicated to.
// Destinations naming a site not currently registered in the topology
// are silently skipped, matching RemoveSite's eventual-consistency
// contract with topology changes.
func (e *Engine) TargetSiteIDs(rules gateway.BucketReplicationConfig, key string, tags map[string]string) []uint64 {
	dests := rules.DestinationsFor(key, tags)
	out := make([]uint64, 0, len(dests))
	for _, d := range dests {
		if site, ok := e.topo.SiteByName(d.Bucket); ok {
			out = append(out, site.SiteID)
		}
	}
	return out
}

// Detector returns the engine's conflict detector for admin reporting.
func (e *Engine) Detector() *ConflictDetector {
	return e.detect
}
