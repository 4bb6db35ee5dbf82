// Package qos implements the workload-class admission scheduler of spec
// §4.5 (C6): per-class token buckets, priority, and weighted share.
package qos

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/dirkpetersen/claudefs/internal/ccmetric"
	"github.com/dirkpetersen/claudefs/internal/clock"
	"github.com/dirkpetersen/claudefs/pkg/ratelimit"
)

var mon = monkit.Package()

// WorkloadClass is one of five fixed QoS categories (spec §3).
type WorkloadClass int

const (
	RealtimeMeta WorkloadClass = iota
	Interactive
	Replication
	Batch
	Management
)

func (w WorkloadClass) String() string {
	switch w {
	case RealtimeMeta:
		return "realtime-meta"
	case Interactive:
		return "interactive"
	case Replication:
		return "replication"
	case Batch:
		return "batch"
	case Management:
		return "management"
	default:
		return "unknown"
	}
}

// allClasses enumerates every WorkloadClass in priority order.
var allClasses = []WorkloadClass{RealtimeMeta, Interactive, Replication, Batch, Management}

// defaultPriority returns the advisory scheduling priority (0 = highest).
func defaultPriority(w WorkloadClass) uint8 {
	switch w {
	case RealtimeMeta:
		return 0
	case Interactive:
		return 1
	case Replication:
		return 2
	case Batch:
		return 3
	default:
		return 4
	}
}

func defaultWeight(w WorkloadClass) uint32 {
	switch w {
	case RealtimeMeta:
		return 100
	case Interactive:
		return 50
	case Replication:
		return 30
	case Batch:
		return 15
	default:
		return 5
	}
}

func defaultBurstBytes(w WorkloadClass) uint64 {
	switch w {
	case RealtimeMeta:
		return 1 << 20
	case Interactive:
		return 4 << 20
	case Replication:
		return 16 << 20
	case Batch:
		return 64 << 20
	default:
		return 1 << 20
	}
}

// Config is the per-class QoS configuration (spec §3).
type Config struct {
	MaxBandwidthBps      uint64 // 0 = unlimited
	MaxRequestsPerSec    uint64
	Weight               uint32
	BurstBytes           uint64
	Priority             uint8
}

// DefaultConfig returns the Rust source's default_qos_config: all classes
// unlimited by bandwidth/rate, with class-specific weight/burst/priority.
func DefaultConfig() map[WorkloadClass]Config {
	cfg := make(map[WorkloadClass]Config, len(allClasses))
	for _, c := range allClasses {
		cfg[c] = Config{
			MaxBandwidthBps:   0,
			MaxRequestsPerSec: 0,
			Weight:            defaultWeight(c),
			BurstBytes:        defaultBurstBytes(c),
			Priority:          defaultPriority(c),
		}
	}
	return cfg
}

// ClassStats tracks per-class admission statistics.
type ClassStats struct {
	Admitted    uint64
	Rejected    uint64
	TotalBytes  uint64
	TotalWaitMs uint64
}

// AvgWaitMs returns the average admission wait in milliseconds.
func (s ClassStats) AvgWaitMs() uint64 {
	if s.Admitted == 0 {
		return 0
	}
	return s.TotalWaitMs / s.Admitted
}

// classStats is a class's admission tallies, each an independent
// lock-free counter so Admit/TryAdmit/Release never contend on a mutex
// just to bump a count.
type classStats struct {
	admitted    ccmetric.Counter
	rejected    ccmetric.Counter
	totalBytes  ccmetric.Counter
	totalWaitMs ccmetric.Counter
}

func (s *classStats) snapshot() ClassStats {
	return ClassStats{
		Admitted:    s.admitted.Load(),
		Rejected:    s.rejected.Load(),
		TotalBytes:  s.totalBytes.Load(),
		TotalWaitMs: s.totalWaitMs.Load(),
	}
}

type classState struct {
	cfg    Config
	bucket *ratelimit.TokenBucket
	stats  classStats
}

// Permit is an admission credit. Releasing it via Release credits the
// observed wait time and byte count to the class's stats; nothing
// releases a permit automatically.
type Permit struct {
	class     WorkloadClass
	state     *classState
	sizeBytes uint64
	waitStart time.Time
	clock     clock.Source
	released  bool
	mu        sync.Mutex
}

// Class returns the workload class this permit was admitted under.
func (p *Permit) Class() WorkloadClass { return p.class }

// SizeBytes returns the byte size this permit reserved.
func (p *Permit) SizeBytes() uint64 { return p.sizeBytes }

// Release credits the class's stats with the observed wait and byte
// count. Safe to call more than once; only the first call has effect.
func (p *Permit) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true

	waitMs := uint64(p.clock.Now().Sub(p.waitStart).Milliseconds())
	p.state.stats.admitted.Inc()
	p.state.stats.totalBytes.Add(p.sizeBytes)
	p.state.stats.totalWaitMs.Add(waitMs)
}

// Scheduler admits writes per workload class, subject to each class's
// token bucket.
type Scheduler struct {
	log    *zap.Logger
	clock  clock.Source
	states map[WorkloadClass]*classState
}

// New returns a Scheduler configured per cfg.
func New(log *zap.Logger, src clock.Source, cfg map[WorkloadClass]Config) *Scheduler {
	states := make(map[WorkloadClass]*classState, len(cfg))
	for class, c := range cfg {
		rate := float64(c.MaxBandwidthBps)
		if c.MaxBandwidthBps == 0 {
			rate = ratelimit.Unlimited
		}
		cap := float64(c.BurstBytes)
		states[class] = &classState{
			cfg:    c,
			bucket: ratelimit.NewTokenBucket(src, rate, cap),
		}
	}
	return &Scheduler{log: log, clock: src, states: states}
}

// WithDefaultConfig returns a Scheduler using DefaultConfig().
func WithDefaultConfig(log *zap.Logger, src clock.Source) *Scheduler {
	return New(log, src, DefaultConfig())
}

// TryAdmit attempts non-blocking admission of sizeBytes under class.
// Never blocks; on failure it increments the class's rejected counter.
func (s *Scheduler) TryAdmit(class WorkloadClass, sizeBytes uint64) *Permit {
	defer mon.Task()(nil)(nil)

	state, ok := s.states[class]
	if !ok {
		return nil
	}

	if !state.bucket.TryConsume(float64(sizeBytes)) {
		state.stats.rejected.Inc()
		return nil
	}

	return &Permit{
		class:     class,
		state:     state,
		sizeBytes: sizeBytes,
		waitStart: s.clock.Now(),
		clock:     s.clock,
	}
}

// Admit waits until sizeBytes can be admitted under class, or ctx is
// cancelled. Blocks proportional to the token deficit (spec §4.5).
func (s *Scheduler) Admit(ctx context.Context, class WorkloadClass, sizeBytes uint64) (*Permit, error) {
	defer mon.Task()(&ctx)(nil)

	state, ok := s.states[class]
	if !ok {
		return nil, nil
	}

	start := s.clock.Now()
	if err := state.bucket.Acquire(ctx, float64(sizeBytes)); err != nil {
		state.stats.rejected.Inc()
		return nil, err
	}

	return &Permit{
		class:     class,
		state:     state,
		sizeBytes: sizeBytes,
		waitStart: start,
		clock:     s.clock,
	}, nil
}

// ClassStats returns a snapshot of the named class's statistics.
func (s *Scheduler) ClassStats(class WorkloadClass) ClassStats {
	state, ok := s.states[class]
	if !ok {
		return ClassStats{}
	}
	return state.stats.snapshot()
}

// Priority returns the advisory priority of class, consumed by the
// segment packer for scheduling order.
func (s *Scheduler) Priority(class WorkloadClass) uint8 {
	state, ok := s.states[class]
	if !ok {
		return defaultPriority(class)
	}
	return state.cfg.Priority
}

// Weight returns class's relative weight for weighted fair queuing.
func (s *Scheduler) Weight(class WorkloadClass) uint32 {
	state, ok := s.states[class]
	if !ok {
		return defaultWeight(class)
	}
	return state.cfg.Weight
}
