// Package multipath implements network path selection, health
// tracking, and failover of spec §4.10 (C11).
package multipath

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PathID identifies one registered network path.
type PathID = uuid.UUID

// State is a path's health lifecycle state (spec §3: Active → Degraded
// → Failed → Active via threshold rules).
type State int

const (
	Active State = iota
	Degraded
	Failed
	Draining
)

func (s State) isUsable() bool {
	return s == Active || s == Degraded
}

// Metrics tracks one path's observed performance.
type Metrics struct {
	LatencyUs     uint64
	MinLatencyUs  uint64
	JitterUs      uint64
	LossRate      float64
	BandwidthBps  uint64
	BytesSent     uint64
	BytesReceived uint64
	Errors        uint64
}

// Info describes one registered path's identity, health, and metrics.
type Info struct {
	ID       PathID
	Name     string
	State    State
	Metrics  Metrics
	Weight   uint32
	Priority uint32
}

// SelectionPolicy chooses how Router.SelectPath picks among usable paths.
type SelectionPolicy int

const (
	RoundRobin SelectionPolicy = iota
	LowestLatency
	WeightedRandom
	Failover
)

// Config bounds the router's selection policy and health thresholds.
type Config struct {
	Policy             SelectionPolicy
	MaxPaths           int
	ProbeIntervalMs    uint64
	FailureThreshold   uint32
	RecoveryThreshold  uint32
	LatencyEWMAAlpha   float64
	MaxLossRate        float64
}

// DefaultConfig matches the Rust source's MultipathConfig::default.
func DefaultConfig() Config {
	return Config{
		Policy:            LowestLatency,
		MaxPaths:          8,
		ProbeIntervalMs:   1000,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
		LatencyEWMAAlpha:  0.2,
		MaxLossRate:       0.05,
	}
}

// Stats summarizes the router's current path population.
type Stats struct {
	TotalPaths     int
	ActivePaths    int
	FailedPaths    int
	TotalRequests  uint64
	FailoverEvents uint64
	Paths          []Info
}

// Router selects among registered network paths under a configurable
// policy, tracking per-path health and triggering failover.
type Router struct {
	log *zap.Logger
	cfg Config

	mu                   sync.Mutex
	paths                []*Info
	roundRobinIdx        int
	totalRequests        uint64
	failoverEvents       uint64
	consecutiveSuccesses map[PathID]uint32
	consecutiveFailures  map[PathID]uint32
}

// New returns a Router configured per cfg.
func New(log *zap.Logger, cfg Config) *Router {
	return &Router{
		log:                  log,
		cfg:                  cfg,
		consecutiveSuccesses: make(map[PathID]uint32),
		consecutiveFailures:  make(map[PathID]uint32),
	}
}

// WithDefaultConfig returns a Router using DefaultConfig().
func WithDefaultConfig(log *zap.Logger) *Router {
	return New(log, DefaultConfig())
}

// AddPath registers a new Active path, returning its generated ID.
func (r *Router) AddPath(name string, weight, priority uint32) PathID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.paths = append(r.paths, &Info{ID: id, Name: name, State: Active, Weight: weight, Priority: priority})
	return id
}

// RemovePath unregisters id, reporting whether it was present.
func (r *Router) RemovePath(id PathID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.paths {
		if p.ID == id {
			r.paths = append(r.paths[:i], r.paths[i+1:]...)
			delete(r.consecutiveSuccesses, id)
			delete(r.consecutiveFailures, id)
			return true
		}
	}
	return false
}

func (r *Router) usablePathsLocked() []*Info {
	out := make([]*Info, 0, len(r.paths))
	for _, p := range r.paths {
		if p.State.isUsable() {
			out = append(out, p)
		}
	}
	return out
}

// SelectPath chooses a path under the router's configured policy,
// returning the zero PathID and false if no path is usable.
func (r *Router) SelectPath() (PathID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++

	usable := r.usablePathsLocked()
	if len(usable) == 0 {
		return PathID{}, false
	}

	switch r.cfg.Policy {
	case RoundRobin:
		return r.selectRoundRobinLocked(usable)
	case LowestLatency:
		return r.selectLowestLatencyLocked(usable)
	case WeightedRandom:
		return r.selectWeightedRandomLocked(usable)
	case Failover:
		return r.selectFailoverLocked(usable)
	default:
		return r.selectLowestLatencyLocked(usable)
	}
}

func (r *Router) selectRoundRobinLocked(usable []*Info) (PathID, bool) {
	n := len(usable)
	idx := r.roundRobinIdx % n
	r.roundRobinIdx = (r.roundRobinIdx + 1) % n
	return usable[idx].ID, true
}

func (r *Router) selectLowestLatencyLocked(usable []*Info) (PathID, bool) {
	var best *Info
	var bestLatency uint64
	for _, p := range usable {
		latency := p.Metrics.LatencyUs
		if latency == 0 {
			latency = ^uint64(0)
		}
		if best == nil || latency < bestLatency || (latency == bestLatency && p.Priority < best.Priority) {
			best = p
			bestLatency = latency
		}
	}
	return best.ID, true
}

func (r *Router) selectWeightedRandomLocked(usable []*Info) (PathID, bool) {
	var totalWeight uint64
	for _, p := range usable {
		totalWeight += uint64(p.Weight)
	}
	if totalWeight == 0 {
		return usable[0].ID, true
	}

	pick := r.totalRequests % totalWeight
	var sum uint64
	for _, p := range usable {
		sum += uint64(p.Weight)
		if pick < sum {
			return p.ID, true
		}
	}
	return usable[len(usable)-1].ID, true
}

func (r *Router) selectFailoverLocked(usable []*Info) (PathID, bool) {
	best := usable[0]
	for _, p := range usable[1:] {
		if p.Priority < best.Priority {
			best = p
		}
	}
	return best.ID, true
}

// RecordSuccess updates id's metrics after a successful transfer of
// bytes taking latencyUs, smoothing latency and jitter via EWMA, and
// advances a Degraded/Failed path toward recovery.
func (r *Router) RecordSuccess(id PathID, latencyUs, bytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.findLocked(id)
	if path == nil {
		return
	}

	alpha := r.cfg.LatencyEWMAAlpha
	if path.Metrics.LatencyUs == 0 {
		path.Metrics.LatencyUs = latencyUs
	} else {
		path.Metrics.LatencyUs = uint64(alpha*float64(latencyUs) + (1-alpha)*float64(path.Metrics.LatencyUs))
	}

	if latencyUs < path.Metrics.MinLatencyUs || path.Metrics.MinLatencyUs == 0 {
		path.Metrics.MinLatencyUs = latencyUs
	}

	var diff uint64
	if path.Metrics.LatencyUs > latencyUs {
		diff = path.Metrics.LatencyUs - latencyUs
	} else {
		diff = latencyUs - path.Metrics.LatencyUs
	}
	path.Metrics.JitterUs = uint64(0.5*float64(diff) + 0.5*float64(path.Metrics.JitterUs))

	path.Metrics.BytesSent += bytes
	delete(r.consecutiveFailures, id)

	if path.Metrics.BytesSent > 0 {
		denom := path.Metrics.BytesSent/1024 + 1
		path.Metrics.LossRate = float64(path.Metrics.Errors) / float64(denom)
	}

	if path.State == Degraded || path.State == Failed {
		r.consecutiveSuccesses[id]++
		if r.consecutiveSuccesses[id] >= r.cfg.RecoveryThreshold {
			path.State = Active
			r.consecutiveSuccesses[id] = 0
			if r.log != nil {
				r.log.Debug("path recovered to active", zap.String("path", path.Name))
			}
		}
	}
}

// RecordFailure updates id's metrics after a failed transfer of bytes,
// transitioning to Failed on FailureThreshold consecutive failures
// (incrementing FailoverEvents exactly once per edge) or to Degraded
// when the loss rate exceeds MaxLossRate while Active.
func (r *Router) RecordFailure(id PathID, bytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.findLocked(id)
	if path == nil {
		return
	}

	path.Metrics.Errors++
	path.Metrics.BytesSent += bytes

	denom := path.Metrics.BytesSent/1024 + 1
	path.Metrics.LossRate = float64(path.Metrics.Errors) / float64(denom)

	r.consecutiveFailures[id]++

	switch {
	case path.State.isUsable() && r.consecutiveFailures[id] >= r.cfg.FailureThreshold:
		path.State = Failed
		r.failoverEvents++
		r.consecutiveFailures[id] = 0
		if r.log != nil {
			r.log.Debug("path marked failed", zap.String("path", path.Name), zap.Uint64("errors", path.Metrics.Errors))
		}
	case path.State == Active && path.Metrics.LossRate > r.cfg.MaxLossRate:
		path.State = Degraded
		if r.log != nil {
			r.log.Debug("path marked degraded", zap.String("path", path.Name), zap.Float64("loss_rate", path.Metrics.LossRate))
		}
	}
}

// MarkFailed forces id directly to Failed, incrementing FailoverEvents.
func (r *Router) MarkFailed(id PathID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path := r.findLocked(id); path != nil {
		path.State = Failed
		r.failoverEvents++
	}
}

// MarkActive forces id directly to Active.
func (r *Router) MarkActive(id PathID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path := r.findLocked(id); path != nil {
		path.State = Active
		delete(r.consecutiveSuccesses, id)
	}
}

func (r *Router) findLocked(id PathID) *Info {
	for _, p := range r.paths {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ActivePaths returns the IDs of every path currently Active.
func (r *Router) ActivePaths() []PathID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PathID, 0, len(r.paths))
	for _, p := range r.paths {
		if p.State == Active {
			out = append(out, p.ID)
		}
	}
	return out
}

// PathInfo returns a copy of id's current state, if registered.
func (r *Router) PathInfo(id PathID) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findLocked(id)
	if p == nil {
		return Info{}, false
	}
	return *p, true
}

// Stats returns a snapshot of the router's current path population.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var activeCount, failedCount int
	paths := make([]Info, len(r.paths))
	for i, p := range r.paths {
		paths[i] = *p
		if p.State == Active {
			activeCount++
		}
		if p.State == Failed {
			failedCount++
		}
	}

	return Stats{
		TotalPaths:     len(r.paths),
		ActivePaths:    activeCount,
		FailedPaths:    failedCount,
		TotalRequests:  r.totalRequests,
		FailoverEvents: r.failoverEvents,
		Paths:          paths,
	}
}
