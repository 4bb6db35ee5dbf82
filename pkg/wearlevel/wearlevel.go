// Package wearlevel implements the zone write/erase wear tracking and
// placement advice of spec §4.6 (C7).
package wearlevel

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dirkpetersen/claudefs/internal/ccmetric"
)

// WritePattern classifies the access pattern a write advice call was made
// for.
type WritePattern int

const (
	Sequential WritePattern = iota
	Random
	Mixed
	Append
)

// Zone tracks one erasure-unit's wear state.
type Zone struct {
	ID            uint32
	WearPct       float64
	WriteCount    uint64
	EraseCount    uint64
	LastWrittenAt uint64
	IsHot         bool
}

// Config bounds the wear engine's thresholds.
type Config struct {
	HotThresholdPct       float64
	ColdTargetPct         float64
	MaxWriteAmplification float64
}

// DefaultConfig matches the Rust source's Default impl.
func DefaultConfig() Config {
	return Config{HotThresholdPct: 80.0, ColdTargetPct: 20.0, MaxWriteAmplification: 3.0}
}

// AlertType enumerates wear-related alert kinds.
type AlertType int

const (
	ZoneHot AlertType = iota
	HighWriteAmplification
	EndOfLifeApproaching
	WearImbalance
)

func (a AlertType) String() string {
	switch a {
	case ZoneHot:
		return "zone-hot"
	case HighWriteAmplification:
		return "high-write-amplification"
	case EndOfLifeApproaching:
		return "end-of-life-approaching"
	case WearImbalance:
		return "wear-imbalance"
	default:
		return "unknown"
	}
}

// Alert is a wear-related alert; ZoneID is 0 for global alerts.
type Alert struct {
	ZoneID        uint32
	Type          AlertType
	WearPct       float64
	Message       string
	TimestampSecs uint64
}

// PlacementAdvice is the output of GetPlacementAdvice.
type PlacementAdvice struct {
	PreferredZone *uint32
	AvoidZones    []uint32
	Pattern       WritePattern
	Reason        string
}

// Stats summarizes the engine's zone population.
type Stats struct {
	TotalZones          int
	HotZones            int
	ColdZones           int
	AvgWearPct          float64
	MaxWearPct          float64
	MinWearPct          float64
	WriteAmplification  float64
	AlertsCount         int
}

// Engine tracks all zones and emits wear alerts.
type Engine struct {
	log *zap.Logger
	cfg Config

	mu          sync.Mutex
	zones       map[uint32]*Zone
	alerts      []Alert
	totalWrites ccmetric.Counter
	totalErases ccmetric.Counter
	waf         float64
}

// New returns an Engine configured per cfg.
func New(log *zap.Logger, cfg Config) *Engine {
	return &Engine{log: log, cfg: cfg, zones: make(map[uint32]*Zone), waf: 1.0}
}

// RegisterZone adds zoneID with zero wear.
func (e *Engine) RegisterZone(zoneID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zones[zoneID] = &Zone{ID: zoneID}
}

// RecordWrite records bytes written to zoneID at timestampSecs, emitting
// a ZoneHot alert on the transition into hot state (at most once per
// crossing, per spec §4.6).
func (e *Engine) RecordWrite(zoneID uint32, bytes uint64, timestampSecs uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	zone, ok := e.zones[zoneID]
	if !ok {
		return false
	}

	zone.WriteCount++
	zone.LastWrittenAt = timestampSecs

	wearIncrementGB := float64(bytes) / (1024 * 1024 * 1024)
	wearPerWrite := wearIncrementGB / 100.0 * 100.0 // percent of an assumed 100GB max per zone
	zone.WearPct = min(zone.WearPct+wearPerWrite, 100.0)

	if zone.WearPct > e.cfg.HotThresholdPct && !zone.IsHot {
		zone.IsHot = true
		alert := Alert{
			ZoneID:        zoneID,
			Type:          ZoneHot,
			WearPct:       zone.WearPct,
			Message:       "zone wear exceeds hot threshold",
			TimestampSecs: timestampSecs,
		}
		e.alerts = append(e.alerts, alert)
		if e.log != nil {
			e.log.Warn("zone exceeded hot threshold",
				zap.Uint32("zone_id", zoneID),
				zap.Float64("wear_pct", zone.WearPct))
		}
	}

	e.totalWrites.Add(bytes)
	e.updateGlobalWearLocked(timestampSecs)
	return true
}

// RecordErase records an erase on zoneID at timestampSecs.
func (e *Engine) RecordErase(zoneID uint32, timestampSecs uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	zone, ok := e.zones[zoneID]
	if !ok {
		return false
	}

	zone.EraseCount++
	zone.WearPct = min(zone.WearPct+0.1, 100.0)
	e.totalErases.Inc()
	return true
}

// GetPlacementAdvice recommends a zone for a new write of the given size
// and pattern, preferring the coldest zone under ColdTargetPct and
// avoiding any hot zone.
func (e *Engine) GetPlacementAdvice(bytes uint64, pattern WritePattern) PlacementAdvice {
	e.mu.Lock()
	defer e.mu.Unlock()

	var cold []*Zone
	var hot []*Zone
	for _, z := range e.zones {
		if z.WearPct < e.cfg.ColdTargetPct {
			cold = append(cold, z)
		}
		if z.IsHot || z.WearPct > e.cfg.HotThresholdPct {
			hot = append(hot, z)
		}
	}

	var preferred *uint32
	if len(cold) > 0 {
		sort.Slice(cold, func(i, j int) bool { return cold[i].WearPct < cold[j].WearPct })
		id := cold[0].ID
		preferred = &id
	}

	avoid := make([]uint32, 0, len(hot))
	for _, z := range hot {
		avoid = append(avoid, z.ID)
	}

	var reason string
	switch {
	case preferred != nil && len(avoid) == 0:
		reason = "cold zones available, no hot zones to avoid"
	case preferred != nil:
		reason = "cold zones available, avoiding hot zones"
	case len(avoid) == 0:
		reason = "no cold zones available, using any available zone"
	default:
		reason = "all zones are hot, minimal choice available"
	}

	return PlacementAdvice{PreferredZone: preferred, AvoidZones: avoid, Pattern: pattern, Reason: reason}
}

// CheckWearBalance returns the max-min wear imbalance if it exceeds 30
// percentage points, or nil otherwise.
func (e *Engine) CheckWearBalance() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.zones) == 0 {
		return nil
	}

	maxWear, minWear := 0.0, 100.0
	for _, z := range e.zones {
		if z.WearPct > maxWear {
			maxWear = z.WearPct
		}
		if z.WearPct < minWear {
			minWear = z.WearPct
		}
	}

	imbalance := maxWear - minWear
	if imbalance > 30.0 {
		return &imbalance
	}
	return nil
}

// GetZone returns a copy of zoneID's state.
func (e *Engine) GetZone(zoneID uint32) (Zone, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[zoneID]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// updateGlobalWearLocked recalculates WAF-related alerts; caller holds mu.
func (e *Engine) updateGlobalWearLocked(timestampSecs uint64) {
	if len(e.zones) == 0 {
		return
	}

	var totalWear float64
	for _, z := range e.zones {
		totalWear += z.WearPct
	}
	avgWear := totalWear / float64(len(e.zones))

	waf := 1.0
	totalWrites := e.totalWrites.Load()
	totalErases := e.totalErases.Load()
	if totalWrites > 0 && totalErases > 0 {
		nandWrites := float64(totalErases) * (1024 * 1024 * 1024)
		waf = max(nandWrites/float64(totalWrites), 1.0)
	}
	e.waf = waf

	if waf > e.cfg.MaxWriteAmplification {
		e.alerts = append(e.alerts, Alert{
			Type:          HighWriteAmplification,
			WearPct:       avgWear,
			Message:       "write amplification factor exceeds configured max",
			TimestampSecs: timestampSecs,
		})
	}

	if avgWear > 90.0 {
		e.alerts = append(e.alerts, Alert{
			Type:          EndOfLifeApproaching,
			WearPct:       avgWear,
			Message:       "average wear approaching end of life",
			TimestampSecs: timestampSecs,
		})
	}
}

// Stats returns a summary of the engine's current zone population.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{TotalZones: len(e.zones), WriteAmplification: e.waf, AlertsCount: len(e.alerts)}
	if len(e.zones) == 0 {
		return s
	}

	maxWear, minWear, total := 0.0, 100.0, 0.0
	for _, z := range e.zones {
		total += z.WearPct
		if z.WearPct > maxWear {
			maxWear = z.WearPct
		}
		if z.WearPct < minWear {
			minWear = z.WearPct
		}
		if z.IsHot || z.WearPct > e.cfg.HotThresholdPct {
			s.HotZones++
		}
		if z.WearPct < e.cfg.ColdTargetPct {
			s.ColdZones++
		}
	}
	s.AvgWearPct = total / float64(len(e.zones))
	s.MaxWearPct = maxWear
	s.MinWearPct = minWear
	return s
}

// Alerts returns all alerts recorded so far.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// ClearAlerts discards all recorded alerts.
func (e *Engine) ClearAlerts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
