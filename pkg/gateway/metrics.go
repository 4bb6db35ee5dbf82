// Package gateway implements the multi-protocol front-end surface of
// spec §5 (C13): per-protocol/op metrics, S3 bucket versioning,
// cross-region replication rules, and SMB multichannel session
// management.
package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Protocol identifies which front-end protocol an operation came in on.
type Protocol int

const (
	ProtoNFS3 Protocol = iota
	ProtoNFS4
	ProtoPNFS
	ProtoS3
	ProtoSMB3
)

func (p Protocol) String() string {
	switch p {
	case ProtoNFS3:
		return "nfs3"
	case ProtoNFS4:
		return "nfs4"
	case ProtoPNFS:
		return "pnfs"
	case ProtoS3:
		return "s3"
	case ProtoSMB3:
		return "smb3"
	default:
		return "unknown"
	}
}

// latencyBuckets mirrors the retained bucket boundaries (microseconds).
var latencyBuckets = []uint64{100, 500, 1000, 5000, 10000, 50000, 100000, ^uint64(0)}

// LatencyHistogram tracks a bucketed latency distribution and derives
// percentiles from cumulative bucket counts (universal invariant:
// p50 <= p99 <= p999).
type LatencyHistogram struct {
	counts [8]uint64
	sumUs  uint64
	count  uint64
}

// Observe records one latency sample in microseconds.
func (h *LatencyHistogram) Observe(latencyUs uint64) {
	h.count++
	h.sumUs += latencyUs
	for i, bound := range latencyBuckets {
		if latencyUs <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *LatencyHistogram) percentile(p float64) uint64 {
	if h.count == 0 {
		return 0
	}
	target := uint64(float64(h.count)*p + 0.9999999)
	var cumulative uint64
	for i, c := range h.counts {
		cumulative += c
		if cumulative >= target {
			return latencyBuckets[i]
		}
	}
	return latencyBuckets[len(latencyBuckets)-1]
}

// P50 returns the 50th-percentile latency in microseconds.
func (h *LatencyHistogram) P50() uint64 { return h.percentile(0.5) }

// P99 returns the 99th-percentile latency in microseconds.
func (h *LatencyHistogram) P99() uint64 { return h.percentile(0.99) }

// P999 returns the 99.9th-percentile latency in microseconds.
func (h *LatencyHistogram) P999() uint64 { return h.percentile(0.999) }

// Mean returns the mean observed latency in microseconds.
func (h *LatencyHistogram) Mean() uint64 {
	if h.count == 0 {
		return 0
	}
	return h.sumUs / h.count
}

// Reset clears all observations.
func (h *LatencyHistogram) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.sumUs = 0
	h.count = 0
}

// OperationMetrics tracks one (protocol, operation) pair's request
// counts, byte totals, and latency distribution.
type OperationMetrics struct {
	TotalRequests uint64
	SuccessCount  uint64
	ErrorCount    uint64
	BytesRead     uint64
	BytesWritten  uint64
	Latency       LatencyHistogram
}

// RecordSuccess accumulates a successful operation's counters.
func (m *OperationMetrics) RecordSuccess(latencyUs, bytesRead, bytesWritten uint64) {
	m.TotalRequests++
	m.SuccessCount++
	m.BytesRead += bytesRead
	m.BytesWritten += bytesWritten
	m.Latency.Observe(latencyUs)
}

// RecordError accumulates a failed operation's counters.
func (m *OperationMetrics) RecordError(latencyUs uint64) {
	m.TotalRequests++
	m.ErrorCount++
	m.Latency.Observe(latencyUs)
}

// ErrorRate returns errors / total, or 0 if no requests were recorded.
func (m *OperationMetrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.TotalRequests)
}

type opKey struct {
	protocol Protocol
	op       string
}

// Metrics is the gateway's request-metrics registry, exported to
// Prometheus as a custom collector (spec §5 ambient metrics surface).
type Metrics struct {
	log *zap.Logger

	mu                sync.Mutex
	ops               map[opKey]*OperationMetrics
	activeConnections map[Protocol]uint64
	circuitOpen       map[string]bool
	backendErrors     uint64
	startedAt         time.Time
	versioning        map[string]*VersioningStats

	requestsDesc *prometheus.Desc
	errorsDesc   *prometheus.Desc
	latencyDesc  *prometheus.Desc
}

// NewMetrics returns a Metrics registry. startedAt fixes the uptime
// baseline since Date.now-style wall-clock reads are unavailable at
// construction time in some callers (e.g. workflow/test harnesses).
func NewMetrics(log *zap.Logger, startedAt time.Time) *Metrics {
	return &Metrics{
		log:               log,
		ops:               make(map[opKey]*OperationMetrics),
		activeConnections: make(map[Protocol]uint64),
		circuitOpen:       make(map[string]bool),
		startedAt:         startedAt,
		versioning:        make(map[string]*VersioningStats),
		requestsDesc: prometheus.NewDesc("gateway_requests_total",
			"Total gateway requests by protocol, op, and result.",
			[]string{"protocol", "op", "result"}, nil),
		errorsDesc: prometheus.NewDesc("gateway_backend_errors_total",
			"Total backend errors across all connections.", nil, nil),
		latencyDesc: prometheus.NewDesc("gateway_latency_p99_microseconds",
			"p99 latency by protocol and op, in microseconds.",
			[]string{"protocol", "op"}, nil),
	}
}

func (m *Metrics) entryLocked(protocol Protocol, op string) *OperationMetrics {
	key := opKey{protocol, op}
	entry, ok := m.ops[key]
	if !ok {
		entry = &OperationMetrics{}
		m.ops[key] = entry
	}
	return entry
}

// RecordOp records one operation's outcome.
func (m *Metrics) RecordOp(protocol Protocol, op string, latencyUs, bytesRead, bytesWritten uint64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entryLocked(protocol, op)
	if success {
		entry.RecordSuccess(latencyUs, bytesRead, bytesWritten)
	} else {
		entry.RecordError(latencyUs)
		m.backendErrors++
	}
}

// VersioningStats tracks how many of a bucket's PUTs landed a real
// VersionID versus the null sentinel, per S3 object-versioning
// semantics.
type VersioningStats struct {
	VersionedPuts   uint64
	UnversionedPuts uint64
}

// RecordVersionedPut accounts for one S3 PUT to bucket that resolved to
// versionID under the bucket's current VersioningState.
func (m *Metrics) RecordVersionedPut(bucket string, versionID VersionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.versioning[bucket]
	if !ok {
		stats = &VersioningStats{}
		m.versioning[bucket] = stats
	}
	if versionID.IsNull() {
		stats.UnversionedPuts++
	} else {
		stats.VersionedPuts++
	}
}

// VersioningStats returns bucket's accumulated versioned/unversioned PUT
// counts.
func (m *Metrics) VersioningStats(bucket string) VersioningStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats, ok := m.versioning[bucket]; ok {
		return *stats
	}
	return VersioningStats{}
}

// GetOpMetrics returns a copy of (protocol, op)'s metrics, if recorded.
func (m *Metrics) GetOpMetrics(protocol Protocol, op string) (OperationMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ops[opKey{protocol, op}]
	if !ok {
		return OperationMetrics{}, false
	}
	return *entry, true
}

// TotalRequests sums requests across every tracked (protocol, op) pair.
func (m *Metrics) TotalRequests() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, e := range m.ops {
		total += e.TotalRequests
	}
	return total
}

// TotalErrors sums errors across every tracked (protocol, op) pair.
func (m *Metrics) TotalErrors() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, e := range m.ops {
		total += e.ErrorCount
	}
	return total
}

// OverallErrorRate returns TotalErrors / TotalRequests, or 0 if empty.
func (m *Metrics) OverallErrorRate() float64 {
	total := m.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(m.TotalErrors()) / float64(total)
}

// Uptime returns the duration since the registry was created, as of now.
func (m *Metrics) Uptime(now time.Time) time.Duration {
	return now.Sub(m.startedAt)
}

// SetActiveConnections records protocol's current connection count.
func (m *Metrics) SetActiveConnections(protocol Protocol, count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeConnections[protocol] = count
}

// SetCircuitBreaker records backend's circuit-breaker open/closed state.
func (m *Metrics) SetCircuitBreaker(backend string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitOpen[backend] = open
}

// Reset clears all recorded metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = make(map[opKey]*OperationMetrics)
	m.activeConnections = make(map[Protocol]uint64)
	m.circuitOpen = make(map[string]bool)
	m.backendErrors = 0
	m.versioning = make(map[string]*VersioningStats)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.requestsDesc
	ch <- m.errorsDesc
	ch <- m.latencyDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.ops {
		ch <- prometheus.MustNewConstMetric(m.requestsDesc, prometheus.CounterValue,
			float64(entry.SuccessCount), key.protocol.String(), key.op, "success")
		ch <- prometheus.MustNewConstMetric(m.requestsDesc, prometheus.CounterValue,
			float64(entry.ErrorCount), key.protocol.String(), key.op, "error")
		ch <- prometheus.MustNewConstMetric(m.latencyDesc, prometheus.GaugeValue,
			float64(entry.Latency.P99()), key.protocol.String(), key.op)
	}
	ch <- prometheus.MustNewConstMetric(m.errorsDesc, prometheus.CounterValue, float64(m.backendErrors))
}
