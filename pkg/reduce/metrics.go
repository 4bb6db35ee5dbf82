// Package reduce implements the lock-free reduction-pipeline counters of
// spec §2 (C4) and exposes them as Prometheus collectors per spec §6's
// `claudefs_reduce_*` exposition.
package reduce

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirkpetersen/claudefs/internal/ccmetric"
)

// Metrics is a thread-safe set of lock-free counters for the reduction
// pipeline (dedup, compression, encryption, GC).
type Metrics struct {
	chunksProcessed  ccmetric.Counter
	bytesIn          ccmetric.Counter
	bytesOut         ccmetric.Counter
	dedupHits        ccmetric.Counter
	dedupMisses      ccmetric.Counter
	compressBytesIn  ccmetric.Counter
	compressBytesOut ccmetric.Counter
	encryptOps       ccmetric.Counter
	gcCycles         ccmetric.Counter
	gcBytesFreed     ccmetric.Counter
	keyRotations     ccmetric.Counter
}

// New returns a Metrics with all counters zeroed.
func New() *Metrics {
	return &Metrics{}
}

// RecordChunk records one chunk passing through the pipeline.
func (m *Metrics) RecordChunk(bytesIn, bytesOut uint64) {
	m.chunksProcessed.Add(1)
	m.bytesIn.Add(bytesIn)
	m.bytesOut.Add(bytesOut)
}

// RecordDedupHit records a deduplication cache hit.
func (m *Metrics) RecordDedupHit() { m.dedupHits.Add(1) }

// RecordDedupMiss records a deduplication cache miss.
func (m *Metrics) RecordDedupMiss() { m.dedupMisses.Add(1) }

// RecordCompress records bytes entering and leaving the compressor.
func (m *Metrics) RecordCompress(bytesIn, bytesOut uint64) {
	m.compressBytesIn.Add(bytesIn)
	m.compressBytesOut.Add(bytesOut)
}

// RecordEncrypt records one encryption operation.
func (m *Metrics) RecordEncrypt() { m.encryptOps.Add(1) }

// RecordGCCycle records a completed garbage-collection cycle and the
// bytes it freed.
func (m *Metrics) RecordGCCycle(bytesFreed uint64) {
	m.gcCycles.Add(1)
	m.gcBytesFreed.Add(bytesFreed)
}

// RecordKeyRotation records an encryption key rotation event.
func (m *Metrics) RecordKeyRotation() { m.keyRotations.Add(1) }

// DedupRatio returns hits / (hits + misses), or 0 if there have been no
// dedup attempts.
func (m *Metrics) DedupRatio() float64 {
	hits := m.dedupHits.Load()
	misses := m.dedupMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// CompressionRatio returns compress_bytes_in / compress_bytes_out, or 0
// if nothing has been compressed. A ratio > 1 means data shrank.
func (m *Metrics) CompressionRatio() float64 {
	out := m.compressBytesOut.Load()
	if out == 0 {
		return 0
	}
	return float64(m.compressBytesIn.Load()) / float64(out)
}

// OverallReductionRatio returns bytes_in / bytes_out across the whole
// pipeline (dedup + compression combined), or 0 if bytes_out is 0.
func (m *Metrics) OverallReductionRatio() float64 {
	out := m.bytesOut.Load()
	if out == 0 {
		return 0
	}
	return float64(m.bytesIn.Load()) / float64(out)
}

// Snapshot is a point-in-time copy of all counters, for tests and the
// SLA/reporting boundary.
type Snapshot struct {
	ChunksProcessed  uint64
	BytesIn          uint64
	BytesOut         uint64
	DedupHits        uint64
	DedupMisses      uint64
	CompressBytesIn  uint64
	CompressBytesOut uint64
	EncryptOps       uint64
	GCCycles         uint64
	GCBytesFreed     uint64
	KeyRotations     uint64
}

// Snapshot returns a consistent-enough (not atomically joint, each field
// individually atomic) copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ChunksProcessed:  m.chunksProcessed.Load(),
		BytesIn:          m.bytesIn.Load(),
		BytesOut:         m.bytesOut.Load(),
		DedupHits:        m.dedupHits.Load(),
		DedupMisses:      m.dedupMisses.Load(),
		CompressBytesIn:  m.compressBytesIn.Load(),
		CompressBytesOut: m.compressBytesOut.Load(),
		EncryptOps:       m.encryptOps.Load(),
		GCCycles:         m.gcCycles.Load(),
		GCBytesFreed:     m.gcBytesFreed.Load(),
		KeyRotations:     m.keyRotations.Load(),
	}
}

// Collector adapts Metrics to prometheus.Collector, exposing the
// `claudefs_reduce_*_total` counters plus the three ratio gauges named in
// spec §6.
type Collector struct {
	m *Metrics

	chunksProcessed  *prometheus.Desc
	bytesIn          *prometheus.Desc
	bytesOut         *prometheus.Desc
	dedupHits        *prometheus.Desc
	dedupMisses      *prometheus.Desc
	compressBytesIn  *prometheus.Desc
	compressBytesOut *prometheus.Desc
	encryptOps       *prometheus.Desc
	gcCycles         *prometheus.Desc
	gcBytesFreed     *prometheus.Desc
	keyRotations     *prometheus.Desc
	dedupRatio       *prometheus.Desc
	compressionRatio *prometheus.Desc
	overallRatio     *prometheus.Desc
}

// NewCollector wraps m as a prometheus.Collector.
func NewCollector(m *Metrics) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("claudefs_reduce_"+name, help, nil, nil)
	}
	return &Collector{
		m:                m,
		chunksProcessed:  desc("chunks_processed_total", "Total chunks processed"),
		bytesIn:          desc("bytes_in_total", "Total raw bytes entering the pipeline"),
		bytesOut:         desc("bytes_out_total", "Total bytes after reduction"),
		dedupHits:        desc("dedup_hits_total", "Total deduplication hits"),
		dedupMisses:      desc("dedup_misses_total", "Total deduplication misses"),
		compressBytesIn:  desc("compress_bytes_in_total", "Total bytes sent to the compressor"),
		compressBytesOut: desc("compress_bytes_out_total", "Total bytes after compression"),
		encryptOps:       desc("encrypt_ops_total", "Total encryption operations"),
		gcCycles:         desc("gc_cycles_total", "Total garbage collection cycles"),
		gcBytesFreed:     desc("gc_bytes_freed_total", "Total bytes freed by garbage collection"),
		keyRotations:     desc("key_rotations_total", "Total encryption key rotations"),
		dedupRatio:       prometheus.NewDesc("claudefs_reduce_dedup_ratio", "Dedup hit ratio", nil, nil),
		compressionRatio: prometheus.NewDesc("claudefs_reduce_compression_ratio", "Compression ratio", nil, nil),
		overallRatio:     prometheus.NewDesc("claudefs_reduce_overall_reduction_ratio", "Overall reduction ratio", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.chunksProcessed, c.bytesIn, c.bytesOut, c.dedupHits, c.dedupMisses,
		c.compressBytesIn, c.compressBytesOut, c.encryptOps, c.gcCycles,
		c.gcBytesFreed, c.keyRotations, c.dedupRatio, c.compressionRatio, c.overallRatio,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()

	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(c.chunksProcessed, s.ChunksProcessed)
	counter(c.bytesIn, s.BytesIn)
	counter(c.bytesOut, s.BytesOut)
	counter(c.dedupHits, s.DedupHits)
	counter(c.dedupMisses, s.DedupMisses)
	counter(c.compressBytesIn, s.CompressBytesIn)
	counter(c.compressBytesOut, s.CompressBytesOut)
	counter(c.encryptOps, s.EncryptOps)
	counter(c.gcCycles, s.GCCycles)
	counter(c.gcBytesFreed, s.GCBytesFreed)
	counter(c.keyRotations, s.KeyRotations)

	ch <- prometheus.MustNewConstMetric(c.dedupRatio, prometheus.GaugeValue, c.m.DedupRatio())
	ch <- prometheus.MustNewConstMetric(c.compressionRatio, prometheus.GaugeValue, c.m.CompressionRatio())
	ch <- prometheus.MustNewConstMetric(c.overallRatio, prometheus.GaugeValue, c.m.OverallReductionRatio())
}
