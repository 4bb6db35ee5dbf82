// Package segment implements the journal-entry packer that builds 2 MiB
// erasure-coding units of spec §4.8 (C9): entries accumulate under a
// single writer lock until the configured target size would be
// exceeded, at which point the packer auto-seals and starts fresh.
package segment

import (
	"hash/crc32"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// DefaultTargetSize is the default segment size (2 MiB, per D1).
const DefaultTargetSize = 2 * 1024 * 1024

// Magic is the segment header's format identifier ("CSEG").
const Magic uint32 = 0x43534547

// Version is the current segment format version.
const Version uint8 = 1

// SizeClass is a block's allocation granularity.
type SizeClass int

const (
	Size4K SizeClass = iota
	Size64K
	Size1M
)

// BlockRef identifies an immutable physical block.
type BlockRef struct {
	DeviceIndex uint32
	ByteOffset  uint64
	Size        SizeClass
}

// PlacementHint carries the write's intended zone affinity.
type PlacementHint int

const (
	HintJournal PlacementHint = iota
	HintHotData
	HintColdData
)

// ChecksumAlgorithm names the checksum function covering a segment's
// data region.
type ChecksumAlgorithm uint8

const (
	Crc32c ChecksumAlgorithm = iota
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum pairs an algorithm with its computed value.
type Checksum struct {
	Algorithm ChecksumAlgorithm
	Value     uint64
}

// Compute returns data's checksum under algo.
func Compute(algo ChecksumAlgorithm, data []byte) Checksum {
	switch algo {
	case Crc32c:
		return Checksum{Algorithm: Crc32c, Value: uint64(crc32.Checksum(data, crc32cTable))}
	default:
		return Checksum{Algorithm: algo}
	}
}

// Verify reports whether data matches sum.
func Verify(sum Checksum, data []byte) bool {
	return Compute(sum.Algorithm, data) == sum
}

// Header is stored at the beginning of each sealed segment.
type Header struct {
	Magic         uint32
	Version       uint8
	SegmentID     uint64
	EntryCount    uint32
	DataBytes     uint64
	Checksum      Checksum
	SealedAtSecs  uint64
	FirstSequence uint64
	LastSequence  uint64
}

// Entry is one packed journal write's directory record within a segment.
type Entry struct {
	Sequence      uint64
	BlockRef      BlockRef
	DataLen       uint32
	DataOffset    uint32
	PlacementHint PlacementHint
}

// Packed is a sealed segment ready for erasure-coded striping.
type Packed struct {
	Header  Header
	Entries []Entry
	Data    []byte
}

// Config bounds the packer's target segment size and checksum choice.
type Config struct {
	TargetSize        int
	ChecksumAlgorithm ChecksumAlgorithm
}

// DefaultConfig returns the 2 MiB / Crc32c default.
func DefaultConfig() Config {
	return Config{TargetSize: DefaultTargetSize, ChecksumAlgorithm: Crc32c}
}

// Stats summarizes the packer's cumulative and current pending state.
type Stats struct {
	SegmentsSealed uint64
	EntriesPacked  uint64
	BytesPacked    uint64
	PendingEntries int
	PendingBytes   int
	NextSegmentID  uint64
}

type pendingEntry struct {
	sequence      uint64
	blockRef      BlockRef
	data          []byte
	placementHint PlacementHint
}

// Packer collects journal entries into sealed segments under a single
// writer lock; per spec §5 it never suspends.
type Packer struct {
	log *zap.Logger
	cfg Config

	mu      sync.Mutex
	pending []pendingEntry
	current []byte
	segID   uint64
	stats   Stats
}

// New returns a Packer configured per cfg, with segment_id starting at 1.
func New(log *zap.Logger, cfg Config) *Packer {
	if log != nil {
		log.Debug("segment packer created",
			zap.Int("target_size", cfg.TargetSize), zap.Uint8("checksum_algorithm", uint8(cfg.ChecksumAlgorithm)))
	}
	return &Packer{log: log, cfg: cfg, segID: 1}
}

// AddEntry appends sequence's data to the current segment. If adding it
// would exceed the configured target size and at least one entry is
// already pending, the current segment is auto-sealed first and
// returned; the incoming entry then starts the next segment. A single
// entry larger than target_size is still admitted on its own (spec
// §4.8's degenerate case).
func (p *Packer) AddEntry(sequence uint64, blockRef BlockRef, data []byte, hint PlacementHint) (*Packed, error) {
	defer mon.Task()(nil)(nil)

	p.mu.Lock()
	defer p.mu.Unlock()

	newSize := len(p.current) + len(data)

	var sealed *Packed
	if newSize > p.cfg.TargetSize && len(p.pending) > 0 {
		sealed = p.sealLocked()
	}

	p.current = append(p.current, data...)
	p.pending = append(p.pending, pendingEntry{sequence: sequence, blockRef: blockRef, data: data, placementHint: hint})
	p.stats.PendingBytes = len(p.current)
	p.stats.PendingEntries = len(p.pending)

	if p.log != nil {
		p.log.Debug("added entry",
			zap.Uint64("sequence", sequence), zap.Int("pending", len(p.pending)), zap.Int("bytes", len(p.current)))
	}

	return sealed, nil
}

// Seal force-seals the current segment even if not full, returning nil
// if there are no pending entries.
func (p *Packer) Seal() *Packed {
	defer mon.Task()(nil)(nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sealLocked()
}

// sealLocked seals the current segment; caller holds p.mu.
func (p *Packer) sealLocked() *Packed {
	if len(p.pending) == 0 {
		return nil
	}

	checksum := Compute(p.cfg.ChecksumAlgorithm, p.current)

	entries := make([]Entry, 0, len(p.pending))
	var offset uint32
	for _, e := range p.pending {
		entries = append(entries, Entry{
			Sequence:      e.sequence,
			BlockRef:      e.blockRef,
			DataLen:       uint32(len(e.data)),
			DataOffset:    offset,
			PlacementHint: e.placementHint,
		})
		offset += uint32(len(e.data))
	}

	firstSeq := p.pending[0].sequence
	lastSeq := p.pending[len(p.pending)-1].sequence

	header := Header{
		Magic:         Magic,
		Version:       Version,
		SegmentID:     p.segID,
		EntryCount:    uint32(len(entries)),
		DataBytes:     uint64(len(p.current)),
		Checksum:      checksum,
		SealedAtSecs:  uint64(time.Now().Unix()),
		FirstSequence: firstSeq,
		LastSequence:  lastSeq,
	}

	segment := &Packed{Header: header, Entries: entries, Data: p.current}

	p.stats.SegmentsSealed++
	p.stats.EntriesPacked += uint64(len(p.pending))
	p.stats.BytesPacked += uint64(len(segment.Data))
	p.stats.NextSegmentID = p.segID + 1

	if p.log != nil {
		p.log.Debug("sealed segment",
			zap.Uint64("segment_id", p.segID), zap.Int("entries", len(entries)), zap.Int("bytes", len(segment.Data)))
	}

	p.segID++
	p.pending = nil
	p.current = nil
	p.stats.PendingEntries = 0
	p.stats.PendingBytes = 0

	return segment
}

// PendingBytes returns the current segment's accumulated byte count.
func (p *Packer) PendingBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.current)
}

// PendingCount returns the current segment's accumulated entry count.
func (p *Packer) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats returns a snapshot of the packer's statistics.
func (p *Packer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.PendingEntries = len(p.pending)
	s.PendingBytes = len(p.current)
	s.NextSegmentID = p.segID
	return s
}

