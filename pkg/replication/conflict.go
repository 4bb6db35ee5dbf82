package replication

import "sync"

// ConflictDetector flags replicated writes whose sequence does not
// advance past the highest already observed on their stream, keyed by
// the local site's identity. The engine records conflicts as statistics
// (RecordConflict) rather than failing the write
// (spec §7: "the replication engine records conflicts as stats rather
// than errors and continues").
type ConflictDetector struct {
	localSiteID uint64

	mu   sync.Mutex
	seen map[uint64]uint64 // stream ID -> highest sequence observed from any remote site
}

// NewConflictDetector returns a detector scoped to localSiteID.
func NewConflictDetector(localSiteID uint64) *ConflictDetector {
	return &ConflictDetector{localSiteID: localSiteID, seen: make(map[uint64]uint64)}
}

// LocalSiteID returns the site this detector is scoped to.
func (d *ConflictDetector) LocalSiteID() uint64 { return d.localSiteID }

// Observe records a remote write at (stream, sequence) and reports a
// conflict when sequence is at or below the highest sequence already
// observed for that stream. The origin site of a write is not tracked,
// and a conflicting sequence does not change the recorded highest.
func (d *ConflictDetector) Observe(stream, sequence uint64) (conflict bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	highest, ok := d.seen[stream]
	if ok && sequence <= highest {
		return true
	}
	d.seen[stream] = sequence
	return false
}
