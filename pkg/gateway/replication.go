package gateway

import (
	"sort"
	"strings"
	"sync"
)

// ReplicationStatus is an object's cross-region replication status.
type ReplicationStatus int

const (
	ReplicationPending ReplicationStatus = iota
	ReplicationCompleted
	ReplicationFailed
	ReplicationIsReplica
	ReplicationNotApplicable
)

// ReplicationFilter restricts which objects a rule applies to.
type ReplicationFilter struct {
	Prefix string
	Tags   map[string]string
}

// ReplicationDestination names the target of a replication rule.
type ReplicationDestination struct {
	Bucket               string
	Region               string
	StorageClass         string
	ReplicaModifications bool
}

// ReplicationRule is a single prioritized rule within a bucket's
// replication configuration.
type ReplicationRule struct {
	ID                      string
	Priority                uint32
	Enabled                 bool
	Filter                  ReplicationFilter
	Destination             ReplicationDestination
	DeleteMarkerReplication bool
}

// Matches reports whether key/tags satisfy rule's filter.
func (r ReplicationRule) Matches(key string, tags map[string]string) bool {
	if !r.Enabled {
		return false
	}
	if r.Filter.Prefix != "" && !strings.HasPrefix(key, r.Filter.Prefix) {
		return false
	}
	for k, v := range r.Filter.Tags {
		if tags[k] != v {
			return false
		}
	}
	return true
}

// BucketReplicationConfig is a bucket's full replication configuration.
type BucketReplicationConfig struct {
	Role  string
	Rules []ReplicationRule
}

// MatchingRules returns the rules matching key/tags, highest priority
// first.
func (c BucketReplicationConfig) MatchingRules(key string, tags map[string]string) []ReplicationRule {
	var matching []ReplicationRule
	for _, r := range c.Rules {
		if r.Matches(key, tags) {
			matching = append(matching, r)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority > matching[j].Priority
	})
	return matching
}

// DestinationsFor returns the destinations of every rule matching
// key/tags, in priority order.
func (c BucketReplicationConfig) DestinationsFor(key string, tags map[string]string) []ReplicationDestination {
	matching := c.MatchingRules(key, tags)
	out := make([]ReplicationDestination, len(matching))
	for i, r := range matching {
		out[i] = r.Destination
	}
	return out
}

// ObjectReplicationEntry tracks one object's replication to one
// destination.
type ObjectReplicationEntry struct {
	ObjectKey  string
	RuleID     string
	DestBucket string
	Status     ReplicationStatus
	Retries    uint32
}

func (e ObjectReplicationEntry) identity() [3]string {
	return [3]string{e.ObjectKey, e.RuleID, e.DestBucket}
}

// ReplicationQueue tracks pending and retryable replication work.
type ReplicationQueue struct {
	mu       sync.Mutex
	maxRetry uint32
	entries  []ObjectReplicationEntry
}

// NewReplicationQueue returns an empty queue bounding retries to maxRetry.
func NewReplicationQueue(maxRetry uint32) *ReplicationQueue {
	return &ReplicationQueue{maxRetry: maxRetry}
}

// Enqueue adds entry to the queue.
func (q *ReplicationQueue) Enqueue(entry ObjectReplicationEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
}

func (q *ReplicationQueue) findLocked(objectKey, ruleID, destBucket string) int {
	for i, e := range q.entries {
		if e.identity() == (ObjectReplicationEntry{ObjectKey: objectKey, RuleID: ruleID, DestBucket: destBucket}).identity() {
			return i
		}
	}
	return -1
}

// MarkCompleted sets the matching entry's status to Completed.
func (q *ReplicationQueue) MarkCompleted(objectKey, ruleID, destBucket string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.findLocked(objectKey, ruleID, destBucket); i != -1 {
		q.entries[i].Status = ReplicationCompleted
	}
}

// MarkFailed sets the matching entry's status to Failed and increments
// its retry count.
func (q *ReplicationQueue) MarkFailed(objectKey, ruleID, destBucket string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.findLocked(objectKey, ruleID, destBucket); i != -1 {
		q.entries[i].Status = ReplicationFailed
		q.entries[i].Retries++
	}
}

// PendingCount returns the number of entries in ReplicationPending.
func (q *ReplicationQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, e := range q.entries {
		if e.Status == ReplicationPending {
			count++
		}
	}
	return count
}

// FailedCount returns the number of entries in ReplicationFailed.
func (q *ReplicationQueue) FailedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, e := range q.entries {
		if e.Status == ReplicationFailed {
			count++
		}
	}
	return count
}

// GetRetryable returns every Failed entry still under maxRetry.
func (q *ReplicationQueue) GetRetryable() []ObjectReplicationEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []ObjectReplicationEntry
	for _, e := range q.entries {
		if e.Status == ReplicationFailed && e.Retries < q.maxRetry {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes the matching entry, reporting whether it was present.
func (q *ReplicationQueue) Remove(objectKey, ruleID, destBucket string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.findLocked(objectKey, ruleID, destBucket)
	if i == -1 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// Len returns the total number of tracked entries.
func (q *ReplicationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
