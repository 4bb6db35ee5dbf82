package boundary

import (
	"context"
	"sync"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
	"github.com/dirkpetersen/claudefs/pkg/qos"
)

// NoopFsckChecker reports every device clean without touching disk;
// used where a real scanner hasn't been wired (tests, local dev).
type NoopFsckChecker struct{}

func (NoopFsckChecker) Check(ctx context.Context, deviceID string) (Report, error) {
	return Report{DeviceID: deviceID}, nil
}

// MemoryAuditTrail is an in-process, bounded ring buffer implementing
// AuditTrail.
type MemoryAuditTrail struct {
	mu       sync.Mutex
	capacity int
	events   []Event
}

// NewMemoryAuditTrail returns a ring buffer holding at most capacity events.
func NewMemoryAuditTrail(capacity int) *MemoryAuditTrail {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &MemoryAuditTrail{capacity: capacity}
}

func (a *MemoryAuditTrail) Record(ctx context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	if len(a.events) > a.capacity {
		a.events = a.events[len(a.events)-a.capacity:]
	}
	return nil
}

func (a *MemoryAuditTrail) Capacity() int {
	return a.capacity
}

// Recent returns the n most recent events, newest last.
func (a *MemoryAuditTrail) Recent(n int) []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.events) {
		n = len(a.events)
	}
	out := make([]Event, n)
	copy(out, a.events[len(a.events)-n:])
	return out
}

// MemoryTopology is an in-process TopologyMap backed by a map of
// node ID to NodeInfo.
type MemoryTopology struct {
	mu    sync.Mutex
	nodes map[string]NodeInfo
}

// NewMemoryTopology returns an empty topology map.
func NewMemoryTopology() *MemoryTopology {
	return &MemoryTopology{nodes: make(map[string]NodeInfo)}
}

// UpsertNode inserts or replaces a node entry.
func (m *MemoryTopology) UpsertNode(n NodeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = n
}

// RemoveNode deletes a node entry, reporting whether it was present.
func (m *MemoryTopology) RemoveNode(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; !ok {
		return false
	}
	delete(m.nodes, id)
	return true
}

func (m *MemoryTopology) Sites() []SiteInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, n := range m.nodes {
		counts[n.SiteID]++
	}
	out := make([]SiteInfo, 0, len(counts))
	for id, count := range counts {
		out = append(out, SiteInfo{ID: id, NodeCount: count})
	}
	return out
}

func (m *MemoryTopology) Nodes(siteID string) []NodeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []NodeInfo
	for _, n := range m.nodes {
		if n.SiteID == siteID {
			out = append(out, n)
		}
	}
	return out
}

// NoopWebhookDelivery discards every event; used where no external
// subscriber is configured.
type NoopWebhookDelivery struct{}

func (NoopWebhookDelivery) Deliver(ctx context.Context, ev WebhookEvent) error { return nil }
func (NoopWebhookDelivery) RetryCount(ev WebhookEvent) int                    { return 0 }

// RetryingWebhookDelivery wraps a delivery function with a bounded count
// of consecutive failed attempts, tracked per event kind, matching the
// Rust source's at-least-once delivery model. Each Deliver call makes a
// single attempt; retrying is left to the caller.
type RetryingWebhookDelivery struct {
	mu       sync.Mutex
	attempts map[WebhookEventKind]int
	maxRetry int
	deliver  func(context.Context, WebhookEvent) error
}

// NewRetryingWebhookDelivery wraps deliver, allowing at most maxRetry
// consecutive failed attempts per event kind; once that many have
// failed, Deliver rejects the kind with ErrMaxRetriesExceeded. A
// successful delivery resets the kind's count.
func NewRetryingWebhookDelivery(maxRetry int, deliver func(context.Context, WebhookEvent) error) *RetryingWebhookDelivery {
	return &RetryingWebhookDelivery{attempts: make(map[WebhookEventKind]int), maxRetry: maxRetry, deliver: deliver}
}

func (r *RetryingWebhookDelivery) Deliver(ctx context.Context, ev WebhookEvent) error {
	r.mu.Lock()
	attempt := r.attempts[ev.Kind]
	if attempt >= r.maxRetry {
		r.mu.Unlock()
		return claudefserrs.ErrMaxRetriesExceeded
	}
	r.mu.Unlock()

	err := r.deliver(ctx, ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.attempts[ev.Kind] = attempt + 1
		return err
	}
	delete(r.attempts, ev.Kind)
	return nil
}

func (r *RetryingWebhookDelivery) RetryCount(ev WebhookEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[ev.Kind]
}

// NullSLAReporter returns an empty SLAReport for any window; used
// where no metric source is wired.
type NullSLAReporter struct{}

func (NullSLAReporter) Report(ctx context.Context, window TimeWindow) (SLAReport, error) {
	return SLAReport{Window: window}, nil
}

// ThresholdClassifier maps a Hint to a qos.WorkloadClass using the
// same shape thresholds as fusetune's workload classifier, without
// depending on per-inode state: each call is stateless.
type ThresholdClassifier struct{}

func (ThresholdClassifier) Classify(ctx context.Context, hint Hint) qos.WorkloadClass {
	switch {
	case hint.SequentialRatio > 0.8 && hint.AvgIOSizeKB >= 256:
		return qos.Batch
	case hint.SequentialRatio < 0.3 && hint.AvgIOSizeKB < 16:
		return qos.Interactive
	case hint.OpsPerSecond > 1000:
		return qos.RealtimeMeta
	default:
		return qos.Replication
	}
}
