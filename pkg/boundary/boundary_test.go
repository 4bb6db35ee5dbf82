package boundary_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/boundary"
	"github.com/dirkpetersen/claudefs/pkg/qos"
)

func TestNoopFsckCheckerReturnsCleanReport(t *testing.T) {
	var checker boundary.FsckChecker = boundary.NoopFsckChecker{}
	report, err := checker.Check(context.Background(), "dev0")
	require.NoError(t, err)
	assert.Equal(t, "dev0", report.DeviceID)
	assert.Zero(t, report.ErrorCount())
}

func TestFsckReportErrorCount(t *testing.T) {
	report := boundary.Report{Issues: []boundary.FsckIssue{
		{Kind: boundary.IssueOrphanInode, Severity: boundary.SeverityError},
		{Kind: boundary.IssueLinkCountMismatch, Severity: boundary.SeverityWarning},
	}}
	assert.Equal(t, 1, report.ErrorCount())
}

func TestMemoryAuditTrailRecordAndRecent(t *testing.T) {
	trail := boundary.NewMemoryAuditTrail(2)
	var at boundary.AuditTrail = trail

	require.NoError(t, at.Record(context.Background(), boundary.Event{ID: 1, Kind: boundary.AuditLogin}))
	require.NoError(t, at.Record(context.Background(), boundary.Event{ID: 2, Kind: boundary.AuditLogout}))
	require.NoError(t, at.Record(context.Background(), boundary.Event{ID: 3, Kind: boundary.AuditTokenCreate}))

	assert.Equal(t, 2, at.Capacity())
	recent := at.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].ID)
	assert.Equal(t, uint64(3), recent[1].ID)
}

func TestMemoryTopologySitesAndNodes(t *testing.T) {
	topo := boundary.NewMemoryTopology()
	topo.UpsertNode(boundary.NodeInfo{ID: "n1", SiteID: "site-a", CapacityBytes: 100, UsedBytes: 50})
	topo.UpsertNode(boundary.NodeInfo{ID: "n2", SiteID: "site-a"})
	topo.UpsertNode(boundary.NodeInfo{ID: "n3", SiteID: "site-b"})

	sites := topo.Sites()
	assert.Len(t, sites, 2)

	nodes := topo.Nodes("site-a")
	assert.Len(t, nodes, 2)

	assert.True(t, topo.RemoveNode("n1"))
	assert.False(t, topo.RemoveNode("n1"))
	assert.Len(t, topo.Nodes("site-a"), 1)
}

func TestNodeInfoUtilization(t *testing.T) {
	n := boundary.NodeInfo{CapacityBytes: 200, UsedBytes: 50}
	assert.InDelta(t, 0.25, n.Utilization(), 0.001)

	empty := boundary.NodeInfo{}
	assert.Equal(t, 0.0, empty.Utilization())
}

func TestNoopWebhookDelivery(t *testing.T) {
	var d boundary.WebhookDelivery = boundary.NoopWebhookDelivery{}
	ev := boundary.WebhookEvent{Kind: boundary.WebhookFileCreated}
	require.NoError(t, d.Deliver(context.Background(), ev))
	assert.Zero(t, d.RetryCount(ev))
}

func TestRetryingWebhookDeliveryRetriesThenExhausts(t *testing.T) {
	failing := errors.New("endpoint unreachable")
	calls := 0
	d := boundary.NewRetryingWebhookDelivery(2, func(ctx context.Context, ev boundary.WebhookEvent) error {
		calls++
		return failing
	})
	ev := boundary.WebhookEvent{Kind: boundary.WebhookSLAViolation}

	assert.ErrorIs(t, d.Deliver(context.Background(), ev), failing)
	assert.Equal(t, 1, d.RetryCount(ev))
	assert.ErrorIs(t, d.Deliver(context.Background(), ev), failing)
	assert.Equal(t, 2, d.RetryCount(ev))

	err := d.Deliver(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, 2, calls, "third attempt must be rejected without invoking deliver again")
}

func TestRetryingWebhookDeliveryResetsOnSuccess(t *testing.T) {
	attempt := 0
	d := boundary.NewRetryingWebhookDelivery(3, func(ctx context.Context, ev boundary.WebhookEvent) error {
		attempt++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	ev := boundary.WebhookEvent{Kind: boundary.WebhookQuotaExceeded}

	require.Error(t, d.Deliver(context.Background(), ev))
	require.NoError(t, d.Deliver(context.Background(), ev))
	assert.Zero(t, d.RetryCount(ev))
}

func TestNullSLAReporter(t *testing.T) {
	var r boundary.SLAReporter = boundary.NullSLAReporter{}
	window := boundary.TimeWindow{Start: time.Unix(0, 0), End: time.Unix(3600, 0)}
	report, err := r.Report(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, window, report.Window)
	assert.Empty(t, report.Results)
}

func TestThresholdClassifier(t *testing.T) {
	var c boundary.WorkloadClassifier = boundary.ThresholdClassifier{}

	batch := c.Classify(context.Background(), boundary.Hint{SequentialRatio: 0.9, AvgIOSizeKB: 512})
	assert.Equal(t, qos.Batch, batch)

	interactive := c.Classify(context.Background(), boundary.Hint{SequentialRatio: 0.1, AvgIOSizeKB: 4})
	assert.Equal(t, qos.Interactive, interactive)

	realtime := c.Classify(context.Background(), boundary.Hint{SequentialRatio: 0.5, AvgIOSizeKB: 64, OpsPerSecond: 5000})
	assert.Equal(t, qos.RealtimeMeta, realtime)

	fallback := c.Classify(context.Background(), boundary.Hint{SequentialRatio: 0.5, AvgIOSizeKB: 64, OpsPerSecond: 10})
	assert.Equal(t, qos.Replication, fallback)
}
