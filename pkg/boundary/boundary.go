// Package boundary declares the interfaces through which the core
// write path talks to systems outside it: device integrity checks,
// audit/compliance logging, cluster topology, webhook delivery, SLA
// reporting, and the NFS/S3 gateway's wire-format concerns. None of
// these interfaces sit on the hot path; components that need one take
// it as a constructor argument, and production wiring (or a test) can
// supply whatever implementation fits.
package boundary

import (
	"context"
	"io"
	"time"

	"github.com/dirkpetersen/claudefs/pkg/qos"
)

// FsckSeverity classifies a metadata integrity finding.
type FsckSeverity int

const (
	SeverityError FsckSeverity = iota
	SeverityWarning
	SeverityInfo
)

// IsError reports whether the severity represents a hard failure.
func (s FsckSeverity) IsError() bool { return s == SeverityError }

func (s FsckSeverity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// FsckIssueKind distinguishes the shape of a single fsck finding.
type FsckIssueKind int

const (
	IssueOrphanInode FsckIssueKind = iota
	IssueLinkCountMismatch
	IssueDanglingEntry
	IssueDuplicateEntry
	IssueDisconnectedSubtree
)

// FsckIssue is one integrity finding surfaced by a scan. Only the
// fields relevant to Kind are populated.
type FsckIssue struct {
	Kind     FsckIssueKind
	Severity FsckSeverity
	Inode    uint64
	Parent   uint64
	Child    uint64
	Inode2   uint64
	Name     string
	Expected uint32
	Actual   uint32
}

// Report is the result of one fsck pass over a device.
type Report struct {
	DeviceID  string
	Issues    []FsckIssue
	ScannedAt time.Time
}

// ErrorCount returns the number of issues with SeverityError.
func (r Report) ErrorCount() int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity.IsError() {
			n++
		}
	}
	return n
}

// FsckChecker scans a storage device for metadata integrity issues.
type FsckChecker interface {
	Check(ctx context.Context, deviceID string) (Report, error)
}

// AuditEventKind enumerates the administrative actions the audit
// trail records.
type AuditEventKind int

const (
	AuditLogin AuditEventKind = iota
	AuditLogout
	AuditTokenCreate
	AuditTokenRevoke
	AuditQuotaChange
	AuditRoleAssign
	AuditRoleRevoke
	AuditNodeDrain
	AuditSnapshotCreate
	AuditSnapshotDelete
	AuditMigrationStart
	AuditMigrationAbort
	AuditConfigChange
	AuditAdminCommand
)

// Event is one audit-trail entry.
type Event struct {
	ID        uint64
	Timestamp time.Time
	User      string
	IP        string
	Kind      AuditEventKind
	Resource  string
	Detail    string
	Success   bool
}

// AuditTrail records administrative actions in a bounded, queryable
// ring buffer.
type AuditTrail interface {
	Record(ctx context.Context, ev Event) error
	Capacity() int
	Recent(n int) []Event
}

// NodeRole is a cluster member's function.
type NodeRole int

const (
	RoleStorage NodeRole = iota
	RoleClient
	RoleGateway
	RoleConduit
	RoleManagement
)

// NodeStatus is a cluster member's current health.
type NodeStatus int

const (
	NodeOnline NodeStatus = iota
	NodeOffline
	NodeDraining
	NodeDegraded
	NodeUnknown
)

// NodeInfo describes one cluster member.
type NodeInfo struct {
	ID            string
	SiteID        string
	RackID        string
	Role          NodeRole
	Status        NodeStatus
	IP            string
	CapacityBytes uint64
	UsedBytes     uint64
}

// Utilization returns UsedBytes/CapacityBytes, 0 if capacity is unset.
func (n NodeInfo) Utilization() float64 {
	if n.CapacityBytes == 0 {
		return 0
	}
	return float64(n.UsedBytes) / float64(n.CapacityBytes)
}

// SiteInfo summarizes one site (failure domain) in the topology.
type SiteInfo struct {
	ID        string
	NodeCount int
}

// TopologyMap exposes the cluster's current site/node membership.
type TopologyMap interface {
	Sites() []SiteInfo
	Nodes(siteID string) []NodeInfo
}

// WebhookEventKind enumerates the external-facing events a webhook
// subscriber can be notified of.
type WebhookEventKind int

const (
	WebhookFileCreated WebhookEventKind = iota
	WebhookFileDeleted
	WebhookFileModified
	WebhookDirectoryCreated
	WebhookDirectoryDeleted
	WebhookNodeJoined
	WebhookNodeDeparted
	WebhookSLAViolation
	WebhookQuotaExceeded
	WebhookSnapshotCreated
	WebhookReplicationLag
)

// WebhookEvent is one notification queued for external delivery.
type WebhookEvent struct {
	Kind    WebhookEventKind
	Path    string
	NodeID  string
	SiteID  string
	Metric  string
	Actual  float64
	Threshold float64
	Detail  string
}

// WebhookDelivery pushes events to an externally registered endpoint,
// tracking how many attempts a delivery has consumed.
type WebhookDelivery interface {
	Deliver(ctx context.Context, ev WebhookEvent) error
	RetryCount(ev WebhookEvent) int
}

// TimeWindow bounds an SLA reporting period.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// SLAMetricKind is a measured service-level metric.
type SLAMetricKind int

const (
	SLAReadLatencyUs SLAMetricKind = iota
	SLAWriteLatencyUs
	SLAMetadataLatencyUs
	SLAThroughputMBps
	SLAIops
	SLAAvailabilityPercent
)

// PercentileResult summarizes one metric's distribution over a window.
type PercentileResult struct {
	Kind        SLAMetricKind
	P50         float64
	P95         float64
	P99         float64
	P999        float64
	Min         float64
	Max         float64
	Mean        float64
	SampleCount int
}

// SLAReport is the outcome of evaluating SLA targets over a window.
type SLAReport struct {
	Window  TimeWindow
	Results []PercentileResult
}

// SLAReporter evaluates service-level metrics over a reporting window.
type SLAReporter interface {
	Report(ctx context.Context, window TimeWindow) (SLAReport, error)
}

// ReferralType distinguishes why an NFSv4.1 referral was issued.
type ReferralType int

const (
	ReferralRedirect ReferralType = iota
	ReferralMigration
	ReferralReplication
)

// ReferralTarget is one candidate server an NFS client may be
// redirected to.
type ReferralTarget struct {
	Server     string
	Port       uint16
	ExportPath string
}

// Referral is the encoded FS_LOCATIONS payload for one export path.
type Referral struct {
	LocalPath string
	Targets   []ReferralTarget
	Type      ReferralType
}

// NFSReferralSerializer encodes a referral into its NFSv4.1 wire form.
type NFSReferralSerializer interface {
	Serialize(r Referral) ([]byte, error)
}

// S3XMLEncoder renders an S3 API response value as XML.
type S3XMLEncoder interface {
	Encode(w io.Writer, v any) error
}

// S3Operation is the parsed intent of one S3 HTTP request.
type S3Operation int

const (
	S3OpUnknown S3Operation = iota
	S3OpGetObject
	S3OpPutObject
	S3OpDeleteObject
	S3OpHeadObject
	S3OpListObjects
	S3OpCreateBucket
	S3OpDeleteBucket
	S3OpHeadBucket
)

// S3Router maps an HTTP method and path to an S3Operation.
type S3Router interface {
	Route(method, path string) (S3Operation, error)
}

// Hint is the observed-access summary a FUSE front end offers the
// workload classifier; it mirrors fusetune.workloadSignature's public
// shape without importing fusetune.
type Hint struct {
	ReadWriteRatio  float64
	SequentialRatio float64
	AvgIOSizeKB     float64
	OpsPerSecond    float64
}

// WorkloadClassifier maps an observed access hint to a QoS class,
// feeding the scheduler (C6) and adaptive tuner (C14) without either
// depending on how the classification was produced.
type WorkloadClassifier interface {
	Classify(ctx context.Context, hint Hint) qos.WorkloadClass
}
