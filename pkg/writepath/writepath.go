// Package writepath wires C1-C14 together into the write-path data
// flow of spec §2: gateway -> QoS admit -> flow-control permit ->
// quota check -> encryption -> per-inode workload hint -> per-core
// NVMe submission -> journal/segment packer -> EC stripe distribution
// -> wear-leveled placement -> replication WAL over multipath.
// A failed NVMe submission starts a connection migration and fails the
// write; a failed replication advance fails over to another path once
// before the write fails.
package writepath

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/dirkpetersen/claudefs/internal/clock"
	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
	"github.com/dirkpetersen/claudefs/pkg/ec"
	"github.com/dirkpetersen/claudefs/pkg/encryption"
	"github.com/dirkpetersen/claudefs/pkg/flowcontrol"
	"github.com/dirkpetersen/claudefs/pkg/fusetune"
	"github.com/dirkpetersen/claudefs/pkg/migration"
	"github.com/dirkpetersen/claudefs/pkg/multipath"
	"github.com/dirkpetersen/claudefs/pkg/nvme"
	"github.com/dirkpetersen/claudefs/pkg/qos"
	"github.com/dirkpetersen/claudefs/pkg/quota"
	"github.com/dirkpetersen/claudefs/pkg/reduce"
	"github.com/dirkpetersen/claudefs/pkg/replication"
	"github.com/dirkpetersen/claudefs/pkg/segment"
	"github.com/dirkpetersen/claudefs/pkg/wearlevel"
)

var mon = monkit.Package()

// Request is one incoming write from a gateway, already parsed into a
// tenant/inode/class/core assignment by the caller.
type Request struct {
	TenantID  string
	Inode     uint64
	Class     qos.WorkloadClass
	CoreID    uint32
	Namespace uint32
	Sequence  uint64
	BlockRef  segment.BlockRef
	Data      []byte
}

// Result carries every artifact the write path produced, for the
// caller to log, ack, or forward.
type Result struct {
	CommandID      uint64
	EncryptedBlock encryption.Block
	SealedSegment  *segment.Packed
	Shards         []ec.Shard
	PathID         multipath.PathID
	Cursor         replication.Cursor
	ReadAheadKB    uint64
}

// WritePath bundles every component the data-flow diagram names. All
// fields are exported so cmd/claudefs-node can reach sub-components
// directly (stats, admin operations) without WritePath growing a
// pass-through method for every one of them.
type WritePath struct {
	log *zap.Logger

	QoS         *qos.Scheduler
	FlowControl *flowcontrol.Controller
	Quota       *quota.Manager
	Envelope    *encryption.Envelope
	Tuner       *fusetune.AdaptiveTuner
	NVMe        *nvme.Manager
	Packer      *segment.Packer
	EC          *ec.Scheme
	WearLevel   *wearlevel.Engine
	Replication *replication.Engine
	Multipath   *multipath.Router
	Migration   *migration.Manager
	Reduce      *reduce.Metrics

	siteID   uint64
	streamID uint64
}

// Config bundles the sub-component configuration WritePath needs to
// construct its own defaults. New fills in some zero-valued
// sub-configs with component defaults; see New for which.
type Config struct {
	Log           *zap.Logger
	QoSConfig     map[qos.WorkloadClass]qos.Config
	FlowControl   flowcontrol.Config
	DefaultQuota  quota.Limit
	NVMeConfig    nvme.Config
	SegmentConfig segment.Config
	WearConfig    wearlevel.Config
	ReplConfig    replication.Config
	PathConfig    multipath.Config
	MigConfig     migration.Config
	LocalSiteID   uint64
	StreamID      uint64
}

// New wires every component from cfg. A nil QoSConfig and a zero-valued
// NVMeConfig, SegmentConfig, WearConfig, PathConfig or MigConfig are
// replaced with that component's defaults; FlowControl (where zero
// limits mean unlimited), DefaultQuota and ReplConfig are used as given.
func New(cfg Config, clockSrc clock.Source, topo *replication.Topology, cursorStore *replication.CursorStore) (*WritePath, error) {
	ecScheme, err := ec.NewDefault(cfg.Log)
	if err != nil {
		return nil, err
	}

	qosCfg := cfg.QoSConfig
	if qosCfg == nil {
		qosCfg = qos.DefaultConfig()
	}
	if cfg.NVMeConfig == (nvme.Config{}) {
		cfg.NVMeConfig = nvme.DefaultConfig()
	}
	if cfg.SegmentConfig == (segment.Config{}) {
		cfg.SegmentConfig = segment.DefaultConfig()
	}
	if cfg.WearConfig == (wearlevel.Config{}) {
		cfg.WearConfig = wearlevel.DefaultConfig()
	}
	if cfg.PathConfig == (multipath.Config{}) {
		cfg.PathConfig = multipath.DefaultConfig()
	}
	if cfg.MigConfig == (migration.Config{}) {
		cfg.MigConfig = migration.DefaultConfig()
	}

	wp := &WritePath{
		log:         cfg.Log,
		QoS:         qos.New(cfg.Log, clockSrc, qosCfg),
		FlowControl: flowcontrol.New(cfg.FlowControl),
		Quota:       quota.NewManager(cfg.Log, cfg.DefaultQuota),
		Envelope:    encryption.New(),
		Tuner:       fusetune.NewAdaptiveTuner(cfg.Log, clockSrc.Now()),
		NVMe:        nvme.New(cfg.Log, cfg.NVMeConfig),
		Packer:      segment.New(cfg.Log, cfg.SegmentConfig),
		EC:          ecScheme,
		WearLevel:   wearlevel.New(cfg.Log, cfg.WearConfig),
		Replication: replication.New(cfg.Log, cfg.ReplConfig, topo, cursorStore),
		Multipath:   multipath.New(cfg.Log, cfg.PathConfig),
		Migration:   migration.New(cfg.Log, cfg.MigConfig),
		Reduce:      reduce.New(),
		siteID:      cfg.LocalSiteID,
		streamID:    cfg.StreamID,
	}
	return wp, nil
}

// Write drives one request through the entire data-flow chain,
// releasing every acquired permit before returning (success or
// failure) except ones a later stage still needs.
func (wp *WritePath) Write(ctx context.Context, req Request, now time.Time) (*Result, error) {
	defer mon.Task()(&ctx)(nil)

	sizeBytes := uint64(len(req.Data))
	nowSecs := uint64(now.Unix())

	qosPermit, err := wp.QoS.Admit(ctx, req.Class, sizeBytes)
	if err != nil {
		return nil, err
	}
	if qosPermit == nil {
		return nil, claudefserrs.ErrQueueFull
	}
	defer qosPermit.Release()

	fcPermit := wp.FlowControl.TryAcquire(sizeBytes)
	if fcPermit == nil {
		return nil, claudefserrs.ErrQueueFull
	}
	defer fcPermit.Release()

	if err := wp.Quota.CheckAllocation(req.TenantID, sizeBytes, nowSecs); err != nil {
		return nil, err
	}

	block, err := wp.Envelope.Encrypt(req.Data)
	if err != nil {
		return nil, err
	}
	wp.Reduce.RecordEncrypt()

	wp.Tuner.RecordWrite(req.Inode, sizeBytes)
	classification := wp.Tuner.ClassifyInode(req.Inode, now)
	readAheadKB := classification.WorkloadType.SuggestedReadAheadKB()

	commandID, err := wp.submitWithMigration(ctx, req, now)
	if err != nil {
		return nil, err
	}

	sealed, err := wp.Packer.AddEntry(req.Sequence, req.BlockRef, req.Data, segment.HintHotData)
	if err != nil {
		return nil, err
	}

	var shards []ec.Shard
	if sealed != nil {
		shards, err = wp.EC.Encode(sealed.Data)
		if err != nil {
			return nil, err
		}

		advice := wp.WearLevel.GetPlacementAdvice(uint64(len(sealed.Data)), wearlevel.Sequential)
		zone := uint32(0)
		if advice.PreferredZone != nil {
			zone = *advice.PreferredZone
		}
		wp.WearLevel.RecordWrite(zone, uint64(len(sealed.Data)), nowSecs)
	}

	if err := wp.Quota.RecordAllocation(req.TenantID, sizeBytes, nowSecs); err != nil {
		return nil, err
	}

	pathID, cursor, err := wp.replicateWithFailover(req, sizeBytes, now)
	if err != nil {
		return nil, err
	}

	return &Result{
		CommandID:      commandID,
		EncryptedBlock: block,
		SealedSegment:  sealed,
		Shards:         shards,
		PathID:         pathID,
		Cursor:         cursor,
		ReadAheadKB:    readAheadKB,
	}, nil
}

// submitWithMigration submits req to the NVMe queue pair bound to
// req.CoreID. A failed submission (no queue for the core, or a full or
// inactive queue) starts a connection migration from req.CoreID to
// req.CoreID+1, whether or not that core has a queue pair, and returns
// the submission error; the request is not resubmitted.
func (wp *WritePath) submitWithMigration(ctx context.Context, req Request, now time.Time) (uint64, error) {
	lbaStart := req.BlockRef.ByteOffset / 512
	lbaCount := uint32((len(req.Data) + 511) / 512)

	commandID, err := wp.NVMe.Submit(req.CoreID, nvme.OpWrite, req.Namespace, lbaStart, lbaCount, len(req.Data), uint64(now.Unix()))
	if err == nil {
		return commandID, nil
	}

	source := migration.ConnectionID(req.CoreID)
	target := migration.ConnectionID(req.CoreID) + 1
	if _, migErr := wp.Migration.StartMigration(source, target, migration.HealthDegraded, now); migErr != nil {
		return 0, err
	}
	return 0, err
}

// replicateWithFailover selects a network path and advances the
// replication WAL over it, marking the path failed and retrying once
// on a different path if the first selection reports a failure.
func (wp *WritePath) replicateWithFailover(req Request, sizeBytes uint64, now time.Time) (multipath.PathID, replication.Cursor, error) {
	pathID, ok := wp.Multipath.SelectPath()
	if !ok {
		return multipath.PathID{}, replication.Cursor{}, claudefserrs.ErrPathNotFound
	}

	if err := wp.Replication.Advance(wp.siteID, wp.streamID, req.Sequence, req.Sequence, sizeBytes); err != nil {
		wp.Multipath.RecordFailure(pathID, sizeBytes)
		wp.Multipath.MarkFailed(pathID)

		retryPath, ok := wp.Multipath.SelectPath()
		if !ok {
			return multipath.PathID{}, replication.Cursor{}, err
		}
		pathID = retryPath
		if err := wp.Replication.Advance(wp.siteID, wp.streamID, req.Sequence, req.Sequence, sizeBytes); err != nil {
			wp.Multipath.RecordFailure(pathID, sizeBytes)
			return multipath.PathID{}, replication.Cursor{}, err
		}
	}

	wp.Multipath.RecordSuccess(pathID, 0, sizeBytes)
	cursor, _ := wp.Replication.Cursor(wp.siteID, wp.streamID)
	return pathID, cursor, nil
}
