package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dirkpetersen/claudefs/internal/clock"
	"github.com/dirkpetersen/claudefs/pkg/boundary"
	"github.com/dirkpetersen/claudefs/pkg/replication"
	"github.com/dirkpetersen/claudefs/pkg/writepath"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the node and block until terminated",
	RunE:  runServe,
}

func newLogger(nc NodeConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if nc.LogJSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(nc.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func runServe(cmd *cobra.Command, args []string) error {
	nc, err := loadNodeConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(nc)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(nc.DataDir, 0o755); err != nil {
		return err
	}

	cursors, err := replication.OpenCursorStore(filepath.Join(nc.DataDir, "cursors.db"))
	if err != nil {
		return err
	}
	defer func() { _ = cursors.Close() }()

	topo := replication.NewTopology(nc.LocalSiteID)

	wpCfg := buildWritePathConfig(nc)
	wpCfg.Log = log

	wp, err := writepath.New(wpCfg, clock.Real{}, topo, cursors)
	if err != nil {
		return err
	}

	for _, p := range nc.Paths {
		wp.Multipath.AddPath(p.Name, p.Weight, p.Priority)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	audit := boundary.NewMemoryAuditTrail(1024)
	_ = audit.Record(ctx, boundary.Event{
		Timestamp: time.Now(),
		Kind:      boundary.AuditConfigChange,
		Resource:  nc.NodeID,
		Detail:    "node started",
		Success:   true,
	})
	log.Info("node started",
		zap.String("node_id", nc.NodeID),
		zap.Uint64("local_site_id", nc.LocalSiteID),
		zap.Int("paths", len(nc.Paths)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	statsEvery := time.Duration(nc.StatsEveryS) * time.Second
	if statsEvery <= 0 {
		statsEvery = 30 * time.Second
	}
	ticker := time.NewTicker(statsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			log.Info("shutdown requested")
			_ = audit.Record(ctx, boundary.Event{
				Timestamp: time.Now(),
				Kind:      boundary.AuditConfigChange,
				Resource:  nc.NodeID,
				Detail:    "node stopped",
				Success:   true,
			})
			wp.Replication.Stop()
			return nil
		case <-ticker.C:
			logStats(log, wp)
		case <-ctx.Done():
			return nil
		}
	}
}

// logStats emits a single structured snapshot of the write path's
// cumulative counters, the cheapest form of observability this node
// offers absent a metrics scrape endpoint.
func logStats(log *zap.Logger, wp *writepath.WritePath) {
	mStats := wp.Multipath.Stats()
	nStats := wp.NVMe.Stats()
	log.Info("node stats",
		zap.Uint64("quota_tenants_total_bytes", wp.Quota.TotalUsageBytes()),
		zap.Int("multipath_active", mStats.ActivePaths),
		zap.Uint64("multipath_requests", mStats.TotalRequests),
		zap.Uint64("nvme_submissions", nStats.TotalSubmissions),
		zap.Uint64("nvme_errors", nStats.TotalErrors))
}
