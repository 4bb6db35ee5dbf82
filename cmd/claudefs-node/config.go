package main

import (
	"github.com/dirkpetersen/claudefs/pkg/flowcontrol"
	"github.com/dirkpetersen/claudefs/pkg/migration"
	"github.com/dirkpetersen/claudefs/pkg/multipath"
	"github.com/dirkpetersen/claudefs/pkg/nvme"
	"github.com/dirkpetersen/claudefs/pkg/quota"
	"github.com/dirkpetersen/claudefs/pkg/replication"
	"github.com/dirkpetersen/claudefs/pkg/segment"
	"github.com/dirkpetersen/claudefs/pkg/wearlevel"
	"github.com/dirkpetersen/claudefs/pkg/writepath"
)

// PathSpec describes one statically configured network path, bootstrapped
// into the multipath router at startup.
type PathSpec struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Weight   uint32 `mapstructure:"weight" yaml:"weight"`
	Priority uint32 `mapstructure:"priority" yaml:"priority"`
}

// QuotaConfig is the operator-facing subset of quota.Limit.
type QuotaConfig struct {
	BytesHard  uint64 `mapstructure:"bytes_hard" yaml:"bytes_hard"`
	BytesSoft  uint64 `mapstructure:"bytes_soft" yaml:"bytes_soft"`
	InodesHard uint64 `mapstructure:"inodes_hard" yaml:"inodes_hard"`
	InodesSoft uint64 `mapstructure:"inodes_soft" yaml:"inodes_soft"`
	GraceSecs  uint64 `mapstructure:"grace_secs" yaml:"grace_secs"`
}

// FlowControlConfig is the operator-facing subset of flowcontrol.Config.
type FlowControlConfig struct {
	MaxRequests   uint32  `mapstructure:"max_requests" yaml:"max_requests"`
	MaxBytes      uint64  `mapstructure:"max_bytes" yaml:"max_bytes"`
	HighWatermark float64 `mapstructure:"high_watermark" yaml:"high_watermark"`
}

// NodeConfig is the full set of operator-facing settings for one
// claudefs-node process, bound by viper from a config file, environment
// variables (CLAUDEFS_ prefix), and flags, in that ascending precedence.
type NodeConfig struct {
	NodeID      string            `mapstructure:"node_id" yaml:"node_id"`
	LocalSiteID uint64            `mapstructure:"local_site_id" yaml:"local_site_id"`
	StreamID    uint64            `mapstructure:"stream_id" yaml:"stream_id"`
	DataDir     string            `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel    string            `mapstructure:"log_level" yaml:"log_level"`
	LogJSON     bool              `mapstructure:"log_json" yaml:"log_json"`
	StatsEveryS int               `mapstructure:"stats_every_s" yaml:"stats_every_s"`
	Quota       QuotaConfig       `mapstructure:"quota" yaml:"quota"`
	FlowControl FlowControlConfig `mapstructure:"flow_control" yaml:"flow_control"`
	Paths       []PathSpec        `mapstructure:"paths" yaml:"paths"`
}

// defaultNodeConfig returns the settings a fresh node starts with absent
// any config file, environment, or flag override.
func defaultNodeConfig() NodeConfig {
	limit := quota.DefaultLimit()
	return NodeConfig{
		NodeID:      "claudefs-node-0",
		LocalSiteID: 1,
		StreamID:    1,
		DataDir:     "./data",
		LogLevel:    "info",
		LogJSON:     false,
		StatsEveryS: 30,
		Quota: QuotaConfig{
			BytesHard:  limit.BytesHard,
			BytesSoft:  limit.BytesSoft,
			InodesHard: limit.InodesHard,
			InodesSoft: limit.InodesSoft,
			GraceSecs:  limit.GraceSecs,
		},
		FlowControl: FlowControlConfig{
			MaxRequests:   4096,
			MaxBytes:      512 << 20,
			HighWatermark: 80.0,
		},
		Paths: []PathSpec{
			{Name: "primary", Weight: 10, Priority: 0},
		},
	}
}

// buildWritePathConfig translates an operator-facing NodeConfig into the
// writepath.Config the orchestrator needs, defaulting every sub-component
// config NodeConfig does not expose directly.
func buildWritePathConfig(nc NodeConfig) writepath.Config {
	replCfg := replication.DefaultConfig()
	replCfg.LocalSiteID = nc.LocalSiteID

	return writepath.Config{
		QoSConfig: nil, // writepath.New falls back to qos.DefaultConfig()
		FlowControl: flowcontrol.Config{
			MaxRequests:   nc.FlowControl.MaxRequests,
			MaxBytes:      nc.FlowControl.MaxBytes,
			HighWatermark: nc.FlowControl.HighWatermark,
		},
		DefaultQuota: quota.Limit{
			BytesHard:  nc.Quota.BytesHard,
			BytesSoft:  nc.Quota.BytesSoft,
			InodesHard: nc.Quota.InodesHard,
			InodesSoft: nc.Quota.InodesSoft,
			GraceSecs:  nc.Quota.GraceSecs,
		},
		NVMeConfig:    nvme.DefaultConfig(),
		SegmentConfig: segment.DefaultConfig(),
		WearConfig:    wearlevel.DefaultConfig(),
		ReplConfig:    replCfg,
		PathConfig:    multipath.DefaultConfig(),
		MigConfig:     migration.DefaultConfig(),
		LocalSiteID:   nc.LocalSiteID,
		StreamID:      nc.StreamID,
	}
}
