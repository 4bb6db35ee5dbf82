package multipath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/multipath"
)

func TestDefaultConfig(t *testing.T) {
	cfg := multipath.DefaultConfig()
	assert.Equal(t, multipath.LowestLatency, cfg.Policy)
	assert.Equal(t, 8, cfg.MaxPaths)
	assert.Equal(t, uint32(3), cfg.FailureThreshold)
	assert.Equal(t, uint32(2), cfg.RecoveryThreshold)
	assert.InDelta(t, 0.2, cfg.LatencyEWMAAlpha, 0.001)
	assert.InDelta(t, 0.05, cfg.MaxLossRate, 0.001)
}

func TestAddRemovePath(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)

	id1 := r.AddPath("eth0", 100, 1)
	id2 := r.AddPath("eth1", 50, 2)
	assert.NotEqual(t, id1, id2)

	assert.True(t, r.RemovePath(id1))
	assert.False(t, r.RemovePath(id1))
}

func TestRoundRobinSelection(t *testing.T) {
	cfg := multipath.DefaultConfig()
	cfg.Policy = multipath.RoundRobin
	r := multipath.New(nil, cfg)

	id1 := r.AddPath("p1", 100, 1)
	id2 := r.AddPath("p2", 100, 2)
	id3 := r.AddPath("p3", 100, 3)

	var selected []multipath.PathID
	for i := 0; i < 6; i++ {
		id, ok := r.SelectPath()
		require.True(t, ok)
		selected = append(selected, id)
	}

	assert.Equal(t, []multipath.PathID{id1, id2, id3, id1, id2, id3}, selected)
}

func TestLowestLatencySelection(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)

	id1 := r.AddPath("slow", 100, 1)
	id2 := r.AddPath("fast", 100, 2)
	id3 := r.AddPath("medium", 100, 3)

	r.RecordSuccess(id1, 1000, 1024)
	r.RecordSuccess(id2, 100, 1024)
	r.RecordSuccess(id3, 500, 1024)

	selected, ok := r.SelectPath()
	require.True(t, ok)
	assert.Equal(t, id2, selected)
}

// TestLowestLatencyTieBreakerPriority is scenario S4 from spec.md §8.
func TestLowestLatencyTieBreakerPriority(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)

	id1 := r.AddPath("p1", 100, 2)
	id2 := r.AddPath("p2", 100, 1)

	r.RecordSuccess(id1, 100, 1024)
	r.RecordSuccess(id2, 100, 1024)

	selected, ok := r.SelectPath()
	require.True(t, ok)
	assert.Equal(t, id2, selected, "lower priority value wins a latency tie")
}

// TestWeightedRandomSelectionIsDeterministic verifies WeightedRandom picks
// deterministically from total_requests % total_weight rather than an RNG,
// so the same request sequence always yields the same path sequence.
func TestWeightedRandomSelectionIsDeterministic(t *testing.T) {
	cfg := multipath.DefaultConfig()
	cfg.Policy = multipath.WeightedRandom
	r := multipath.New(nil, cfg)

	id1 := r.AddPath("p1", 1, 1)
	id2 := r.AddPath("p2", 1, 2)

	var selected []multipath.PathID
	for i := 0; i < 4; i++ {
		id, ok := r.SelectPath()
		require.True(t, ok)
		selected = append(selected, id)
	}

	assert.Equal(t, []multipath.PathID{id2, id1, id2, id1}, selected)
}

func TestFailoverSelectionPicksLowestPriority(t *testing.T) {
	cfg := multipath.DefaultConfig()
	cfg.Policy = multipath.Failover
	r := multipath.New(nil, cfg)

	id1 := r.AddPath("primary", 100, 1)
	r.AddPath("backup", 50, 2)

	selected, ok := r.SelectPath()
	require.True(t, ok)
	assert.Equal(t, id1, selected)

	r.MarkFailed(id1)

	selected, ok = r.SelectPath()
	require.True(t, ok)
	assert.NotEqual(t, id1, selected)
}

// TestPathStateTransitions checks universal invariant #7: state
// transitions obey Active→{Degraded,Failed}→Active only via threshold
// rules, and failover_events increments exactly once per edge.
func TestPathStateTransitions(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id := r.AddPath("test", 100, 1)

	info, ok := r.PathInfo(id)
	require.True(t, ok)
	assert.Equal(t, multipath.Active, info.State)

	for i := 0; i < 3; i++ {
		r.RecordFailure(id, 1024)
	}
	info, _ = r.PathInfo(id)
	assert.Equal(t, multipath.Failed, info.State)
	assert.Equal(t, uint64(1), r.Stats().FailoverEvents)

	for i := 0; i < 2; i++ {
		r.RecordSuccess(id, 100, 1024)
	}
	info, _ = r.PathInfo(id)
	assert.Equal(t, multipath.Active, info.State)
}

func TestMarkFailedAndActive(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id := r.AddPath("test", 100, 1)

	r.MarkFailed(id)
	info, _ := r.PathInfo(id)
	assert.Equal(t, multipath.Failed, info.State)

	r.MarkActive(id)
	info, _ = r.PathInfo(id)
	assert.Equal(t, multipath.Active, info.State)
}

func TestActivePathsFilter(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id1 := r.AddPath("active", 100, 1)
	r.AddPath("failed", 100, 2)

	r.MarkFailed(id1)

	active := r.ActivePaths()
	assert.NotContains(t, active, id1)
}

func TestSkipFailedInRoundRobin(t *testing.T) {
	cfg := multipath.DefaultConfig()
	cfg.Policy = multipath.RoundRobin
	r := multipath.New(nil, cfg)

	id1 := r.AddPath("p1", 100, 1)
	id2 := r.AddPath("p2", 100, 2)

	r.MarkFailed(id1)

	selected, ok := r.SelectPath()
	require.True(t, ok)
	assert.Equal(t, id2, selected)
}

func TestNoActivePathsReturnsFalse(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id := r.AddPath("p1", 100, 1)
	r.MarkFailed(id)

	_, ok := r.SelectPath()
	assert.False(t, ok)
}

func TestMinLatencyTracking(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id := r.AddPath("test", 100, 1)

	r.RecordSuccess(id, 500, 1024)
	r.RecordSuccess(id, 100, 1024)
	r.RecordSuccess(id, 300, 1024)

	info, _ := r.PathInfo(id)
	assert.Equal(t, uint64(100), info.Metrics.MinLatencyUs)
}

func TestJitterCalculation(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	id := r.AddPath("test", 100, 1)

	r.RecordSuccess(id, 100, 1024)
	r.RecordSuccess(id, 200, 1024)

	info, _ := r.PathInfo(id)
	assert.True(t, info.Metrics.JitterUs > 0)
}

func TestStatsSnapshot(t *testing.T) {
	r := multipath.WithDefaultConfig(nil)
	r.AddPath("p1", 100, 1)
	r.AddPath("p2", 100, 2)

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalPaths)
	assert.Equal(t, 2, stats.ActivePaths)
}
