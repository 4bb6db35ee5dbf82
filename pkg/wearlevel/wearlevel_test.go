package wearlevel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/wearlevel"
)

// TestWearPlacementAdvice is scenario S5 from spec.md §8. It uses a low
// HotThresholdPct with enough 1 GiB writes to actually cross it, so the
// AvoidZones assertion is load-bearing rather than a no-op.
func TestWearPlacementAdvice(t *testing.T) {
	cfg := wearlevel.Config{HotThresholdPct: 10.0, ColdTargetPct: 1.0, MaxWriteAmplification: 100}
	e := wearlevel.New(nil, cfg)
	e.RegisterZone(1)
	e.RegisterZone(2)
	e.RegisterZone(3)

	for i := 0; i < 11; i++ {
		e.RecordWrite(1, 1<<30, uint64(i)) // 1 GiB/write -> wear_pct += 1.0 per write
	}

	zone1, ok := e.GetZone(1)
	require.True(t, ok)
	require.Greater(t, zone1.WearPct, 10.0, "test setup must actually cross HotThresholdPct")

	advice := e.GetPlacementAdvice(1<<20, wearlevel.Sequential)
	if advice.PreferredZone != nil {
		assert.Contains(t, []uint32{2, 3}, *advice.PreferredZone)
	}

	assert.Contains(t, advice.AvoidZones, uint32(1))
}

func TestZoneHotAlertFiresOnceOnCrossing(t *testing.T) {
	e := wearlevel.New(nil, wearlevel.Config{HotThresholdPct: 1.0, ColdTargetPct: 0.1, MaxWriteAmplification: 100})
	e.RegisterZone(1)

	for i := 0; i < 10; i++ {
		e.RecordWrite(1, 1<<30, uint64(i)) // 1 GiB/write -> wear_pct += 1.0 per write
	}

	hotAlerts := 0
	for _, a := range e.Alerts() {
		if a.Type == wearlevel.ZoneHot {
			hotAlerts++
		}
	}
	assert.Equal(t, 1, hotAlerts, "ZoneHot alert must fire at most once per crossing")

	zone, _ := e.GetZone(1)
	assert.True(t, zone.IsHot)
}

func TestRecordWriteUnknownZoneFails(t *testing.T) {
	e := wearlevel.New(nil, wearlevel.DefaultConfig())
	assert.False(t, e.RecordWrite(99, 100, 0))
}

func TestCheckWearBalance(t *testing.T) {
	e := wearlevel.New(nil, wearlevel.DefaultConfig())
	e.RegisterZone(1)
	e.RegisterZone(2)

	for i := 0; i < 50; i++ {
		e.RecordWrite(1, 1<<30, uint64(i))
	}

	imbalance := e.CheckWearBalance()
	require.NotNil(t, imbalance)
	assert.Greater(t, *imbalance, 30.0)
}

func TestCheckWearBalanceNoZones(t *testing.T) {
	e := wearlevel.New(nil, wearlevel.DefaultConfig())
	assert.Nil(t, e.CheckWearBalance())
}

func TestClearAlerts(t *testing.T) {
	e := wearlevel.New(nil, wearlevel.Config{HotThresholdPct: 0.01, ColdTargetPct: 0.001, MaxWriteAmplification: 100})
	e.RegisterZone(1)
	e.RecordWrite(1, 1<<30, 0)
	require.NotEmpty(t, e.Alerts())
	e.ClearAlerts()
	assert.Empty(t, e.Alerts())
}
