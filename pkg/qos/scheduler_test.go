package qos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/internal/clock"
	"github.com/dirkpetersen/claudefs/pkg/qos"
)

func TestTryAdmitWithinBurstSucceeds(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	cfg := map[qos.WorkloadClass]qos.Config{
		qos.Interactive: {MaxBandwidthBps: 0, Weight: 50, BurstBytes: 1000, Priority: 1},
	}
	sched := qos.New(nil, mock, cfg)

	p := sched.TryAdmit(qos.Interactive, 500)
	require.NotNil(t, p)
	p.Release()

	stats := sched.ClassStats(qos.Interactive)
	assert.Equal(t, uint64(1), stats.Admitted)
	assert.Equal(t, uint64(500), stats.TotalBytes)
}

func TestTryAdmitRejectsOverBudget(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	cfg := map[qos.WorkloadClass]qos.Config{
		qos.Batch: {MaxBandwidthBps: 100, Weight: 15, BurstBytes: 100, Priority: 3},
	}
	sched := qos.New(nil, mock, cfg)

	require.NotNil(t, sched.TryAdmit(qos.Batch, 100))
	p := sched.TryAdmit(qos.Batch, 1)
	assert.Nil(t, p)

	stats := sched.ClassStats(qos.Batch)
	assert.Equal(t, uint64(1), stats.Rejected)
}

func TestUnlimitedBandwidthNeverRejects(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	sched := qos.WithDefaultConfig(nil, mock)

	for i := 0; i < 100; i++ {
		p := sched.TryAdmit(qos.RealtimeMeta, 10<<20)
		require.NotNil(t, p)
		p.Release()
	}
}

func TestAdmitBlocksThenSucceedsOnRefill(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	cfg := map[qos.WorkloadClass]qos.Config{
		qos.Management: {MaxBandwidthBps: 1000, Weight: 5, BurstBytes: 10, Priority: 4},
	}
	sched := qos.New(nil, mock, cfg)
	require.NotNil(t, sched.TryAdmit(qos.Management, 10))

	done := make(chan error, 1)
	go func() {
		_, err := sched.Admit(context.Background(), qos.Management, 5)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	mock.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Admit never unblocked")
	}
}

func TestPriorityAndWeightDefaults(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	sched := qos.WithDefaultConfig(nil, mock)

	assert.Equal(t, uint8(0), sched.Priority(qos.RealtimeMeta))
	assert.Equal(t, uint8(4), sched.Priority(qos.Management))
	assert.Equal(t, uint32(100), sched.Weight(qos.RealtimeMeta))
}
