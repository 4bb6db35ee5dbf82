package quota_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/quota"
)

// TestQuotaGraceExpiry is scenario S2 from spec.md §8.
func TestQuotaGraceExpiry(t *testing.T) {
	mgr := quota.NewManager(nil, quota.DefaultLimit())
	mgr.AddTenant("tenant-1", quota.Limit{
		BytesHard: 1000,
		BytesSoft: 500,
		GraceSecs: 100,
	})

	require.NoError(t, mgr.RecordAllocation("tenant-1", 600, 0))

	tq, ok := mgr.GetTenant("tenant-1")
	require.True(t, ok)

	res := tq.CheckStatus(50)
	assert.Equal(t, quota.SoftExceeded, res.Status)
	assert.Equal(t, uint64(50), res.GraceRemaining)

	res = tq.CheckStatus(101)
	assert.Equal(t, quota.GraceExpired, res.Status)

	assert.False(t, tq.CanAllocate(100, 151))
}

func TestUnregisteredTenantFailsOutOfSpace(t *testing.T) {
	mgr := quota.NewManager(nil, quota.DefaultLimit())
	err := mgr.CheckAllocation("ghost", 1, 0)
	assert.Error(t, err)
}

func TestHardLimitRejects(t *testing.T) {
	mgr := quota.NewManager(nil, quota.DefaultLimit())
	mgr.AddTenant("t", quota.Limit{BytesHard: 100, BytesSoft: 100, GraceSecs: 60})

	require.NoError(t, mgr.RecordAllocation("t", 100, 0))
	err := mgr.CheckAllocation("t", 1, 0)
	assert.Error(t, err)
}

func TestRecordFreeClearsSoftExceeded(t *testing.T) {
	tq := quota.NewTenantQuota("t", quota.Limit{BytesHard: 1000, BytesSoft: 500, GraceSecs: 100})
	tq.RecordAllocation(600, 0)
	assert.NotNil(t, tq.Usage.SoftExceededSince)

	tq.RecordFree(200)
	assert.Nil(t, tq.Usage.SoftExceededSince, "usage back under soft limit clears the marker")
}

func TestBytesUsedNeverNegative(t *testing.T) {
	tq := quota.NewTenantQuota("t", quota.DefaultLimit())
	tq.RecordFree(100)
	assert.Equal(t, uint64(0), tq.Usage.BytesUsed)
}

func TestInodeHardLimit(t *testing.T) {
	tq := quota.NewTenantQuota("t", quota.Limit{BytesHard: ^uint64(0), BytesSoft: ^uint64(0), InodesHard: 1, InodesSoft: 1, GraceSecs: 60})
	assert.True(t, tq.CanCreateInode(0))
	tq.RecordInodeCreate(0)
	assert.False(t, tq.CanCreateInode(0))
}
