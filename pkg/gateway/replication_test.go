package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/gateway"
)

func TestReplicationRuleMatchesPrefix(t *testing.T) {
	rule := gateway.ReplicationRule{
		Enabled: true,
		Filter:  gateway.ReplicationFilter{Prefix: "logs/"},
	}
	assert.True(t, rule.Matches("logs/app.log", nil))
	assert.False(t, rule.Matches("data/app.log", nil))
}

func TestReplicationRuleMatchesTags(t *testing.T) {
	rule := gateway.ReplicationRule{
		Enabled: true,
		Filter:  gateway.ReplicationFilter{Tags: map[string]string{"env": "prod"}},
	}
	assert.True(t, rule.Matches("k", map[string]string{"env": "prod"}))
	assert.False(t, rule.Matches("k", map[string]string{"env": "dev"}))
	assert.False(t, rule.Matches("k", nil))
}

func TestReplicationRuleDisabledNeverMatches(t *testing.T) {
	rule := gateway.ReplicationRule{Enabled: false}
	assert.False(t, rule.Matches("anything", nil))
}

func TestMatchingRulesSortedByPriorityDesc(t *testing.T) {
	cfg := gateway.BucketReplicationConfig{
		Rules: []gateway.ReplicationRule{
			{ID: "low", Enabled: true, Priority: 1},
			{ID: "high", Enabled: true, Priority: 10},
			{ID: "mid", Enabled: true, Priority: 5},
		},
	}

	matched := cfg.MatchingRules("k", nil)
	require.Len(t, matched, 3)
	assert.Equal(t, "high", matched[0].ID)
	assert.Equal(t, "mid", matched[1].ID)
	assert.Equal(t, "low", matched[2].ID)
}

func TestDestinationsFor(t *testing.T) {
	cfg := gateway.BucketReplicationConfig{
		Rules: []gateway.ReplicationRule{
			{Enabled: true, Destination: gateway.ReplicationDestination{Bucket: "replica-1"}},
		},
	}
	dests := cfg.DestinationsFor("k", nil)
	require.Len(t, dests, 1)
	assert.Equal(t, "replica-1", dests[0].Bucket)
}

func TestReplicationQueueLifecycle(t *testing.T) {
	q := gateway.NewReplicationQueue(3)
	q.Enqueue(gateway.ObjectReplicationEntry{ObjectKey: "k", RuleID: "r1", DestBucket: "d1"})

	assert.Equal(t, 1, q.PendingCount())

	q.MarkFailed("k", "r1", "d1")
	assert.Equal(t, 1, q.FailedCount())
	assert.Equal(t, 0, q.PendingCount())

	retryable := q.GetRetryable()
	require.Len(t, retryable, 1)
	assert.Equal(t, uint32(1), retryable[0].Retries)

	q.MarkCompleted("k", "r1", "d1")
	assert.Equal(t, 0, q.FailedCount())

	assert.True(t, q.Remove("k", "r1", "d1"))
	assert.Equal(t, 0, q.Len())
}

func TestReplicationQueueRetryExhaustion(t *testing.T) {
	q := gateway.NewReplicationQueue(1)
	q.Enqueue(gateway.ObjectReplicationEntry{ObjectKey: "k", RuleID: "r1", DestBucket: "d1"})
	q.MarkFailed("k", "r1", "d1")

	assert.Empty(t, q.GetRetryable(), "retries already at max are no longer retryable")
}
