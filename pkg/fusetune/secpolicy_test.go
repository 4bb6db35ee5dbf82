package fusetune_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dirkpetersen/claudefs/pkg/fusetune"
)

func TestCapabilitySetAddDedup(t *testing.T) {
	s := fusetune.NewCapabilitySet()
	s.Add(fusetune.CapSysAdmin)
	s.Add(fusetune.CapSysAdmin)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(fusetune.CapSysAdmin))
}

func TestCapabilitySetRemove(t *testing.T) {
	s := fusetune.NewCapabilitySet()
	s.Add(fusetune.CapChown)
	assert.True(t, s.Remove(fusetune.CapChown))
	assert.False(t, s.Remove(fusetune.CapChown))
	assert.True(t, s.IsEmpty())
}

func TestFuseMinimal(t *testing.T) {
	s := fusetune.FuseMinimal()
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(fusetune.CapSysAdmin))
}

func TestSyscallPolicyNoAllowlistAllowsUnlessBlocked(t *testing.T) {
	p := fusetune.NewSyscallPolicy()
	assert.True(t, p.IsAllowed("read"))
	p.Block("ptrace")
	assert.False(t, p.IsAllowed("ptrace"))
	assert.True(t, p.IsBlocked("ptrace"))
}

func TestFuseAllowlistRejectsUnlisted(t *testing.T) {
	p := fusetune.FuseAllowlist()
	assert.True(t, p.IsAllowed("read"))
	assert.True(t, p.IsAllowed("openat"))
	assert.False(t, p.IsAllowed("ptrace"))
	assert.Equal(t, fusetune.SeccompEnforce, p.Mode())
}

func TestFuseAllowlistRespectsBlockEvenIfAllowed(t *testing.T) {
	p := fusetune.FuseAllowlist()
	p.Block("mount")
	assert.False(t, p.IsAllowed("mount"))
}

func TestWithMode(t *testing.T) {
	p := fusetune.NewSyscallPolicy()
	p.WithMode(fusetune.SeccompLog)
	assert.Equal(t, fusetune.SeccompLog, p.Mode())
}

func TestMountNamespaceAge(t *testing.T) {
	created := time.Unix(1000, 0)
	ns := fusetune.NewMountNamespace(42, 1234, created)
	assert.Equal(t, 10*time.Second, ns.Age(created.Add(10*time.Second)))
	assert.Equal(t, time.Duration(0), ns.Age(created.Add(-time.Second)))
}

func TestDefaultSecurityProfile(t *testing.T) {
	p := fusetune.DefaultSecurityProfile()
	assert.True(t, p.RequiredCapabilities().IsEmpty())
	assert.True(t, p.IsSyscallPermitted("ptrace"))
	assert.False(t, p.EnforceNoNewPrivs())
	_, ok := p.MountNamespace()
	assert.False(t, ok)
}

func TestHardenedSecurityProfile(t *testing.T) {
	p := fusetune.HardenedSecurityProfile()
	assert.True(t, p.RequiredCapabilities().Contains(fusetune.CapSysAdmin))
	assert.True(t, p.IsSyscallPermitted("read"))
	assert.False(t, p.IsSyscallPermitted("ptrace"))
	assert.True(t, p.EnforceNoNewPrivs())
}

func TestSecurityProfileWithMountNamespace(t *testing.T) {
	p := fusetune.DefaultSecurityProfile()
	ns := fusetune.NewMountNamespace(1, 1, time.Unix(0, 0))
	p.WithMountNamespace(ns)

	got, ok := p.MountNamespace()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), got.NsID)
}

func TestSecurityProfileWithNoNewPrivs(t *testing.T) {
	p := fusetune.DefaultSecurityProfile()
	p.WithNoNewPrivs(true)
	assert.True(t, p.EnforceNoNewPrivs())
}
