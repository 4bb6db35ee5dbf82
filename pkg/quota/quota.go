// Package quota implements per-tenant hard/soft/grace quota enforcement
// (spec §4.4, C5).
package quota

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// Limit defines a tenant's byte and inode ceilings.
type Limit struct {
	BytesHard     uint64
	BytesSoft     uint64
	InodesHard    uint64
	InodesSoft    uint64
	GraceSecs     uint64
}

// DefaultLimit returns effectively unlimited limits with a 7-day grace
// period, matching the Rust source's Default impl.
func DefaultLimit() Limit {
	return Limit{
		BytesHard:  ^uint64(0),
		BytesSoft:  ^uint64(0),
		InodesHard: ^uint64(0),
		InodesSoft: ^uint64(0),
		GraceSecs:  604800,
	}
}

// Usage is a tenant's current consumption.
type Usage struct {
	BytesUsed          uint64
	InodesUsed         uint64
	SoftExceededSince  *uint64 // epoch seconds; nil if not exceeded
}

// Status is the outcome of a quota check.
type Status int

const (
	Ok Status = iota
	SoftExceeded
	GraceExpired
	HardExceeded
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case SoftExceeded:
		return "soft-exceeded"
	case GraceExpired:
		return "grace-expired"
	case HardExceeded:
		return "hard-exceeded"
	default:
		return "unknown"
	}
}

// StatusResult carries the status plus, for SoftExceeded, the remaining
// grace seconds.
type StatusResult struct {
	Status        Status
	GraceRemaining uint64
}

// TenantQuota tracks one tenant's limit and usage.
type TenantQuota struct {
	TenantID string
	Limit    Limit
	Usage    Usage
}

// NewTenantQuota returns a zero-usage TenantQuota.
func NewTenantQuota(tenantID string, limit Limit) *TenantQuota {
	return &TenantQuota{TenantID: tenantID, Limit: limit}
}

// CheckStatus evaluates the tenant's current status at nowSecs.
func (t *TenantQuota) CheckStatus(nowSecs uint64) StatusResult {
	if t.Usage.BytesUsed > t.Limit.BytesHard || t.Usage.InodesUsed > t.Limit.InodesHard {
		return StatusResult{Status: HardExceeded}
	}

	bytesSoftExceeded := t.Usage.BytesUsed > t.Limit.BytesSoft
	inodesSoftExceeded := t.Usage.InodesUsed > t.Limit.InodesSoft
	if !bytesSoftExceeded && !inodesSoftExceeded {
		return StatusResult{Status: Ok}
	}

	if t.Usage.SoftExceededSince == nil {
		return StatusResult{Status: SoftExceeded, GraceRemaining: t.Limit.GraceSecs}
	}

	elapsed := saturatingSub(nowSecs, *t.Usage.SoftExceededSince)
	if elapsed >= t.Limit.GraceSecs {
		return StatusResult{Status: GraceExpired}
	}
	return StatusResult{Status: SoftExceeded, GraceRemaining: t.Limit.GraceSecs - elapsed}
}

// CanAllocate reports whether bytes more can be allocated at nowSecs.
func (t *TenantQuota) CanAllocate(bytes uint64, nowSecs uint64) bool {
	switch t.CheckStatus(nowSecs).Status {
	case Ok, SoftExceeded:
		return saturatingAdd(t.Usage.BytesUsed, bytes) <= t.Limit.BytesHard
	default:
		return false
	}
}

// CanCreateInode reports whether a new inode can be created at nowSecs.
func (t *TenantQuota) CanCreateInode(nowSecs uint64) bool {
	switch t.CheckStatus(nowSecs).Status {
	case Ok, SoftExceeded:
		return t.Usage.InodesUsed < t.Limit.InodesHard
	default:
		return false
	}
}

// RecordAllocation records bytes allocated, starting the soft-exceeded
// grace clock on the allocation that first crosses a soft boundary.
func (t *TenantQuota) RecordAllocation(bytes uint64, nowSecs uint64) {
	wasUnderSoft := t.Usage.BytesUsed <= t.Limit.BytesSoft && t.Usage.InodesUsed <= t.Limit.InodesSoft
	t.Usage.BytesUsed = saturatingAdd(t.Usage.BytesUsed, bytes)
	isOverSoft := t.Usage.BytesUsed > t.Limit.BytesSoft || t.Usage.InodesUsed > t.Limit.InodesSoft

	if wasUnderSoft && isOverSoft {
		now := nowSecs
		t.Usage.SoftExceededSince = &now
	}
}

// RecordFree records bytes freed, clearing the soft-exceeded marker once
// usage drops back under both soft limits.
func (t *TenantQuota) RecordFree(bytes uint64) {
	t.Usage.BytesUsed = saturatingSub(t.Usage.BytesUsed, bytes)
	if t.Usage.BytesUsed <= t.Limit.BytesSoft && t.Usage.InodesUsed <= t.Limit.InodesSoft {
		t.Usage.SoftExceededSince = nil
	}
}

// RecordInodeCreate records one inode created by this tenant.
func (t *TenantQuota) RecordInodeCreate(nowSecs uint64) {
	wasUnderSoft := t.Usage.BytesUsed <= t.Limit.BytesSoft && t.Usage.InodesUsed <= t.Limit.InodesSoft
	t.Usage.InodesUsed++
	isOverSoft := t.Usage.BytesUsed > t.Limit.BytesSoft || t.Usage.InodesUsed > t.Limit.InodesSoft

	if wasUnderSoft && isOverSoft {
		now := nowSecs
		t.Usage.SoftExceededSince = &now
	}
}

// RecordInodeDelete records one inode deleted by this tenant.
func (t *TenantQuota) RecordInodeDelete() {
	t.Usage.InodesUsed = saturatingSub(t.Usage.InodesUsed, 1)
	if t.Usage.BytesUsed <= t.Limit.BytesSoft && t.Usage.InodesUsed <= t.Limit.InodesSoft {
		t.Usage.SoftExceededSince = nil
	}
}

// UsagePct returns bytes usage as a percentage of the hard limit.
func (t *TenantQuota) UsagePct() float64 {
	if t.Limit.BytesHard == ^uint64(0) || t.Limit.BytesHard == 0 {
		return 0
	}
	return 100 * float64(t.Usage.BytesUsed) / float64(t.Limit.BytesHard)
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a { // overflow
		return ^uint64(0)
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Stats tracks manager-wide counters.
type Stats struct {
	SoftWarnings uint64
	Rejections   uint64
}

// Manager owns a table of TenantQuota entries, mutated under a single
// short critical section per spec §5's shared-resource policy.
type Manager struct {
	log           *zap.Logger
	defaultLimit  Limit

	mu      sync.Mutex
	tenants map[string]*TenantQuota
	stats   Stats
}

// NewManager returns a Manager; tenants must be registered via AddTenant
// before any allocation check succeeds (no implicit creation, per §4.4).
func NewManager(log *zap.Logger, defaultLimit Limit) *Manager {
	return &Manager{
		log:          log,
		defaultLimit: defaultLimit,
		tenants:      make(map[string]*TenantQuota),
	}
}

// AddTenant registers tenantID with limit.
func (m *Manager) AddTenant(tenantID string, limit Limit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenantID] = NewTenantQuota(tenantID, limit)
}

// RemoveTenant deregisters tenantID, returning its final state if present.
func (m *Manager) RemoveTenant(tenantID string) (*TenantQuota, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if ok {
		delete(m.tenants, tenantID)
	}
	return t, ok
}

// GetTenant returns a copy of tenantID's current quota state.
func (m *Manager) GetTenant(tenantID string) (TenantQuota, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return TenantQuota{}, false
	}
	return *t, true
}

// CheckAllocation returns nil if bytes may be allocated to tenantID at
// nowSecs, or a typed claudefserrs.Capacity error otherwise. Tenants not
// registered fail with OutOfSpace (no implicit creation).
func (m *Manager) CheckAllocation(tenantID string, bytes uint64, nowSecs uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return claudefserrs.ErrOutOfSpace
	}
	if !t.CanAllocate(bytes, nowSecs) {
		status := t.CheckStatus(nowSecs).Status
		if status == GraceExpired {
			return claudefserrs.Capacity.New("grace period expired for tenant %s", tenantID)
		}
		return claudefserrs.ErrOutOfSpace
	}
	return nil
}

// RecordAllocation mutates tenantID's usage after an allocation has been
// admitted. Logs and counts a soft warning when this call is the one
// that first crosses the soft boundary.
func (m *Manager) RecordAllocation(tenantID string, bytes uint64, nowSecs uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return claudefserrs.ErrOutOfSpace
	}

	before := t.Usage.SoftExceededSince
	t.RecordAllocation(bytes, nowSecs)
	if before == nil && t.Usage.SoftExceededSince != nil {
		m.stats.SoftWarnings++
		if m.log != nil {
			m.log.Warn("tenant exceeded soft quota",
				zap.String("tenant_id", tenantID),
				zap.Uint64("bytes_used", t.Usage.BytesUsed),
				zap.Uint64("bytes_soft", t.Limit.BytesSoft))
		}
	}
	return nil
}

// RecordFree mutates tenantID's usage after a free.
func (m *Manager) RecordFree(tenantID string, bytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return claudefserrs.ErrOutOfSpace
	}
	t.RecordFree(bytes)
	return nil
}

// TenantCount returns the number of registered tenants.
func (m *Manager) TenantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

// TotalUsageBytes sums BytesUsed across all registered tenants.
func (m *Manager) TotalUsageBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, t := range m.tenants {
		total += t.Usage.BytesUsed
	}
	return total
}

// Stats returns a snapshot of manager-wide counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
