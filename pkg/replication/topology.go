// Package replication implements the cross-site replication engine of
// spec §4.9 (C10): per-(site, stream) WAL cursors, conflict detection,
// and send/receive statistics.
package replication

import "sync"

// RoleKind distinguishes a remote site's role in the replication graph.
type RoleKind int

const (
	RolePrimary RoleKind = iota
	RoleReplica
)

// Role describes a site's replication role; PrimarySiteID is only
// meaningful when Kind is RoleReplica.
type Role struct {
	Kind          RoleKind
	PrimarySiteID uint64
}

// SiteInfo describes one remote site registered with the topology.
type SiteInfo struct {
	SiteID    uint64
	Name      string
	Addresses []string
	Role      Role
}

// Topology tracks the set of remote sites known to the local engine,
// keyed by site ID with no back-pointers (spec §9's cyclic-structure
// note: sibling maps, no cycles).
type Topology struct {
	localSiteID uint64

	mu    sync.RWMutex
	sites map[uint64]SiteInfo
}

// NewTopology returns a Topology for localSiteID with no remote sites.
func NewTopology(localSiteID uint64) *Topology {
	return &Topology{localSiteID: localSiteID, sites: make(map[uint64]SiteInfo)}
}

// UpsertSite adds or replaces info in the topology.
func (t *Topology) UpsertSite(info SiteInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sites[info.SiteID] = info
}

// RemoveSite removes siteID from the topology.
func (t *Topology) RemoveSite(siteID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sites, siteID)
}

// AllSites returns every registered site, in no particular order.
func (t *Topology) AllSites() []SiteInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SiteInfo, 0, len(t.sites))
	for _, s := range t.sites {
		out = append(out, s)
	}
	return out
}

// SiteByName returns the registered site whose Name matches name, if any.
// Gateway replication rules name destinations by bucket/region, not site
// ID, so this is the lookup the engine uses to resolve them.
func (t *Topology) SiteByName(name string) (SiteInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteInfo{}, false
}
