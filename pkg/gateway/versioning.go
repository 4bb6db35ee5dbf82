package gateway

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// VersioningState is a bucket's S3 object-versioning state.
type VersioningState int

const (
	Unversioned VersioningState = iota
	VersioningEnabled
	VersioningSuspended
)

// VersionID is a unique object version identifier, formatted
// "{unix_secs_hex}-{random_hex}".
type VersionID string

// GenerateVersionID derives a VersionID from a timestamp and random
// suffix, matching the source layout.
func GenerateVersionID(timestampSecs uint64, randomSuffix uint32) VersionID {
	return VersionID(fmt.Sprintf("%08x-%08x", timestampSecs, randomSuffix))
}

// NullVersionID is the sentinel version for unversioned objects.
const NullVersionID VersionID = "null"

// IsNull reports whether v is the null sentinel.
func (v VersionID) IsNull() bool { return v == NullVersionID }

// VersionType distinguishes a real object version from a delete marker.
type VersionType int

const (
	VersionObject VersionType = iota
	VersionDeleteMarker
)

// VersionEntry is one version in an object's history.
type VersionEntry struct {
	VersionID     VersionID
	Type          VersionType
	LastModified  uint64
	Size          uint64
	ETag          string
	IsLatest      bool
}

// IsDeleteMarker reports whether this entry is a delete marker.
func (e VersionEntry) IsDeleteMarker() bool { return e.Type == VersionDeleteMarker }

// objectVersionList holds one key's version history, newest last.
type objectVersionList struct {
	versions []VersionEntry
}

func (l *objectVersionList) addVersion(entry VersionEntry) {
	for i := range l.versions {
		l.versions[i].IsLatest = false
	}
	entry.IsLatest = true
	l.versions = append(l.versions, entry)
}

func (l *objectVersionList) latest() (VersionEntry, bool) {
	if len(l.versions) == 0 {
		return VersionEntry{}, false
	}
	return l.versions[len(l.versions)-1], true
}

func (l *objectVersionList) getVersion(id VersionID) (VersionEntry, bool) {
	for _, v := range l.versions {
		if v.VersionID == id {
			return v, true
		}
	}
	return VersionEntry{}, false
}

// BucketVersioning is one bucket's versioning configuration.
type BucketVersioning struct {
	State     VersioningState
	MFADelete bool
}

// EffectiveVersionID returns the version ID a new PUT should use: a
// generated ID when versioning is enabled, else the null sentinel.
func (b BucketVersioning) EffectiveVersionID(timestampSecs uint64, randomSuffix uint32) VersionID {
	if b.State == VersioningEnabled {
		return GenerateVersionID(timestampSecs, randomSuffix)
	}
	return NullVersionID
}

// VersioningRegistry tracks versioning configuration and version
// history for every bucket.
type VersioningRegistry struct {
	log *zap.Logger

	mu       sync.Mutex
	buckets  map[string]*BucketVersioning
	versions map[string]map[string]*objectVersionList
}

// NewVersioningRegistry returns an empty VersioningRegistry.
func NewVersioningRegistry(log *zap.Logger) *VersioningRegistry {
	return &VersioningRegistry{
		log:      log,
		buckets:  make(map[string]*BucketVersioning),
		versions: make(map[string]map[string]*objectVersionList),
	}
}

// SetVersioning sets bucket's versioning state.
func (r *VersioningRegistry) SetVersioning(bucket string, state VersioningState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.buckets[bucket]
	if !ok {
		cfg = &BucketVersioning{}
		r.buckets[bucket] = cfg
	}
	cfg.State = state
	if r.log != nil {
		r.log.Info("bucket versioning changed", zap.String("bucket", bucket), zap.Int("state", int(state)))
	}
}

// GetVersioning returns bucket's versioning state, Unversioned if unset.
func (r *VersioningRegistry) GetVersioning(bucket string) VersioningState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.buckets[bucket]
	if !ok {
		return Unversioned
	}
	return cfg.State
}

func (r *VersioningRegistry) keyVersionsLocked(bucket, key string) *objectVersionList {
	bucketVersions, ok := r.versions[bucket]
	if !ok {
		bucketVersions = make(map[string]*objectVersionList)
		r.versions[bucket] = bucketVersions
	}
	list, ok := bucketVersions[key]
	if !ok {
		list = &objectVersionList{}
		bucketVersions[key] = list
	}
	return list
}

// PutVersion records a new version for (bucket, key), called on PUT.
func (r *VersioningRegistry) PutVersion(bucket, key string, entry VersionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyVersionsLocked(bucket, key).addVersion(entry)
}

// GetCurrent returns the latest visible (non-delete-marker) version
// for (bucket, key).
func (r *VersioningRegistry) GetCurrent(bucket, key string) (VersionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucketVersions, ok := r.versions[bucket]
	if !ok {
		return VersionEntry{}, false
	}
	list, ok := bucketVersions[key]
	if !ok {
		return VersionEntry{}, false
	}
	latest, ok := list.latest()
	if !ok || latest.IsDeleteMarker() {
		return VersionEntry{}, false
	}
	return latest, true
}

// GetVersion returns a specific version of (bucket, key).
func (r *VersioningRegistry) GetVersion(bucket, key string, versionID VersionID) (VersionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucketVersions, ok := r.versions[bucket]
	if !ok {
		return VersionEntry{}, false
	}
	list, ok := bucketVersions[key]
	if !ok {
		return VersionEntry{}, false
	}
	return list.getVersion(versionID)
}

// ListVersions returns every version of (bucket, key), newest last.
func (r *VersioningRegistry) ListVersions(bucket, key string) []VersionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucketVersions, ok := r.versions[bucket]
	if !ok {
		return nil
	}
	list, ok := bucketVersions[key]
	if !ok {
		return nil
	}
	out := make([]VersionEntry, len(list.versions))
	copy(out, list.versions)
	return out
}

// DeleteVersion permanently removes a specific version of (bucket, key).
func (r *VersioningRegistry) DeleteVersion(bucket, key string, versionID VersionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucketVersions, ok := r.versions[bucket]
	if !ok {
		return claudefserrs.ErrBucketNotFound
	}
	list, ok := bucketVersions[key]
	if !ok {
		return claudefserrs.ErrObjectNotFound
	}

	idx := -1
	for i, v := range list.versions {
		if v.VersionID == versionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return claudefserrs.ErrObjectNotFound
	}

	list.versions = append(list.versions[:idx], list.versions[idx+1:]...)
	if len(list.versions) > 0 {
		list.versions[len(list.versions)-1].IsLatest = true
	}
	return nil
}

// AddDeleteMarker records a delete marker for (bucket, key), called on
// a DELETE without a version ID while versioning is enabled.
func (r *VersioningRegistry) AddDeleteMarker(bucket, key string, versionID VersionID, timestampSecs uint64) {
	r.PutVersion(bucket, key, VersionEntry{
		VersionID:    versionID,
		Type:         VersionDeleteMarker,
		LastModified: timestampSecs,
		IsLatest:     true,
	})
}
