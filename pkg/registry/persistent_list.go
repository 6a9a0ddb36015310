package registry

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/stores"
)

// SnapshotStore persists encoded registry snapshots.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// DigestCache remembers the last known digest of a URL.
type DigestCache interface {
	UpdateDigestCache(url, digest string)
}

// PersistentResourceList maps entity ids to resource groups and keeps the
// resources that still wait for a type.
type PersistentResourceList struct {
	store  SnapshotStore
	cache  DigestCache
	logger zerolog.Logger

	groups        map[string]*EntityResourceList
	untransformed []*resource.Resource
}

// New restores a registry from store. Any failure to read the snapshot leaves
// the registry empty. The digest cache is refilled from every resource whose
// content is still available. cache may be nil.
func New(ctx context.Context, store SnapshotStore, cache DigestCache, logger zerolog.Logger) *PersistentResourceList {
	l := &PersistentResourceList{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "registry").Logger(),
		groups: make(map[string]*EntityResourceList),
	}
	l.load(ctx)
	l.updateCache()
	return l
}

func (l *PersistentResourceList) load(ctx context.Context) {
	if l.store == nil {
		return
	}

	data, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, stores.ErrSnapshotNotFound) {
			l.logger.Debug().Msg("No persisted resource list, starting empty")
			return
		}
		l.logger.Warn().Err(err).Msg("Unable to restore resource list, starting empty")
		return
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Unable to restore resource list, starting empty")
		return
	}

	for id, members := range snap.Groups {
		group := NewEntityResourceList(id)
		for _, r := range members {
			if r != nil {
				group.resources = append(group.resources, r)
			}
		}
		if group.IsEmpty() {
			continue
		}
		group.sort()
		l.groups[id] = group
	}
	for _, r := range snap.Untransformed {
		if r != nil {
			l.untransformed = append(l.untransformed, r)
		}
	}

	l.logger.Debug().
		Int32("version", snap.Version).
		Int("groups", len(l.groups)).
		Int("untransformed", len(l.untransformed)).
		Msg("Restored resource list")
}

func (l *PersistentResourceList) updateCache() {
	if l.cache == nil {
		return
	}
	for _, group := range l.groups {
		for _, r := range group.resources {
			if r.HasContent() {
				l.cache.UpdateDigestCache(r.URL, r.Digest)
			}
		}
	}
}

// EntityIDs returns the ids of all groups in sorted order.
func (l *PersistentResourceList) EntityIDs() []string {
	ids := make([]string, 0, len(l.groups))
	for id := range l.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EntityResourceList returns the group of an entity or nil. It never creates a group.
func (l *PersistentResourceList) EntityResourceList(entityID string) *EntityResourceList {
	return l.groups[entityID]
}

// UntransformedResources returns the resources that have no type yet.
func (l *PersistentResourceList) UntransformedResources() []*resource.Resource {
	return slices.Clone(l.untransformed)
}

// ResourceCount returns the number of grouped resources.
func (l *PersistentResourceList) ResourceCount() int {
	n := 0
	for _, group := range l.groups {
		n += group.Len()
	}
	return n
}

// AddOrUpdate registers input unless a resource with the same URL and digest
// is already known and not superseded. It reports whether the registry
// changed.
func (l *PersistentResourceList) AddOrUpdate(input resource.InstallableResource) (bool, error) {
	if l.contains(input.URL, input.Digest) {
		return false, nil
	}

	r, err := resource.Create(input)
	if err != nil {
		l.logger.Warn().Err(err).Str("url", input.URL).Msg("Ignoring resource")
		return false, err
	}
	l.checkInstallable(r)
	if l.cache != nil && r.HasContent() {
		l.cache.UpdateDigestCache(r.URL, r.Digest)
	}
	return true, nil
}

func (l *PersistentResourceList) contains(url, digest string) bool {
	for _, group := range l.groups {
		for _, r := range group.resources {
			if r.URL == url && r.Digest == digest && !superseded(r) {
				return true
			}
		}
	}
	for _, r := range l.untransformed {
		if r.URL == url && r.Digest == digest {
			return true
		}
	}
	return false
}

// checkInstallable routes raw resources to the untransformed list and typed
// resources into the group of their entity.
func (l *PersistentResourceList) checkInstallable(r *resource.Resource) {
	if resource.IsRaw(r.Type) {
		l.untransformed = append(l.untransformed, r)
		return
	}

	group, ok := l.groups[r.EntityID]
	if !ok {
		group = NewEntityResourceList(r.EntityID)
		l.groups[r.EntityID] = group
	}
	group.AddOrUpdate(r)
}

// Transform replaces an untransformed resource with one typed clone per
// result. A result that cannot be applied is logged and skipped.
func (l *PersistentResourceList) Transform(r *resource.Resource, results []resource.TransformationResult) {
	l.untransformed = slices.DeleteFunc(l.untransformed, func(m *resource.Resource) bool {
		return m.Same(r)
	})

	for i, result := range results {
		clone, err := r.Clone(result)
		if err != nil {
			l.logger.Warn().
				Err(err).
				Str("url", r.URL).
				Int("result", i).
				Msg("Ignoring transformation result")
			continue
		}
		l.checkInstallable(clone)
	}
}

// RemoveUntransformed drops untransformed resources with the given URL.
func (l *PersistentResourceList) RemoveUntransformed(url string) bool {
	n := len(l.untransformed)
	l.untransformed = slices.DeleteFunc(l.untransformed, func(m *resource.Resource) bool {
		return m.URL == url
	})
	return len(l.untransformed) != n
}

// RemoveURL drops every resource with url from all groups.
func (l *PersistentResourceList) RemoveURL(url string) bool {
	changed := false
	for _, group := range l.groups {
		if group.Remove(url) {
			changed = true
		}
	}
	return changed
}

// Remove drops r from its own group.
func (l *PersistentResourceList) Remove(r *resource.Resource) bool {
	group, ok := l.groups[r.EntityID]
	if !ok {
		return false
	}
	return group.RemoveResource(r)
}

// Compact lets every group discard stale members and removes empty groups.
// It reports whether anything changed.
func (l *PersistentResourceList) Compact() bool {
	changed := false
	for id, group := range l.groups {
		if group.Compact() {
			changed = true
		}
		if group.IsEmpty() {
			delete(l.groups, id)
			changed = true
		}
	}
	return changed
}

// Snapshot encodes the current state.
func (l *PersistentResourceList) Snapshot() ([]byte, error) {
	groups := make(map[string][]*resource.Resource, len(l.groups))
	for id, group := range l.groups {
		groups[id] = group.resources
	}
	return EncodeSnapshot(groups, l.untransformed)
}

// Save writes the current state to the store and reports whether it was
// persisted. Failures are logged and the in-memory state stays authoritative.
func (l *PersistentResourceList) Save(ctx context.Context) bool {
	if l.store == nil {
		return false
	}

	data, err := l.Snapshot()
	if err != nil {
		l.logger.Warn().Err(err).Msg("Unable to encode resource list")
		return false
	}
	if err := l.store.Save(ctx, data); err != nil {
		l.logger.Warn().Err(err).Msg("Unable to save resource list")
		return false
	}
	l.logger.Debug().Int("bytes", len(data)).Msg("Persisted resource list")
	return true
}
