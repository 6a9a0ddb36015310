package registry

import (
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// AttrSuperseded marks an installed member replaced by a newer registration
// of its URL. It is kept until the replacement is installed.
const AttrSuperseded = "registry.superseded"

// EntityResourceList is the ordered set of alternatives competing for one entity.
// Superseded members sort last, the others by priority (desc), version (desc),
// URL and digest; the first member is the active one.
type EntityResourceList struct {
	entityID  string
	resources []*resource.Resource
}

// NewEntityResourceList creates an empty group for an entity.
func NewEntityResourceList(entityID string) *EntityResourceList {
	return &EntityResourceList{entityID: entityID}
}

// EntityID returns the entity the group belongs to.
func (l *EntityResourceList) EntityID() string {
	return l.entityID
}

// Resources returns the members in order.
func (l *EntityResourceList) Resources() []*resource.Resource {
	return slices.Clone(l.resources)
}

// Active returns the active member or nil for an empty group.
func (l *EntityResourceList) Active() *resource.Resource {
	if len(l.resources) == 0 {
		return nil
	}
	return l.resources[0]
}

// Len returns the number of members.
func (l *EntityResourceList) Len() int {
	return len(l.resources)
}

// IsEmpty reports whether the group has no members.
func (l *EntityResourceList) IsEmpty() bool {
	return len(l.resources) == 0
}

// AddOrUpdate inserts r unless a member with the same URL and digest exists.
// The newest registration of a URL wins: other members with that URL are
// dropped, or superseded when already installed. A superseded member
// registered again is replaced by r, so its content is installed afresh.
// It reports whether the group changed.
func (l *EntityResourceList) AddOrUpdate(r *resource.Resource) bool {
	if i := slices.IndexFunc(l.resources, r.Same); i >= 0 {
		if !superseded(l.resources[i]) {
			return false
		}
		l.resources = slices.Delete(l.resources, i, i+1)
	}
	l.resources = append(l.resources, r)
	l.supersede(r)
	l.sort()
	return true
}

func (l *EntityResourceList) supersede(r *resource.Resource) {
	l.resources = slices.DeleteFunc(l.resources, func(m *resource.Resource) bool {
		if m == r || m.URL != r.URL {
			return false
		}
		if m.State == resource.StateInstalled {
			m.SetAttribute(AttrSuperseded, true)
			return false
		}
		return true
	})
}

func superseded(r *resource.Resource) bool {
	v, _ := r.Attribute(AttrSuperseded)
	b, _ := v.(bool)
	return b
}

// Remove drops every member with the given URL.
func (l *EntityResourceList) Remove(url string) bool {
	n := len(l.resources)
	l.resources = slices.DeleteFunc(l.resources, func(m *resource.Resource) bool {
		return m.URL == url
	})
	return len(l.resources) != n
}

// RemoveResource drops the member with the URL and digest of r.
func (l *EntityResourceList) RemoveResource(r *resource.Resource) bool {
	n := len(l.resources)
	l.resources = slices.DeleteFunc(l.resources, func(m *resource.Resource) bool {
		return m.Same(r)
	})
	return len(l.resources) != n
}

// Compact discards uninstalled members and ignored alternatives. Superseded
// members go once their replacement is installed. The active member is kept
// unless it is uninstalled.
func (l *EntityResourceList) Compact() bool {
	if len(l.resources) == 0 {
		return false
	}

	active := l.resources[0]
	replaced := active.State == resource.StateInstalled && !superseded(active)
	n := len(l.resources)
	l.resources = slices.DeleteFunc(l.resources, func(m *resource.Resource) bool {
		if replaced && m != active && superseded(m) {
			return true
		}
		switch m.State {
		case resource.StateUninstalled:
			return true
		case resource.StateIgnored:
			return m != active
		default:
			return false
		}
	})
	return len(l.resources) != n
}

func (l *EntityResourceList) sort() {
	slices.SortStableFunc(l.resources, compareResources)
}

// compareResources orders a before b when a should win the active slot.
func compareResources(a, b *resource.Resource) int {
	if sa, sb := superseded(a), superseded(b); sa != sb {
		if sa {
			return 1
		}
		return -1
	}
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}
	if c := compareVersions(a.Version, b.Version); c != 0 {
		return -c
	}
	if c := strings.Compare(a.URL, b.URL); c != 0 {
		return c
	}
	return strings.Compare(a.Digest, b.Digest)
}

// compareVersions compares semantic versions. Valid versions rank above
// invalid ones; two invalid versions compare lexically.
func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	va, vb := canonicalVersion(a), canonicalVersion(b)
	okA, okB := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case okA && okB:
		return semver.Compare(va, vb)
	case okA:
		return 1
	case okB:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func canonicalVersion(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
