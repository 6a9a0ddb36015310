// Package registry holds the durable set of installable resources.
//
// Typed resources are grouped by entity id into an EntityResourceList whose
// first member is the active install target. Raw resources (plain files and
// property bags) wait in the untransformed list until a transformer assigns
// them a type. A resource lives in exactly one of the two places.
//
// The PersistentResourceList is restored from a versioned snapshot when it is
// created and written back with Save. Persistence is best effort: a snapshot
// that cannot be read yields an empty registry and a failed save is logged.
//
// The registry is not safe for concurrent use. It is owned by the installer
// driver and mutated only between task cycles.
package registry
