// Package installer drives the reconciliation cycles.
//
// Each cycle drains the changes reported by providers into the registry,
// transforms raw resources, admits the active resource of every entity, runs
// the resulting tasks in sort-key order and finally compacts and saves the
// registry. Run repeats cycles on an interval or as soon as it is woken.
package installer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/policy"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/registry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/transform"
)

// Attribute written by admission.
const AttrAdmitted = "policy.admitted"

// Admitter decides whether a typed resource may be installed.
type Admitter interface {
	Admit(ctx context.Context, r *resource.Resource) (*policy.Decision, error)
}

// TaskCreator builds the task for the active resource of an entity.
type TaskCreator interface {
	CreateTask(r *resource.Resource) engine.Task
}

// DigestCache is updated when providers report removals.
type DigestCache interface {
	RemoveFromDigestCache(url string)
}

// Options configures an Installer.
type Options struct {
	Registry    *registry.PersistentResourceList
	Transformer transform.Transformer
	Creator     TaskCreator
	Runner      *engine.Runner

	// Admitter may be nil, in which case every resource is admitted.
	Admitter Admitter

	// Cache may be nil.
	Cache DigestCache

	Metrics *telemetry.Metrics
	Logger  zerolog.Logger

	// Interval between cycles when nothing wakes the installer.
	Interval time.Duration
}

// CycleReport summarizes one installer cycle.
type CycleReport struct {
	Cycle *engine.CycleResult

	// Changes is the number of provider changes applied.
	Changes int

	// Transformed is the number of raw resources that received a type.
	Transformed int

	// Denied is the number of resources rejected by admission.
	Denied int

	// Changed reports whether the registry was modified.
	Changed bool

	// Saved reports whether the registry was persisted.
	Saved bool
}

// Installer owns the registry and runs cycles on a single goroutine.
type Installer struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	changes []resource.Change
	wake    chan struct{}

	// carried holds tasks without a backing resource for the next cycle.
	carried []engine.Task

	// unhandled remembers raw resources no transformer accepted, by URL and digest.
	unhandled map[string]struct{}
}

// New creates an installer.
func New(opts Options) *Installer {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Second
	}
	return &Installer{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "installer").Logger(),
		wake:      make(chan struct{}, 1),
		unhandled: make(map[string]struct{}),
	}
}

// Registry returns the resource registry.
func (i *Installer) Registry() *registry.PersistentResourceList {
	return i.opts.Registry
}

// Submit queues a provider change and wakes the installer. It is safe for
// concurrent use.
func (i *Installer) Submit(c resource.Change) {
	i.mu.Lock()
	i.changes = append(i.changes, c)
	pending := len(i.changes)
	i.mu.Unlock()

	i.opts.Metrics.SetPendingChanges(pending)
	i.Wake()
}

// Wake requests a cycle as soon as possible. It is safe for concurrent use
// and never blocks.
func (i *Installer) Wake() {
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// OnEvent is a hostrt.Listener waking the installer when the runtime changes.
// Failure events are ignored since they cannot unblock a waiting task.
func (i *Installer) OnEvent(ev hostrt.Event) {
	if ev.Kind == hostrt.EventFailed {
		return
	}
	i.Wake()
}

// Run executes cycles until ctx ends.
func (i *Installer) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.opts.Interval)
	defer ticker.Stop()

	i.logger.Info().Dur("interval", i.opts.Interval).Msg("Installer started")
	for {
		i.RunCycle(ctx)

		select {
		case <-ctx.Done():
			i.logger.Info().Msg("Installer stopped")
			return nil
		case <-ticker.C:
		case <-i.wake:
		}
	}
}

// RunCycle executes one cycle. It must not be called concurrently.
func (i *Installer) RunCycle(ctx context.Context) *CycleReport {
	report := &CycleReport{}
	reg := i.opts.Registry

	report.Changes = i.applyChanges()
	if report.Changes > 0 {
		report.Changed = true
	}

	report.Transformed = i.transform(ctx)
	if report.Transformed > 0 {
		report.Changed = true
	}

	var tasks []engine.Task
	for _, id := range reg.EntityIDs() {
		active := reg.EntityResourceList(id).Active()
		if active == nil || active.State != resource.StateRegistered {
			continue
		}
		if !i.admit(ctx, active) {
			if active.State == resource.StateIgnored {
				report.Denied++
				report.Changed = true
			}
			continue
		}
		if t := i.opts.Creator.CreateTask(active); t != nil {
			tasks = append(tasks, t)
		}
	}
	tasks = append(tasks, i.carried...)
	i.carried = nil

	if len(tasks) > 0 {
		report.Cycle = i.opts.Runner.RunCycle(ctx, tasks)
		i.carried = report.Cycle.Next
		i.handleFailures(report.Cycle)
		// tasks record their progress on the resources
		report.Changed = true
	}

	if reg.Compact() {
		report.Changed = true
	}
	if report.Changed {
		report.Saved = reg.Save(ctx)
		i.opts.Metrics.RecordSnapshotSave(report.Saved)
	}
	i.opts.Metrics.SetRegistryResources(reg.ResourceCount(), len(reg.UntransformedResources()))

	return report
}

func (i *Installer) applyChanges() int {
	i.mu.Lock()
	changes := i.changes
	i.changes = nil
	i.mu.Unlock()
	i.opts.Metrics.SetPendingChanges(0)

	reg := i.opts.Registry
	applied := 0
	for _, c := range changes {
		switch c.Kind {
		case resource.ChangeAdd:
			changed, err := reg.AddOrUpdate(c.Resource)
			if err != nil {
				continue
			}
			if changed {
				applied++
			}
		case resource.ChangeRemove:
			removed := reg.RemoveURL(c.URL)
			if reg.RemoveUntransformed(c.URL) {
				removed = true
			}
			if i.opts.Cache != nil {
				i.opts.Cache.RemoveFromDigestCache(c.URL)
			}
			if removed {
				applied++
				i.logger.Info().Str("url", c.URL).Msg("Resource removed")
			}
		default:
			i.logger.Warn().Str("kind", string(c.Kind)).Str("url", c.URL).Msg("Ignoring unknown change")
		}
	}
	return applied
}

// transform asks the transformer about every raw resource and reports how
// many received a type. Failures are retried in the next cycle; resources
// nobody handles are not asked about again.
func (i *Installer) transform(ctx context.Context) int {
	if i.opts.Transformer == nil {
		return 0
	}

	transformed := 0
	for _, r := range i.opts.Registry.UntransformedResources() {
		key := r.URL + "#" + r.Digest
		if _, ok := i.unhandled[key]; ok {
			continue
		}

		r.SetState(resource.StateTransforming)
		results, err := i.opts.Transformer.Transform(ctx, r)
		r.SetState(resource.StateRegistered)
		if err != nil {
			i.logger.Warn().Err(err).Str("url", r.URL).Msg("Transformation failed, retrying later")
			i.opts.Metrics.RecordTransformation("failed")
			continue
		}
		if len(results) == 0 {
			i.logger.Info().Str("url", r.URL).Msg("No transformer handles resource")
			i.opts.Metrics.RecordTransformation("unhandled")
			i.unhandled[key] = struct{}{}
			continue
		}

		i.opts.Registry.Transform(r, results)
		i.opts.Metrics.RecordTransformation("ok")
		transformed++
	}
	return transformed
}

// admit evaluates admission once per resource and reports whether r may be
// installed. A denied resource is set to ignored.
func (i *Installer) admit(ctx context.Context, r *resource.Resource) bool {
	if i.opts.Admitter == nil {
		return true
	}
	if v, _ := r.Attribute(AttrAdmitted); v == true {
		return true
	}

	decision, err := i.opts.Admitter.Admit(ctx, r)
	if err != nil {
		i.logger.Warn().Err(err).Str("url", r.URL).Msg("Admission failed, retrying later")
		return false
	}
	for _, w := range decision.Warnings {
		i.logger.Warn().Str("url", r.URL).Str("policy", w.Policy).Msg(w.Message)
	}
	i.opts.Metrics.RecordAdmission(decision.Allowed)

	if !decision.Allowed {
		for _, v := range decision.Violations {
			i.logger.Error().
				Str("url", r.URL).
				Str("entity_id", r.EntityID).
				Str("policy", v.Policy).
				Str("severity", string(v.Severity)).
				Msg(v.Message)
		}
		r.SetState(resource.StateIgnored)
		return false
	}
	r.SetAttribute(AttrAdmitted, true)
	return true
}

// resourceTask is implemented by tasks bound to a registered resource.
type resourceTask interface {
	Resource() *resource.Resource
}

// handleFailures ignores resources whose task failed permanently.
func (i *Installer) handleFailures(result *engine.CycleResult) {
	for _, f := range result.Failures {
		if !engine.IsPermanent(f.Err) {
			continue
		}
		rt, ok := f.Task.(resourceTask)
		if !ok || rt.Resource() == nil {
			continue
		}
		r := rt.Resource()
		r.SetState(resource.StateIgnored)
		i.logger.Error().
			Err(f.Err).
			Str("url", r.URL).
			Str("entity_id", r.EntityID).
			Msg("Resource cannot be installed, ignoring it")
	}
}
