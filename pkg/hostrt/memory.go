package hostrt

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Memory is an in-memory host runtime. Artifact content is a YAML manifest
// naming the artifact and the symbolic names it requires; an artifact starts
// only once every requirement is active.
type Memory struct {
	mu        sync.RWMutex
	artifacts map[int64]*Artifact
	nextID    int64

	events    EventCounter
	listeners []Listener

	validate *validator.Validate
	logger   zerolog.Logger
}

// NewMemory creates a runtime holding only the active system artifact.
func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		artifacts: map[int64]*Artifact{
			SystemArtifactID: {
				ID:           SystemArtifactID,
				SymbolicName: "system",
				Location:     "system:",
				State:        StateActive,
			},
		},
		nextID:   SystemArtifactID + 1,
		validate: validator.New(),
		logger:   logger.With().Str("component", "hostrt").Logger(),
	}
}

// Subscribe registers a listener for lifecycle events.
func (m *Memory) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// TotalEvents returns the global lifecycle event count.
func (m *Memory) TotalEvents() int64 {
	return m.events.TotalEvents()
}

// ParseManifest decodes and validates an artifact manifest.
func (m *Memory) ParseManifest(content io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact content: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse artifact manifest: %w", err)
	}
	if err := m.validate.Struct(&manifest); err != nil {
		return nil, fmt.Errorf("invalid artifact manifest: %w", err)
	}
	return &manifest, nil
}

// Install installs content from location and returns the artifact id.
// Installing a location again updates the existing artifact in place.
func (m *Memory) Install(_ context.Context, location string, content io.Reader) (int64, error) {
	manifest, err := m.ParseManifest(content)
	if err != nil {
		m.emit(EventFailed, -1)
		return 0, err
	}

	m.mu.Lock()
	a := m.findByLocation(location)
	kind := EventUpdated
	if a == nil {
		a = &Artifact{ID: m.nextID, Location: location}
		m.artifacts[a.ID] = a
		m.nextID++
		kind = EventInstalled
	}
	a.SymbolicName = manifest.SymbolicName
	a.Version = manifest.Version
	a.Requires = slices.Clone(manifest.Requires)
	a.State = StateInstalled
	id := a.ID
	m.mu.Unlock()

	m.logger.Debug().
		Int64("artifact_id", id).
		Str("location", location).
		Str("symbolic_name", manifest.SymbolicName).
		Msg("Artifact installed")
	m.emit(kind, id)
	return id, nil
}

func (m *Memory) findByLocation(location string) *Artifact {
	for _, a := range m.artifacts {
		if a.Location == location && a.State != StateUninstalled {
			return a
		}
	}
	return nil
}

// Artifact returns a copy of the artifact with the given id.
func (m *Memory) Artifact(id int64) (Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[id]
	if !ok {
		return Artifact{}, false
	}
	c := *a
	c.Requires = slices.Clone(a.Requires)
	return c, true
}

// Artifacts returns all artifacts ordered by id.
func (m *Memory) Artifacts() []Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Artifact, 0, len(m.artifacts))
	for _, a := range m.artifacts {
		c := *a
		c.Requires = slices.Clone(a.Requires)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start activates an artifact. It fails while a requirement is not active.
func (m *Memory) Start(_ context.Context, id int64) error {
	m.mu.Lock()
	a, ok := m.artifacts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("artifact %d not found", id)
	}
	if a.State == StateActive {
		m.mu.Unlock()
		return nil
	}

	var missing []string
	for _, req := range a.Requires {
		if !m.isActive(req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		m.mu.Unlock()
		m.emit(EventFailed, id)
		return fmt.Errorf("artifact %d has unresolved requirements: %s", id, strings.Join(missing, ", "))
	}
	a.State = StateActive
	m.mu.Unlock()

	m.emit(EventStarted, id)
	return nil
}

func (m *Memory) isActive(symbolicName string) bool {
	for _, a := range m.artifacts {
		if a.SymbolicName == symbolicName && a.State == StateActive {
			return true
		}
	}
	return false
}

// Stop moves an active artifact back to installed.
func (m *Memory) Stop(_ context.Context, id int64) error {
	if id == SystemArtifactID {
		return fmt.Errorf("the system artifact cannot be stopped")
	}

	m.mu.Lock()
	a, ok := m.artifacts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("artifact %d not found", id)
	}
	if a.State != StateActive {
		m.mu.Unlock()
		return nil
	}
	a.State = StateInstalled
	m.mu.Unlock()

	m.emit(EventStopped, id)
	return nil
}

// Uninstall removes an artifact.
func (m *Memory) Uninstall(_ context.Context, id int64) error {
	if id == SystemArtifactID {
		return fmt.Errorf("the system artifact cannot be uninstalled")
	}

	m.mu.Lock()
	if _, ok := m.artifacts[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("artifact %d not found", id)
	}
	delete(m.artifacts, id)
	m.mu.Unlock()

	m.emit(EventUninstalled, id)
	return nil
}

// SetStartLevel assigns a start level to an artifact.
func (m *Memory) SetStartLevel(id int64, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.artifacts[id]
	if !ok {
		return fmt.Errorf("artifact %d not found", id)
	}
	a.StartLevel = level
	return nil
}

// emit notifies listeners. Failures are reported but do not advance the
// event count, so a rejected operation never satisfies a retry threshold.
func (m *Memory) emit(kind EventKind, id int64) {
	var seq int64
	if kind == EventFailed {
		seq = m.events.TotalEvents()
	} else {
		seq = m.events.Inc()
	}

	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()

	ev := Event{Kind: kind, ArtifactID: id, Sequence: seq, Timestamp: time.Now()}
	for _, l := range listeners {
		l(ev)
	}
}
