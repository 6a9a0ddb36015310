package hostrt

import "time"

// SystemArtifactID is the identity of the always-active system artifact.
const SystemArtifactID int64 = 0

// State is the lifecycle state of an artifact in the host runtime.
type State string

const (
	StateInstalled   State = "installed"
	StateActive      State = "active"
	StateUninstalled State = "uninstalled"
)

// Artifact describes an artifact known to the runtime.
type Artifact struct {
	ID           int64    `json:"id"`
	SymbolicName string   `json:"symbolic_name"`
	Version      string   `json:"version,omitempty"`
	Location     string   `json:"location"`
	State        State    `json:"state"`
	Requires     []string `json:"requires,omitempty"`
	StartLevel   int      `json:"start_level,omitempty"`
}

// Manifest is the YAML header carried by artifact content.
type Manifest struct {
	SymbolicName string   `yaml:"symbolic_name" validate:"required"`
	Version      string   `yaml:"version"`
	Requires     []string `yaml:"requires" validate:"dive,required"`
}

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventInstalled   EventKind = "installed"
	EventUpdated     EventKind = "updated"
	EventStarted     EventKind = "started"
	EventStopped     EventKind = "stopped"
	EventUninstalled EventKind = "uninstalled"
	EventFailed      EventKind = "failed"
)

// Event is one lifecycle event emitted by the runtime.
type Event struct {
	Kind       EventKind
	ArtifactID int64
	Sequence   int64
	Timestamp  time.Time
}

// Listener receives lifecycle events. Listeners run on the goroutine that
// caused the event and must not call back into the runtime.
type Listener func(Event)
