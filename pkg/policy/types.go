package policy

import (
	"time"
)

// Severity grades a violation. Only error and critical violations reject a
// resource.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of severity s rejects a resource.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a Rego module whose deny set lists the violations of the
// resource under admission.
type Policy struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rego        string `json:"rego"`

	// Severity applies to deny entries that do not carry their own.
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`
	Tags     []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Resource string   `json:"resource,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Decision is the outcome of admitting one resource.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Violations block the resource, Warnings do not.
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`

	// Errors names policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Resource ResourceInput `json:"resource"`
	Context  Context       `json:"context"`
}

// ResourceInput is the view of a resource exposed to policies.
type ResourceInput struct {
	URL        string         `json:"url"`
	Digest     string         `json:"digest"`
	EntityID   string         `json:"entity_id"`
	Type       string         `json:"type"`
	Version    string         `json:"version,omitempty"`
	Priority   int            `json:"priority"`
	Dictionary map[string]any `json:"dictionary"`
	Attributes map[string]any `json:"attributes"`
}

// Context describes the evaluation itself.
type Context struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}
