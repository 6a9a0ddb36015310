package policy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// Engine evaluates admission policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a prepared deny query of one policy.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return e, nil
}

// Admit evaluates every enabled policy against r. A policy that fails to
// evaluate is reported in Decision.Errors and does not block r.
func (e *Engine) Admit(ctx context.Context, r *resource.Resource) (*Decision, error) {
	if r == nil {
		return nil, fmt.Errorf("resource is required")
	}
	start := time.Now()

	input := &Input{
		Resource: ResourceInput{
			URL:        r.URL,
			Digest:     r.Digest,
			EntityID:   r.EntityID,
			Type:       r.Type,
			Version:    r.Version,
			Priority:   r.Priority,
			Dictionary: nonNil(r.Dictionary),
			Attributes: nonNil(r.Attributes),
		},
		Context: Context{
			Timestamp: start,
			Operation: "admit",
		},
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	decision := &Decision{Allowed: true, EvaluatedAt: start}
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		decision.EvaluatedPolicies = append(decision.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("url", r.URL).
				Msg("Policy evaluation failed")
			decision.Errors = append(decision.Errors, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				decision.Allowed = false
				decision.Violations = append(decision.Violations, v)
			} else {
				decision.Warnings = append(decision.Warnings, v)
			}
		}
	}

	decision.Duration = time.Since(start)
	return decision, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// LoadPolicies loads policy files or directories and compiles them.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input))
		}
	}
	return violations, nil
}

// createViolation creates a Violation from a deny element.
func createViolation(policy *Policy, result interface{}, input *Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
		Resource: input.Resource.URL,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles the deny query of a policy and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	slices.SortFunc(policies, func(a, b Policy) int {
		return strings.Compare(a.Name, b.Name)
	})
	return policies
}

// EnablePolicy enables a policy.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled

	e.logger.Info().
		Str("policy", name).
		Bool("enabled", enabled).
		Msg("Policy state changed")

	return nil
}
