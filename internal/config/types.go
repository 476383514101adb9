package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chr1sbest/stepper/internal/resilience"
)

// Flow represents a step flow loaded from YAML.
type Flow struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Retry       *RetryConfig `yaml:"retry,omitempty"` // Default retry for every step
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig defines a single step in the flow.
type StepConfig struct {
	Key        string       `yaml:"key"`
	Type       string       `yaml:"type"`
	HelperText string       `yaml:"helper_text,omitempty"`
	Enabled    *bool        `yaml:"enabled,omitempty"`
	Retry      *RetryConfig `yaml:"retry,omitempty"`
	Config     yaml.Node    `yaml:"config,omitempty"` // Decoded by the step type
}

// RetryConfig is the flow-file form of resilience.RetryConfig.
// Unset fields inherit from the enclosing level.
type RetryConfig struct {
	Policy  string `yaml:"policy,omitempty"`  // Named preset, e.g. "quick"
	Times   *int   `yaml:"times,omitempty"`   // Maximum attempts
	Timeout string `yaml:"timeout,omitempty"` // Backoff unit, e.g. "500ms"
}

// IsEnabled returns whether the step is enabled (defaults to true).
func (s StepConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// Apply layers r on top of base. A nil receiver returns base unchanged.
func (r *RetryConfig) Apply(base resilience.RetryConfig) (resilience.RetryConfig, error) {
	if r == nil {
		return base, nil
	}

	out := base
	if r.Policy != "" {
		p, ok := resilience.PolicyByName(r.Policy)
		if !ok {
			return base, fmt.Errorf("unknown retry policy %q", r.Policy)
		}
		out = p.ToConfig()
	}
	if r.Times != nil {
		out.Times = *r.Times
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return base, fmt.Errorf("invalid retry timeout %q: %w", r.Timeout, err)
		}
		out.Timeout = d
	}
	return out, nil
}

// StepRetry resolves the retry config for a step: defaults, then the flow's
// retry block, then the step's own.
func (f *Flow) StepRetry(step StepConfig, defaults resilience.RetryConfig) (resilience.RetryConfig, error) {
	cfg, err := f.Retry.Apply(defaults)
	if err != nil {
		return defaults, fmt.Errorf("flow retry: %w", err)
	}
	cfg, err = step.Retry.Apply(cfg)
	if err != nil {
		return defaults, fmt.Errorf("step %q retry: %w", step.Key, err)
	}
	return cfg, nil
}

// EnabledSteps returns the steps that will run, in declaration order.
func (f *Flow) EnabledSteps() []StepConfig {
	var out []StepConfig
	for _, s := range f.Steps {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}
