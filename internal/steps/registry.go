// Package steps provides the step types a flow file can use and turns a
// loaded flow into sequence definitions.
package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownType is returned by Registry.Get for unregistered step types.
var ErrUnknownType = errors.New("unknown step type")

// Step is one executable step type.
//
// Validate reports config errors up front, so a step that can never succeed
// is rejected before it runs and is not retried.
type Step interface {
	Type() string
	Validate(config *yaml.Node) error
	Execute(ctx context.Context, config *yaml.Node) error
}

// Factory creates a new step instance.
type Factory func() Step

// Registry manages step type registrations.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with every built-in step type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("noop", func() Step { return NewNoopStep() })
	r.Register("command", func() Step { return NewCommandStep() })
	r.Register("http", func() Step { return NewHTTPStep(nil) })
	r.Register("poll", func() Step { return NewPollStep(nil) })
	return r
}

// Register adds a step factory for a given type, replacing any previous one.
func (r *Registry) Register(stepType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[stepType] = factory
}

// Get retrieves a step instance for the given type.
func (r *Registry) Get(stepType string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[stepType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, stepType)
	}
	return factory(), nil
}

// CheckStepConfig validates config against the given step type.
func (r *Registry) CheckStepConfig(stepType string, config *yaml.Node) error {
	st, err := r.Get(stepType)
	if err != nil {
		return err
	}
	return st.Validate(config)
}

// Types returns every registered step type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// decodeConfig decodes a step's config block into out. An absent block
// leaves out untouched.
func decodeConfig(node *yaml.Node, out any, stepType string) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s config: %w", stepType, err)
	}
	return nil
}
