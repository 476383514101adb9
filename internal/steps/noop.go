package steps

import (
	"context"

	"gopkg.in/yaml.v3"
)

// NoopStep is a step that does nothing (useful for testing).
type NoopStep struct{}

// NewNoopStep creates a new noop step.
func NewNoopStep() *NoopStep {
	return &NoopStep{}
}

func (s *NoopStep) Type() string { return "noop" }

// Validate accepts any config.
func (s *NoopStep) Validate(config *yaml.Node) error { return nil }

func (s *NoopStep) Execute(ctx context.Context, config *yaml.Node) error {
	return ctx.Err()
}
