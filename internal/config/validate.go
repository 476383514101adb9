package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chr1sbest/stepper/internal/resilience"
)

// ValidationError holds details about a flow validation failure.
type ValidationError struct {
	Field   string
	Message string
	Context string
}

func (e ValidationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Field, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// HasErrors returns true if there are any validation errors.
func (errs ValidationErrors) HasErrors() bool {
	return len(errs) > 0
}

// StepChecker checks the type-specific config block of a step.
type StepChecker interface {
	CheckStepConfig(stepType string, config *yaml.Node) error
}

// Validator validates flows.
type Validator struct {
	knownStepTypes []string
	checker        StepChecker
}

// NewValidator creates a new flow validator.
func NewValidator(knownStepTypes []string) *Validator {
	return &Validator{knownStepTypes: knownStepTypes}
}

// WithStepChecker sets the checker for step config blocks. Nil skips them.
func (v *Validator) WithStepChecker(c StepChecker) *Validator {
	v.checker = c
	return v
}

// Validate checks a flow for errors and returns every problem found.
func (v *Validator) Validate(flow *Flow) ValidationErrors {
	var errs ValidationErrors

	if flow.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "flow name is required",
		})
	}

	if len(flow.Steps) == 0 {
		errs = append(errs, ValidationError{
			Field:   "steps",
			Message: "at least one step is required",
		})
	}

	errs = append(errs, validateRetry(flow.Retry, "flow")...)

	seenKeys := make(map[string]bool)

	for i, step := range flow.Steps {
		stepContext := fmt.Sprintf("steps[%d]", i)

		if step.Type == "" {
			errs = append(errs, ValidationError{
				Field:   "type",
				Message: "step type is required",
				Context: stepContext,
			})
		} else if len(v.knownStepTypes) > 0 && !slices.Contains(v.knownStepTypes, step.Type) {
			errs = append(errs, ValidationError{
				Field:   "type",
				Message: fmt.Sprintf("unknown step type %q, known types: %s", step.Type, strings.Join(v.knownStepTypes, ", ")),
				Context: stepContext,
			})
		} else if v.checker != nil {
			if err := v.checker.CheckStepConfig(step.Type, &step.Config); err != nil {
				errs = append(errs, ValidationError{
					Field:   "config",
					Message: err.Error(),
					Context: stepContext,
				})
			}
		}

		if step.Key == "" {
			errs = append(errs, ValidationError{
				Field:   "key",
				Message: "step key is required",
				Context: stepContext,
			})
		} else {
			if seenKeys[step.Key] {
				errs = append(errs, ValidationError{
					Field:   "key",
					Message: fmt.Sprintf("duplicate step key %q", step.Key),
					Context: stepContext,
				})
			}
			seenKeys[step.Key] = true
		}

		errs = append(errs, validateRetry(step.Retry, stepContext)...)
	}

	if len(flow.Steps) > 0 && len(flow.EnabledSteps()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "steps",
			Message: "every step is disabled",
		})
	}

	return errs
}

func validateRetry(r *RetryConfig, context string) ValidationErrors {
	if r == nil {
		return nil
	}

	var errs ValidationErrors
	if r.Policy != "" {
		if _, ok := resilience.PolicyByName(r.Policy); !ok {
			errs = append(errs, ValidationError{
				Field:   "retry.policy",
				Message: fmt.Sprintf("unknown policy %q, known policies: %s", r.Policy, strings.Join(resilience.PolicyNames(), ", ")),
				Context: context,
			})
		}
	}
	if r.Times != nil && *r.Times < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry.times",
			Message: "must be at least 1",
			Context: context,
		})
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "retry.timeout",
				Message: fmt.Sprintf("invalid duration %q", r.Timeout),
				Context: context,
			})
		} else if d < 0 {
			errs = append(errs, ValidationError{
				Field:   "retry.timeout",
				Message: "must not be negative",
				Context: context,
			})
		}
	}
	return errs
}

// ValidateFlow is a convenience function to validate a flow with known step types.
func ValidateFlow(flow *Flow, knownStepTypes []string) error {
	validator := NewValidator(knownStepTypes)
	errs := validator.Validate(flow)
	if errs.HasErrors() {
		return errs
	}
	return nil
}
