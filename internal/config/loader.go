package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading flow files.
type Loader struct {
	knownStepTypes []string
	checker        StepChecker
}

// NewLoader creates a new flow loader. knownStepTypes is used by
// LoadAndValidate; pass nil to accept any type.
func NewLoader(knownStepTypes []string) *Loader {
	return &Loader{knownStepTypes: knownStepTypes}
}

// WithStepChecker makes LoadAndValidate also check each step's config block.
func (l *Loader) WithStepChecker(c StepChecker) *Loader {
	l.checker = c
	return l
}

// LoadFile loads a flow from a specific file path.
// Environment variables in the file are expanded before parsing.
func (l *Loader) LoadFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	return l.Parse(data)
}

// Parse expands environment variables in data and decodes it as a flow.
// Unknown fields are rejected.
func (l *Loader) Parse(data []byte) (*Flow, error) {
	data, err := ExpandEnvVarsBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var flow Flow
	if err := dec.Decode(&flow); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("flow file is empty")
		}
		return nil, fmt.Errorf("failed to parse flow YAML: %w", err)
	}

	return &flow, nil
}

// LoadAndValidate loads and validates a flow file.
func (l *Loader) LoadAndValidate(path string) (*Flow, error) {
	flow, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	validator := NewValidator(l.knownStepTypes).WithStepChecker(l.checker)
	if errs := validator.Validate(flow); errs.HasErrors() {
		return nil, fmt.Errorf("flow validation failed for %s:\n%w", path, errs)
	}

	return flow, nil
}
