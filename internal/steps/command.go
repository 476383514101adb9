package steps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCommandTimeout bounds a single command attempt.
const DefaultCommandTimeout = 5 * time.Minute

// CommandConfig holds configuration for command step.
type CommandConfig struct {
	Command string            `yaml:"command"`
	Timeout string            `yaml:"timeout,omitempty"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// CommandStep executes shell commands.
type CommandStep struct{}

// NewCommandStep creates a new command step.
func NewCommandStep() *CommandStep {
	return &CommandStep{}
}

func (s *CommandStep) Type() string { return "command" }

// Validate checks a command config block without running anything.
func (s *CommandStep) Validate(node *yaml.Node) error {
	_, _, err := parseCommandConfig(node)
	return err
}

func (s *CommandStep) Execute(ctx context.Context, node *yaml.Node) error {
	cfg, timeout, err := parseCommandConfig(node)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Command)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(cfg.Env)...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

func parseCommandConfig(node *yaml.Node) (CommandConfig, time.Duration, error) {
	var cfg CommandConfig
	if err := decodeConfig(node, &cfg, "command"); err != nil {
		return cfg, 0, err
	}
	if cfg.Command == "" {
		return cfg, 0, fmt.Errorf("command is required")
	}

	timeout := DefaultCommandTimeout
	if cfg.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			return cfg, 0, fmt.Errorf("invalid timeout: %w", err)
		}
		if timeout <= 0 {
			return cfg, 0, fmt.Errorf("invalid timeout %q: must be positive", cfg.Timeout)
		}
	}
	return cfg, timeout, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
