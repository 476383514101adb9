package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/chr1sbest/stepper/internal/resilience"
)

const proposalFlow = `
name: propose
description: pin metadata then submit
retry:
  policy: quick
steps:
  - key: pin
    type: http
    helper_text: Pinning metadata
    retry:
      times: 5
      timeout: 250ms
    config:
      method: POST
      url: ${PIN_URL:-http://localhost:5001}/api/v0/add
  - key: submit
    type: command
    config:
      command: echo submitted
  - key: confirm
    type: poll
    enabled: false
    config:
      url: http://localhost:8545/tx
`

func writeFlow(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	t.Setenv("PIN_URL", "http://pinner:5001")
	path := writeFlow(t, t.TempDir(), "propose.yaml", proposalFlow)

	flow, err := NewLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "propose", flow.Name)
	assert.Equal(t, "pin metadata then submit", flow.Description)
	require.Len(t, flow.Steps, 3)
	assert.Equal(t, "pin", flow.Steps[0].Key)
	assert.Equal(t, "Pinning metadata", flow.Steps[0].HelperText)

	var httpCfg struct {
		Method string `yaml:"method"`
		URL    string `yaml:"url"`
	}
	require.NoError(t, flow.Steps[0].Config.Decode(&httpCfg))
	assert.Equal(t, "POST", httpCfg.Method)
	assert.Equal(t, "http://pinner:5001/api/v0/add", httpCfg.URL)

	enabled := flow.EnabledSteps()
	require.Len(t, enabled, 2)
	assert.Equal(t, "submit", enabled[1].Key)
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	_, err := NewLoader(nil).Parse([]byte("name: x\nstepz: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse flow YAML")
}

func TestLoader_EmptyFile(t *testing.T) {
	_, err := NewLoader(nil).Parse([]byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(nil).LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_LoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, "bad.yaml", "name: bad\nsteps:\n  - key: a\n    type: teleport\n")

	_, err := NewLoader([]string{"noop", "command"}).LoadAndValidate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step type "teleport"`)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 1)
}

func TestLoader_LoadAndValidate_StepChecker(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, "flow.yaml", "name: pin\nsteps:\n  - key: a\n    type: http\n    config:\n      method: GET\n")

	checker := checkerFunc(func(stepType string, config *yaml.Node) error {
		var cfg struct {
			URL string `yaml:"url"`
		}
		if err := config.Decode(&cfg); err != nil {
			return err
		}
		if cfg.URL == "" {
			return errors.New("url is required")
		}
		return nil
	})

	_, err := NewLoader(nil).LoadAndValidate(path)
	require.NoError(t, err)

	_, err = NewLoader(nil).WithStepChecker(checker).LoadAndValidate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: url is required (in steps[0])")
}

func TestFlow_StepRetry(t *testing.T) {
	flow, err := NewLoader(nil).Parse([]byte(proposalFlow))
	require.NoError(t, err)

	defaults := resilience.RetryConfig{Times: 7, Timeout: 9 * time.Second}

	pin, err := flow.StepRetry(flow.Steps[0], defaults)
	require.NoError(t, err)
	assert.Equal(t, resilience.RetryConfig{Times: 5, Timeout: 250 * time.Millisecond}, pin)

	submit, err := flow.StepRetry(flow.Steps[1], defaults)
	require.NoError(t, err)
	assert.Equal(t, resilience.QuickRetry.ToConfig(), submit, "flow-level policy applies to steps without their own retry")

	bare := &Flow{Name: "bare"}
	got, err := bare.StepRetry(StepConfig{Key: "x"}, defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestRetryConfig_Apply(t *testing.T) {
	three := 3
	base := resilience.DefaultRetryConfig()

	tests := []struct {
		name    string
		cfg     *RetryConfig
		want    resilience.RetryConfig
		wantErr bool
	}{
		{"nil keeps base", nil, base, false},
		{"policy only", &RetryConfig{Policy: "none"}, resilience.NoRetry.ToConfig(), false},
		{"times overrides policy", &RetryConfig{Policy: "persistent", Times: &three},
			resilience.RetryConfig{Times: 3, Timeout: 2 * time.Second}, false},
		{"zero timeout", &RetryConfig{Timeout: "0s"}, resilience.RetryConfig{Times: 3, Timeout: 0}, false},
		{"unknown policy", &RetryConfig{Policy: "yolo"}, base, true},
		{"bad timeout", &RetryConfig{Timeout: "soon"}, base, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Apply(base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
