package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/yaml.v3"

	"github.com/chr1sbest/stepper/internal/sequence"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollMaxWait  = 2 * time.Minute

	maxPollBody = 1 << 20
)

// PollConfig holds configuration for the poll step.
type PollConfig struct {
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	ExpectStatus int               `yaml:"expect_status,omitempty"` // Defaults to 200
	ExpectBody   string            `yaml:"expect_body,omitempty"`   // Substring match
	Interval     string            `yaml:"interval,omitempty"`
	MaxWait      string            `yaml:"max_wait,omitempty"`
}

// PollStep waits until an endpoint reports the expected state, e.g. a
// submitted transaction being confirmed.
type PollStep struct {
	client *http.Client
}

// NewPollStep creates a poll step. A nil client uses http.DefaultClient.
func NewPollStep(client *http.Client) *PollStep {
	if client == nil {
		client = http.DefaultClient
	}
	return &PollStep{client: client}
}

func (s *PollStep) Type() string { return "poll" }

// Validate checks a poll config block without polling.
func (s *PollStep) Validate(node *yaml.Node) error {
	_, err := parsePollConfig(node)
	return err
}

func (s *PollStep) Execute(ctx context.Context, node *yaml.Node) error {
	p, err := parsePollConfig(node)
	if err != nil {
		return err
	}
	cfg := p.PollConfig

	checks := 0
	backoff := retry.WithMaxDuration(p.maxWait, retry.NewConstant(p.interval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		checks++
		if checks > 1 {
			sequence.SetHelperText(ctx, fmt.Sprintf("waiting (check %d)", checks))
		}
		return s.check(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("poll %s gave up after %d check(s): %w", cfg.URL, checks, err)
	}
	return nil
}

func (s *PollStep) check(ctx context.Context, cfg PollConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer res.Body.Close()

	if res.StatusCode != cfg.ExpectStatus {
		return retry.RetryableError(
			fmt.Errorf("expected status %d but got %d", cfg.ExpectStatus, res.StatusCode),
		)
	}

	if cfg.ExpectBody == "" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPollBody))
	if err != nil {
		return retry.RetryableError(err)
	}
	if !strings.Contains(string(body), cfg.ExpectBody) {
		return retry.RetryableError(
			fmt.Errorf("response does not contain %q", cfg.ExpectBody),
		)
	}
	return nil
}

// pollPlan is a PollConfig with its defaults applied and durations parsed.
type pollPlan struct {
	PollConfig
	interval time.Duration
	maxWait  time.Duration
}

func parsePollConfig(node *yaml.Node) (pollPlan, error) {
	var p pollPlan
	if err := decodeConfig(node, &p.PollConfig, "poll"); err != nil {
		return p, err
	}
	if p.URL == "" {
		return p, fmt.Errorf("url is required")
	}
	if p.ExpectStatus == 0 {
		p.ExpectStatus = http.StatusOK
	}
	if p.ExpectStatus < 100 || p.ExpectStatus > 599 {
		return p, fmt.Errorf("invalid expect_status %d", p.ExpectStatus)
	}

	var err error
	p.interval, err = parseDurationOr(p.Interval, DefaultPollInterval)
	if err != nil || p.interval <= 0 {
		return p, fmt.Errorf("invalid interval %q", p.Interval)
	}
	p.maxWait, err = parseDurationOr(p.MaxWait, DefaultPollMaxWait)
	if err != nil || p.maxWait <= 0 {
		return p, fmt.Errorf("invalid max_wait %q", p.MaxWait)
	}
	return p, nil
}

func parseDurationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
