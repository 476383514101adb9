package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHTTPTimeout bounds a single request.
	DefaultHTTPTimeout = 30 * time.Second

	maxErrorBody = 512
)

// HTTPConfig holds configuration for the http step.
type HTTPConfig struct {
	Method       string            `yaml:"method,omitempty"`
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Body         string            `yaml:"body,omitempty"`
	BodyFile     string            `yaml:"body_file,omitempty"`
	ExpectStatus int               `yaml:"expect_status,omitempty"` // Zero accepts any 2xx
	Timeout      string            `yaml:"timeout,omitempty"`
}

// HTTPStep sends a single HTTP request and checks the response status.
type HTTPStep struct {
	client *http.Client
}

// NewHTTPStep creates an http step. A nil client uses http.DefaultClient.
func NewHTTPStep(client *http.Client) *HTTPStep {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStep{client: client}
}

func (s *HTTPStep) Type() string { return "http" }

// Validate checks an http config block without sending anything.
func (s *HTTPStep) Validate(node *yaml.Node) error {
	_, _, err := parseHTTPConfig(node)
	return err
}

func (s *HTTPStep) Execute(ctx context.Context, node *yaml.Node) error {
	cfg, timeout, err := parseHTTPConfig(node)
	if err != nil {
		return err
	}

	body := []byte(cfg.Body)
	if cfg.BodyFile != "" {
		body, err = os.ReadFile(cfg.BodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
		if len(body) > 0 {
			method = http.MethodPost
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, cfg.URL, err)
	}
	defer resp.Body.Close()

	if !statusMatches(resp.StatusCode, cfg.ExpectStatus) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, cfg.URL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func parseHTTPConfig(node *yaml.Node) (HTTPConfig, time.Duration, error) {
	var cfg HTTPConfig
	if err := decodeConfig(node, &cfg, "http"); err != nil {
		return cfg, 0, err
	}
	if cfg.URL == "" {
		return cfg, 0, fmt.Errorf("url is required")
	}
	if cfg.Body != "" && cfg.BodyFile != "" {
		return cfg, 0, fmt.Errorf("body and body_file are mutually exclusive")
	}
	if cfg.ExpectStatus != 0 && (cfg.ExpectStatus < 100 || cfg.ExpectStatus > 599) {
		return cfg, 0, fmt.Errorf("invalid expect_status %d", cfg.ExpectStatus)
	}

	timeout := DefaultHTTPTimeout
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

func statusMatches(got, want int) bool {
	if want == 0 {
		return got >= 200 && got < 300
	}
	return got == want
}
