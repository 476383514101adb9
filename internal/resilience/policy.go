package resilience

import (
	"context"
	"sort"
	"time"
)

/*
RETRY POLICY DOCUMENTATION

This package retries a fallible operation a bounded number of times.

## Semantics

- Every failure is retried until Times attempts have been made.
- The wait before attempt n (zero-indexed) is n*Timeout: 0, Timeout,
  2*Timeout, ... Backoff is linear, never exponential, and has no jitter.
- On exhaustion the error of the LAST attempt is returned as-is. Earlier
  errors are dropped, not aggregated.
- The runner never logs. Use a RetryCallback to observe retries.

## Named policies

Flow files refer to these presets by name (retry.policy). Explicit
times/timeout values in a flow file override the preset.
*/

// RetryPolicy defines a named, documented retry configuration
type RetryPolicy struct {
	// Name identifies this policy in flow files and logs
	Name string

	// Times is the maximum number of attempts (1 = no retries)
	Times int

	// Timeout is the linear backoff unit
	Timeout time.Duration
}

// Predefined policies for common use cases
var (
	// NoRetry runs the operation exactly once
	NoRetry = RetryPolicy{
		Name:  "none",
		Times: 1,
	}

	// QuickRetry for fast calls such as local RPC reads
	QuickRetry = RetryPolicy{
		Name:    "quick",
		Times:   3,
		Timeout: 100 * time.Millisecond,
	}

	// StandardRetry matches DefaultRetryConfig
	StandardRetry = RetryPolicy{
		Name:    "standard",
		Times:   DefaultTimes,
		Timeout: DefaultTimeout,
	}

	// PersistentRetry for flaky remote services like pinning gateways
	PersistentRetry = RetryPolicy{
		Name:    "persistent",
		Times:   5,
		Timeout: 2 * time.Second,
	}
)

var policies = map[string]RetryPolicy{
	NoRetry.Name:         NoRetry,
	QuickRetry.Name:      QuickRetry,
	StandardRetry.Name:   StandardRetry,
	PersistentRetry.Name: PersistentRetry,
}

// PolicyByName looks up a predefined policy.
func PolicyByName(name string) (RetryPolicy, bool) {
	p, ok := policies[name]
	return p, ok
}

// PolicyNames returns the names of all predefined policies, sorted.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToConfig converts a RetryPolicy to RetryConfig for use with Retry functions
func (p RetryPolicy) ToConfig() RetryConfig {
	return RetryConfig{
		Times:   p.Times,
		Timeout: p.Timeout,
	}
}

// Execute runs a function with this retry policy
func (p RetryPolicy) Execute(ctx context.Context, fn RetryFunc, opts ...Option) error {
	return Do(ctx, p.ToConfig(), fn, opts...)
}
