package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_NoRetry(t *testing.T) {
	calls := 0
	err := NoRetry.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls, "NoRetry should make exactly one attempt")
}

func TestRetryPolicy_SuccessOnFirstTry(t *testing.T) {
	calls := 0
	err := QuickRetry.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_SuccessAfterRetries(t *testing.T) {
	rec := newRecordingClock()
	calls := 0
	err := StandardRetry.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient failure")
		}
		return nil
	}, WithClock(rec))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits())
}

func TestPolicyByName(t *testing.T) {
	tests := []struct {
		name   string
		want   RetryPolicy
		wantOK bool
	}{
		{"none", NoRetry, true},
		{"quick", QuickRetry, true},
		{"standard", StandardRetry, true},
		{"persistent", PersistentRetry, true},
		{"aggressive", RetryPolicy{}, false},
		{"", RetryPolicy{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PolicyByName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyNames_Sorted(t *testing.T) {
	names := PolicyNames()
	require.Len(t, names, 4)
	assert.Equal(t, []string{"none", "persistent", "quick", "standard"}, names)
}

func TestStandardRetry_MatchesDefaultConfig(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig(), StandardRetry.ToConfig())
}
