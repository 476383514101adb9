package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chr1sbest/stepper/internal/config"
	"github.com/chr1sbest/stepper/internal/logger"
	"github.com/chr1sbest/stepper/internal/resilience"
	"github.com/chr1sbest/stepper/internal/sequence"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Retry is used for steps whose flow and step retry blocks are unset.
	Retry resilience.RetryConfig

	// Logger receives retry warnings. Nil discards them.
	Logger logger.Logger

	// Clock drives backoff waits. Nil uses the wall clock.
	Clock clock.Clock
}

// Build turns the enabled steps of flow into sequence definitions. A step
// whose config its type rejects fails the build, so it is never run.
//
// Every operation runs its step type under resilience.Do with the step's
// resolved retry config. Between attempts the step's helper text becomes
// "retrying (attempt n/m)".
func Build(flow *config.Flow, reg *Registry, opts BuildOptions) ([]sequence.Definition, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	var defs []sequence.Definition
	for _, sc := range flow.EnabledSteps() {
		st, err := reg.Get(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", sc.Key, err)
		}
		if err := st.Validate(&sc.Config); err != nil {
			return nil, fmt.Errorf("step %q: invalid config: %w", sc.Key, err)
		}

		rc, err := flow.StepRetry(sc, opts.Retry)
		if err != nil {
			return nil, err
		}

		defs = append(defs, sequence.Definition{
			Key:        sc.Key,
			HelperText: sc.HelperText,
			Run:        operation(st, sc, rc, opts.Clock, log.WithFields(logger.F("step", sc.Key))),
		})
	}
	return defs, nil
}

func operation(st Step, sc config.StepConfig, rc resilience.RetryConfig, clk clock.Clock, log logger.Logger) sequence.Operation {
	node := sc.Config
	times := rc.Normalized().Times

	return func(ctx context.Context) error {
		onRetry := func(attempt int, err error, next time.Duration) {
			log.Warn("step attempt failed",
				logger.F("attempt", attempt),
				logger.F("of", times),
				logger.F("next_delay", next),
				logger.F("error", err.Error()))
			sequence.SetHelperText(ctx, fmt.Sprintf("retrying (attempt %d/%d)", attempt+1, times))
		}

		return resilience.Do(ctx, rc, func(ctx context.Context) error {
			return st.Execute(ctx, &node)
		}, resilience.WithRetryCallback(onRetry), resilience.WithClock(clk))
	}
}
