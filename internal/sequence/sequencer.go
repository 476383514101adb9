// Package sequence runs an ordered list of named operations one at a time.
//
// A [Sequencer] owns a [StepMap] in which every step is WAITING, LOADING,
// SUCCESS or ERROR. [Sequencer.Run] resets all steps, then executes them in
// declaration order and stops at the first failure (fail-fast). Each status
// change is published to subscribers as an [Event] carrying a snapshot of
// the StepMap, so progress can be rendered while the run is in flight.
//
// The package does not retry and does not log. Steps that need retries wrap
// their operation with the resilience package.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
)

var (
	// ErrAlreadyRunning is returned by Run while another Run is in flight.
	ErrAlreadyRunning = errors.New("sequence is already running")

	// ErrInvalidDefinition is wrapped by New for malformed step definitions.
	ErrInvalidDefinition = errors.New("invalid step definition")
)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock used for step timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPanicHandler receives values recovered from panicking event handlers.
// Without one, such panics are recovered and dropped.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(s *Sequencer) {
		s.bus.onPanic = fn
	}
}

// Sequencer drives a fixed list of steps to completion.
// It is safe for concurrent use, but only one Run may be active at a time.
type Sequencer struct {
	defs  []Definition
	clock clock.Clock
	bus   *bus

	mu      sync.RWMutex
	steps   StepMap
	running bool
}

// New creates a Sequencer with every step in WAITING.
func New(defs []Definition, opts ...Option) (*Sequencer, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidDefinition)
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("%w: step %d has an empty key", ErrInvalidDefinition, i)
		}
		if seen[d.Key] {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidDefinition, d.Key)
		}
		if d.Run == nil {
			return nil, fmt.Errorf("%w: step %q has no operation", ErrInvalidDefinition, d.Key)
		}
		seen[d.Key] = true
	}

	s := &Sequencer{
		defs:  append([]Definition(nil), defs...),
		clock: clock.New(),
		bus:   &bus{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.steps = s.initialSteps()
	return s, nil
}

func (s *Sequencer) initialSteps() StepMap {
	steps := make(StepMap, len(s.defs))
	for i, d := range s.defs {
		steps[i] = Step{
			Key:        d.Key,
			Status:     StatusWaiting,
			HelperText: d.HelperText,
		}
	}
	return steps
}

// Subscribe registers h for every future event.
func (s *Sequencer) Subscribe(h Handler) SubscriptionID {
	return s.bus.subscribe(h)
}

// Unsubscribe removes a handler. It returns false if id is unknown.
func (s *Sequencer) Unsubscribe(id SubscriptionID) bool {
	return s.bus.unsubscribe(id)
}

// SubscriptionCount returns the number of registered handlers.
func (s *Sequencer) SubscriptionCount() int {
	return s.bus.count()
}

// Snapshot returns a copy of the current StepMap.
func (s *Sequencer) Snapshot() StepMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps.clone()
}

// Len returns the number of steps.
func (s *Sequencer) Len() int {
	return len(s.defs)
}

// Run resets every step to WAITING and executes the steps in order.
//
// If a step fails, it is marked ERROR, later steps stay WAITING, and its
// error is returned unchanged alongside the final StepMap. If ctx is done
// before a step starts, Run stops and returns ctx.Err() without touching the
// remaining steps.
func (s *Sequencer) Run(ctx context.Context) (StepMap, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.steps = s.initialSteps()
	snap := s.steps.clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.bus.publish(Event{
		Type:     EventSequenceStarted,
		Index:    -1,
		Snapshot: snap,
		Time:     s.clock.Now(),
	})

	err := s.runSteps(ctx)

	final := s.Snapshot()
	s.bus.publish(Event{
		Type:     EventSequenceFinished,
		Index:    -1,
		Snapshot: final,
		Err:      err,
		Time:     s.clock.Now(),
	})
	return final, err
}

func (s *Sequencer) runSteps(ctx context.Context) error {
	for i, def := range s.defs {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.transition(i, StatusLoading, nil)

		stepCtx := context.WithValue(ctx, reporterKey{}, reporter(func(text string) {
			s.setHelperText(i, text)
		}))
		if err := def.Run(stepCtx); err != nil {
			s.transition(i, StatusError, err)
			return err
		}

		s.transition(i, StatusSuccess, nil)
	}
	return nil
}

func (s *Sequencer) transition(i int, status Status, err error) {
	now := s.clock.Now()

	s.mu.Lock()
	step := &s.steps[i]
	step.Status = status
	step.Err = err
	if status == StatusLoading {
		step.StartedAt = now
	} else {
		step.FinishedAt = now
	}
	changed := *step
	snap := s.steps.clone()
	s.mu.Unlock()

	s.bus.publish(Event{
		Type:     EventStepTransition,
		Index:    i,
		Step:     changed,
		Snapshot: snap,
		Err:      err,
		Time:     now,
	})
}

func (s *Sequencer) setHelperText(i int, text string) {
	s.mu.Lock()
	step := &s.steps[i]
	if step.Status != StatusLoading || step.HelperText == text {
		s.mu.Unlock()
		return
	}
	step.HelperText = text
	changed := *step
	snap := s.steps.clone()
	s.mu.Unlock()

	s.bus.publish(Event{
		Type:     EventStepProgress,
		Index:    i,
		Step:     changed,
		Snapshot: snap,
		Time:     s.clock.Now(),
	})
}

type reporterKey struct{}

type reporter func(text string)

// SetHelperText updates the helper text of the step whose operation owns ctx.
// It is a no-op outside a running step or once the step has finished.
func SetHelperText(ctx context.Context, text string) {
	if r, ok := ctx.Value(reporterKey{}).(reporter); ok {
		r(text)
	}
}
