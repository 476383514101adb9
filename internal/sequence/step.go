package sequence

import (
	"context"
	"time"
)

// Status is the lifecycle state of a single step.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusLoading Status = "LOADING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// IsTerminal reports whether no further transition can happen within a run.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Operation is the unit of work behind a step.
type Operation func(ctx context.Context) error

// Definition declares one step of a sequence. Declaration order is execution order.
type Definition struct {
	Key        string
	HelperText string
	Run        Operation
}

// Step is the observable state of one step.
type Step struct {
	Key        string    `json:"key"`
	Status     Status    `json:"status"`
	HelperText string    `json:"helper_text,omitempty"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns how long the step ran, or zero if it has not finished.
func (s Step) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// StepMap is an ordered view of every step in a sequence.
// Values handed out by a Sequencer are copies and safe to keep.
type StepMap []Step

// Get returns the step with the given key.
func (m StepMap) Get(key string) (Step, bool) {
	for _, s := range m {
		if s.Key == key {
			return s, true
		}
	}
	return Step{}, false
}

// Keys returns step keys in execution order.
func (m StepMap) Keys() []string {
	keys := make([]string, len(m))
	for i, s := range m {
		keys[i] = s.Key
	}
	return keys
}

// Current returns the step that is LOADING, if any.
func (m StepMap) Current() (Step, bool) {
	for _, s := range m {
		if s.Status == StatusLoading {
			return s, true
		}
	}
	return Step{}, false
}

// Failed returns the step that ended in ERROR, if any.
func (m StepMap) Failed() (Step, bool) {
	for _, s := range m {
		if s.Status == StatusError {
			return s, true
		}
	}
	return Step{}, false
}

// Succeeded counts steps in SUCCESS.
func (m StepMap) Succeeded() int {
	n := 0
	for _, s := range m {
		if s.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Done reports whether every step succeeded. An empty map is never done;
// New rejects a sequence without steps.
func (m StepMap) Done() bool {
	return len(m) > 0 && m.Succeeded() == len(m)
}

func (m StepMap) clone() StepMap {
	if m == nil {
		return nil
	}
	out := make(StepMap, len(m))
	copy(out, m)
	return out
}
