package tracker

import (
	"time"

	"github.com/chr1sbest/stepper/internal/sequence"
)

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// RunState is the persisted view of the latest run of a flow.
type RunState struct {
	RunID       string      `json:"run_id"`
	Flow        string      `json:"flow"`
	PID         int         `json:"pid"`
	StartedAt   time.Time   `json:"started_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	FinishedAt  time.Time   `json:"finished_at,omitzero"`
	Status      string      `json:"status"`
	CurrentStep string      `json:"current_step,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Steps       []StepState `json:"steps"`
}

// StepState is one step of a RunState.
type StepState struct {
	Key        string          `json:"key"`
	Status     sequence.Status `json:"status"`
	HelperText string          `json:"helper_text,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitzero"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	DurationMS int64           `json:"duration_ms,omitempty"`
}

// StepStates converts a snapshot to its persisted form.
func StepStates(snap sequence.StepMap) []StepState {
	out := make([]StepState, len(snap))
	for i, s := range snap {
		st := StepState{
			Key:        s.Key,
			Status:     s.Status,
			HelperText: s.HelperText,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			DurationMS: s.Duration().Milliseconds(),
		}
		if s.Err != nil {
			st.Error = s.Err.Error()
		}
		out[i] = st
	}
	return out
}

// Step returns the persisted step with the given key.
func (rs *RunState) Step(key string) (StepState, bool) {
	for _, s := range rs.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return StepState{}, false
}
