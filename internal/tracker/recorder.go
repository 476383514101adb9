package tracker

import (
	"os"
	"sync"
	"time"

	"github.com/chr1sbest/stepper/internal/logger"
	"github.com/chr1sbest/stepper/internal/sequence"
)

// Recorder persists a RunState on every sequence event.
// Write failures are logged and never interrupt the run.
type Recorder struct {
	w   *Writer
	log logger.Logger

	mu      sync.Mutex
	state   RunState
	lastErr error
}

// NewRecorder creates a recorder for one run of flow. A nil log discards
// write failures.
func NewRecorder(w *Writer, runID, flow string, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		w:   w,
		log: log,
		state: RunState{
			RunID: runID,
			Flow:  flow,
			PID:   os.Getpid(),
		},
	}
}

// Handle records one sequence event. It satisfies sequence.Handler.
func (r *Recorder) Handle(ev sequence.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.state
	s.UpdatedAt = ev.Time
	s.Steps = StepStates(ev.Snapshot)

	switch ev.Type {
	case sequence.EventSequenceStarted:
		s.StartedAt = ev.Time
		s.FinishedAt = time.Time{}
		s.Status = RunRunning
		s.CurrentStep = ""
		s.LastError = ""

	case sequence.EventStepTransition, sequence.EventStepProgress:
		if ev.Step.Status == sequence.StatusLoading {
			s.CurrentStep = ev.Step.Key
		}
		if ev.Step.Status == sequence.StatusError && ev.Err != nil {
			s.LastError = ev.Err.Error()
		}

	case sequence.EventSequenceFinished:
		s.FinishedAt = ev.Time
		s.CurrentStep = ""
		if ev.Err != nil {
			s.Status = RunError
			s.LastError = ev.Err.Error()
		} else {
			s.Status = RunSuccess
		}
	}

	if err := r.w.WriteRunState(*s); err != nil {
		r.lastErr = err
		r.log.Warn("failed to write run state", logger.F("path", r.w.RunStatePath), logger.F("error", err.Error()))
	}
}

// State returns a copy of the latest recorded state.
func (r *Recorder) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.state
	out.Steps = append([]StepState(nil), r.state.Steps...)
	return out
}

// Err returns the most recent write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
