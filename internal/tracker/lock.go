package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// Lock describes the process holding a flow's lock.
type Lock struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	RunID     string    `json:"run_id"`
}

var ErrLockHeld = errors.New("stepper lock is held")

// AcquireLock takes the flow's lock without blocking. The returned func
// releases it. The OS drops the lock if the process dies, so a stale lock
// file never blocks a later run.
func (w *Writer) AcquireLock(runID string) (func() error, error) {
	if err := w.ensureDir(); err != nil {
		return nil, err
	}

	fl := flock.New(w.LockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", w.LockPath, err)
	}
	if !locked {
		if holder, ok := w.readLockInfo(); ok {
			return nil, fmt.Errorf("%w by pid %d (run_id=%s)", ErrLockHeld, holder.PID, holder.RunID)
		}
		return nil, ErrLockHeld
	}

	info := Lock{PID: os.Getpid(), StartedAt: time.Now(), RunID: runID}
	if err := writeJSONAtomic(w.LockInfoPath, info); err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	release := func() error {
		if err := os.Remove(w.LockInfoPath); err != nil && !os.IsNotExist(err) {
			_ = fl.Unlock()
			return err
		}
		return fl.Unlock()
	}
	return release, nil
}

func (w *Writer) readLockInfo() (Lock, bool) {
	b, err := os.ReadFile(w.LockInfoPath)
	if err != nil {
		return Lock{}, false
	}
	var l Lock
	if json.Unmarshal(b, &l) != nil || l.PID <= 0 {
		return Lock{}, false
	}
	return l, true
}
