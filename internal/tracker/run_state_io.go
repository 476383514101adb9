package tracker

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRunState reads run_state.json. It returns nil, nil if no run has been
// recorded yet.
func (w *Writer) LoadRunState() (*RunState, error) {
	b, err := os.ReadFile(w.RunStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rs RunState
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("corrupt run state %s: %w", w.RunStatePath, err)
	}
	return &rs, nil
}
