package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Writer persists run state for one flow under its own directory.
type Writer struct {
	Dir          string
	RunStatePath string
	LockPath     string
	LockInfoPath string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:          dir,
		RunStatePath: filepath.Join(dir, "run_state.json"),
		LockPath:     filepath.Join(dir, ".stepper.lock"),
		LockInfoPath: filepath.Join(dir, "lock.json"),
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ForFlow returns the writer for flow under stateDir, i.e. <stateDir>/<flow>.
func ForFlow(stateDir, flow string) *Writer {
	name := unsafeNameChars.ReplaceAllString(flow, "_")
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return NewWriter(filepath.Join(stateDir, name))
}

func (w *Writer) ensureDir() error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	return nil
}

// WriteRunState atomically replaces run_state.json.
func (w *Writer) WriteRunState(s RunState) error {
	if err := w.ensureDir(); err != nil {
		return err
	}
	return writeJSONAtomic(w.RunStatePath, s)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
