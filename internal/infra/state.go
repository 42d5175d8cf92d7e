package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// StateFile implements domain.StateWriter as a JSON file replaced atomically each tick.
type StateFile struct {
	path string
}

// NewStateFile creates a state writer for path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the state file path.
func (s *StateFile) Path() string {
	return s.path
}

// Write replaces the state file with the given snapshot.
func (s *StateFile) Write(state domain.DaemonState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	// Unique per process so a concurrent status reader never sees a partial file
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// ReadState loads the daemon snapshot at path.
// ok is false when the file is missing, unreadable, corrupt or older than maxAge.
// age is reported whenever the file could be stat'ed.
func ReadState(path string, maxAge time.Duration) (state domain.DaemonState, age time.Duration, ok bool) {
	info, err := os.Stat(path)
	if err != nil {
		return state, 0, false
	}
	age = time.Since(info.ModTime())
	if age < 0 {
		age = 0
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return state, age, false
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.DaemonState{}, age, false
	}
	return state, age, age <= maxAge
}

// StaleAfter is how old a state file may be before readers ignore it.
func StaleAfter(poll time.Duration) time.Duration {
	if d := 3 * poll; d > 3*time.Second {
		return d
	}
	return 3 * time.Second
}

var _ domain.StateWriter = (*StateFile)(nil)
