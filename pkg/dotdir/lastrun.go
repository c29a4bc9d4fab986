package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	lastRunFile = "last_run.json"
)

// SaveLastRun persists the JSON report of the most recent run to a target
// .tokenprobe/last_run.json, replacing any previous one.
func (m *Manager) SaveLastRun(report []byte, overrideDir string) error {
	if len(report) == 0 {
		return errors.New("cannot save empty run report")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, lastRunFile)
	if err := os.WriteFile(path, report, 0o600); err != nil {
		return fmt.Errorf("writing last run: %w", err)
	}

	return nil
}

// LoadLastRun returns the JSON report of the most recent run.
// Returns nil, nil if no run has been recorded yet.
func (m *Manager) LoadLastRun(overrideDir string) ([]byte, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, lastRunFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading last run: %w", err)
	}

	return data, nil
}

// ClearLastRun removes the recorded run. Returns nil if there is none.
func (m *Manager) ClearLastRun(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, lastRunFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing last run: %w", err)
	}

	return nil
}
