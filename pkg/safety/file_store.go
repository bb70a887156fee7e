package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps kill-switch state in a local JSON file. It survives
// restarts and redis outages, making it the fallback of record.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read loads the state. A missing file is ErrNoRecord.
func (s *FileStore) Read(_ context.Context) (State, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, ErrNoRecord
	}
	if err != nil {
		return State{}, fmt.Errorf("reading kill switch file: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decoding kill switch file: %w", err)
	}
	return state, nil
}

// Write persists the state atomically via a temp file and rename, so a
// crash mid-write can never leave a corrupt record.
func (s *FileStore) Write(_ context.Context, state State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding kill switch state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".kill_switch_*")
	if err != nil {
		return fmt.Errorf("creating temp kill switch file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing kill switch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing kill switch file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing kill switch file: %w", err)
	}
	return nil
}
