package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bft-labs/meetrec/internal/domain"
)

// StateFileName is the shared state file inside the state directory.
const StateFileName = "state.json"

// StateFileRepository implements ports.StateRepository using a JSON file.
type StateFileRepository struct {
	dir string
}

// NewStateFileRepository creates a new StateFileRepository for the given directory.
func NewStateFileRepository(dir string) *StateFileRepository {
	return &StateFileRepository{dir: dir}
}

// Load retrieves the last saved state from disk.
// Returns the idle state and nil error if no state file exists.
func (r *StateFileRepository) Load(ctx context.Context) (domain.SharedState, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.IdleState(), nil
		}
		return domain.IdleState(), err
	}

	var state domain.SharedState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.IdleState(), err
	}

	return state, nil
}

// Save persists the state atomically.
func (r *StateFileRepository) Save(ctx context.Context, state domain.SharedState) error {
	return writeJSONAtomic(r.dir, StateFileName, state)
}

// Path returns the full path to the state file.
func (r *StateFileRepository) Path() string {
	return filepath.Join(r.dir, StateFileName)
}

// writeJSONAtomic writes v to dir/name through a temp file and rename so
// readers never observe a partial document.
func writeJSONAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
