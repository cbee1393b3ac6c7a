package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/pkg/log"
)

// DefaultDebounceDelay collapses the write+rename burst of one Save.
const DefaultDebounceDelay = 100 * time.Millisecond

// StateWatcher reports shared state changes written by a coordinator.
type StateWatcher struct {
	repo   *StateFileRepository
	delay  time.Duration
	logger log.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// NewStateWatcher watches the state file of repo.
// A non-positive delay uses DefaultDebounceDelay.
func NewStateWatcher(repo *StateFileRepository, delay time.Duration, logger log.Logger) *StateWatcher {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &StateWatcher{repo: repo, delay: delay, logger: logger}
}

// Watch calls onChange with the freshly loaded state after every change of
// the state file until ctx is canceled. The directory is watched rather than
// the file so atomic renames are observed.
func (w *StateWatcher) Watch(ctx context.Context, onChange func(domain.SharedState)) error {
	if err := os.MkdirAll(w.repo.dir, 0o700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.repo.dir); err != nil {
		return err
	}

	defer w.stopDebounce()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != StateFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceLoad(ctx, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("State watcher error", log.Err(err))
		}
	}
}

func (w *StateWatcher) debounceLoad(ctx context.Context, onChange func(domain.SharedState)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}

	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		state, err := w.repo.Load(ctx)
		if err != nil {
			w.logger.Warn("Failed to reload state", log.Err(err))
			return
		}
		onChange(state)
	})
}

func (w *StateWatcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}
