package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const configDebounce = 500 * time.Millisecond

// ConfigWatcher signals when the config file changes on disk.
// It watches the parent directory so editors and atomic renames are seen.
type ConfigWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	changes   chan struct{}
	debounce  time.Duration
	logger    *zap.Logger
}

// NewConfigWatcher starts watching the directory containing path.
func NewConfigWatcher(path string, logger *zap.Logger) (*ConfigWatcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	clean := filepath.Clean(path)
	if err := fsW.Add(filepath.Dir(clean)); err != nil {
		fsW.Close()
		return nil, err
	}
	return &ConfigWatcher{
		path:      clean,
		fsWatcher: fsW,
		changes:   make(chan struct{}, 1),
		debounce:  configDebounce,
		logger:    logger,
	}, nil
}

// Changes delivers at most one pending notification at a time.
func (w *ConfigWatcher) Changes() <-chan struct{} {
	return w.changes
}

// Run processes events until ctx is canceled, then closes the watcher.
func (w *ConfigWatcher) Run(ctx context.Context) {
	defer w.fsWatcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.notify)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
