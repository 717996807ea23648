// Package watch reruns a build whenever the staging tree changes.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 200 * time.Millisecond

// RebuildFunc runs one full build.
type RebuildFunc func(ctx context.Context) error

// Watcher triggers rebuilds from file system events under one root. Rebuilds run
// on the Run goroutine, one at a time.
type Watcher struct {
	root     string
	debounce time.Duration
	rebuild  RebuildFunc
	ignore   []string
	logger   *zap.Logger

	fsw *fsnotify.Watcher
}

// New creates a Watcher. Paths under any ignore prefix never trigger a rebuild.
func New(root string, debounce time.Duration, rebuild RebuildFunc, logger *zap.Logger, ignore ...string) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{root: root, debounce: debounce, rebuild: rebuild, ignore: ignore, logger: logger}
}

// Start registers every directory under root. It must be called before Run.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return err
	}
	return nil
}

// Run processes events until ctx is cancelled. Cancellation is observed between
// rebuilds; a rebuild in progress always completes.
func (w *Watcher) Run(ctx context.Context) error {
	if w.fsw == nil {
		return errors.New("watch: Start was not called")
	}
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			if err := w.rebuild(context.WithoutCancel(ctx)); err != nil {
				w.logger.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	for _, prefix := range w.ignore {
		if event.Name == prefix || strings.HasPrefix(event.Name, prefix+string(filepath.Separator)) {
			return false
		}
	}
	return true
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		for _, prefix := range w.ignore {
			if path == prefix {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}
