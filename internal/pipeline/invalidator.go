package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are never watched; they are large and not served as sources.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// EvictFunc is invoked with the absolute path of a changed file or directory.
type EvictFunc func(file string)

// Invalidator watches source directories and evicts cached assets when the
// files behind them change.
type Invalidator struct {
	dirs     []string
	evict    EvictFunc
	logger   *slog.Logger
	debounce time.Duration
}

// InvalidatorOption configures an Invalidator.
type InvalidatorOption func(*Invalidator)

// WithDebounce sets the debounce duration. Default is 100ms.
func WithDebounce(d time.Duration) InvalidatorOption {
	return func(w *Invalidator) {
		w.debounce = d
	}
}

// NewInvalidator creates a watcher over dirs and their subdirectories.
func NewInvalidator(dirs []string, evict EvictFunc, logger *slog.Logger, opts ...InvalidatorOption) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Invalidator{
		dirs:     dirs,
		evict:    evict,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directories and evicts changed paths once events settle
// for the debounce duration. It blocks until ctx is cancelled, then returns nil.
func (w *Invalidator) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		if err := w.addTree(fsw, dir); err != nil {
			return err
		}
	}

	pending := make(map[string]struct{})
	flushCh := make(chan struct{}, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			pending[event.Name] = struct{}{}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case flushCh <- struct{}{}:
				default:
				}
			})

		case <-flushCh:
			for name := range pending {
				w.evict(name)
			}
			clear(pending)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// addTree watches dir and every directory below it. A missing dir is skipped.
func (w *Invalidator) addTree(fsw *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("watch directory missing, skipping", "dir", dir)
		return nil
	}
	return err
}
