// Package watch rebuilds the bundle when the intermediate output changes.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// BuildFunc is invoked once per settled burst of changes. Errors are logged
// and watching continues.
type BuildFunc func(ctx context.Context) error

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	// Ignore lists directories whose events never trigger a build, such as
	// an output directory placed inside the watched tree.
	Ignore []string
}

// Watcher follows every directory below a root.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   []string
	fsw      *fsnotify.Watcher
}

// New starts watching root and all of its subdirectories.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "resolve watch root").Build()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create file watcher").Build()
	}
	w := &Watcher{root: abs, debounce: opts.Debounce, fsw: fsw}
	if w.debounce <= 0 {
		w.debounce = 300 * time.Millisecond
	}
	for _, p := range opts.Ignore {
		if a, err := filepath.Abs(p); err == nil {
			w.ignore = append(w.ignore, a)
		}
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "watch input directory").
			WithContext("path", abs).Build()
	}
	return w, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run blocks until ctx is done, calling build after each burst of changes.
// The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context, build BuildFunc) error {
	defer w.Close()
	slog.Info("Watching for changes", logfields.Path(w.root), slog.Duration("debounce", w.debounce))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				w.maybeAddDir(ev.Name)
			}
			slog.Debug("Change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			pending++
			stop()
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", logfields.Error(err))
		case <-timerC:
			timerC = nil
			slog.Info("Rebuilding", logfields.Count(pending))
			pending = 0
			if err := build(ctx); err != nil {
				slog.Error("Rebuild failed", logfields.Error(err))
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !w.ignored(ev.Name)
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+"_stage") || strings.HasPrefix(path, dir+".prev") {
			return true
		}
	}
	return false
}

// maybeAddDir starts watching a newly created directory and its children.
func (w *Watcher) maybeAddDir(path string) {
	if err := w.addTree(path); err != nil {
		slog.Debug("Could not watch new path", logfields.Path(path), logfields.Error(err))
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}
