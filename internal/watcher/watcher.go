// Package watcher reports filesystem changes below the mirror directory as
// created, moved and deleted notifications.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/sync/exclude"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultPairWindow is how long a rename waits for the create that
// completes it before it is reported as a deletion
const DefaultPairWindow = 250 * time.Millisecond

// DefaultDebounce is the quiet period a file needs after its last create or
// write before it is reported
const DefaultDebounce = time.Second

// Handler consumes the notifications. Paths are absolute.
type Handler interface {
	OnLocalCreated(path string) error
	OnLocalMoved(src, dst string) error
	OnLocalDeleted(path string) error
}

type Options struct {
	Root       string
	Handler    Handler
	Fs         afero.Fs
	Matcher    *exclude.Matcher
	Logger     logging.Logger
	Clock      clockwork.Clock
	PairWindow time.Duration
	Debounce   time.Duration
}

// Watcher translates fsnotify events. fsnotify does not watch recursively,
// so every directory below the root gets its own watch.
type Watcher struct {
	root       string
	handler    Handler
	fs         afero.Fs
	matcher    *exclude.Matcher
	logger     logging.Logger
	clock      clockwork.Clock
	pairWindow time.Duration
	debounce   time.Duration
	addWatch   func(string) error

	mu      stdsync.Mutex
	renamed string
	timer   clockwork.Timer

	// per-file timers, reset by every create or write of that file
	debounceMu     stdsync.Mutex
	debounceTimers map[string]clockwork.Timer
}

func New(opts Options) (*Watcher, error) {
	if opts.Root == "" || opts.Handler == nil {
		return nil, errors.New("watcher: root and handler are required")
	}
	w := &Watcher{
		root:       filepath.Clean(opts.Root),
		handler:    opts.Handler,
		fs:         opts.Fs,
		matcher:    opts.Matcher,
		logger:     opts.Logger,
		clock:      opts.Clock,
		pairWindow: opts.PairWindow,
		debounce:   opts.Debounce,
		addWatch:   func(string) error { return nil },

		debounceTimers: make(map[string]clockwork.Timer),
	}
	if w.fs == nil {
		w.fs = afero.NewOsFs()
	}
	if w.matcher == nil {
		w.matcher = exclude.New(nil)
	}
	if w.logger == nil {
		w.logger = logging.NewNoOpLogger()
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	if w.pairWindow <= 0 {
		w.pairWindow = DefaultPairWindow
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w, nil
}

// Run watches until ctx ends. A rename still waiting for its pair is
// reported as a deletion on exit. Pending debounced files are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.Warn("Failed to close file watcher", logging.Err(err))
		}
	}()
	w.addWatch = fsw.Add

	if err := w.watchTree(w.root); err != nil {
		return errors.Wrapf(err, "watch %s", w.root)
	}
	w.logger.Info("Watching mirror directory", logging.F("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.flushRename()
			w.stopDebounce()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logging.Err(err))
		}
	}
}

// watchTree adds a watch for dir and every directory below it
func (w *Watcher) watchTree(dir string) error {
	return afero.Walk(w.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if p != w.root && w.excluded(p, true) {
			return filepath.SkipDir
		}
		if err := w.addWatch(p); err != nil {
			w.logger.Warn("Failed to watch directory", logging.F("path", p), logging.Err(err))
		}
		return nil
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	p := filepath.Clean(ev.Name)
	if p == w.root {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		w.created(p)
	case ev.Has(fsnotify.Write):
		if !w.excluded(p, false) {
			w.schedule(p)
		}
	case ev.Has(fsnotify.Rename):
		w.cancel(p)
		w.holdRename(p)
	case ev.Has(fsnotify.Remove):
		w.cancel(p)
		if !w.excluded(p, false) {
			w.dispatch("deleted", p, w.handler.OnLocalDeleted(p))
		}
	}
}

// created completes a pending rename or reports a new entry. A new
// directory is watched and its existing contents are reported too.
func (w *Watcher) created(p string) {
	info, err := w.lstat(p)
	if err != nil {
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return
	}
	isDir := info.IsDir()

	if src, ok := w.takeRename(); ok {
		if isDir {
			_ = w.watchTree(p)
		}
		w.dispatch("moved", p, w.handler.OnLocalMoved(src, p))
		return
	}
	if w.excluded(p, isDir) {
		return
	}
	if !isDir {
		w.schedule(p)
		return
	}
	w.dispatch("created", p, w.handler.OnLocalCreated(p))

	_ = w.watchTree(p)
	_ = afero.Walk(w.fs, p, func(child string, info os.FileInfo, err error) error {
		if err != nil || child == p {
			return nil
		}
		if w.excluded(child, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		w.dispatch("created", child, w.handler.OnLocalCreated(child))
		return nil
	})
}

// holdRename parks the old name of a rename until the matching create
// arrives. An unpaired rename means the entry left the watched tree.
func (w *Watcher) holdRename(p string) {
	w.flushRename()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.renamed = p
	w.timer = w.clock.AfterFunc(w.pairWindow, w.flushRename)
}

func (w *Watcher) takeRename() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.renamed == "" {
		return "", false
	}
	src := w.renamed
	w.renamed = ""
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return src, true
}

func (w *Watcher) flushRename() {
	src, ok := w.takeRename()
	if !ok {
		return
	}
	w.dispatch("deleted", src, w.handler.OnLocalDeleted(src))
}

// schedule reports p as created once it has been quiet for the debounce
// interval
func (w *Watcher) schedule(p string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if t, ok := w.debounceTimers[p]; ok {
		t.Stop()
	}
	var t clockwork.Timer
	t = w.clock.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		current := w.debounceTimers[p] == t
		if current {
			delete(w.debounceTimers, p)
		}
		w.debounceMu.Unlock()
		if current {
			w.dispatch("created", p, w.handler.OnLocalCreated(p))
		}
	})
	w.debounceTimers[p] = t
}

// cancel drops a pending report for p
func (w *Watcher) cancel(p string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if t, ok := w.debounceTimers[p]; ok {
		t.Stop()
		delete(w.debounceTimers, p)
	}
}

func (w *Watcher) stopDebounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	for p, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, p)
	}
}

func (w *Watcher) dispatch(kind, p string, err error) {
	if err != nil {
		w.logger.Warn("Failed to handle local change",
			logging.F("event", kind), logging.F("path", p), logging.Err(err))
		return
	}
	w.logger.Debug("Local change", logging.F("event", kind), logging.F("path", p))
}

func (w *Watcher) excluded(p string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return true
	}
	return w.matcher.IsExcluded(filepath.ToSlash(rel), isDir)
}

func (w *Watcher) lstat(p string) (os.FileInfo, error) {
	if l, ok := w.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(p)
		return info, err
	}
	return w.fs.Stat(p)
}
