// Package sync keeps a local mirror directory in correspondence with the
// selected subtrees of a remote drive.
//
// One Engine serves one account. Its periodic worker alternates full-tree
// reconciliation and change-token incremental sync, the usage worker
// aggregates per-category totals, and the filesystem watcher reports local
// edits through the OnLocal* callbacks. All three serialize on a single sync
// lock before touching the tree cache, the selection or the mirror.
package sync

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/remote"
	"github.com/dl-alexandre/gosync/internal/sync/conflict"
	"github.com/dl-alexandre/gosync/internal/sync/exclude"
	"github.com/dl-alexandre/gosync/internal/sync/index"
	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures an Engine. Remote, Config and Account are required.
type Options struct {
	Account   string
	MirrorDir string
	Remote    remote.Service
	Config    *config.Store
	Index     *index.DB
	Fs        afero.Fs
	Observer  events.Observer
	Logger    logging.Logger
	Prober    api.Prober
	Clock     clockwork.Clock
	Matcher   *exclude.Matcher
	// ConnectivityPoll is the interval between probes while offline
	ConnectivityPoll time.Duration
}

type Engine struct {
	account      string
	mirrorDir    string
	remote       remote.Service
	store        *config.Store
	index        *index.DB
	fs           afero.Fs
	observer     events.Observer
	logger       logging.Logger
	prober       api.Prober
	clock        clockwork.Clock
	matcher      *exclude.Matcher
	pollInterval time.Duration

	// mu is the sync lock. It guards tree, realRoot, updated and every
	// mutation below mirrorDir.
	mu       stdsync.Mutex
	tree     *tree.Tree
	resolver *conflict.Resolver
	realRoot string
	updated  bool

	running    *Gate
	usageGate  *Gate
	wake       chan struct{}
	forceFull  atomic.Bool
	usageForce atomic.Bool

	// snapshot is the tree as of the last persist; readers never take mu
	snapshot atomic.Pointer[tree.Tree]

	stateMu     stdsync.RWMutex
	state       State
	paused      bool
	pauseReason string
	online      bool
	lastSync    time.Time
	lastErr     error
	cycleCancel context.CancelFunc
	done        chan struct{}

	life       context.Context
	lifeCancel context.CancelFunc

	pendingMu stdsync.Mutex
	pending   []localEvent
}

// New validates opts, fills defaults and restores the persisted tree cache
func New(opts Options) (*Engine, error) {
	if opts.Remote == nil {
		return nil, errors.New("sync: remote service is required")
	}
	if opts.Config == nil {
		return nil, errors.New("sync: configuration store is required")
	}
	if opts.Account == "" {
		return nil, errors.New("sync: account is required")
	}

	e := &Engine{
		account:      opts.Account,
		mirrorDir:    opts.MirrorDir,
		remote:       opts.Remote,
		store:        opts.Config,
		index:        opts.Index,
		fs:           opts.Fs,
		observer:     opts.Observer,
		logger:       opts.Logger,
		prober:       opts.Prober,
		clock:        opts.Clock,
		matcher:      opts.Matcher,
		pollInterval: opts.ConnectivityPoll,
		running:      NewGate(),
		usageGate:    NewGate(),
		wake:         make(chan struct{}, 1),
		online:       true,
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.observer == nil {
		e.observer = events.ObserverFunc(func(events.Event) {})
	}
	if e.logger == nil {
		e.logger = logging.NewNoOpLogger()
	}
	if e.prober == nil {
		e.prober = api.NewHTTPProber(utils.ConnectivityProbeURL, utils.ConnectivityTimeout)
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.matcher == nil {
		e.matcher = exclude.New(nil)
	}
	if e.pollInterval <= 0 {
		e.pollInterval = utils.ConnectivityPoll
	}
	e.logger = e.logger.With(logging.F("account", e.account))

	cfg := e.store.Get(e.account)
	if e.mirrorDir == "" {
		dir, err := cfg.MirrorDir(e.account)
		if err != nil {
			return nil, errors.Wrap(err, "resolve mirror directory")
		}
		e.mirrorDir = dir
	}
	e.mirrorDir = filepath.Clean(e.mirrorDir)
	e.resolver = conflict.NewResolver(e.remote, cfg.ConflictPolicy, e.logger)

	e.life, e.lifeCancel = context.WithCancel(context.Background())
	e.tree = e.loadTree()
	e.snapshot.Store(e.tree.Snapshot())
	return e, nil
}

func (e *Engine) loadTree() *tree.Tree {
	if e.index == nil {
		return tree.New()
	}
	t, err := e.index.LoadTree(context.Background(), e.account)
	if err != nil {
		e.logger.Warn("Discarding unreadable tree cache", logging.Err(err))
	}
	return t
}

// Run drives the sync and usage workers until ctx ends or Shutdown is called.
// The sync worker idles until StartSync opens the running gate.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.life, cancel)
	defer stop()

	done := make(chan struct{})
	e.stateMu.Lock()
	e.done = done
	e.stateMu.Unlock()
	defer close(done)

	if e.store.Get(e.account).AutoStart {
		e.StartSync()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.syncWorker(gctx) })
	g.Go(func() error { return e.usageWorker(gctx) })
	err := g.Wait()

	e.setState(StateShuttingDown)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) syncWorker(ctx context.Context) error {
	for {
		if e.running.IsSet() {
			e.setState(StateWaiting)
		} else {
			e.setState(StateIdle)
		}
		if err := e.running.Wait(ctx); err != nil {
			return err
		}

		if err := e.runCycle(ctx); err != nil && ctx.Err() == nil {
			e.logger.Debug("Sync cycle ended with error", logging.Err(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.hasUpdates() {
			e.RequestUsage(false)
		}
		if err := e.coolDown(ctx); err != nil {
			return err
		}
	}
}

// coolDown counts the configured interval down one second at a time. It ends
// early on SyncNow, when sync is stopped, or when ctx ends.
func (e *Engine) coolDown(ctx context.Context) error {
	if !e.running.IsSet() {
		return nil
	}
	e.setState(StateCoolDown)
	left := int(e.store.Get(e.account).GetSyncInterval() / time.Second)
	for ; left > 0; left-- {
		e.notify(events.SyncTimer{SecondsLeft: left})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
			return nil
		case <-e.clock.After(time.Second):
		}
		if !e.running.IsSet() {
			return nil
		}
	}
	return nil
}

// Shutdown stops every worker and waits for Run to return
func (e *Engine) Shutdown() {
	e.setState(StateShuttingDown)
	e.lifeCancel()
	e.cancelCycle()

	e.stateMu.RLock()
	done := e.done
	e.stateMu.RUnlock()
	if done != nil {
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistTree(context.Background())
}

// StartSync opens the running gate and replays local events queued while
// sync was paused at the start of the next cycle
func (e *Engine) StartSync() {
	e.stateMu.Lock()
	e.paused = false
	e.pauseReason = ""
	e.stateMu.Unlock()
	e.running.Set()
	e.logger.Info("Sync started")
}

// StopSync pauses sync. An in-flight cycle observes the cancellation at its
// next suspension point and unwinds.
func (e *Engine) StopSync() {
	e.pause("stopped by user")
}

func (e *Engine) pause(reason string) {
	e.running.Clear()
	e.stateMu.Lock()
	e.paused = true
	e.pauseReason = reason
	e.stateMu.Unlock()
	e.cancelCycle()
	e.notify(events.SyncPaused{Reason: reason})
	e.logger.Info("Sync paused", logging.F("reason", reason))
}

// IsSyncEnabled reports whether the running gate is open
func (e *Engine) IsSyncEnabled() bool {
	return e.running.IsSet()
}

// SyncNow cuts the current cool-down short
func (e *Engine) SyncNow() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ForceFullSync makes the next cycle ignore the stored change token
func (e *Engine) ForceFullSync() {
	e.forceFull.Store(true)
	e.SyncNow()
}

// State returns the current orchestrator state
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state == StateShuttingDown {
		return
	}
	e.state = s
}

// Status summarizes the engine without taking the sync lock
func (e *Engine) Status() Status {
	cfg := e.store.Get(e.account)
	e.stateMu.RLock()
	st := Status{
		Account:     e.account,
		MirrorDir:   e.mirrorDir,
		State:       e.state.String(),
		SyncEnabled: e.running.IsSet(),
		Paused:      e.paused,
		PauseReason: e.pauseReason,
		Online:      e.online,
		LastSync:    e.lastSync,
		HasToken:    cfg.ChangeToken != "",
		Selection:   cfg.SyncSelection,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.stateMu.RUnlock()

	e.pendingMu.Lock()
	st.PendingLocal = len(e.pending)
	e.pendingMu.Unlock()

	st.CachedNodes = e.snapshot.Load().Len()
	return st
}

// Snapshot returns an independent copy of the tree cache as last persisted.
// It does not wait for a running cycle.
func (e *Engine) Snapshot() *tree.Tree {
	return e.snapshot.Load().Snapshot()
}

// Selection returns the configured sync selection
func (e *Engine) Selection() config.Selection {
	return e.store.Get(e.account).SyncSelection
}

// MirrorDir returns the local mirror root
func (e *Engine) MirrorDir() string {
	return e.mirrorDir
}

// Usage returns the cached usage totals, or nil before the first aggregation
func (e *Engine) Usage() *config.DriveUsage {
	return e.store.Get(e.account).DriveUsage
}

func (e *Engine) notify(ev events.Event) {
	e.observer.Notify(ev)
}

func (e *Engine) progress(msg string) {
	e.notify(events.SyncProgress{Message: msg})
}

func (e *Engine) setCycleCancel(cancel context.CancelFunc) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.cycleCancel = cancel
}

func (e *Engine) cancelCycle() {
	e.stateMu.RLock()
	cancel := e.cycleCancel
	e.stateMu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) markUpdated() {
	e.updated = true
}

func (e *Engine) hasUpdates() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updated
}

// localPath maps a mirror relative slash path to the local filesystem
func (e *Engine) localPath(rel string) string {
	if rel == "" {
		return e.mirrorDir
	}
	return filepath.Join(e.mirrorDir, filepath.FromSlash(rel))
}

// relPath maps a local path to its mirror relative slash path. ok is false
// for the mirror root itself and for paths outside it.
func (e *Engine) relPath(p string) (string, bool) {
	rel, err := filepath.Rel(e.mirrorDir, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func parentOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

func displayPath(rel string) string {
	if rel == "" {
		return "/"
	}
	return "/" + rel
}

// isFatal reports errors that unwind a whole pass instead of skipping one
// entity
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		utils.IsInternetUnreachable(err)
}
