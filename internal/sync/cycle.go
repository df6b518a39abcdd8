package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/sync/conflict"
	"github.com/dl-alexandre/gosync/internal/sync/index"
	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RunOnce runs a single validate and sync cycle regardless of the running
// gate. full forces full-tree reconciliation.
func (e *Engine) RunOnce(ctx context.Context, full bool) error {
	if full {
		e.forceFull.Store(true)
	}
	return e.runCycle(ctx)
}

func (e *Engine) runCycle(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	e.setCycleCancel(cancel)
	defer e.setCycleCancel(nil)

	traceID := uuid.New().String()
	ctx = logging.ContextWithTraceID(ctx, traceID)
	log := e.logger.WithTraceID(traceID)

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.store.Get(e.account)
	e.resolver = conflict.NewResolver(e.remote, cfg.ConflictPolicy, log)
	e.replayPending(ctx)

	e.setState(StateValidating)
	if err := e.validateSelection(ctx, cfg.SyncSelection); err != nil {
		e.finishCycle(err)
		if utils.IsInvalidSyncSelection(err) {
			e.pause("invalid sync selection")
		}
		return err
	}

	full := e.forceFull.Swap(false) || cfg.ChangeToken == ""
	e.setState(StateSyncing)
	e.notify(events.SyncStarted{Full: full})
	log.Info("Sync cycle started", logging.F("full", full))
	started := e.clock.Now()

	var err error
	if full {
		err = e.fullSync(ctx)
		if err != nil {
			e.forceFull.Store(true)
		}
	} else {
		err = e.incrementalSync(ctx, cfg.ChangeToken)
	}

	switch {
	case err == nil:
		log.Info("Sync cycle finished", logging.F("full", full), logging.F("elapsed", e.clock.Since(started).String()))
		e.recordSync(ctx, full)
		e.notify(events.SyncDone{Success: true})
	case errors.Is(err, context.Canceled):
		log.Info("Sync cycle interrupted", logging.F("full", full))
		e.notify(events.SyncDone{Success: false})
	default:
		log.Error("Sync cycle failed", logging.F("full", full), logging.Err(err))
		e.notify(events.SyncDone{Success: false, Err: err})
	}
	e.finishCycle(err)
	e.persistTree(ctx)
	return err
}

func (e *Engine) finishCycle(err error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if errors.Is(err, context.Canceled) {
		return
	}
	e.lastErr = err
}

func (e *Engine) recordSync(ctx context.Context, full bool) {
	now := e.clock.Now()
	e.stateMu.Lock()
	e.lastSync = now
	e.stateMu.Unlock()
	if e.index == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.index.SetTime(ctx, e.account, index.StateLastSync, now); err != nil {
		e.logger.Warn("Failed to record sync time", logging.Err(err))
	}
	if full {
		if err := e.index.SetTime(ctx, e.account, index.StateLastFullSync, now); err != nil {
			e.logger.Warn("Failed to record full sync time", logging.Err(err))
		}
	}
}

// validateSelection checks that every selected folder still resolves by
// path to the folder id it was selected with. Ancestors of each selected
// folder are registered in the tree as a side effect.
func (e *Engine) validateSelection(ctx context.Context, sel config.Selection) error {
	if sel.IsRoot() {
		return nil
	}
	for _, entry := range sel {
		var folder *types.DriveFile
		err := e.withConnectivity(ctx, func() error {
			var err error
			folder, err = e.locateRemote(ctx, entry.Path, false)
			return err
		})
		switch {
		case utils.IsNotFound(err):
			return e.invalidSelection(entry, "folder no longer exists")
		case err != nil:
			return err
		case entry.ID != "" && folder.ID != entry.ID:
			return e.invalidSelection(entry, "path now points to a different folder")
		}
	}
	return nil
}

func (e *Engine) invalidSelection(entry config.SelectionEntry, reason string) error {
	e.notify(events.InvalidSyncFolder{Path: entry.Path})
	e.logger.Warn("Invalid sync folder", logging.F("path", entry.Path), logging.F("reason", reason))
	return utils.NewCLIError(utils.ErrCodeInvalidSyncSelection,
		fmt.Sprintf("sync folder %s: %s", displayPath(entry.Path), reason)).
		WithContext("path", entry.Path).Err()
}

// locateRemote resolves a mirror relative folder path to its remote folder,
// walking from the root one listing per component. With useCache, components
// already in the tree cost no remote call. Every folder on the way is
// registered in the tree.
func (e *Engine) locateRemote(ctx context.Context, rel string, useCache bool) (*types.DriveFile, error) {
	rel = config.CleanPath(rel)
	current := &types.DriveFile{ID: utils.RootFolderID, MimeType: utils.MimeTypeFolder}
	if rel == "" {
		return current, nil
	}

	parentID := tree.RootID
	for _, name := range strings.Split(rel, "/") {
		if useCache {
			if node := e.tree.ChildNamed(parentID, name); node != nil && node.IsFolder() {
				current = nodeToDriveFile(node)
				parentID = node.ID
				continue
			}
		}

		children, err := e.remote.ListChildren(ctx, parentID)
		if err != nil {
			return nil, err
		}
		var found *types.DriveFile
		for _, child := range children {
			if child.Name == name && child.IsFolder() {
				found = child
				break
			}
		}
		if found == nil {
			return nil, utils.NewCLIError(utils.ErrCodeFileNotFound,
				fmt.Sprintf("remote folder %s not found", displayPath(rel))).
				WithContext("path", rel).Err()
		}
		if err := e.registerEntry(parentID, found); err != nil {
			return nil, err
		}
		current = found
		parentID = found.ID
	}
	return current, nil
}

// registerEntry inserts entry below parentID or, when the id is already
// cached, brings its name, parent and metadata up to date
func (e *Engine) registerEntry(parentID string, entry *types.DriveFile) error {
	meta := metadataOf(entry)
	if node := e.tree.FindByID(entry.ID); node != nil {
		if node.ParentID != parentID {
			if err := e.tree.Move(entry.ID, parentID); err != nil {
				return err
			}
		}
		if node.Name != entry.Name {
			if err := e.tree.Rename(entry.ID, entry.Name); err != nil {
				return err
			}
		}
		e.tree.UpdateMetadata(entry.ID, meta)
		return nil
	}

	var err error
	if entry.IsFolder() {
		_, err = e.tree.AddFolder(parentID, entry.ID, entry.Name, meta)
	} else {
		_, err = e.tree.AddFile(parentID, entry.ID, entry.Name, meta)
	}
	return err
}

// dropFromTree removes node and its subtree from the cache. Selected folders
// inside the removed subtree are evicted from the sync selection.
func (e *Engine) dropFromTree(node *tree.Node) {
	if !node.IsFolder() {
		if err := e.tree.Remove(node.ID); err != nil {
			e.logger.Warn("Failed to drop cache entry", logging.F("id", node.ID), logging.Err(err))
		}
		return
	}

	var evicted []string
	collect := func(n *tree.Node) error {
		if !n.IsFolder() {
			return nil
		}
		if p, ok := e.tree.Path(n.ID); ok {
			evicted = append(evicted, p)
		}
		return nil
	}
	if p, ok := e.tree.Path(node.ID); ok {
		evicted = append(evicted, p)
	}
	if _, err := e.tree.DeleteFolder(node.ID, collect); err != nil {
		e.logger.Warn("Cascading cache delete reported errors", logging.F("id", node.ID), logging.Err(err))
	}
	e.evictSelection(evicted)
}

func (e *Engine) evictSelection(paths []string) {
	sel := e.store.Get(e.account).SyncSelection
	next := sel
	changed := false
	for _, p := range paths {
		if !next.IsRoot() && next.Contains(p) {
			next = next.Remove(p)
			changed = true
		}
	}
	if !changed {
		return
	}
	err := e.store.Update(e.account, func(c *config.AccountConfig) {
		c.SyncSelection = next
	})
	if err != nil {
		e.logger.Error("Failed to evict removed folders from sync selection", logging.Err(err))
		return
	}
	e.logger.Info("Removed folders evicted from sync selection", logging.F("paths", paths))
	e.forceFull.Store(true)
}

func (e *Engine) persistTree(ctx context.Context) {
	e.snapshot.Store(e.tree.Snapshot())
	if e.index == nil {
		return
	}
	if err := e.index.SaveTree(context.WithoutCancel(ctx), e.account, e.tree); err != nil {
		e.logger.Error("Failed to persist tree cache", logging.Err(err))
	}
}

func (e *Engine) saveToken(token string) error {
	return e.store.Update(e.account, func(c *config.AccountConfig) {
		c.ChangeToken = token
	})
}

// withConnectivity runs op and, whenever it reports INTERNET_UNREACHABLE,
// waits for the prober to succeed and runs it again
func (e *Engine) withConnectivity(ctx context.Context, op func() error) error {
	for {
		err := op()
		if !utils.IsInternetUnreachable(err) {
			return err
		}
		e.setOnline(false)
		e.logger.Warn("Connectivity lost, waiting to resume", logging.Err(err))
		if werr := api.WaitForConnectivity(ctx, e.prober, e.clock, e.pollInterval); werr != nil {
			return werr
		}
		e.setOnline(true)
		e.logger.Info("Connectivity restored")
	}
}

func (e *Engine) setOnline(up bool) {
	e.stateMu.Lock()
	changed := e.online != up
	e.online = up
	e.stateMu.Unlock()
	if changed {
		e.notify(events.ConnectivityChanged{Up: up})
	}
}

func metadataOf(f *types.DriveFile) tree.Metadata {
	return tree.Metadata{
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.MD5Checksum,
		ModifiedTime: f.ModifiedTime,
		Trashed:      f.Trashed,
	}
}

func nodeToDriveFile(n *tree.Node) *types.DriveFile {
	return &types.DriveFile{
		ID:           n.ID,
		Name:         n.Name,
		MimeType:     n.Meta.MimeType,
		Size:         n.Meta.Size,
		MD5Checksum:  n.Meta.MD5Checksum,
		ModifiedTime: n.Meta.ModifiedTime,
		Parents:      []string{n.ParentID},
	}
}
