package sync

import (
	"context"
	"os"
	"path"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/pkg/errors"
)

type localEventKind int

const (
	localCreated localEventKind = iota
	localMoved
	localDeleted
)

// localEvent is a watcher notification held back while sync is paused
type localEvent struct {
	kind localEventKind
	src  string
	dst  string
}

// OnLocalCreated handles a file or directory created or modified below the
// mirror. While sync is paused the event is queued for the next cycle.
func (e *Engine) OnLocalCreated(p string) error {
	rel, ok := e.relPath(p)
	if !ok || e.matcher.IsExcluded(rel, false) {
		return nil
	}
	if e.enqueue(localEvent{kind: localCreated, src: rel}) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handleCreated(e.life, rel)
}

// OnLocalMoved handles a rename within one directory or a move between
// directories
func (e *Engine) OnLocalMoved(src, dst string) error {
	srcRel, srcOK := e.relPath(src)
	dstRel, dstOK := e.relPath(dst)
	switch {
	case !srcOK && !dstOK:
		return nil
	case !srcOK:
		return e.OnLocalCreated(dst)
	case !dstOK:
		return e.OnLocalDeleted(src)
	}
	if e.enqueue(localEvent{kind: localMoved, src: srcRel, dst: dstRel}) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handleMoved(e.life, srcRel, dstRel)
}

// OnLocalDeleted trashes the remote counterpart of a deleted local entry
func (e *Engine) OnLocalDeleted(p string) error {
	rel, ok := e.relPath(p)
	if !ok {
		return nil
	}
	if e.enqueue(localEvent{kind: localDeleted, src: rel}) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handleDeleted(e.life, rel)
}

// enqueue holds ev back when sync is paused. Identical events collapse.
func (e *Engine) enqueue(ev localEvent) bool {
	if e.running.IsSet() {
		return false
	}
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	for _, queued := range e.pending {
		if queued == ev {
			return true
		}
	}
	e.pending = append(e.pending, ev)
	e.logger.Debug("Queued local event while paused", logging.F("path", ev.src))
	return true
}

// replayPending applies queued events in arrival order; the caller holds mu
func (e *Engine) replayPending(ctx context.Context) {
	e.pendingMu.Lock()
	queued := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	for _, ev := range queued {
		var err error
		switch ev.kind {
		case localCreated:
			err = e.handleCreated(ctx, ev.src)
		case localMoved:
			err = e.handleMoved(ctx, ev.src, ev.dst)
		case localDeleted:
			err = e.handleDeleted(ctx, ev.src)
		}
		if err != nil {
			e.logger.Warn("Failed to replay local event", logging.F("path", ev.src), logging.Err(err))
		}
	}
}

func inScope(sel config.Selection, rel string, isDir bool) bool {
	if isDir {
		return sel.Covers(rel)
	}
	return sel.Monitors(parentOf(rel))
}

func (e *Engine) handleCreated(ctx context.Context, rel string) error {
	local := e.localPath(rel)
	info, err := e.fs.Stat(local)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat %s", rel)
	}
	if e.matcher.IsExcluded(rel, info.IsDir()) {
		return nil
	}
	if !inScope(e.store.Get(e.account).SyncSelection, rel, info.IsDir()) {
		return nil
	}

	if node := e.tree.FindByPath(rel); node != nil {
		if info.IsDir() || node.IsFolder() {
			return nil
		}
		hash, err := utils.MD5File(e.fs, local)
		if err != nil {
			return err
		}
		if hash == node.Meta.MD5Checksum {
			return nil
		}
		e.progress("Uploading changes to " + displayPath(rel))
		var updated *types.DriveFile
		err = e.withConnectivity(ctx, func() error {
			var err error
			updated, err = e.remote.UpdateContent(ctx, node.ID, local)
			return err
		})
		if err != nil {
			return err
		}
		e.markUpdated()
		if err := e.registerEntry(node.ParentID, updated); err != nil {
			return err
		}
		e.persistTree(ctx)
		return nil
	}

	err = e.withConnectivity(ctx, func() error {
		return e.createRemote(ctx, rel, info.IsDir())
	})
	if err != nil {
		return err
	}
	e.persistTree(ctx)
	return nil
}

// createRemote uploads the local entry at rel after a cache miss. A remote
// entry of the same name and kind is adopted rather than duplicated.
func (e *Engine) createRemote(ctx context.Context, rel string, isDir bool) error {
	parent, err := e.locateRemote(ctx, parentOf(rel), true)
	if err != nil {
		return err
	}
	children, err := e.remote.ListChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	name := path.Base(rel)
	for _, child := range children {
		if child.Name != name || child.IsFolder() != isDir {
			continue
		}
		if !isDir {
			hash, err := utils.MD5File(e.fs, e.localPath(rel))
			if err != nil {
				return err
			}
			if hash != child.MD5Checksum {
				e.progress("Uploading changes to " + displayPath(rel))
				updated, err := e.remote.UpdateContent(ctx, child.ID, e.localPath(rel))
				if err != nil {
					return err
				}
				e.markUpdated()
				child = updated
			}
		}
		return e.registerEntry(parent.ID, child)
	}
	return e.uploadLocal(ctx, rel)
}

func (e *Engine) handleMoved(ctx context.Context, srcRel, dstRel string) error {
	node := e.tree.FindByPath(srcRel)
	if node == nil {
		return e.handleCreated(ctx, dstRel)
	}
	sel := e.store.Get(e.account).SyncSelection
	if !inScope(sel, dstRel, node.IsFolder()) {
		return e.handleDeleted(ctx, srcRel)
	}

	srcParent, dstParent := parentOf(srcRel), parentOf(dstRel)
	newName := path.Base(dstRel)
	err := e.withConnectivity(ctx, func() error {
		if srcParent == dstParent {
			e.progress("Renaming " + displayPath(srcRel))
			renamed, err := e.remote.Rename(ctx, node.ID, newName)
			if err != nil {
				return err
			}
			return e.registerEntry(node.ParentID, renamed)
		}

		parent, err := e.locateRemote(ctx, dstParent, true)
		if err != nil {
			return err
		}
		oldParent := node.ParentID
		if oldParent == utils.RootFolderID {
			if oldParent, err = e.remoteRootID(ctx); err != nil {
				return err
			}
		}
		e.progress("Moving " + displayPath(srcRel))
		moved, err := e.remote.Move(ctx, node.ID, parent.ID, oldParent)
		if err != nil {
			return err
		}
		if moved.Name != newName {
			if moved, err = e.remote.Rename(ctx, node.ID, newName); err != nil {
				return err
			}
		}
		return e.registerEntry(parent.ID, moved)
	})
	if err != nil {
		return err
	}
	e.markUpdated()
	e.persistTree(ctx)
	return nil
}

func (e *Engine) handleDeleted(ctx context.Context, rel string) error {
	node := e.tree.FindByPath(rel)
	if node == nil {
		return nil
	}
	if !inScope(e.store.Get(e.account).SyncSelection, rel, node.IsFolder()) {
		return nil
	}
	e.progress("Trashing " + displayPath(rel))
	err := e.withConnectivity(ctx, func() error {
		return e.remote.Trash(ctx, node.ID)
	})
	if err != nil && !utils.IsNotFound(err) {
		return err
	}
	e.dropFromTree(node)
	e.markUpdated()
	e.persistTree(ctx)
	return nil
}
