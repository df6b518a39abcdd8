package sync

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/pkg/errors"
)

// maxParentDepth bounds parent chain walks against malformed metadata
const maxParentDepth = 64

// incrementalSync applies the change log from token on. The token is saved
// after every fully processed page, so an interrupted run resumes at the
// first page it did not finish.
func (e *Engine) incrementalSync(ctx context.Context, token string) error {
	rootID, err := e.remoteRootID(ctx)
	if err != nil {
		return err
	}

	for pages := 0; ; pages++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var list *types.ChangeList
		err := e.withConnectivity(ctx, func() error {
			var err error
			list, err = e.remote.GetChangesSince(ctx, token)
			return err
		})
		if err != nil {
			return err
		}
		if len(list.Changes) > 0 {
			e.progress("Applying remote changes")
		}

		for _, change := range list.Changes {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := e.withConnectivity(ctx, func() error {
				return e.applyChange(ctx, rootID, change)
			})
			if err != nil {
				if isFatal(err) {
					return err
				}
				e.logger.Warn("Skipping change", logging.F("fileId", change.FileID), logging.Err(err))
			}
		}

		next := list.NextPageToken
		if !list.More() {
			next = list.NewStartPageToken
		}
		if next == "" {
			return errors.New("change page carries no continuation token")
		}
		e.persistTree(ctx)
		if err := e.saveToken(next); err != nil {
			return errors.Wrap(err, "save change token")
		}
		token = next
		if !list.More() {
			e.logger.Debug("Change log drained", logging.F("pages", pages+1))
			return nil
		}
	}
}

// remoteRootID resolves and caches the concrete id behind the root alias
func (e *Engine) remoteRootID(ctx context.Context) (string, error) {
	if e.realRoot != "" {
		return e.realRoot, nil
	}
	var id string
	err := e.withConnectivity(ctx, func() error {
		var err error
		id, err = e.remote.RootID(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	e.realRoot = id
	return id, nil
}

// applyChange applies one change record. Applying the same record twice
// leaves the mirror and the cache as applying it once.
func (e *Engine) applyChange(ctx context.Context, rootID string, change types.Change) error {
	if change.Removed {
		if node := e.tree.FindByID(change.FileID); node != nil {
			e.forget(node)
		}
		return nil
	}

	entry, err := e.remote.GetMetadata(ctx, change.FileID)
	if utils.IsNotFound(err) {
		e.logger.Debug("Changed entry no longer exists", logging.F("fileId", change.FileID))
		return nil
	}
	if err != nil {
		return err
	}
	if entry.ID == rootID {
		return nil
	}

	parentRel, parentID, ok, err := e.resolveParent(ctx, entry, rootID)
	if err != nil {
		return err
	}
	cached := e.tree.FindByID(entry.ID)
	if !ok || entry.Trashed {
		if cached != nil {
			e.forget(cached)
		}
		return nil
	}

	rel := path.Join(parentRel, entry.Name)
	if e.matcher.IsExcluded(rel, entry.IsFolder()) {
		return nil
	}
	sel := e.store.Get(e.account).SyncSelection
	base := ""
	if cached != nil {
		base = cached.Meta.MD5Checksum
		oldRel, _ := e.tree.Path(cached.ID)
		if oldRel != rel {
			if err := e.relocate(cached, oldRel, rel, parentID, entry); err != nil {
				return err
			}
		}
	}

	if entry.IsFolder() {
		if sel.Covers(rel) {
			if err := e.fs.MkdirAll(e.localPath(rel), 0755); err != nil {
				return errors.Wrapf(err, "create local directory %s", displayPath(rel))
			}
		}
		return e.registerEntry(parentID, entry)
	}
	if !sel.Monitors(parentRel) {
		return nil
	}
	return e.reconcileFile(ctx, parentID, entry, rel, base)
}

// resolveParent walks the parent chain of entry up to the drive root and
// returns the mirror relative path of its parent and the parent's cache id.
// ok is false when the chain does not end at the root or passes through a
// trashed folder. Uncached ancestors are registered on the way back down.
func (e *Engine) resolveParent(ctx context.Context, entry *types.DriveFile, rootID string) (string, string, bool, error) {
	var chain []*types.DriveFile
	baseRel, baseID := "", tree.RootID

	parentID := entry.ParentID()
	for depth := 0; ; depth++ {
		if parentID == "" {
			return "", "", false, nil
		}
		if parentID == rootID || parentID == utils.RootFolderID {
			break
		}
		if depth >= maxParentDepth {
			return "", "", false, errors.Errorf("parent chain of %s exceeds %d levels", entry.ID, maxParentDepth)
		}
		if node := e.tree.FindByID(parentID); node != nil {
			p, _ := e.tree.Path(node.ID)
			baseRel, baseID = p, node.ID
			break
		}
		parent, err := e.remote.GetMetadata(ctx, parentID)
		if utils.IsNotFound(err) {
			return "", "", false, nil
		}
		if err != nil {
			return "", "", false, err
		}
		if parent.Trashed {
			return "", "", false, nil
		}
		chain = append(chain, parent)
		parentID = parent.ParentID()
	}

	for i := len(chain) - 1; i >= 0; i-- {
		folder := chain[i]
		if err := e.registerEntry(baseID, folder); err != nil {
			return "", "", false, err
		}
		baseRel = path.Join(baseRel, folder.Name)
		baseID = folder.ID
	}
	return baseRel, baseID, true, nil
}

// relocate applies a remote rename or move to the cached node and to the
// local copy at oldRel
func (e *Engine) relocate(node *tree.Node, oldRel, newRel, parentID string, entry *types.DriveFile) error {
	sel := e.store.Get(e.account).SyncSelection
	inScope := sel.Covers(newRel)
	if !entry.IsFolder() {
		inScope = sel.Monitors(parentOf(newRel))
	}
	if !inScope {
		e.forget(node)
		return nil
	}

	src, dst := e.localPath(oldRel), e.localPath(newRel)
	if _, err := e.fs.Stat(src); err == nil {
		if _, err := e.fs.Stat(dst); os.IsNotExist(err) {
			if err := e.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return errors.Wrapf(err, "create local directory for %s", displayPath(newRel))
			}
			if err := e.fs.Rename(src, dst); err != nil {
				return errors.Wrapf(err, "move %s to %s", displayPath(oldRel), displayPath(newRel))
			}
			e.markUpdated()
		}
	}
	e.logger.Info("Applied remote move", logging.F("from", oldRel), logging.F("to", newRel))
	return e.registerEntry(parentID, entry)
}

// forget deletes the local copy of a cached node and drops it from the cache
func (e *Engine) forget(node *tree.Node) {
	rel, ok := e.tree.Path(node.ID)
	if ok && rel != "" {
		if err := e.fs.RemoveAll(e.localPath(rel)); err != nil {
			e.logger.Warn("Failed to remove local copy", logging.F("path", rel), logging.Err(err))
		} else {
			e.markUpdated()
		}
		e.progress("Removing " + displayPath(rel))
	}
	e.dropFromTree(node)
}
