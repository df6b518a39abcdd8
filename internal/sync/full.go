package sync

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/sync/conflict"
	"github.com/dl-alexandre/gosync/internal/sync/scanner"
	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/pkg/errors"
)

// fullSync walks every selected remote subtree into the mirror, uploads local
// entries the remote pass did not account for, prunes local directories
// outside the selection and finally establishes a fresh change token.
func (e *Engine) fullSync(ctx context.Context) error {
	sel := e.store.Get(e.account).SyncSelection
	if err := e.fs.MkdirAll(e.mirrorDir, 0755); err != nil {
		return errors.Wrap(err, "create mirror directory")
	}

	if sel.IsRoot() {
		if err := e.syncDirectory(ctx, tree.RootID, "", true); err != nil {
			return err
		}
	} else {
		// root level files are always mirrored
		if err := e.syncDirectory(ctx, tree.RootID, "", false); err != nil {
			return err
		}
		for _, entry := range topLevel(sel) {
			node := e.tree.FindByPath(entry.Path)
			if node == nil {
				e.logger.Warn("Selected folder missing from cache", logging.F("path", entry.Path))
				continue
			}
			if err := e.syncDirectory(ctx, node.ID, entry.Path, true); err != nil {
				return err
			}
		}
	}

	if err := e.withConnectivity(ctx, func() error { return e.localPass(ctx, sel) }); err != nil {
		return err
	}

	var token string
	err := e.withConnectivity(ctx, func() error {
		var err error
		token, err = e.remote.GetStartToken(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if err := e.saveToken(token); err != nil {
		return errors.Wrap(err, "save change token")
	}
	e.persistTree(ctx)
	return nil
}

// topLevel drops selected paths already covered by a selected ancestor
func topLevel(sel config.Selection) config.Selection {
	var out config.Selection
	for _, entry := range sel {
		nested := false
		for _, other := range sel {
			if other.Path != entry.Path && strings.HasPrefix(entry.Path, other.Path+"/") {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, entry)
		}
	}
	return out
}

// syncDirectory reconciles one remote folder. Connectivity loss while the
// folder is processed is waited out and the same folder is picked up again;
// entries already in sync cost only a hash comparison on the second pass.
func (e *Engine) syncDirectory(ctx context.Context, folderID, rel string, recursive bool) error {
	return e.withConnectivity(ctx, func() error {
		return e.reconcileFolder(ctx, folderID, rel, recursive)
	})
}

func (e *Engine) reconcileFolder(ctx context.Context, folderID, rel string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.fs.MkdirAll(e.localPath(rel), 0755); err != nil {
		return errors.Wrapf(err, "create local directory %s", displayPath(rel))
	}

	children, err := e.remote.ListChildren(ctx, folderID)
	if err != nil {
		return err
	}
	e.pruneStale(folderID, children, recursive)
	if len(children) == 0 {
		return nil
	}
	e.progress("Syncing " + displayPath(rel))

	var folders []*types.DriveFile
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		childRel := path.Join(rel, child.Name)
		if e.matcher.IsExcluded(childRel, child.IsFolder()) {
			continue
		}
		if child.IsFolder() {
			if !recursive {
				continue
			}
			if err := e.registerEntry(folderID, child); err != nil {
				e.logger.Warn("Failed to cache folder", logging.F("path", childRel), logging.Err(err))
				continue
			}
			folders = append(folders, child)
			continue
		}
		if err := e.reconcileFile(ctx, folderID, child, childRel, e.cachedHash(child.ID)); err != nil {
			if isFatal(err) {
				return err
			}
			e.logger.Warn("Skipping file", logging.F("path", childRel), logging.Err(err))
		}
	}

	// every file of this folder is applied before its subfolders are entered
	for _, folder := range folders {
		childRel := path.Join(rel, folder.Name)
		if err := e.syncDirectory(ctx, folder.ID, childRel, true); err != nil {
			if isFatal(err) {
				return err
			}
			e.logger.Warn("Skipping folder", logging.F("path", childRel), logging.Err(err))
		}
	}
	return nil
}

// pruneStale drops cached children of folderID that the remote listing no
// longer reports. A non-recursive pass only vouches for files.
func (e *Engine) pruneStale(folderID string, listed []*types.DriveFile, recursive bool) {
	node := e.tree.FindByID(folderID)
	if node == nil {
		return
	}
	present := make(map[string]bool, len(listed))
	for _, f := range listed {
		present[f.ID] = true
	}
	for _, id := range node.Children() {
		child := e.tree.FindByID(id)
		if child == nil || present[id] {
			continue
		}
		if child.IsFolder() && !recursive {
			continue
		}
		e.logger.Debug("Dropping stale cache entry", logging.F("id", id), logging.F("name", child.Name))
		e.dropFromTree(child)
	}
}

// cachedHash returns the content hash last cached for id
func (e *Engine) cachedHash(id string) string {
	if node := e.tree.FindByID(id); node != nil {
		return node.Meta.MD5Checksum
	}
	return ""
}

// reconcileFile brings the local copy at rel in line with the remote entry
// and caches the winning metadata below parentID. base is the hash both
// sides last agreed on.
func (e *Engine) reconcileFile(ctx context.Context, parentID string, entry *types.DriveFile, rel, base string) error {
	if entry.IsNativeDocument() {
		e.logger.Debug("Skipping native document", logging.F("path", rel), logging.F("mimeType", entry.MimeType))
		return nil
	}

	local := e.localPath(rel)
	info, err := e.fs.Stat(local)
	switch {
	case err != nil && !os.IsNotExist(err):
		return errors.Wrapf(err, "stat %s", rel)
	case err != nil:
		if err := e.fs.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return errors.Wrapf(err, "create local directory for %s", rel)
		}
		e.progress("Downloading " + displayPath(rel))
		if err := e.remote.Download(ctx, entry, local); err != nil {
			return err
		}
		e.markUpdated()
	case info.IsDir():
		return errors.Errorf("local directory %s is in the way of a remote file", displayPath(rel))
	default:
		hash, err := utils.MD5File(e.fs, local)
		if err != nil {
			return err
		}
		if hash != entry.MD5Checksum {
			e.progress("Resolving " + displayPath(rel))
			winner, outcome, err := e.resolver.Resolve(ctx, entry, local, hash, base)
			if err != nil {
				return err
			}
			entry = winner
			if outcome != conflict.OutcomeInSync {
				e.markUpdated()
			}
		}
	}
	return e.registerEntry(parentID, entry)
}

// localPass uploads mirror entries missing from the tree cache and deletes
// local directories that fall outside the selection
func (e *Engine) localPass(ctx context.Context, sel config.Selection) error {
	return scanner.WalkLocal(ctx, e.fs, e.mirrorDir, e.matcher, func(le scanner.LocalEntry) error {
		rel := le.RelativePath
		if le.IsDir {
			if !sel.Covers(rel) && !sel.IsAncestor(rel) {
				e.pruneLocal(rel)
				return scanner.SkipDir
			}
			if !sel.Covers(rel) {
				return nil
			}
		} else if !sel.Monitors(parentOf(rel)) {
			return nil
		}

		if e.tree.FindByPath(rel) != nil {
			return nil
		}
		if err := e.uploadLocal(ctx, rel); err != nil {
			if isFatal(err) {
				return err
			}
			e.logger.Warn("Skipping upload", logging.F("path", rel), logging.Err(err))
			if le.IsDir {
				return scanner.SkipDir
			}
		}
		return nil
	})
}

// pruneLocal removes an out of scope directory and forgets its cached subtree
// without touching the remote
func (e *Engine) pruneLocal(rel string) {
	e.logger.Info("Removing directory outside sync selection", logging.F("path", rel))
	if node := e.tree.FindByPath(rel); node != nil && node.IsFolder() {
		if _, err := e.tree.DeleteFolder(node.ID, nil); err != nil {
			e.logger.Warn("Failed to forget pruned folder", logging.F("path", rel), logging.Err(err))
		}
	}
	if err := e.fs.RemoveAll(e.localPath(rel)); err != nil {
		e.logger.Warn("Failed to remove directory", logging.F("path", rel), logging.Err(err))
	}
}

// uploadLocal creates the remote counterpart of the local entry at rel
func (e *Engine) uploadLocal(ctx context.Context, rel string) error {
	parent, err := e.locateRemote(ctx, parentOf(rel), true)
	if err != nil {
		return err
	}
	e.progress("Uploading " + displayPath(rel))
	created, err := e.remote.Upload(ctx, e.localPath(rel), parent.ID)
	if err != nil {
		return err
	}
	e.markUpdated()
	return e.registerEntry(parent.ID, created)
}
