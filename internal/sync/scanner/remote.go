package scanner

import (
	"context"
	"path"

	"github.com/dl-alexandre/gosync/internal/types"
)

// Lister lists the non-trashed children of a remote folder
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]*types.DriveFile, error)
}

// WalkRemote visits the remote tree below rootID breadth first. Each folder's
// children are reported before any grandchild is listed. Returning SkipDir for
// a folder prevents it from being listed.
func WalkRemote(ctx context.Context, lister Lister, rootID string, fn func(RemoteEntry, *types.DriveFile) error) error {
	queue := []remoteNode{{ID: rootID, Path: ""}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if err := ctx.Err(); err != nil {
			return err
		}
		children, err := lister.ListChildren(ctx, node.ID)
		if err != nil {
			return err
		}

		for _, child := range children {
			rel := child.Name
			if node.Path != "" {
				rel = path.Join(node.Path, child.Name)
			}
			entry := RemoteEntry{
				RelativePath: rel,
				ID:           child.ID,
				ParentID:     node.ID,
				IsDir:        child.IsFolder(),
				Size:         child.Size,
				ModifiedTime: child.ModifiedTime,
				MD5Checksum:  child.MD5Checksum,
				MimeType:     child.MimeType,
			}
			err := fn(entry, child)
			if err == SkipDir {
				continue
			}
			if err != nil {
				return err
			}
			if entry.IsDir {
				queue = append(queue, remoteNode{ID: child.ID, Path: rel})
			}
		}
	}

	return nil
}

type remoteNode struct {
	ID   string
	Path string
}

// ListTree collects the whole remote tree below rootID keyed by relative path
func ListTree(ctx context.Context, lister Lister, rootID string) (map[string]RemoteEntry, error) {
	entries := make(map[string]RemoteEntry)
	err := WalkRemote(ctx, lister, rootID, func(e RemoteEntry, _ *types.DriveFile) error {
		entries[e.RelativePath] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
