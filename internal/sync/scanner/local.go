package scanner

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/dl-alexandre/gosync/internal/sync/exclude"
	"github.com/spf13/afero"
)

// SkipDir returned from a WalkLocal callback skips the directory's contents
var SkipDir = filepath.SkipDir

// WalkLocal visits every entry below root in lexical order, each directory
// before its contents. Symlinks and excluded paths are never reported.
func WalkLocal(ctx context.Context, fs afero.Fs, root string, matcher *exclude.Matcher, fn func(LocalEntry) error) error {
	return afero.Walk(fs, root, func(current string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && current != root {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if matcher != nil && matcher.IsExcluded(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		return fn(LocalEntry{
			RelativePath: rel,
			AbsPath:      current,
			IsDir:        info.IsDir(),
			Size:         info.Size(),
			ModTime:      info.ModTime().Unix(),
		})
	})
}

// ScanLocal collects WalkLocal results keyed by relative path
func ScanLocal(ctx context.Context, fs afero.Fs, root string, matcher *exclude.Matcher) (map[string]LocalEntry, error) {
	entries := make(map[string]LocalEntry)
	err := WalkLocal(ctx, fs, root, matcher, func(e LocalEntry) error {
		entries[e.RelativePath] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
