package config

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/dl-alexandre/gosync/internal/utils"
)

// SelectionEntry designates one mirrored subtree by mirror relative path and remote folder id
type SelectionEntry struct {
	Path string
	ID   string
}

// MarshalJSON encodes the entry as a [path, id] pair
func (e SelectionEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Path, e.ID})
}

func (e *SelectionEntry) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("selection entry must be a [path, id] pair, got %d elements", len(pair))
	}
	e.Path, e.ID = pair[0], pair[1]
	return nil
}

// Selection is the ordered list of mirrored subtrees
type Selection []SelectionEntry

// RootSelection mirrors the whole drive
func RootSelection() Selection {
	return Selection{{Path: utils.RootSelectionPath, ID: ""}}
}

// IsSentinel reports whether e is the whole drive marker. A top-level folder
// that happens to be named root carries its folder id and is not the marker.
func (e SelectionEntry) IsSentinel() bool {
	return e.Path == utils.RootSelectionPath && e.ID == ""
}

// IsRoot reports whether everything is mirrored
func (s Selection) IsRoot() bool {
	for _, e := range s {
		if e.IsSentinel() {
			return true
		}
	}
	return len(s) == 0
}

// CleanPath normalizes a mirror relative path: slash separated, no leading or trailing slash
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(path.Clean("/"+p), "/")
}

// Add returns the selection with folder p added. Adding the drive root, or
// the sentinel path without a folder id, resets to the sentinel; adding a
// folder drops the sentinel.
func (s Selection) Add(p, id string) Selection {
	p = CleanPath(p)
	if p == "" || (SelectionEntry{Path: p, ID: id}).IsSentinel() {
		return RootSelection()
	}
	out := make(Selection, 0, len(s)+1)
	for _, e := range s {
		if e.IsSentinel() || e.Path == p {
			continue
		}
		out = append(out, e)
	}
	return append(out, SelectionEntry{Path: p, ID: id})
}

// Remove returns the selection without p and without anything under p.
// Removing the last entry restores the sentinel.
func (s Selection) Remove(p string) Selection {
	p = CleanPath(p)
	out := make(Selection, 0, len(s))
	for _, e := range s {
		if e.IsSentinel() || isWithin(e.Path, p) {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return RootSelection()
	}
	return out
}

// Contains reports whether folder p is selected exactly
func (s Selection) Contains(p string) bool {
	p = CleanPath(p)
	for _, e := range s {
		if e.Path == p && !e.IsSentinel() {
			return true
		}
	}
	return false
}

// Covers reports whether p is mirrored: the selection is the root, or p is a
// selected folder or lies beneath one.
func (s Selection) Covers(p string) bool {
	if s.IsRoot() {
		return true
	}
	p = CleanPath(p)
	for _, e := range s {
		if isWithin(p, e.Path) {
			return true
		}
	}
	return false
}

// IsAncestor reports whether p is a strict ancestor of a selected folder
func (s Selection) IsAncestor(p string) bool {
	if s.IsRoot() {
		return false
	}
	p = CleanPath(p)
	for _, e := range s {
		if p == "" || strings.HasPrefix(e.Path, p+"/") {
			return true
		}
	}
	return false
}

// Monitors reports whether files whose parent folder is parent are synced.
// Files in the drive root are always monitored.
func (s Selection) Monitors(parent string) bool {
	parent = CleanPath(parent)
	return parent == "" || s.Covers(parent)
}

// isWithin reports whether p equals base or lies beneath it
func isWithin(p, base string) bool {
	return p == base || strings.HasPrefix(p, base+"/")
}
