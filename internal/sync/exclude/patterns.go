// Package exclude decides which local paths never take part in sync.
package exclude

import (
	"path"
	"strings"
)

type Matcher struct {
	patterns []string
}

// DefaultPatterns skips OS metadata and editor scratch files that would
// otherwise be uploaded on every save.
func DefaultPatterns() []string {
	return []string{
		".DS_Store",
		"._*",
		"Thumbs.db",
		"desktop.ini",
		".Trash-*/",
		"*.tmp",
		"*.swp",
		"*~",
		"~$*",
		".~lock.*#",
		".gosync-*",
	}
}

func New(patterns []string) *Matcher {
	merged := append([]string{}, DefaultPatterns()...)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		merged = append(merged, p)
	}
	return &Matcher{patterns: merged}
}

// Patterns returns the active patterns
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// IsExcluded reports whether the mirror relative relPath is ignored.
// A path is excluded when it or any of its parents matches.
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.Trim(strings.TrimPrefix(relPath, "./"), "/")
	if relPath == "" {
		return false
	}
	parts := strings.Split(relPath, "/")
	for i := range parts {
		sub := strings.Join(parts[:i+1], "/")
		last := i == len(parts)-1
		if m.matches(sub, !last || isDir) {
			return true
		}
	}
	return false
}

func (m *Matcher) matches(relPath string, isDir bool) bool {
	base := path.Base(relPath)
	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			if !isDir {
				continue
			}
			dirPattern := strings.TrimSuffix(p, "/")
			if ok, _ := path.Match(dirPattern, relPath); ok {
				return true
			}
			if ok, _ := path.Match(dirPattern, base); ok {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, relPath); ok {
				return true
			}
			if ok, _ := path.Match(p, base); ok {
				return true
			}
			continue
		}
		if relPath == p || base == p {
			return true
		}
	}
	return false
}
