package config

import (
	"encoding/json"
	"testing"
)

func TestSelection_AddRemove(t *testing.T) {
	sel := RootSelection()

	sel = sel.Add("docs/", "d")
	if sel.IsRoot() {
		t.Error("Expected sentinel to be dropped when a folder is selected")
	}
	sel = sel.Add("photos", "p").Add("docs", "d")
	if len(sel) != 2 {
		t.Errorf("Expected 2 entries after dedup, got %v", sel)
	}

	sel = sel.Remove("docs")
	if sel.Contains("docs") || !sel.Contains("photos") {
		t.Errorf("Expected only photos, got %v", sel)
	}
	sel = sel.Remove("photos")
	if !sel.IsRoot() {
		t.Errorf("Expected sentinel after removing last entry, got %v", sel)
	}

	if !sel.Add("photos", "p").Add("root", "").IsRoot() {
		t.Error("Expected selecting root to reset to the sentinel")
	}
}

func TestSelection_FolderNamedRoot(t *testing.T) {
	sel := RootSelection().Add("root", "0Bfolder")
	if sel.IsRoot() {
		t.Fatalf("Expected a folder named root to replace the sentinel, got %v", sel)
	}
	if !sel.Contains("root") || sel.Covers("music") || !sel.Covers("root/a.txt") {
		t.Errorf("Expected only the root folder to be covered, got %v", sel)
	}

	sel = sel.Add("music", "m")
	if len(sel) != 2 {
		t.Errorf("Expected the root folder to survive adding another, got %v", sel)
	}
	sel = sel.Remove("root")
	if len(sel) != 1 || sel[0].Path != "music" {
		t.Errorf("Expected only music to remain, got %v", sel)
	}

	if RootSelection().Contains("root") {
		t.Error("Expected the sentinel not to count as a selected folder")
	}
}

func TestSelection_RemoveEvictsDescendants(t *testing.T) {
	sel := Selection{}.Add("docs", "d").Add("docs/drafts", "dd").Add("docsx", "x")
	sel = sel.Remove("docs")
	if len(sel) != 1 || sel[0].Path != "docsx" {
		t.Errorf("Expected only docsx to remain, got %v", sel)
	}
}

func TestSelection_Scope(t *testing.T) {
	sel := Selection{}.Add("work/projects", "p")

	tests := []struct {
		path                   string
		covers, ancestor, moni bool
	}{
		{"", false, true, true},
		{"work", false, true, false},
		{"work/projects", true, false, true},
		{"work/projects/a/b", true, false, true},
		{"work/projectsX", false, false, false},
		{"music", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := sel.Covers(tt.path); got != tt.covers {
				t.Errorf("Expected Covers=%v, got %v", tt.covers, got)
			}
			if got := sel.IsAncestor(tt.path); got != tt.ancestor {
				t.Errorf("Expected IsAncestor=%v, got %v", tt.ancestor, got)
			}
			if got := sel.Monitors(tt.path); got != tt.moni {
				t.Errorf("Expected Monitors=%v, got %v", tt.moni, got)
			}
		})
	}

	root := RootSelection()
	if !root.Covers("anything/at/all") || root.IsAncestor("x") {
		t.Error("Expected root selection to cover everything")
	}
}

func TestSelection_JSON(t *testing.T) {
	data, err := json.Marshal(RootSelection())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `[["root",""]]` {
		t.Errorf("Expected [[\"root\",\"\"]], got %s", data)
	}

	var sel Selection
	if err := json.Unmarshal([]byte(`[["a","1"],["b","2"]]`), &sel); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(sel) != 2 || sel[1].ID != "2" {
		t.Errorf("Unexpected selection: %v", sel)
	}
	if err := json.Unmarshal([]byte(`[["only-path"]]`), &sel); err == nil {
		t.Error("Expected error for malformed pair")
	}
}
