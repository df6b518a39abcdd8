package types

import "testing"

func TestDriveFileKinds(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		folder   bool
		native   bool
	}{
		{"folder", "application/vnd.google-apps.folder", true, false},
		{"google doc", "application/vnd.google-apps.document", false, true},
		{"google sheet", "application/vnd.google-apps.spreadsheet", false, true},
		{"pdf", "application/pdf", false, false},
		{"empty mime", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &DriveFile{MimeType: tt.mimeType}
			if f.IsFolder() != tt.folder {
				t.Errorf("Expected IsFolder %v, got %v", tt.folder, f.IsFolder())
			}
			if f.IsNativeDocument() != tt.native {
				t.Errorf("Expected IsNativeDocument %v, got %v", tt.native, f.IsNativeDocument())
			}
		})
	}
}

func TestDriveFileParents(t *testing.T) {
	f := &DriveFile{}
	if f.ParentID() != "" {
		t.Errorf("Expected empty parent, got %q", f.ParentID())
	}
	f.Parents = []string{"a", "b"}
	if f.ParentID() != "a" {
		t.Errorf("Expected parent a, got %q", f.ParentID())
	}
	if !f.HasParent("b") || f.HasParent("c") {
		t.Error("HasParent returned wrong result")
	}
}
