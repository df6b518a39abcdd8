package types

import "strings"

const (
	mimeTypeFolder       = "application/vnd.google-apps.folder"
	mimeTypeNativePrefix = "application/vnd.google-apps."
)

// DriveFile is the metadata of a remote file or folder
type DriveFile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Size         int64    `json:"size,omitempty"`
	MD5Checksum  string   `json:"md5Checksum,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	Trashed      bool     `json:"trashed,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (f *DriveFile) IsFolder() bool {
	return f.MimeType == mimeTypeFolder
}

// IsNativeDocument reports whether the entry is a Google-native document
// without downloadable binary content.
func (f *DriveFile) IsNativeDocument() bool {
	return !f.IsFolder() && strings.HasPrefix(f.MimeType, mimeTypeNativePrefix)
}

// ParentID returns the first parent, or "" for entries without one.
func (f *DriveFile) ParentID() string {
	if len(f.Parents) == 0 {
		return ""
	}
	return f.Parents[0]
}

// HasParent reports whether id is one of the entry's parents.
func (f *DriveFile) HasParent(id string) bool {
	for _, p := range f.Parents {
		if p == id {
			return true
		}
	}
	return false
}

// About describes the authenticated account
type About struct {
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName,omitempty"`
	QuotaLimit   int64  `json:"quotaLimit,omitempty"`
	QuotaUsage   int64  `json:"quotaUsage,omitempty"`
}
