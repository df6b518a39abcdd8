package types

import "time"

// Change represents one record of the remote change log
type Change struct {
	// FileID is the ID of the file that changed
	FileID string `json:"fileId"`

	// File is the file resource as of the change; nil when removed
	File *DriveFile `json:"file,omitempty"`

	// Removed indicates the file was permanently deleted or access was lost
	Removed bool `json:"removed"`

	Time time.Time `json:"time"`
}

// ChangeList is one page of the change log
type ChangeList struct {
	Changes []Change `json:"changes"`

	// NextPageToken is set while more pages are available
	NextPageToken string `json:"nextPageToken,omitempty"`

	// NewStartPageToken is set on the last page and is the cursor for future queries
	NewStartPageToken string `json:"newStartPageToken,omitempty"`
}

// More reports whether another page follows this one.
func (l *ChangeList) More() bool {
	return l.NextPageToken != ""
}
