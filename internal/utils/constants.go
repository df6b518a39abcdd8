package utils

import "time"

// Transfer thresholds (binary units)
const (
	UploadSimpleMaxBytes = 5 * 1024 * 1024 // 5 MiB
	UploadChunkSize      = 8 * 1024 * 1024 // 8 MiB

	// Files above this size are downloaded in ranged chunks
	ChunkedDownloadThreshold = 250 * 1024 * 1024
	DownloadChunkSize        = 64 * 1024 * 1024
)

// OAuth scopes
const (
	ScopeFull  = "https://www.googleapis.com/auth/drive"
	ScopeEmail = "https://www.googleapis.com/auth/userinfo.email"
)

var ScopesSync = []string{ScopeFull, ScopeEmail}

// Retry policy
const (
	TransientRetryDelay  = 5 * time.Second
	UnknownErrorRetries  = 1
	ConnectivityProbeURL = "https://www.google.com/generate_204"
	ConnectivityTimeout  = 3 * time.Second
	ConnectivityPoll     = 10 * time.Second
)

// Sync defaults
const (
	DefaultSyncIntervalSeconds = 600
	MinSyncIntervalSeconds     = 30
	RootFolderID               = "root"
	RootSelectionPath          = "root"
)

// Schema version
const SchemaVersion = "1.0"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeForm         = "application/vnd.google-apps.form"
	MimeTypeScript       = "application/vnd.google-apps.script"
	MimeTypeSites        = "application/vnd.google-apps.sites"
	MimeTypeFusionTable  = "application/vnd.google-apps.fusiontable"
	MimeTypeMap          = "application/vnd.google-apps.map"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeShortcut     = "application/vnd.google-apps.shortcut"
)

// IsWorkspaceMimeType checks if a MIME type is a Google-native document type
func IsWorkspaceMimeType(mimeType string) bool {
	switch mimeType {
	case MimeTypeDocument, MimeTypeSpreadsheet, MimeTypePresentation,
		MimeTypeDrawing, MimeTypeForm, MimeTypeScript, MimeTypeSites,
		MimeTypeFusionTable, MimeTypeMap, MimeTypeShortcut:
		return true
	}
	return false
}

// Category is a usage bucket
type Category string

const (
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

var categoryByMimeType = map[string]Category{
	"audio/mpeg":                 CategoryAudio,
	"audio/x-mpeg-3":             CategoryAudio,
	"audio/mpeg3":                CategoryAudio,
	"audio/aiff":                 CategoryAudio,
	"audio/x-aiff":               CategoryAudio,
	"video/mp4":                  CategoryVideo,
	"video/x-msvideo":            CategoryVideo,
	"video/mpeg":                 CategoryVideo,
	"video/flv":                  CategoryVideo,
	"video/quicktime":            CategoryVideo,
	"image/png":                  CategoryImage,
	"image/jpeg":                 CategoryImage,
	"image/jpg":                  CategoryImage,
	"image/tiff":                 CategoryImage,
	"application/powerpoint":     CategoryDocument,
	"application/mspowerpoint":   CategoryDocument,
	"application/x-mspowerpoint": CategoryDocument,
	"application/pdf":            CategoryDocument,
	"application/x-dvi":          CategoryDocument,
}

// CategoryForMimeType maps a content type to its usage category.
func CategoryForMimeType(mimeType string) Category {
	if c, ok := categoryByMimeType[mimeType]; ok {
		return c
	}
	return CategoryOther
}
