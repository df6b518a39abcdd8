package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/platform"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	fileFields  = "id,name,mimeType,size,md5Checksum,modifiedTime,parents,trashed"
	listFields  = "nextPageToken,files(" + fileFields + ")"
	aboutFields = "user(emailAddress,displayName),storageQuota(limit,usage)"
	pageSize    = 1000
)

// Manager handles file operations against Drive
type Manager struct {
	client         *api.Client
	fs             afero.Fs
	logger         logging.Logger
	chunkThreshold int64
	chunkSize      int64
	freeSpace      func(path string) (uint64, error)
}

// Option configures a Manager
type Option func(*Manager)

// WithChunking overrides the ranged download threshold and chunk size
func WithChunking(threshold, chunkSize int64) Option {
	return func(m *Manager) {
		m.chunkThreshold = threshold
		m.chunkSize = chunkSize
	}
}

// WithFreeSpaceFunc overrides the free space probe; nil disables the check
func WithFreeSpaceFunc(fn func(path string) (uint64, error)) Option {
	return func(m *Manager) {
		m.freeSpace = fn
	}
}

// NewManager creates a file manager writing downloads into fs
func NewManager(client *api.Client, fs afero.Fs, opts ...Option) *Manager {
	m := &Manager{
		client:         client,
		fs:             fs,
		logger:         client.Logger(),
		chunkThreshold: utils.ChunkedDownloadThreshold,
		chunkSize:      utils.DownloadChunkSize,
	}
	if _, ok := fs.(*afero.OsFs); ok {
		m.freeSpace = platform.FreeSpace
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// About returns the account identity and quota
func (m *Manager) About(ctx context.Context) (*types.About, error) {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeAccountLookup)
	about, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.About, error) {
		return m.client.Service().About.Get().Fields(googleapi.Field(aboutFields)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	result := &types.About{}
	if about.User != nil {
		result.EmailAddress = about.User.EmailAddress
		result.DisplayName = about.User.DisplayName
	}
	if about.StorageQuota != nil {
		result.QuotaLimit = about.StorageQuota.Limit
		result.QuotaUsage = about.StorageQuota.Usage
	}
	return result, nil
}

// RootID resolves the real id behind the "root" alias
func (m *Manager) RootID(ctx context.Context) (string, error) {
	root, err := m.GetMetadata(ctx, utils.RootFolderID)
	if err != nil {
		return "", err
	}
	return root.ID, nil
}

// GetMetadata retrieves file metadata; a 404 surfaces as FILE_NOT_FOUND
func (m *Manager) GetMetadata(ctx context.Context, fileID string) (*types.DriveFile, error) {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeGetByID, fileID)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.client.Service().Files.Get(fileID).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// ListChildren lists the non-trashed children of a folder, following pagination
func (m *Manager) ListChildren(ctx context.Context, folderID string) ([]*types.DriveFile, error) {
	reqCtx := m.client.WithParentIDs(m.client.RequestContext(ctx, types.RequestTypeListOrSearch), folderID)
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var children []*types.DriveFile
	pageToken := ""
	for {
		call := m.client.Service().Files.List().
			Q(query).
			PageSize(pageSize).
			Fields(googleapi.Field(listFields))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.FileList, error) {
			return call.Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		for _, f := range result.Files {
			children = append(children, convertDriveFile(f))
		}

		if result.NextPageToken == "" {
			return children, nil
		}
		pageToken = result.NextPageToken
	}
}

// CreateFolder creates a folder under parentID
func (m *Manager) CreateFolder(ctx context.Context, name, parentID string) (*types.DriveFile, error) {
	reqCtx := m.client.WithParentIDs(m.client.RequestContext(ctx, types.RequestTypeMutation), parentID)
	metadata := &drive.File{
		Name:     name,
		MimeType: utils.MimeTypeFolder,
		Parents:  []string{parentID},
	}
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.client.Service().Files.Create(metadata).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// Upload creates a new remote object for localPath under parentID.
// Directories become folders; files are uploaded whole.
func (m *Manager) Upload(ctx context.Context, localPath, parentID string) (*types.DriveFile, error) {
	stat, err := m.fs.Stat(localPath)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Failed to stat file: %s", err)).Build(), err)
	}
	name := filepath.Base(localPath)
	if stat.IsDir() {
		return m.CreateFolder(ctx, name, parentID)
	}

	reqCtx := m.client.WithParentIDs(m.client.RequestContext(ctx, types.RequestTypeUpload), parentID)
	metadata := &drive.File{Name: name, Parents: []string{parentID}}

	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		file, err := m.fs.Open(localPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		call := m.client.Service().Files.Create(metadata).
			Media(file, mediaOptions(stat.Size())...).
			Fields(googleapi.Field(fileFields))
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// UpdateContent replaces the content of fileID with localPath, keeping the remote object
func (m *Manager) UpdateContent(ctx context.Context, fileID, localPath string) (*types.DriveFile, error) {
	stat, err := m.fs.Stat(localPath)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Failed to stat file: %s", err)).Build(), err)
	}

	reqCtx := m.client.RequestContext(ctx, types.RequestTypeUpload, fileID)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		file, err := m.fs.Open(localPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		call := m.client.Service().Files.Update(fileID, &drive.File{}).
			Media(file, mediaOptions(stat.Size())...).
			Fields(googleapi.Field(fileFields))
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

func mediaOptions(size int64) []googleapi.MediaOption {
	if size > int64(utils.UploadSimpleMaxBytes) {
		return []googleapi.MediaOption{googleapi.ChunkSize(utils.UploadChunkSize)}
	}
	return nil
}

// Trash moves a file or folder to the trash
func (m *Manager) Trash(ctx context.Context, fileID string) error {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeMutation, fileID)
	return api.Execute(ctx, m.client, reqCtx, func() error {
		_, err := m.client.Service().Files.Update(fileID, &drive.File{Trashed: true}).
			Fields("id").Context(ctx).Do()
		return err
	})
}

// Rename changes the name of a file or folder
func (m *Manager) Rename(ctx context.Context, fileID, newName string) (*types.DriveFile, error) {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeMutation, fileID)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.client.Service().Files.Update(fileID, &drive.File{Name: newName}).
			Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// Move reparents fileID from oldParentID to newParentID
func (m *Manager) Move(ctx context.Context, fileID, newParentID, oldParentID string) (*types.DriveFile, error) {
	reqCtx := m.client.WithParentIDs(m.client.RequestContext(ctx, types.RequestTypeMutation, fileID), newParentID, oldParentID)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		call := m.client.Service().Files.Update(fileID, &drive.File{}).
			AddParents(newParentID).
			Fields(googleapi.Field(fileFields))
		if oldParentID != "" {
			call = call.RemoveParents(oldParentID)
		}
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// Download writes the content of entry to destPath.
//
// Zero-byte files are created by truncation. Files above the chunk threshold are
// fetched with ranged requests written at their offsets, checking ctx between
// chunks. The result is verified against md5Checksum. On any failure the
// partial file is removed.
func (m *Manager) Download(ctx context.Context, entry *types.DriveFile, destPath string) (err error) {
	if entry.IsNativeDocument() {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "native documents have no binary content").
			WithContext("fileId", entry.ID).Err()
	}
	if err := m.checkFreeSpace(destPath, entry.Size); err != nil {
		return err
	}

	f, err := m.fs.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "create %s", destPath)
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		f.Close()
		if removeErr := m.fs.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			m.logger.Warn("Failed to remove partial download", logging.F("path", destPath), logging.Err(removeErr))
		}
	}()

	if entry.Size > 0 {
		if entry.Size > m.chunkThreshold {
			err = m.downloadChunked(ctx, entry, f)
		} else {
			err = m.downloadWhole(ctx, entry, f)
		}
		if err != nil {
			return err
		}
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", destPath)
	}
	completed = true

	if entry.MD5Checksum != "" && entry.Size > 0 {
		sum, err := utils.MD5File(m.fs, destPath)
		if err != nil {
			completed = false
			return errors.Wrapf(err, "hash %s", destPath)
		}
		if sum != entry.MD5Checksum {
			m.fs.Remove(destPath)
			return utils.NewCLIError(utils.ErrCodeChecksumMismatch, "downloaded content does not match remote checksum").
				WithContext("fileId", entry.ID).
				WithContext("expected", entry.MD5Checksum).
				WithContext("actual", sum).
				Err()
		}
	}
	return nil
}

func (m *Manager) downloadWhole(ctx context.Context, entry *types.DriveFile, f afero.File) error {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeDownload, entry.ID)
	return api.Execute(ctx, m.client, reqCtx, func() error {
		if err := f.Truncate(0); err != nil {
			return err
		}
		resp, err := m.client.Service().Files.Get(entry.ID).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		n, err := io.Copy(io.NewOffsetWriter(f, 0), resp.Body)
		if err != nil {
			return err
		}
		if n != entry.Size {
			return fmt.Errorf("short download: got %d of %d bytes", n, entry.Size)
		}
		return nil
	})
}

func (m *Manager) downloadChunked(ctx context.Context, entry *types.DriveFile, f afero.File) error {
	for offset := int64(0); offset < entry.Size; offset += m.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + m.chunkSize
		if end > entry.Size {
			end = entry.Size
		}
		if err := m.downloadRange(ctx, entry, f, offset, end-1); err != nil {
			return err
		}
		m.logger.Debug("Downloaded chunk",
			logging.F("fileId", entry.ID),
			logging.F("offset", offset),
			logging.F("end", end-1),
			logging.F("size", entry.Size),
		)
	}
	return nil
}

// downloadRange fetches bytes [start, end] and writes them at start.
// A retried range overwrites the same bytes.
func (m *Manager) downloadRange(ctx context.Context, entry *types.DriveFile, f afero.File, start, end int64) error {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeDownload, entry.ID)
	want := end - start + 1
	return api.Execute(ctx, m.client, reqCtx, func() error {
		call := m.client.Service().Files.Get(entry.ID)
		call.Header().Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		resp, err := call.Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusPartialContent && start > 0 {
			return fmt.Errorf("range request for bytes %d-%d returned status %d", start, end, resp.StatusCode)
		}
		n, err := io.CopyN(io.NewOffsetWriter(f, start), resp.Body, want)
		if err != nil {
			return err
		}
		if n != want {
			return fmt.Errorf("short chunk: got %d of %d bytes", n, want)
		}
		return nil
	})
}

func (m *Manager) checkFreeSpace(destPath string, size int64) error {
	if m.freeSpace == nil || size <= 0 {
		return nil
	}
	free, err := m.freeSpace(filepath.Dir(destPath))
	if err != nil {
		m.logger.Debug("Free space probe failed", logging.F("path", destPath), logging.Err(err))
		return nil
	}
	if free < uint64(size) {
		return utils.NewCLIError(utils.ErrCodeDiskFull, "not enough free space for download").
			WithContext("path", destPath).
			WithContext("required", size).
			WithContext("available", free).
			Err()
	}
	return nil
}

func convertDriveFile(f *drive.File) *types.DriveFile {
	return &types.DriveFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.Md5Checksum,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		Trashed:      f.Trashed,
	}
}
