// Package remote defines the operations the sync engine needs from the remote drive.
package remote

import (
	"context"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/changes"
	"github.com/dl-alexandre/gosync/internal/files"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/spf13/afero"
)

// Service is the remote drive as seen by the engine. Every call applies the
// retry policy of the underlying client; INTERNET_UNREACHABLE is the only
// error that asks the caller to wait for connectivity.
type Service interface {
	About(ctx context.Context) (*types.About, error)
	RootID(ctx context.Context) (string, error)
	ListChildren(ctx context.Context, folderID string) ([]*types.DriveFile, error)
	GetMetadata(ctx context.Context, fileID string) (*types.DriveFile, error)
	CreateFolder(ctx context.Context, name, parentID string) (*types.DriveFile, error)
	Upload(ctx context.Context, localPath, parentID string) (*types.DriveFile, error)
	UpdateContent(ctx context.Context, fileID, localPath string) (*types.DriveFile, error)
	Download(ctx context.Context, entry *types.DriveFile, destPath string) error
	Trash(ctx context.Context, fileID string) error
	Rename(ctx context.Context, fileID, newName string) (*types.DriveFile, error)
	Move(ctx context.Context, fileID, newParentID, oldParentID string) (*types.DriveFile, error)
	GetStartToken(ctx context.Context) (string, error)
	GetChangesSince(ctx context.Context, token string) (*types.ChangeList, error)
}

// Drive implements Service on top of the Drive v3 API
type Drive struct {
	*files.Manager
	changes *changes.Manager
}

var _ Service = (*Drive)(nil)

// NewDrive wires the file and change managers around one client
func NewDrive(client *api.Client, fs afero.Fs, opts ...files.Option) *Drive {
	return &Drive{
		Manager: files.NewManager(client, fs, opts...),
		changes: changes.NewManager(client),
	}
}

func (d *Drive) GetStartToken(ctx context.Context) (string, error) {
	return d.changes.GetStartToken(ctx)
}

func (d *Drive) GetChangesSince(ctx context.Context, token string) (*types.ChangeList, error) {
	return d.changes.GetChangesSince(ctx, token)
}
