package changes

import (
	"context"
	"time"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	changeFields = "nextPageToken,newStartPageToken," +
		"changes(fileId,removed,time,file(id,name,mimeType,size,md5Checksum,modifiedTime,parents,trashed))"
	changesPageSize = 1000
)

// Manager reads the remote change log
type Manager struct {
	client *api.Client
}

func NewManager(client *api.Client) *Manager {
	return &Manager{client: client}
}

// GetStartToken returns the cursor representing "now"
func (m *Manager) GetStartToken(ctx context.Context) (string, error) {
	reqCtx := m.client.RequestContext(ctx, types.RequestTypeChanges)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.StartPageToken, error) {
		return m.client.Service().Changes.GetStartPageToken().Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return result.StartPageToken, nil
}

// GetChangesSince returns one page of changes starting at token. Callers follow
// NextPageToken until NewStartPageToken is set.
func (m *Manager) GetChangesSince(ctx context.Context, token string) (*types.ChangeList, error) {
	if token == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"page token is required for listing changes").Build())
	}

	reqCtx := m.client.RequestContext(ctx, types.RequestTypeChanges)
	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.ChangeList, error) {
		return m.client.Service().Changes.List(token).
			IncludeRemoved(true).
			RestrictToMyDrive(true).
			PageSize(changesPageSize).
			Fields(googleapi.Field(changeFields)).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return convertChangeList(result), nil
}

func convertChangeList(apiList *drive.ChangeList) *types.ChangeList {
	changes := make([]types.Change, 0, len(apiList.Changes))
	for _, c := range apiList.Changes {
		changes = append(changes, convertChange(c))
	}

	return &types.ChangeList{
		Changes:           changes,
		NextPageToken:     apiList.NextPageToken,
		NewStartPageToken: apiList.NewStartPageToken,
	}
}

func convertChange(apiChange *drive.Change) types.Change {
	change := types.Change{
		FileID:  apiChange.FileId,
		Removed: apiChange.Removed,
	}

	if apiChange.Time != "" {
		if t, err := parseTime(apiChange.Time); err == nil {
			change.Time = t
		}
	}

	if apiChange.File != nil && !apiChange.Removed {
		change.File = convertDriveFile(apiChange.File)
	}

	return change
}

func convertDriveFile(apiFile *drive.File) *types.DriveFile {
	return &types.DriveFile{
		ID:           apiFile.Id,
		Name:         apiFile.Name,
		MimeType:     apiFile.MimeType,
		Size:         apiFile.Size,
		MD5Checksum:  apiFile.Md5Checksum,
		ModifiedTime: apiFile.ModifiedTime,
		Parents:      apiFile.Parents,
		Trashed:      apiFile.Trashed,
	}
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, timeStr)
}
