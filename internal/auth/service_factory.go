package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/gosync/internal/types"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ServiceFactory builds Drive services for stored credentials
type ServiceFactory struct {
	manager   *Manager
	transport http.RoundTripper
}

// NewServiceFactory routes every request through transport when it is set
func NewServiceFactory(manager *Manager, transport http.RoundTripper) *ServiceFactory {
	return &ServiceFactory{manager: manager, transport: transport}
}

// CreateDriveService authorizes a Drive v3 service with creds
func (f *ServiceFactory) CreateDriveService(ctx context.Context, creds *types.Credentials) (*drive.Service, error) {
	client := f.manager.HTTPClient(ctx, creds, f.transport)
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return svc, nil
}

// DriveServiceFor loads, refreshes and authorizes the token of account
func (f *ServiceFactory) DriveServiceFor(ctx context.Context, account string) (*drive.Service, error) {
	creds, err := f.manager.GetValidCredentials(ctx, account)
	if err != nil {
		return nil, err
	}
	return f.CreateDriveService(ctx, creds)
}
