// Package auth logs accounts in with OAuth2, keeps their tokens and builds
// authenticated Drive services.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	serviceName        = "gosync"
	credentialsDir     = "credentials"
	keyFileName        = ".keyfile"
	accountsFileName   = "accounts.json"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager handles authentication operations
type Manager struct {
	configDir      string
	useKeyring     bool
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // skip the keyring
	ForcePlainFile     bool // store tokens unencrypted (insecure, dev only)
}

// NewManager picks the system keyring when it works, encrypted files otherwise
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{configDir: configDir}

	switch {
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case opts.ForceEncryptedFile || !keyringAvailable(serviceName):
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.storage = storage
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
	}
	return mgr
}

// SetOAuthConfig installs the OAuth client used for login and refresh
func (m *Manager) SetOAuthConfig(settings ClientSettings, scopes []string) {
	redirect := ""
	if settings.RedirectPort > 0 {
		redirect = fmt.Sprintf("http://127.0.0.1:%d/callback", settings.RedirectPort)
	}
	m.oauthConfig = &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
	}
}

func (m *Manager) OAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// LoadCredentials loads the stored token of account
func (m *Manager) LoadCredentials(account string) (*types.Credentials, error) {
	data, err := m.storage.Load(account)
	if err != nil {
		return nil, err
	}
	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, stored.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date: %w", err)
	}
	return &types.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiryDate:   expiry,
		Scopes:       stored.Scopes,
		Type:         stored.Type,
	}, nil
}

// SaveCredentials stores creds under account
func (m *Manager) SaveCredentials(account string, creds *types.Credentials) error {
	stored := types.StoredCredentials{
		Account:      account,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiryDate:   creds.ExpiryDate.Format(time.RFC3339),
		Scopes:       creds.Scopes,
		Type:         creds.Type,
	}
	if m.oauthConfig != nil {
		stored.ClientID = m.oauthConfig.ClientID
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.storage.Save(account, data); err != nil {
		return err
	}
	if err := m.trackAccount(account, true); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to update account list: %v\n", err)
	}
	return nil
}

// DeleteCredentials forgets the token of account
func (m *Manager) DeleteCredentials(account string) error {
	if err := m.storage.Delete(account); err != nil {
		return err
	}
	if err := m.trackAccount(account, false); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to update account list: %v\n", err)
	}
	return nil
}

// NeedsRefresh reports whether creds expire within the refresh buffer
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return time.Now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials trades the refresh token for a new access token
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if creds.Type != types.AuthTypeOAuth {
		return nil, fmt.Errorf("refresh only supported for OAuth credentials")
	}
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored")
	}

	expired := &oauth2.Token{RefreshToken: creds.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	token, err := m.oauthConfig.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	refreshed := &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       creds.Scopes,
		Type:         types.AuthTypeOAuth,
	}
	// Google omits the refresh token on refresh responses
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	return refreshed, nil
}

// GetValidCredentials returns the token of account, refreshed and stored
// again when it is about to expire
func (m *Manager) GetValidCredentials(ctx context.Context, account string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(account)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for %s. Run 'gosync auth login' first.", account)).Build(), err)
	}
	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	refreshed, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'gosync auth login' to re-authenticate.").
			WithContext("account", account).Build(), err)
	}
	if err := m.SaveCredentials(account, refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return refreshed, nil
}

// HTTPClient returns a client that authorizes every request with creds and
// refreshes the token when needed. transport, when set, carries the requests.
func (m *Manager) HTTPClient(ctx context.Context, creds *types.Credentials, transport http.RoundTripper) *http.Client {
	if transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	}
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
	}
	if m.oauthConfig == nil || creds.Type != types.AuthTypeOAuth {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}
	return m.oauthConfig.Client(ctx, token)
}

// ValidateScopes checks that creds were granted every required scope
func (m *Manager) ValidateScopes(creds *types.Credentials, required []string) error {
	granted := make(map[string]bool, len(creds.Scopes))
	for _, s := range creds.Scopes {
		granted[s] = true
	}
	for _, req := range required {
		if !granted[req] {
			return utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("Missing required scope: %s. Run 'gosync auth login' again.", req)).
				WithContext("scope", req).Err()
		}
	}
	return nil
}

// ListAccounts lists the accounts with stored credentials
func (m *Manager) ListAccounts() ([]string, error) {
	if !m.useKeyring {
		return listCredentialFiles(m.configDir)
	}
	data, err := os.ReadFile(filepath.Join(m.configDir, accountsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// trackAccount maintains the account list the keyring cannot enumerate
func (m *Manager) trackAccount(account string, present bool) error {
	if !m.useKeyring {
		return nil
	}
	accounts, err := m.ListAccounts()
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(accounts)+1)
	for _, a := range accounts {
		set[a] = true
	}
	if set[account] == present {
		return nil
	}
	if present {
		set[account] = true
	} else {
		delete(set, account)
	}
	updated := make([]string, 0, len(set))
	for a := range set {
		updated = append(updated, a)
	}
	sort.Strings(updated)

	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.configDir, accountsFileName), data, 0600)
}

func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend names the backend holding tokens
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns a notice about a weaker storage backend, if any
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
