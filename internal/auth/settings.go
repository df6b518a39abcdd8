package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gosync/internal/utils"
	"gopkg.in/yaml.v3"
)

// SettingsFileName holds the OAuth client used for login
const SettingsFileName = "settings.yaml"

// ClientSettings identifies the OAuth client gosync authenticates as
type ClientSettings struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// RedirectPort pins the loopback callback port; 0 picks a free one
	RedirectPort int `yaml:"redirect_port,omitempty"`
}

// LoadClientSettings reads settings.yaml from configDir, applies the
// GOSYNC_CLIENT_ID and GOSYNC_CLIENT_SECRET overrides and falls back to the
// bundled client. Without any client id AUTH_CLIENT_MISSING is returned.
func LoadClientSettings(configDir string) (ClientSettings, error) {
	var settings ClientSettings

	path := filepath.Join(configDir, SettingsFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return ClientSettings{}, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigLoadFailed,
				fmt.Sprintf("failed to parse %s: %v", SettingsFileName, err)).
				WithContext("path", path).Build(), err)
		}
	case !os.IsNotExist(err):
		return ClientSettings{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if v := os.Getenv("GOSYNC_CLIENT_ID"); v != "" {
		settings.ClientID = v
	}
	if v := os.Getenv("GOSYNC_CLIENT_SECRET"); v != "" {
		settings.ClientSecret = v
	}
	if settings.ClientID == "" {
		if id, secret, ok := GetBundledOAuthClient(); ok {
			settings.ClientID, settings.ClientSecret = id, secret
		}
	}
	if settings.ClientID == "" {
		return ClientSettings{}, utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			fmt.Sprintf("No OAuth client configured. Add client_id and client_secret to %s or set GOSYNC_CLIENT_ID and GOSYNC_CLIENT_SECRET.", path)).Err()
	}
	if settings.RedirectPort < 0 || settings.RedirectPort > 65535 {
		return ClientSettings{}, utils.NewCLIError(utils.ErrCodeConfigLoadFailed,
			fmt.Sprintf("redirect_port out of range: %d", settings.RedirectPort)).Err()
	}
	return settings, nil
}

// SaveClientSettings writes settings to configDir/settings.yaml
func SaveClientSettings(configDir string, settings ClientSettings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode client settings: %w", err)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(filepath.Join(configDir, SettingsFileName), data, 0600)
}
