package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dl-alexandre/gosync/internal/utils"
)

func TestLoadClientSettings(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		env        map[string]string
		wantID     string
		wantSecret string
		wantPort   int
		wantCode   string
	}{
		{
			name:     "no client anywhere",
			wantCode: utils.ErrCodeAuthClientMissing,
		},
		{
			name:       "settings file",
			file:       "client_id: file-id\nclient_secret: file-secret\nredirect_port: 8085\n",
			wantID:     "file-id",
			wantSecret: "file-secret",
			wantPort:   8085,
		},
		{
			name:       "environment overrides file",
			file:       "client_id: file-id\nclient_secret: file-secret\n",
			env:        map[string]string{"GOSYNC_CLIENT_ID": "env-id", "GOSYNC_CLIENT_SECRET": "env-secret"},
			wantID:     "env-id",
			wantSecret: "env-secret",
		},
		{
			name:     "unparseable file",
			file:     "client_id: [unterminated\n",
			wantCode: utils.ErrCodeConfigLoadFailed,
		},
		{
			name:     "port out of range",
			file:     "client_id: id\nredirect_port: 70000\n",
			wantCode: utils.ErrCodeConfigLoadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOSYNC_CLIENT_ID", "")
			t.Setenv("GOSYNC_CLIENT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			if tt.file != "" {
				if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(tt.file), 0600); err != nil {
					t.Fatal(err)
				}
			}

			settings, err := LoadClientSettings(dir)
			if tt.wantCode != "" {
				if utils.ErrorCode(err) != tt.wantCode {
					t.Fatalf("Expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadClientSettings failed: %v", err)
			}
			if settings.ClientID != tt.wantID {
				t.Errorf("Expected client id %s, got %s", tt.wantID, settings.ClientID)
			}
			if settings.ClientSecret != tt.wantSecret {
				t.Errorf("Expected client secret %s, got %s", tt.wantSecret, settings.ClientSecret)
			}
			if settings.RedirectPort != tt.wantPort {
				t.Errorf("Expected port %d, got %d", tt.wantPort, settings.RedirectPort)
			}
		})
	}
}

func TestSaveClientSettingsRoundTrip(t *testing.T) {
	t.Setenv("GOSYNC_CLIENT_ID", "")
	t.Setenv("GOSYNC_CLIENT_SECRET", "")
	dir := filepath.Join(t.TempDir(), "nested")

	want := ClientSettings{ClientID: "id", ClientSecret: "secret", RedirectPort: 9000}
	if err := SaveClientSettings(dir, want); err != nil {
		t.Fatalf("SaveClientSettings failed: %v", err)
	}
	got, err := LoadClientSettings(dir)
	if err != nil {
		t.Fatalf("LoadClientSettings failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
