package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func TestConvertChange(t *testing.T) {
	tests := []struct {
		name     string
		input    *drive.Change
		validate func(*types.Change) error
	}{
		{
			name: "change with file",
			input: &drive.Change{
				FileId: "file123",
				Time:   "2026-01-15T10:30:00Z",
				File: &drive.File{
					Id:          "file123",
					Name:        "test.txt",
					MimeType:    "text/plain",
					Md5Checksum: "abc",
					Parents:     []string{"p1"},
				},
			},
			validate: func(change *types.Change) error {
				if change.FileID != "file123" {
					return errorf("FileID mismatch")
				}
				if change.Removed {
					return errorf("Removed should be false")
				}
				if change.File == nil {
					return errorf("File should not be nil")
				}
				if change.File.ParentID() != "p1" {
					return errorf("parent mismatch")
				}
				if change.Time.IsZero() {
					return errorf("Time should be parsed")
				}
				return nil
			},
		},
		{
			name: "removed change drops file",
			input: &drive.Change{
				FileId:  "gone",
				Removed: true,
				File:    &drive.File{Id: "gone"},
			},
			validate: func(change *types.Change) error {
				if !change.Removed {
					return errorf("Removed should be true")
				}
				if change.File != nil {
					return errorf("File should be nil for removals")
				}
				return nil
			},
		},
		{
			name:  "malformed time is ignored",
			input: &drive.Change{FileId: "x", Time: "yesterday"},
			validate: func(change *types.Change) error {
				if !change.Time.IsZero() {
					return errorf("Time should be zero")
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := convertChange(tt.input)
			if err := tt.validate(&change); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestConvertChangeList(t *testing.T) {
	list := convertChangeList(&drive.ChangeList{
		Changes:       []*drive.Change{{FileId: "a"}, {FileId: "b"}},
		NextPageToken: "next",
	})
	if len(list.Changes) != 2 {
		t.Errorf("Expected 2 changes, got %d", len(list.Changes))
	}
	if !list.More() {
		t.Error("Expected More to be true while NextPageToken is set")
	}

	last := convertChangeList(&drive.ChangeList{NewStartPageToken: "fresh"})
	if last.More() {
		t.Error("Expected More to be false on the last page")
	}
	if last.NewStartPageToken != "fresh" {
		t.Errorf("Expected NewStartPageToken fresh, got %s", last.NewStartPageToken)
	}
}

func TestManager_Remote(t *testing.T) {
	var gotToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/changes/startPageToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&drive.StartPageToken{StartPageToken: "42"})
	})
	mux.HandleFunc("/changes", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("pageToken")
		json.NewEncoder(w).Encode(&drive.ChangeList{
			Changes:           []*drive.Change{{FileId: "f1", File: &drive.File{Id: "f1", Name: "a"}}},
			NewStartPageToken: "43",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	service, err := drive.NewService(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	m := NewManager(api.NewClient(service, "user@example.com", api.RetryPolicy{TransientDelay: time.Millisecond}, nil))

	token, err := m.GetStartToken(context.Background())
	if err != nil {
		t.Fatalf("GetStartToken failed: %v", err)
	}
	if token != "42" {
		t.Errorf("Expected token 42, got %s", token)
	}

	list, err := m.GetChangesSince(context.Background(), token)
	if err != nil {
		t.Fatalf("GetChangesSince failed: %v", err)
	}
	if gotToken != "42" {
		t.Errorf("Expected request for token 42, got %s", gotToken)
	}
	if len(list.Changes) != 1 || list.NewStartPageToken != "43" {
		t.Errorf("Unexpected change list: %+v", list)
	}

	if _, err := m.GetChangesSince(context.Background(), ""); utils.ErrorCode(err) != utils.ErrCodeInvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT for empty token, got %v", err)
	}
}

func TestParseTime(t *testing.T) {
	ts, err := parseTime("2026-01-15T10:30:00Z")
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if ts.Year() != 2026 {
		t.Errorf("Expected year 2026, got %d", ts.Year())
	}
}

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
