package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakeDrive serves a minimal subset of the Drive v3 REST surface
type fakeDrive struct {
	content   map[string][]byte
	metadata  map[string]*drive.File
	pages     [][]*drive.File
	failRange map[string]int64
	requests  atomic.Int32
	queries   []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	path := strings.TrimPrefix(r.URL.Path, "/")

	if path == "files" {
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		page := 0
		if token := r.URL.Query().Get("pageToken"); token != "" {
			fmt.Sscanf(token, "page-%d", &page)
		}
		list := &drive.FileList{Files: f.pages[page]}
		if page+1 < len(f.pages) {
			list.NextPageToken = fmt.Sprintf("page-%d", page+1)
		}
		writeJSON(w, list)
		return
	}

	id := strings.TrimPrefix(path, "files/")
	if r.URL.Query().Get("alt") == "media" {
		data, ok := f.content[id]
		if !ok {
			writeNotFound(w)
			return
		}
		if from, ok := f.failRange[id]; ok && strings.HasPrefix(r.Header.Get("Range"), fmt.Sprintf("bytes=%d-", from)) {
			writeNotFound(w)
			return
		}
		http.ServeContent(w, r, id, time.Time{}, bytes.NewReader(data))
		return
	}

	meta, ok := f.metadata[id]
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, meta)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"error":{"code":404,"message":"File not found","errors":[{"reason":"notFound","message":"File not found"}]}}`)
}

func newTestManager(t *testing.T, fake *fakeDrive, opts ...Option) (*Manager, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	client := api.NewClient(service, "user@example.com", api.RetryPolicy{TransientDelay: time.Millisecond, UnknownRetries: 1}, nil)
	fs := afero.NewMemMapFs()
	return NewManager(client, fs, opts...), fs
}

func TestManager_Download(t *testing.T) {
	payload := []byte("hello drive, this is the body of a regular file")
	big := bytes.Repeat([]byte("0123456789"), 7)

	tests := []struct {
		name   string
		data   []byte
		opts   []Option
		remote *types.DriveFile
	}{
		{
			name:   "single request",
			data:   payload,
			remote: &types.DriveFile{ID: "f1", Name: "a.txt", Size: int64(len(payload)), MD5Checksum: utils.MD5Bytes(payload)},
		},
		{
			name:   "ranged chunks",
			data:   big,
			opts:   []Option{WithChunking(16, 16)},
			remote: &types.DriveFile{ID: "f1", Name: "big.bin", Size: int64(len(big)), MD5Checksum: utils.MD5Bytes(big)},
		},
		{
			name:   "uneven final chunk",
			data:   big,
			opts:   []Option{WithChunking(10, 33)},
			remote: &types.DriveFile{ID: "f1", Name: "big.bin", Size: int64(len(big)), MD5Checksum: utils.MD5Bytes(big)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDrive{content: map[string][]byte{"f1": tt.data}}
			m, fs := newTestManager(t, fake, tt.opts...)

			if err := m.Download(context.Background(), tt.remote, "/"+tt.remote.Name); err != nil {
				t.Fatalf("Download failed: %v", err)
			}
			got, err := afero.ReadFile(fs, "/"+tt.remote.Name)
			if err != nil {
				t.Fatalf("Failed to read downloaded file: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Expected %q, got %q", tt.data, got)
			}
		})
	}
}

func TestManager_DownloadChunkCount(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 40)
	fake := &fakeDrive{content: map[string][]byte{"f1": data}}
	m, _ := newTestManager(t, fake, WithChunking(10, 10))

	remote := &types.DriveFile{ID: "f1", Name: "x.bin", Size: 40, MD5Checksum: utils.MD5Bytes(data)}
	if err := m.Download(context.Background(), remote, "/x.bin"); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if got := fake.requests.Load(); got != 4 {
		t.Errorf("Expected 4 ranged requests, got %d", got)
	}
}

func TestManager_DownloadZeroBytes(t *testing.T) {
	fake := &fakeDrive{}
	m, fs := newTestManager(t, fake)

	afero.WriteFile(fs, "/empty.txt", []byte("stale"), 0644)
	if err := m.Download(context.Background(), &types.DriveFile{ID: "e", Name: "empty.txt"}, "/empty.txt"); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	info, err := fs.Stat("/empty.txt")
	if err != nil {
		t.Fatalf("Expected file to exist: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty file, got %d bytes", info.Size())
	}
	if got := fake.requests.Load(); got != 0 {
		t.Errorf("Expected no requests, got %d", got)
	}
}

func TestManager_DownloadFailuresRemovePartialFile(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 30)

	tests := []struct {
		name     string
		fake     *fakeDrive
		opts     []Option
		remote   *types.DriveFile
		wantCode string
	}{
		{
			name:     "checksum mismatch",
			fake:     &fakeDrive{content: map[string][]byte{"f1": data}},
			remote:   &types.DriveFile{ID: "f1", Size: 30, MD5Checksum: "0000"},
			wantCode: utils.ErrCodeChecksumMismatch,
		},
		{
			name:     "chunk fails midway",
			fake:     &fakeDrive{content: map[string][]byte{"f1": data}, failRange: map[string]int64{"f1": 20}},
			opts:     []Option{WithChunking(10, 10)},
			remote:   &types.DriveFile{ID: "f1", Size: 30, MD5Checksum: utils.MD5Bytes(data)},
			wantCode: utils.ErrCodeFileNotFound,
		},
		{
			name:     "disk full",
			fake:     &fakeDrive{content: map[string][]byte{"f1": data}},
			opts:     []Option{WithFreeSpaceFunc(func(string) (uint64, error) { return 10, nil })},
			remote:   &types.DriveFile{ID: "f1", Size: 30, MD5Checksum: utils.MD5Bytes(data)},
			wantCode: utils.ErrCodeDiskFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fs := newTestManager(t, tt.fake, tt.opts...)

			err := m.Download(context.Background(), tt.remote, "/partial.bin")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if code := utils.ErrorCode(err); code != tt.wantCode {
				t.Errorf("Expected code %s, got %s (%v)", tt.wantCode, code, err)
			}
			if exists, _ := afero.Exists(fs, "/partial.bin"); exists {
				t.Error("Expected partial file to be removed")
			}
		})
	}
}

func TestManager_DownloadCancelled(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 20)
	fake := &fakeDrive{content: map[string][]byte{"f1": data}}
	m, fs := newTestManager(t, fake, WithChunking(5, 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Download(ctx, &types.DriveFile{ID: "f1", Size: 20}, "/c.bin")
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if exists, _ := afero.Exists(fs, "/c.bin"); exists {
		t.Error("Expected partial file to be removed")
	}
}

func TestManager_DownloadRejectsNativeDocuments(t *testing.T) {
	m, _ := newTestManager(t, &fakeDrive{})
	err := m.Download(context.Background(), &types.DriveFile{ID: "d", MimeType: utils.MimeTypeDocument}, "/doc")
	if utils.ErrorCode(err) != utils.ErrCodeInvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestManager_ListChildrenPaginates(t *testing.T) {
	fake := &fakeDrive{pages: [][]*drive.File{
		{{Id: "a", Name: "a.txt"}, {Id: "b", Name: "b.txt"}},
		{{Id: "c", Name: "sub", MimeType: utils.MimeTypeFolder}},
	}}
	m, _ := newTestManager(t, fake)

	children, err := m.ListChildren(context.Background(), "folder1")
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("Expected 3 children, got %d", len(children))
	}
	if !children[2].IsFolder() {
		t.Error("Expected last child to be a folder")
	}
	want := "'folder1' in parents and trashed = false"
	for _, q := range fake.queries {
		if q != want {
			t.Errorf("Expected query %q, got %q", want, q)
		}
	}
}

func TestManager_GetMetadataNotFound(t *testing.T) {
	m, _ := newTestManager(t, &fakeDrive{metadata: map[string]*drive.File{}})

	_, err := m.GetMetadata(context.Background(), "missing")
	if !utils.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestManager_RootID(t *testing.T) {
	m, _ := newTestManager(t, &fakeDrive{metadata: map[string]*drive.File{
		"root": {Id: "0AReal", Name: "My Drive", MimeType: utils.MimeTypeFolder},
	}})

	id, err := m.RootID(context.Background())
	if err != nil {
		t.Fatalf("RootID failed: %v", err)
	}
	if id != "0AReal" {
		t.Errorf("Expected 0AReal, got %s", id)
	}
}

func TestConvertDriveFile(t *testing.T) {
	driveFile := &drive.File{
		Id:           "file123",
		Name:         "test.txt",
		MimeType:     "text/plain",
		Size:         1024,
		Md5Checksum:  "abc",
		ModifiedTime: "2024-01-02T00:00:00Z",
		Parents:      []string{"parent1"},
		Trashed:      true,
	}

	converted := convertDriveFile(driveFile)

	if converted.ID != driveFile.Id {
		t.Errorf("Expected ID %s, got %s", driveFile.Id, converted.ID)
	}
	if converted.MD5Checksum != "abc" {
		t.Errorf("Expected md5 abc, got %s", converted.MD5Checksum)
	}
	if converted.ParentID() != "parent1" {
		t.Errorf("Expected parent parent1, got %s", converted.ParentID())
	}
	if !converted.Trashed {
		t.Error("Expected trashed flag to carry over")
	}
}
