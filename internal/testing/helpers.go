package testing

import (
	"context"
	"testing"

	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/spf13/afero"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Account:     "test@example.com",
		FileIDs:     []string{},
		ParentIDs:   []string{},
		RequestType: types.RequestTypeListOrSearch,
		TraceID:     "test-trace-id",
	}
}

// TestFile creates a Drive file with content hash md5 of data
func TestFile(id, name, parentID string, data []byte) *types.DriveFile {
	return &types.DriveFile{
		ID:          id,
		Name:        name,
		MimeType:    "application/octet-stream",
		Size:        int64(len(data)),
		MD5Checksum: utils.MD5Bytes(data),
		Parents:     []string{parentID},
	}
}

// TestFolder creates a Drive folder for testing
func TestFolder(id, name, parentID string) *types.DriveFile {
	return &types.DriveFile{
		ID:       id,
		Name:     name,
		MimeType: utils.MimeTypeFolder,
		Parents:  []string{parentID},
	}
}

// WriteFile creates path and its parents in fs
func WriteFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test
func ReadFile(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

// AssertExists fails the test unless path exists in fs
func AssertExists(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if ok, _ := afero.Exists(fs, path); !ok {
		t.Fatalf("expected %s to exist", path)
	}
}

// AssertNotExists fails the test if path exists in fs
func AssertNotExists(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if ok, _ := afero.Exists(fs, path); ok {
		t.Fatalf("expected %s not to exist", path)
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
