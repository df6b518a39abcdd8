package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptedFileStorage(t *testing.T) {
	// Create temporary directory for testing
	tmpDir, err := os.MkdirTemp("", "gosync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Fatalf("failed to remove temp dir: %v", err)
		}
	})

	storage, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testData := []byte(`{"account":"me@example.com","accessToken":"test-token"}`)

	// Test Save
	err = storage.Save("me@example.com", testData)
	if err != nil {
		t.Errorf("Save failed: %v", err)
	}

	// Verify file exists and is encrypted
	credFile := filepath.Join(tmpDir, "credentials", "me@example.com.enc")
	encryptedData, err := os.ReadFile(credFile)
	if err != nil {
		t.Errorf("Failed to read encrypted file: %v", err)
	}

	// Encrypted data should not match original
	if string(encryptedData) == string(testData) {
		t.Error("Data was not encrypted")
	}

	// Test Load
	loaded, err := storage.Load("me@example.com")
	if err != nil {
		t.Errorf("Load failed: %v", err)
	}

	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match original. Got: %s, Want: %s", string(loaded), string(testData))
	}

	// Test Delete
	err = storage.Delete("me@example.com")
	if err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	// Verify file is deleted
	if _, err := os.Stat(credFile); !os.IsNotExist(err) {
		t.Error("File was not deleted")
	}
}

func TestPlainFileStorage(t *testing.T) {
	// Create temporary directory for testing
	tmpDir, err := os.MkdirTemp("", "gosync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Fatalf("failed to remove temp dir: %v", err)
		}
	})

	storage := NewPlainFileStorage(tmpDir)
	testData := []byte(`{"account":"me@example.com","accessToken":"test-token"}`)

	// Test Save
	err = storage.Save("me@example.com", testData)
	if err != nil {
		t.Errorf("Save failed: %v", err)
	}

	// Test Load
	loaded, err := storage.Load("me@example.com")
	if err != nil {
		t.Errorf("Load failed: %v", err)
	}

	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match. Got: %s, Want: %s", string(loaded), string(testData))
	}

	// Test Delete
	err = storage.Delete("me@example.com")
	if err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gosync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Fatalf("failed to remove temp dir: %v", err)
		}
	})

	storage, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testCases := []string{
		"simple text",
		`{"complex":"json","with":"values"}`,
		"text with special characters: üöä@#$%^&*()",
		"",
	}

	for i, testData := range testCases {
		encrypted, err := storage.encrypt([]byte(testData))
		if err != nil {
			t.Errorf("Test case %d: encrypt failed: %v", i, err)
			continue
		}

		decrypted, err := storage.decrypt(encrypted)
		if err != nil {
			t.Errorf("Test case %d: decrypt failed: %v", i, err)
			continue
		}

		if string(decrypted) != testData {
			t.Errorf("Test case %d: roundtrip failed. Got: %s, Want: %s", i, string(decrypted), testData)
		}
	}
}

func TestGetOrCreateEncryptionKey(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gosync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Fatalf("failed to remove temp dir: %v", err)
		}
	})

	// First call should create a new key
	key1, err := getOrCreateEncryptionKey(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	if len(key1) != 32 {
		t.Errorf("Key length is %d, expected 32", len(key1))
	}

	// Second call should load the same key
	key2, err := getOrCreateEncryptionKey(tmpDir)
	if err != nil {
		t.Fatalf("Failed to load key: %v", err)
	}

	if string(key1) != string(key2) {
		t.Error("Loaded key doesn't match created key")
	}
}

func TestFileStorageDeleteMissing(t *testing.T) {
	storage := NewPlainFileStorage(t.TempDir())
	if err := storage.Delete("nobody@example.com"); err != nil {
		t.Errorf("Expected deleting a missing account to succeed, got %v", err)
	}
	if _, err := storage.Load("nobody@example.com"); err == nil {
		t.Error("Expected error loading a missing account")
	}
}

func TestManagerListAccounts(t *testing.T) {
	mgr := NewManagerWithOptions(t.TempDir(), ManagerOptions{ForcePlainFile: true})

	accounts, err := mgr.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("Expected 0 accounts, got %d", len(accounts))
	}

	for _, account := range []string{"b@example.com", "a@example.com"} {
		if err := mgr.storage.Save(account, []byte(`{}`)); err != nil {
			t.Fatalf("Failed to save credentials: %v", err)
		}
	}

	accounts, err = mgr.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 2 || accounts[0] != "a@example.com" || accounts[1] != "b@example.com" {
		t.Errorf("Expected sorted [a@example.com b@example.com], got %v", accounts)
	}
}
