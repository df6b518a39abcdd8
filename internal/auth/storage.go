package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// StorageBackend keeps one serialized token per account
type StorageBackend interface {
	Save(account string, data []byte) error
	Load(account string) ([]byte, error)
	Delete(account string) error
	Name() string
}

// KeyringStorage keeps tokens in the system keyring
type KeyringStorage struct {
	serviceName string
}

func NewKeyringStorage(serviceName string) *KeyringStorage {
	return &KeyringStorage{serviceName: serviceName}
}

func (s *KeyringStorage) Save(account string, data []byte) error {
	return keyring.Set(s.serviceName, account, string(data))
}

func (s *KeyringStorage) Load(account string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, account)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, fmt.Errorf("no credentials stored for %s", account)
		}
		return nil, err
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(account string) error {
	err := keyring.Delete(s.serviceName, account)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

// keyringAvailable probes the keyring with a throwaway entry
func keyringAvailable(serviceName string) bool {
	probe := serviceName + "-probe"
	if err := keyring.Set(serviceName, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, probe)
	return true
}

// fileStorage lays tokens out as <dir>/credentials/<account><ext>
type fileStorage struct {
	baseDir string
	ext     string
}

func (s fileStorage) path(account string) string {
	return filepath.Join(s.baseDir, credentialsDir, account+s.ext)
}

func (s fileStorage) write(account string, data []byte) error {
	p := s.path(account)
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0600)
}

func (s fileStorage) read(account string) ([]byte, error) {
	data, err := os.ReadFile(s.path(account))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no credentials stored for %s", account)
		}
		return nil, err
	}
	return data, nil
}

func (s fileStorage) Delete(account string) error {
	err := os.Remove(s.path(account))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// EncryptedFileStorage seals tokens with AES-GCM under a per install key
type EncryptedFileStorage struct {
	fileStorage
	key []byte
}

func NewEncryptedFileStorage(baseDir string) (*EncryptedFileStorage, error) {
	key, err := getOrCreateEncryptionKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return &EncryptedFileStorage{
		fileStorage: fileStorage{baseDir: baseDir, ext: ".enc"},
		key:         key,
	}, nil
}

func (s *EncryptedFileStorage) Save(account string, data []byte) error {
	sealed, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return s.write(account, sealed)
}

func (s *EncryptedFileStorage) Load(account string) ([]byte, error) {
	sealed, err := s.read(account)
	if err != nil {
		return nil, err
	}
	return s.decrypt(sealed)
}

func (s *EncryptedFileStorage) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStorage) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *EncryptedFileStorage) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *EncryptedFileStorage) decrypt(sealed []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// PlainFileStorage writes tokens unencrypted. Development only.
type PlainFileStorage struct {
	fileStorage
}

func NewPlainFileStorage(baseDir string) *PlainFileStorage {
	return &PlainFileStorage{fileStorage: fileStorage{baseDir: baseDir, ext: ".json"}}
}

func (s *PlainFileStorage) Save(account string, data []byte) error {
	return s.write(account, data)
}

func (s *PlainFileStorage) Load(account string) ([]byte, error) {
	return s.read(account)
}

func (s *PlainFileStorage) Name() string {
	return "plain-file"
}

func getOrCreateEncryptionKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, keyFileName)

	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// listCredentialFiles returns the accounts with a token file below baseDir
func listCredentialFiles(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, credentialsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	accounts := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext == ".json" || ext == ".enc" {
			accounts = append(accounts, strings.TrimSuffix(name, ext))
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}
