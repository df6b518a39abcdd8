package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "gosyncrc"
	// BackupSuffix is appended to an unreadable config file before defaults are regenerated
	BackupSuffix = ".bak"
	// ConfigDirName is the directory where config is stored
	ConfigDirName = ".gosync"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GOSYNC_"
	// DefaultMirrorBase is the parent of every account mirror directory
	DefaultMirrorBase = "~/Google Drive"
)

// ConflictPolicy decides which side wins when a file differs locally and remotely
type ConflictPolicy string

const (
	ServerPresides ConflictPolicy = "server-presides"
	LocalPresides  ConflictPolicy = "local-presides"
)

// AccountConfig holds the persisted settings of one account
type AccountConfig struct {
	// SyncSelection lists the mirrored subtrees; [["root",""]] mirrors everything
	SyncSelection Selection `json:"syncSelection"`

	// SyncInterval is the cool down between cycles in seconds
	SyncInterval int `json:"syncInterval"`

	// LogLevel sets the logging verbosity (debug, info, warn, error)
	LogLevel string `json:"logLevel"`

	ConflictPolicy ConflictPolicy `json:"conflictPolicy"`

	// ChangeToken is the last applied change log cursor; empty forces a full sync
	ChangeToken string `json:"changeToken,omitempty"`

	AutoStart     bool `json:"autoStart"`
	Notifications bool `json:"notifications"`

	// MirrorBaseDir holds one mirror directory per account
	MirrorBaseDir string `json:"mirrorBaseDir"`

	DriveUsage *DriveUsage `json:"driveUsage,omitempty"`
}

// DriveUsage caches per-category byte totals of the remote drive
type DriveUsage struct {
	TotalFiles   int64     `json:"totalFiles"`
	TotalSize    int64     `json:"totalSize"`
	AudioSize    int64     `json:"audioSize"`
	MoviesSize   int64     `json:"moviesSize"`
	DocumentSize int64     `json:"documentSize"`
	PhotoSize    int64     `json:"photoSize"`
	OthersSize   int64     `json:"othersSize"`
	QuotaLimit   int64     `json:"quotaLimit,omitempty"`
	ComputedAt   time.Time `json:"computedAt"`
}

// DefaultAccountConfig returns the defaults for a new account
func DefaultAccountConfig() *AccountConfig {
	return &AccountConfig{
		SyncSelection:  RootSelection(),
		SyncInterval:   utils.DefaultSyncIntervalSeconds,
		LogLevel:       "info",
		ConflictPolicy: ServerPresides,
		AutoStart:      true,
		Notifications:  true,
		MirrorBaseDir:  DefaultMirrorBase,
	}
}

// Validate validates the configuration
func (c *AccountConfig) Validate() error {
	if c.SyncInterval < utils.MinSyncIntervalSeconds {
		return fmt.Errorf("sync interval must be at least %d seconds, got: %d", utils.MinSyncIntervalSeconds, c.SyncInterval)
	}

	if c.ConflictPolicy != ServerPresides && c.ConflictPolicy != LocalPresides {
		return fmt.Errorf("invalid conflict policy: %s (must be '%s' or '%s')", c.ConflictPolicy, ServerPresides, LocalPresides)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if strings.TrimSpace(c.MirrorBaseDir) == "" {
		return fmt.Errorf("mirror base directory must not be empty")
	}

	return nil
}

// GetSyncInterval returns the sync interval as a duration
func (c *AccountConfig) GetSyncInterval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// MirrorDir returns the expanded mirror directory of account
func (c *AccountConfig) MirrorDir(account string) (string, error) {
	base, err := homedir.Expand(c.MirrorBaseDir)
	if err != nil {
		return "", errors.Wrap(err, "expand mirror base directory")
	}
	return filepath.Join(base, account), nil
}

func (c *AccountConfig) clone() *AccountConfig {
	cp := *c
	cp.SyncSelection = append(Selection(nil), c.SyncSelection...)
	if c.DriveUsage != nil {
		usage := *c.DriveUsage
		cp.DriveUsage = &usage
	}
	return &cp
}

// loadFromEnv applies GOSYNC_ overrides
func (c *AccountConfig) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "MIRROR_BASE_DIR"); v != "" {
		c.MirrorBaseDir = v
	}
	if v := os.Getenv(EnvPrefix + "SYNC_INTERVAL"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.SyncInterval = interval
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "CONFLICT_POLICY"); v != "" {
		c.ConflictPolicy = ConflictPolicy(v)
	}
	if v := os.Getenv(EnvPrefix + "AUTO_START"); v != "" {
		c.AutoStart = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "NOTIFICATIONS"); v != "" {
		c.Notifications = parseBool(v)
	}
}

// Store is the gosyncrc file: account configurations keyed by email.
// It is safe for concurrent use.
type Store struct {
	mu       stdsync.Mutex
	path     string
	accounts map[string]*AccountConfig

	// Recovered is set when an unreadable file was backed up and replaced with defaults
	Recovered error
}

// Open loads the store from dir. An unparseable or invalid file is backed up,
// replaced with defaults and persisted; only failing to write the regenerated
// file is returned as an error.
func Open(dir string) (*Store, error) {
	s := &Store{
		path:     filepath.Join(dir, ConfigFileName),
		accounts: make(map[string]*AccountConfig),
	}

	loadErr := s.load()
	if loadErr == nil {
		return s, nil
	}
	if os.IsNotExist(errors.Cause(loadErr)) {
		return s, nil
	}

	s.Recovered = utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigLoadFailed,
		fmt.Sprintf("configuration could not be loaded and was reset to defaults: %s", loadErr)).
		WithContext("path", s.path).
		WithContext("backup", s.path+BackupSuffix).
		Build(), loadErr)

	if err := os.Rename(s.path, s.path+BackupSuffix); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "back up unreadable config")
	}
	s.accounts = make(map[string]*AccountConfig)
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.WithStack(err)
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "parse config")
	}

	accounts := make(map[string]*AccountConfig, len(raw))
	for email, stored := range raw {
		cfg := DefaultAccountConfig()
		if err := json.Unmarshal(stored, cfg); err != nil {
			return errors.Wrapf(err, "parse account %s", email)
		}
		if len(cfg.SyncSelection) == 0 {
			cfg.SyncSelection = RootSelection()
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrapf(err, "account %s", email)
		}
		accounts[email] = cfg
	}
	s.accounts = accounts
	return nil
}

// Path returns the location of the config file
func (s *Store) Path() string {
	return s.path
}

// Accounts lists the configured account emails
func (s *Store) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for email := range s.accounts {
		out = append(out, email)
	}
	return out
}

// Get returns a copy of the account configuration with environment overrides
// applied. Unknown accounts get defaults.
func (s *Store) Get(account string) *AccountConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := DefaultAccountConfig()
	if stored, ok := s.accounts[account]; ok {
		cfg = stored.clone()
	}
	cfg.loadFromEnv()
	return cfg
}

// Update applies fn to the stored configuration of account and persists it.
// Environment overrides are never written back.
func (s *Store) Update(account string, fn func(*AccountConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account]
	if !ok {
		current = DefaultAccountConfig()
	}
	next := current.clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid configuration: %s", err)).Build(), err)
	}

	previous, existed := s.accounts[account]
	s.accounts[account] = next
	if err := s.save(); err != nil {
		if existed {
			s.accounts[account] = previous
		} else {
			delete(s.accounts, account)
		}
		return err
	}
	return nil
}

// Remove deletes the configuration of account
func (s *Store) Remove(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account]; !ok {
		return nil
	}
	delete(s.accounts, account)
	return s.save()
}

// save writes the file atomically; callers hold mu or own s exclusively
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ConfigFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return homedir.Expand(dir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
