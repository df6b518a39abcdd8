package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/auth"
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/platform"
	"github.com/dl-alexandre/gosync/internal/remote"
	syncengine "github.com/dl-alexandre/gosync/internal/sync"
	"github.com/dl-alexandre/gosync/internal/sync/exclude"
	"github.com/dl-alexandre/gosync/internal/sync/index"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
)

// IndexFileName is the sqlite database holding tree caches and sync state
const IndexFileName = "index.db"

// session is the per invocation wiring shared by the commands
type session struct {
	dir     string
	store   *config.Store
	auth    *auth.Manager
	account string
	out     *OutputWriter
}

// openSession loads the configuration. With needAccount the target account
// is resolved from --account or, failing that, the only known account.
func openSession(out *OutputWriter, needAccount bool) (*session, error) {
	dir, err := configDir()
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigLoadFailed,
			"failed to resolve configuration directory").Build(), err)
	}
	store, err := config.Open(dir)
	if err != nil {
		return nil, err
	}
	if store.Recovered != nil {
		logger.Warn("Configuration was reset", logging.Err(store.Recovered))
		out.AddWarning(utils.ErrCodeConfigLoadFailed, store.Recovered.Error(), "warning")
	}

	s := &session{
		dir:   dir,
		store: store,
		auth:  auth.NewManager(dir),
		out:   out,
	}
	if warning := s.auth.GetStorageWarning(); warning != "" {
		out.Verbose("%s", warning)
	}
	if needAccount {
		if s.account, err = s.resolveAccount(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) resolveAccount() (string, error) {
	if globalFlags.Account != "" {
		return strings.ToLower(strings.TrimSpace(globalFlags.Account)), nil
	}

	known := map[string]bool{}
	for _, a := range s.store.Accounts() {
		known[a] = true
	}
	if stored, err := s.auth.ListAccounts(); err == nil {
		for _, a := range stored {
			known[a] = true
		}
	}
	accounts := make([]string, 0, len(known))
	for a := range known {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)

	switch len(accounts) {
	case 0:
		return "", utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No account configured. Run 'gosync auth login' first.").Err()
	case 1:
		return accounts[0], nil
	default:
		return "", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Several accounts are configured (%s); pick one with --account.", strings.Join(accounts, ", "))).
			WithContext("accounts", accounts).Err()
	}
}

// transport is the debug transport when --debug is set, nil otherwise
func transport() http.RoundTripper {
	if debugTransport == nil {
		return nil
	}
	return debugTransport
}

// configureOAuth loads the OAuth client and installs it on the auth manager
func (s *session) configureOAuth() error {
	settings, err := auth.LoadClientSettings(s.dir)
	if err != nil {
		return err
	}
	s.auth.SetOAuthConfig(settings, utils.ScopesSync)
	return nil
}

func (s *session) driveService(ctx context.Context) (*drive.Service, error) {
	if err := s.configureOAuth(); err != nil {
		return nil, err
	}
	return auth.NewServiceFactory(s.auth, transport()).DriveServiceFor(ctx, s.account)
}

// remote builds the Drive backed remote for the session account
func (s *session) remote(ctx context.Context, fs afero.Fs) (*remote.Drive, error) {
	svc, err := s.driveService(ctx)
	if err != nil {
		return nil, err
	}
	prober := api.NewHTTPProber(utils.ConnectivityProbeURL, utils.ConnectivityTimeout)
	client := api.NewClient(svc, s.account, api.DefaultRetryPolicy(prober), logger)
	return remote.NewDrive(client, fs), nil
}

func (s *session) openIndex() (*index.DB, error) {
	db, err := index.Open(filepath.Join(s.dir, IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open sync index: %w", err)
	}
	return db, nil
}

// engine wires a sync engine for the session account. The returned close
// function releases the index.
func (s *session) engine(ctx context.Context, observer events.Observer) (*syncengine.Engine, func(), error) {
	fs := afero.NewOsFs()
	rem, err := s.remote(ctx, fs)
	if err != nil {
		return nil, nil, err
	}
	db, err := s.openIndex()
	if err != nil {
		return nil, nil, err
	}
	eng, err := syncengine.New(syncengine.Options{
		Account:  s.account,
		Remote:   rem,
		Config:   s.store,
		Index:    db,
		Fs:       fs,
		Observer: observer,
		Logger:   logger,
		Prober:   api.NewHTTPProber(utils.ConnectivityProbeURL, utils.ConnectivityTimeout),
		Matcher:  exclude.New(nil),
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return eng, func() { _ = db.Close() }, nil
}

// freeSpace reports the free bytes below the mirror directory, 0 when unknown
func freeSpace(dir string) uint64 {
	free, err := platform.FreeSpace(dir)
	if err != nil {
		return 0
	}
	return free
}
