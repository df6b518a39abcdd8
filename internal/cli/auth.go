package cli

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/gosync/internal/api"
	"github.com/dl-alexandre/gosync/internal/auth"
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/remote"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Log Google accounts in and out of gosync",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate a Google account",
	Long: `Run the OAuth2 browser login and store the token for the account.

The OAuth client comes from settings.yaml in the config directory, from
GOSYNC_CLIENT_ID/GOSYNC_CLIENT_SECRET, or from --client-id/--client-secret,
which are saved to settings.yaml for later runs.`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status of every account",
	RunE:  runAuthStatus,
}

var (
	authNoBrowser    bool
	authClientID     string
	authClientSecret string
	authForget       bool
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the consent URL and paste the code by hand")
	authLoginCmd.Flags().StringVar(&authClientID, "client-id", "", "OAuth client ID to save in settings.yaml")
	authLoginCmd.Flags().StringVar(&authClientSecret, "client-secret", "", "OAuth client secret to save in settings.yaml")
	authLogoutCmd.Flags().BoolVar(&authForget, "forget", false, "Also drop the account configuration and tree cache")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, false)
	if err != nil {
		return err
	}

	if authClientID != "" {
		settings := auth.ClientSettings{ClientID: authClientID, ClientSecret: authClientSecret}
		if err := auth.SaveClientSettings(s.dir, settings); err != nil {
			return err
		}
		out.Verbose("Saved OAuth client to %s", auth.SettingsFileName)
	}
	if err := s.configureOAuth(); err != nil {
		return err
	}

	ctx := cmd.Context()
	creds, err := s.auth.Authenticate(ctx, openBrowser, auth.OAuthAuthOptions{
		NoBrowser: authNoBrowser,
		Out:       out.errW,
	})
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).Build(), err)
	}

	account, err := accountEmail(ctx, s, creds)
	if err != nil {
		return err
	}
	if globalFlags.Account != "" && !strings.EqualFold(globalFlags.Account, account) {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Logged in as %s, not %s", account, globalFlags.Account)).Err()
	}
	if err := s.auth.SaveCredentials(account, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	// persists defaults for a first login
	if err := s.store.Update(account, func(*config.AccountConfig) {}); err != nil {
		return err
	}

	logger.Info("Authenticated")
	out.Log("Authenticated as %s", account)
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"account":        account,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": s.auth.GetStorageBackend(),
	})
}

// accountEmail asks Drive who the fresh token belongs to
func accountEmail(ctx context.Context, s *session, creds *types.Credentials) (string, error) {
	svc, err := auth.NewServiceFactory(s.auth, transport()).CreateDriveService(ctx, creds)
	if err != nil {
		return "", err
	}
	client := api.NewClient(svc, "", api.DefaultRetryPolicy(nil), logger)
	about, err := remote.NewDrive(client, afero.NewOsFs()).About(ctx)
	if err != nil {
		return "", err
	}
	if about.EmailAddress == "" {
		return "", utils.NewCLIError(utils.ErrCodeAuthRequired, "Drive did not report the account email").Err()
	}
	return strings.ToLower(about.EmailAddress), nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	if err := s.auth.DeleteCredentials(s.account); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for %s", s.account)).Build(), err)
	}

	if authForget {
		if err := s.store.Remove(s.account); err != nil {
			return err
		}
		db, err := s.openIndex()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.DeleteTree(cmd.Context(), s.account); err != nil {
			return err
		}
	}

	out.Log("Credentials removed for %s", s.account)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"account":   s.account,
		"status":    "logged_out",
		"forgotten": authForget,
	})
}

type accountStatus struct {
	Account       string    `json:"account"`
	Authenticated bool      `json:"authenticated"`
	Expiry        time.Time `json:"expiry,omitempty"`
	NeedsRefresh  bool      `json:"needsRefresh"`
	Scopes        []string  `json:"scopes,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type authStatusResult struct {
	Accounts       []accountStatus `json:"accounts"`
	StorageBackend string          `json:"storageBackend"`
}

func (r authStatusResult) AsTableRenderer() types.TableRenderer {
	t := table{
		headers: []string{"Account", "Authenticated", "Token expires", "Backend"},
		empty:   "No accounts. Run 'gosync auth login'.",
	}
	for _, a := range r.Accounts {
		expires := "-"
		if a.Authenticated {
			expires = humanize.Time(a.Expiry)
		}
		t.rows = append(t.rows, []string{a.Account, fmt.Sprintf("%t", a.Authenticated), expires, r.StorageBackend})
	}
	return t
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, false)
	if err != nil {
		return err
	}

	accounts, err := s.auth.ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if globalFlags.Account != "" {
		accounts = []string{strings.ToLower(globalFlags.Account)}
	}

	result := authStatusResult{StorageBackend: s.auth.GetStorageBackend(), Accounts: []accountStatus{}}
	for _, account := range accounts {
		status := accountStatus{Account: account}
		creds, err := s.auth.LoadCredentials(account)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Authenticated = creds.RefreshToken != "" || time.Now().Before(creds.ExpiryDate)
			status.Expiry = creds.ExpiryDate
			status.NeedsRefresh = s.auth.NeedsRefresh(creds)
			status.Scopes = creds.Scopes
		}
		result.Accounts = append(result.Accounts, status)
	}
	return out.WriteSuccess("auth.status", result)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
