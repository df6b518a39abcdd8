package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/gosync/internal/types"
	"golang.org/x/oauth2"
)

// LoginTimeout bounds the wait for the browser callback
const LoginTimeout = 5 * time.Minute

// OAuthFlow is one authorization code exchange with PKCE
type OAuthFlow struct {
	config       *oauth2.Config
	listener     net.Listener
	redirectURL  string
	state        string
	codeVerifier string
	codeChan     chan string
	errChan      chan error
}

// NewOAuthFlow prepares a flow answering on listener at redirectURL. A nil
// listener is used by the manual flow, where the user pastes the code.
func NewOAuthFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*OAuthFlow, error) {
	if config == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	state, err := randomToken(base64.URLEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	cfg := *config
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL not set")
	}

	return &OAuthFlow{
		config:       &cfg,
		listener:     listener,
		redirectURL:  cfg.RedirectURL,
		state:        state,
		codeVerifier: verifier,
		codeChan:     make(chan string, 1),
		errChan:      make(chan error, 1),
	}, nil
}

// GetAuthURL returns the consent page URL
func (f *OAuthFlow) GetAuthURL() string {
	return f.config.AuthCodeURL(
		f.state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", codeChallengeS256(f.codeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// StartCallbackServer serves /callback on the flow's listener until ctx ends
func (f *OAuthFlow) StartCallbackServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(f.listener); err != http.ErrServerClosed {
			f.report(err)
		}
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
}

func (f *OAuthFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("state") != f.state {
		f.report(fmt.Errorf("invalid state parameter"))
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}
	code := query.Get("code")
	if code == "" {
		f.report(fmt.Errorf("auth error: %s", query.Get("error")))
		http.Error(w, "No code received", http.StatusBadRequest)
		return
	}

	select {
	case f.codeChan <- code:
	default:
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><h1>gosync is authorized</h1><p>You can close this window.</p></body></html>`)
}

// report never blocks; only the first failure matters
func (f *OAuthFlow) report(err error) {
	select {
	case f.errChan <- err:
	default:
	}
}

// WaitForCode waits for the callback to deliver the authorization code
func (f *OAuthFlow) WaitForCode(timeout time.Duration) (string, error) {
	select {
	case code := <-f.codeChan:
		return code, nil
	case err := <-f.errChan:
		return "", err
	case <-time.After(timeout):
		return "", fmt.Errorf("authentication timed out")
	}
}

// ExchangeCode trades the authorization code for tokens
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*types.Credentials, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", f.codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       f.config.Scopes,
		Type:         types.AuthTypeOAuth,
	}, nil
}

func (f *OAuthFlow) Close() {
	if f.listener != nil {
		f.listener.Close()
	}
}

func randomToken(enc *base64.Encoding) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return enc.EncodeToString(b), nil
}

func generateCodeVerifier() (string, error) {
	return randomToken(base64.RawURLEncoding)
}

func codeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// OAuthAuthOptions controls how Authenticate talks to the user
type OAuthAuthOptions struct {
	NoBrowser bool
	Out       io.Writer
	In        io.Reader
}

func (o OAuthAuthOptions) withDefaults() OAuthAuthOptions {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	return o
}

// Authenticate runs the browser login and returns the granted credentials.
// Headless environments, or a browser that fails to open, fall back to
// pasting the code by hand. Storing the result is left to the caller, which
// learns the account email from the Drive about resource.
func (m *Manager) Authenticate(ctx context.Context, openBrowser func(string) error, opts OAuthAuthOptions) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	opts = opts.withDefaults()

	if opts.NoBrowser || isHeadlessEnv() {
		return m.authenticateManually(ctx, opts)
	}
	flow, err := newLoopbackFlow(m.oauthConfig)
	if err != nil {
		return m.authenticateManually(ctx, opts)
	}
	defer flow.Close()

	authURL := flow.GetAuthURL()
	fmt.Fprintf(opts.Out, "Opening browser for authentication...\n")
	fmt.Fprintf(opts.Out, "If the browser doesn't open, visit: %s\n", authURL)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	flow.StartCallbackServer(serveCtx)

	if err := openBrowser(authURL); err != nil {
		fmt.Fprintf(opts.Out, "Failed to open browser: %v\n", err)
		cancel()
		flow.Close()
		return m.authenticateManually(ctx, opts)
	}

	code, err := flow.WaitForCode(LoginTimeout)
	if err != nil {
		return nil, err
	}
	return flow.ExchangeCode(ctx, code)
}

func (m *Manager) authenticateManually(ctx context.Context, opts OAuthAuthOptions) (*types.Credentials, error) {
	flow, err := newManualFlow(m.oauthConfig)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(opts.Out, "Open this URL in a browser and approve access:\n%s\n", flow.GetAuthURL())
	fmt.Fprintf(opts.Out, "You will be redirected to a localhost URL that fails to load.\n")
	fmt.Fprintf(opts.Out, "Copy the `code` parameter from the address bar and paste it here.\n")

	code, err := promptForAuthCode(opts.Out, bufio.NewReader(opts.In))
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("no authorization code entered")
	}
	return flow.ExchangeCode(ctx, code)
}

func promptForAuthCode(out io.Writer, reader *bufio.Reader) (string, error) {
	fmt.Fprint(out, "Authorization code: ")
	code, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// newLoopbackFlow listens on the configured port, or a free one
func newLoopbackFlow(config *oauth2.Config) (*OAuthFlow, error) {
	addr := "127.0.0.1:0"
	if port := redirectPort(config); port != "" {
		addr = "127.0.0.1:" + port
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return NewOAuthFlow(config, listener, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
}

func newManualFlow(config *oauth2.Config) (*OAuthFlow, error) {
	if config.RedirectURL != "" {
		return NewOAuthFlow(config, nil, config.RedirectURL)
	}
	return NewOAuthFlow(config, nil, fmt.Sprintf("http://127.0.0.1:%d/callback", pickManualPort()))
}

func redirectPort(config *oauth2.Config) string {
	if config.RedirectURL == "" {
		return ""
	}
	rest := strings.TrimPrefix(config.RedirectURL, "http://127.0.0.1:")
	if rest == config.RedirectURL {
		return ""
	}
	port, _, _ := strings.Cut(rest, "/")
	return port
}

func pickManualPort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := listener.Addr().(*net.TCPAddr).Port
		_ = listener.Close()
		return port
	}
	return 8765
}

func isHeadlessEnv() bool {
	if os.Getenv("GOSYNC_NO_BROWSER") != "" {
		return true
	}
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return true
	}
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return true
	}
	if os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_TTY") != "" {
		return true
	}
	return false
}
