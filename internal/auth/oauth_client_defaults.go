package auth

// BundledOAuthClientID and BundledOAuthClientSecret can be set at build time
// via -ldflags. Unset, login needs a client in settings.yaml or the environment.
var (
	BundledOAuthClientID     string
	BundledOAuthClientSecret string
)

// GetBundledOAuthClient returns the build time OAuth client, if any
func GetBundledOAuthClient() (string, string, bool) {
	if BundledOAuthClientID == "" {
		return "", "", false
	}
	return BundledOAuthClientID, BundledOAuthClientSecret, true
}
