package types

import "time"

type AuthType string

const (
	AuthTypeOAuth AuthType = "oauth"
)

// Credentials holds an OAuth token for one account
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiryDate   time.Time `json:"expiryDate"`
	Scopes       []string  `json:"scopes"`
	Type         AuthType  `json:"type"`
}

// StoredCredentials is the serialized form kept by a storage backend
type StoredCredentials struct {
	Account      string   `json:"account"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiryDate   string   `json:"expiryDate"`
	Scopes       []string `json:"scopes"`
	Type         AuthType `json:"type"`
	ClientID     string   `json:"clientId,omitempty"`
}
