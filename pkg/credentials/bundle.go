// Package credentials stores, refreshes, and bootstraps the OAuth token
// bundles used to authenticate upstream CodeWhisperer requests: file
// persistence, debounced refresh, and the IdC device-authorization flow.
package credentials

import "time"

// AuthMethod distinguishes the two OAuth flavors Kiro credentials use.
type AuthMethod string

const (
	AuthMethodSocial AuthMethod = "social"
	AuthMethodIdC    AuthMethod = "IdC"
)

// TokenBundle is the persisted shape of one credential file.
type TokenBundle struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	ClientID     string     `json:"clientId,omitempty"`
	ClientSecret string     `json:"clientSecret,omitempty"`
	AuthMethod   AuthMethod `json:"authMethod"`
	ProfileArn   string     `json:"profileArn,omitempty"`
	Region       string     `json:"region"`
}

// ExpiresWithin reports whether the bundle's access token expires at or
// before now+window.
func (b TokenBundle) ExpiresWithin(window time.Duration, now time.Time) bool {
	return !b.ExpiresAt.After(now.Add(window))
}
