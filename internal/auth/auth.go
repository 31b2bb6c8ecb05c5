// Package auth maps providers to concrete authentication methods and
// manages their credentials: static keys read from the environment, and
// OAuth device-flow tokens with persistence and refresh.
package auth

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/marcus/pilot/internal/registry"
)

// Credential is an ephemeral, in-memory token set. Credentials are
// replaced wholesale on refresh, never mutated in place.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Static reports whether the credential has no expiry (static keys).
func (c Credential) Static() bool { return c.Expiry.IsZero() }

// ValidAt reports whether the credential is usable at t with the given
// safety margin before expiry.
func (c Credential) ValidAt(t time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.Static() {
		return true
	}
	return t.Add(margin).Before(c.Expiry)
}

// Method is a resolved authentication method for one provider.
type Method struct {
	Provider string
	Scheme   registry.AuthScheme
	EnvSlot  string         // static-key: environment slot holding the key
	OAuth    *oauth2.Config // device-flow: that provider's own OAuth client
}

// oauthConfigs maps provider names to their device-flow clients. Keyed by
// provider name, not scheme: two providers sharing the oauth-device-flow
// scheme tag must never receive each other's flow. All entries are public
// clients (PKCE, no secret).
var oauthConfigs = map[string]*oauth2.Config{
	"anthropic": {
		ClientID: "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
		Scopes:   []string{"user:inference"},
		Endpoint: oauth2.Endpoint{
			AuthURL:       "https://claude.ai/oauth/authorize",
			TokenURL:      "https://console.anthropic.com/v1/oauth/token",
			DeviceAuthURL: "https://console.anthropic.com/v1/oauth/device/code",
		},
	},
	"gemini": {
		ClientID: "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com",
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:       "https://accounts.google.com/o/oauth2/auth",
			TokenURL:      "https://oauth2.googleapis.com/token",
			DeviceAuthURL: "https://oauth2.googleapis.com/device/code",
		},
	},
}
