package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/marcus/pilot/internal/logging"
)

// deviceFlow runs the OAuth device-authorization handshake with PKCE:
// request a device code, hand the verification URL to the prompt, poll
// the token endpoint until authorized or the context expires.
func (m *Manager) deviceFlow(ctx context.Context, method Method) (Credential, error) {
	provider := method.Provider
	log := logging.Component("auth")

	verifier := oauth2.GenerateVerifier()
	octx := m.oauthContext(ctx)

	da, err := method.OAuth.DeviceAuth(octx, oauth2.S256ChallengeOption(verifier))
	if err != nil {
		return Credential{}, fmt.Errorf("requesting device code for %s: %w", provider, err)
	}

	url := da.VerificationURIComplete
	if url == "" {
		url = da.VerificationURI
	}
	if m.prompt != nil {
		m.prompt(url, da.UserCode)
	}
	log.Info().Str("provider", provider).Str("url", url).Msg("waiting for device authorization")

	tok, err := method.OAuth.DeviceAccessToken(octx, da, oauth2.VerifierOption(verifier))
	if err != nil {
		return Credential{}, fmt.Errorf("device authorization for %s: %w", provider, err)
	}

	cred := credentialFromToken(tok, Credential{})
	if err := m.store.Save(provider, cred); err != nil {
		return Credential{}, err
	}
	log.Info().Str("provider", provider).Msg("device authorization complete")
	return cred, nil
}
