package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/registry"
)

// RefreshMargin is how long before expiry a token is already treated as
// stale and refreshed.
const RefreshMargin = 2 * time.Minute

// PromptFunc displays the device-flow verification step to the user.
type PromptFunc func(verificationURL, userCode string)

// Manager hands out valid credentials per provider. Refreshes for a given
// provider are serialized: concurrent callers that find an expired token
// share one in-flight token exchange instead of racing duplicates.
type Manager struct {
	resolver *Resolver
	store    *FileStore
	prompt   PromptFunc // nil = non-interactive, device flow not started
	now      func() time.Time

	// HTTPClient overrides the client used for token-endpoint calls.
	// Nil means the oauth2 default.
	HTTPClient *http.Client

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	cred Credential
	err  error
}

// NewManager creates a credential manager.
func NewManager(resolver *Resolver, store *FileStore, prompt PromptFunc) *Manager {
	return &Manager{
		resolver: resolver,
		store:    store,
		prompt:   prompt,
		now:      time.Now,
		inflight: make(map[string]*flight),
	}
}

// GetValidCredential returns a credential that is valid now (with the
// refresh margin applied), refreshing or re-authorizing as needed.
func (m *Manager) GetValidCredential(ctx context.Context, provider string) (Credential, error) {
	method, err := m.resolver.Resolve(provider, nil)
	if err != nil {
		return Credential{}, err
	}

	switch method.Scheme {
	case registry.AuthNone:
		return Credential{}, nil

	case registry.AuthStaticKey:
		key := os.Getenv(method.EnvSlot)
		if key == "" {
			return Credential{}, &llmerr.MissingCredentialError{
				Provider: provider,
				Slot:     "$" + method.EnvSlot,
				Remedy:   fmt.Sprintf("export %s with your API key", method.EnvSlot),
			}
		}
		return Credential{AccessToken: key}, nil

	case registry.AuthDeviceFlow:
		return m.oauthCredential(ctx, method)

	default:
		return Credential{}, fmt.Errorf("provider %q has unresolvable auth scheme", provider)
	}
}

// Invalidate forces the next GetValidCredential for the provider to
// perform a token exchange, keeping the refresh token so no interactive
// re-authorization is needed.
func (m *Manager) Invalidate(provider string) {
	cred, err := m.store.Load(provider)
	if err != nil {
		return
	}
	cred.AccessToken = ""
	cred.Expiry = time.Unix(1, 0)
	if err := m.store.Save(provider, cred); err != nil {
		logging.Component("auth").Err(err).Str("provider", provider).Msg("invalidating credential")
	}
}

// StoredProviders returns the providers with a persisted credential.
func (m *Manager) StoredProviders() []string {
	providers, err := m.store.List()
	if err != nil {
		return nil
	}
	return providers
}

// RefreshIfExpiring refreshes a provider's stored credential when it
// expires within the given lead time. Used by the background refresher;
// a missing credential is not an error here.
func (m *Manager) RefreshIfExpiring(ctx context.Context, provider string, lead time.Duration) error {
	method, err := m.resolver.Resolve(provider, nil)
	if err != nil {
		return err
	}
	if method.Scheme != registry.AuthDeviceFlow {
		return nil
	}
	cred, err := m.store.Load(provider)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if cred.ValidAt(m.now(), lead) {
		return nil
	}
	_, err = m.sharedRefresh(ctx, method, cred)
	return err
}

// Login runs the full device-authorization flow for a provider and
// persists the resulting credential, replacing any stored one.
func (m *Manager) Login(ctx context.Context, provider string) (Credential, error) {
	method, err := m.resolver.Resolve(provider, nil)
	if err != nil {
		return Credential{}, err
	}
	if method.Scheme != registry.AuthDeviceFlow {
		return Credential{}, fmt.Errorf("provider %q does not use a login flow (scheme %s)", provider, method.Scheme)
	}
	return m.deviceFlow(ctx, method)
}

func (m *Manager) oauthCredential(ctx context.Context, method Method) (Credential, error) {
	provider := method.Provider

	cred, err := m.store.Load(provider)
	if errors.Is(err, os.ErrNotExist) {
		if m.prompt == nil {
			return Credential{}, &llmerr.MissingCredentialError{
				Provider: provider,
				Slot:     "credential file",
				Remedy:   fmt.Sprintf("run 'pilot login %s'", provider),
			}
		}
		return m.deviceFlow(ctx, method)
	}
	if err != nil {
		return Credential{}, err
	}

	if cred.ValidAt(m.now(), RefreshMargin) {
		return cred, nil
	}
	return m.sharedRefresh(ctx, method, cred)
}

// sharedRefresh serializes refreshes per provider. The first caller
// performs the exchange; everyone else waits on the same result.
func (m *Manager) sharedRefresh(ctx context.Context, method Method, stale Credential) (Credential, error) {
	provider := method.Provider

	m.mu.Lock()
	if f, ok := m.inflight[provider]; ok {
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.cred, f.err
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	m.inflight[provider] = f
	m.mu.Unlock()

	f.cred, f.err = m.refresh(ctx, method, stale)
	close(f.done)

	m.mu.Lock()
	delete(m.inflight, provider)
	m.mu.Unlock()

	return f.cred, f.err
}

// refresh performs one refresh-token exchange and persists the new
// credential. A failed exchange (revoked or expired refresh token)
// deletes the stored credential and, when interactive, re-runs the full
// device flow.
func (m *Manager) refresh(ctx context.Context, method Method, stale Credential) (Credential, error) {
	provider := method.Provider
	log := logging.Component("auth")

	if stale.RefreshToken == "" {
		m.store.Delete(provider)
		return m.reauthorize(ctx, method, fmt.Errorf("no refresh token stored"))
	}

	src := method.OAuth.TokenSource(m.oauthContext(ctx), &oauth2.Token{
		RefreshToken: stale.RefreshToken,
		Expiry:       time.Unix(1, 0), // force an exchange
	})
	tok, err := src.Token()
	if err != nil {
		log.Err(err).Str("provider", provider).Msg("token refresh failed")
		m.store.Delete(provider)
		return m.reauthorize(ctx, method, err)
	}

	cred := credentialFromToken(tok, stale)
	if err := m.store.Save(provider, cred); err != nil {
		return Credential{}, err
	}
	log.Debug().Str("provider", provider).Time("expiry", cred.Expiry).Msg("credential refreshed")
	return cred, nil
}

func (m *Manager) reauthorize(ctx context.Context, method Method, cause error) (Credential, error) {
	if m.prompt == nil {
		return Credential{}, &llmerr.AuthExpiredError{Provider: method.Provider, Err: cause}
	}
	return m.deviceFlow(ctx, method)
}

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	if m.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}
	return ctx
}

func credentialFromToken(tok *oauth2.Token, previous Credential) Credential {
	cred := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	// Some token endpoints rotate refresh tokens, some echo nothing back.
	if cred.RefreshToken == "" {
		cred.RefreshToken = previous.RefreshToken
	}
	return cred
}
