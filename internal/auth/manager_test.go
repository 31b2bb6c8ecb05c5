package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/registry"
)

// withTestFlow points a provider's device flow at a local token server
// for the duration of a test.
func withTestFlow(t *testing.T, provider, tokenURL string) {
	t.Helper()
	orig := oauthConfigs[provider]
	oauthConfigs[provider] = &oauth2.Config{
		ClientID: "test-client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
	}
	t.Cleanup(func() { oauthConfigs[provider] = orig })
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := newTestStore(t)
	return NewManager(NewResolver(registry.New()), store, nil)
}

func tokenHandler(exchanges *atomic.Int32, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-token",
			"refresh_token": "rotated-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}
}

func TestStaticKeyFromEnv(t *testing.T) {
	m := newTestManager(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cred, err := m.GetValidCredential(context.Background(), "openai")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "sk-test" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
}

func TestStaticKeyMissing(t *testing.T) {
	m := newTestManager(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := m.GetValidCredential(context.Background(), "openai")
	var missing *llmerr.MissingCredentialError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want *llmerr.MissingCredentialError", err)
	}
	if missing.Provider != "openai" {
		t.Errorf("error names provider %q", missing.Provider)
	}
}

func TestNoAuthProvider(t *testing.T) {
	m := newTestManager(t)
	cred, err := m.GetValidCredential(context.Background(), "local")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "" {
		t.Errorf("no-auth provider returned a token: %q", cred.AccessToken)
	}
}

func TestOAuthMissingCredentialNonInteractive(t *testing.T) {
	m := newTestManager(t) // nil prompt
	_, err := m.GetValidCredential(context.Background(), "anthropic")
	var missing *llmerr.MissingCredentialError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want *llmerr.MissingCredentialError", err)
	}
}

func TestValidCredentialReturnedWithoutRefresh(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 0))
	defer srv.Close()
	withTestFlow(t, "anthropic", srv.URL+"/token")

	m := newTestManager(t)
	stored := Credential{
		AccessToken:  "still-good",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := m.store.Save("anthropic", stored); err != nil {
		t.Fatal(err)
	}

	cred, err := m.GetValidCredential(context.Background(), "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "still-good" {
		t.Errorf("AccessToken = %q, want stored token", cred.AccessToken)
	}
	if exchanges.Load() != 0 {
		t.Errorf("token endpoint hit %d times for a valid credential", exchanges.Load())
	}
}

func TestExpiredCredentialRefreshes(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 0))
	defer srv.Close()
	withTestFlow(t, "anthropic", srv.URL+"/token")

	m := newTestManager(t)
	if err := m.store.Save("anthropic", Credential{
		AccessToken:  "stale",
		RefreshToken: "rt-old",
		Expiry:       time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	cred, err := m.GetValidCredential(context.Background(), "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "fresh-token" {
		t.Errorf("AccessToken = %q, want refreshed token", cred.AccessToken)
	}
	if cred.RefreshToken != "rotated-refresh" {
		t.Errorf("RefreshToken = %q, want rotated token", cred.RefreshToken)
	}

	// The refreshed credential is persisted.
	stored, err := m.store.Load("anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "fresh-token" {
		t.Errorf("persisted AccessToken = %q", stored.AccessToken)
	}
}

// Ten goroutines finding an expired token at once must share a single
// token exchange, not race ten duplicates.
func TestConcurrentRefreshSingleFlight(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 150*time.Millisecond))
	defer srv.Close()
	withTestFlow(t, "anthropic", srv.URL+"/token")

	m := newTestManager(t)
	if err := m.store.Save("anthropic", Credential{
		AccessToken:  "stale",
		RefreshToken: "rt-old",
		Expiry:       time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	const callers = 10
	var wg sync.WaitGroup
	creds := make([]Credential, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds[i], errs[i] = m.GetValidCredential(context.Background(), "anthropic")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if creds[i].AccessToken != "fresh-token" {
			t.Errorf("caller %d got token %q", i, creds[i].AccessToken)
		}
	}
	if got := exchanges.Load(); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestFailedRefreshNonInteractive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	withTestFlow(t, "anthropic", srv.URL+"/token")

	m := newTestManager(t)
	if err := m.store.Save("anthropic", Credential{
		AccessToken:  "stale",
		RefreshToken: "rt-revoked",
		Expiry:       time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := m.GetValidCredential(context.Background(), "anthropic")
	var expired *llmerr.AuthExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("err = %v, want *llmerr.AuthExpiredError", err)
	}

	// The dead credential is removed so the next attempt re-authorizes.
	if _, err := m.store.Load("anthropic"); err == nil {
		t.Error("revoked credential still stored after failed refresh")
	}
}

func TestInvalidateKeepsRefreshToken(t *testing.T) {
	m := newTestManager(t)
	if err := m.store.Save("anthropic", Credential{
		AccessToken:  "live",
		RefreshToken: "rt-keep",
		Expiry:       time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	m.Invalidate("anthropic")

	cred, err := m.store.Load("anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "" {
		t.Error("Invalidate left the access token in place")
	}
	if cred.RefreshToken != "rt-keep" {
		t.Error("Invalidate dropped the refresh token")
	}
	if cred.ValidAt(time.Now(), 0) {
		t.Error("invalidated credential still reads valid")
	}
}

func TestRefreshIfExpiring(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 0))
	defer srv.Close()
	withTestFlow(t, "anthropic", srv.URL+"/token")

	m := newTestManager(t)

	// No stored credential: a no-op, not an error.
	if err := m.RefreshIfExpiring(context.Background(), "anthropic", time.Minute); err != nil {
		t.Fatalf("missing credential: %v", err)
	}

	// Credential expiring within the lead window gets refreshed.
	if err := m.store.Save("anthropic", Credential{
		AccessToken:  "soon-stale",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(2 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.RefreshIfExpiring(context.Background(), "anthropic", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if exchanges.Load() != 1 {
		t.Errorf("exchanges = %d, want 1", exchanges.Load())
	}

	// A credential comfortably outside the lead window is left alone.
	if err := m.RefreshIfExpiring(context.Background(), "anthropic", time.Minute); err != nil {
		t.Fatal(err)
	}
	if exchanges.Load() != 1 {
		t.Errorf("exchanges = %d after within-lead credential, want still 1", exchanges.Load())
	}
}
