package auth

import (
	"testing"

	"github.com/marcus/pilot/internal/registry"
)

func TestResolveStaticKey(t *testing.T) {
	r := NewResolver(registry.New())

	m, err := r.Resolve("openai", nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Scheme != registry.AuthStaticKey {
		t.Errorf("scheme = %s, want static-key", m.Scheme)
	}
	if m.EnvSlot != "OPENAI_API_KEY" {
		t.Errorf("EnvSlot = %q", m.EnvSlot)
	}
	if m.Provider != "openai" {
		t.Errorf("Provider = %q", m.Provider)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	r := NewResolver(registry.New())
	if _, err := r.Resolve("nonsense", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

// Two providers share the oauth-device-flow scheme tag. Resolution must
// key on the provider name and return each provider's own flow; a
// scheme-keyed lookup would hand one provider the other's token
// endpoint.
func TestResolveKeysOnProviderName(t *testing.T) {
	r := NewResolver(registry.New())

	anthropic, err := r.Resolve("anthropic", nil)
	if err != nil {
		t.Fatal(err)
	}
	gemini, err := r.Resolve("gemini", nil)
	if err != nil {
		t.Fatal(err)
	}

	if anthropic.Scheme != gemini.Scheme {
		t.Fatal("test premise broken: providers should share the scheme tag")
	}
	if anthropic.OAuth == nil || gemini.OAuth == nil {
		t.Fatal("device-flow methods must carry an OAuth config")
	}
	if anthropic.OAuth.Endpoint.TokenURL == gemini.OAuth.Endpoint.TokenURL {
		t.Error("providers sharing a scheme received the same token endpoint")
	}
	if anthropic.OAuth.ClientID == gemini.OAuth.ClientID {
		t.Error("providers sharing a scheme received the same client id")
	}
}

func TestResolveFallbackScoping(t *testing.T) {
	r := NewResolver(registry.New())

	// A fallback for the same provider is honored when the descriptor
	// declares no auth.
	same := &Method{Provider: "local", Scheme: registry.AuthStaticKey, EnvSlot: "LOCAL_KEY"}
	m, err := r.Resolve("local", same)
	if err != nil {
		t.Fatal(err)
	}
	if m.EnvSlot != "LOCAL_KEY" {
		t.Errorf("same-provider fallback ignored: %+v", m)
	}

	// A stale fallback naming a different provider is never honored.
	stale := &Method{Provider: "openai", Scheme: registry.AuthStaticKey, EnvSlot: "OPENAI_API_KEY"}
	m, err = r.Resolve("local", stale)
	if err != nil {
		t.Fatal(err)
	}
	if m.EnvSlot == "OPENAI_API_KEY" {
		t.Error("fallback for a different provider was honored")
	}
	if m.Scheme != registry.AuthNone {
		t.Errorf("scheme = %s, want none", m.Scheme)
	}

	// Fallbacks never override a declared scheme.
	m, err = r.Resolve("anthropic", stale)
	if err != nil {
		t.Fatal(err)
	}
	if m.Scheme != registry.AuthDeviceFlow {
		t.Errorf("fallback overrode declared scheme: %s", m.Scheme)
	}
}
