package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/registry"
)

// stubCreds satisfies backend.CredentialSource, optionally failing for
// one provider.
type stubCreds struct {
	failFor string
	calls   int
}

func (s *stubCreds) GetValidCredential(ctx context.Context, provider string) (auth.Credential, error) {
	s.calls++
	if provider == s.failFor {
		return auth.Credential{}, &llmerr.MissingCredentialError{Provider: provider}
	}
	return auth.Credential{AccessToken: "tok"}, nil
}

func (s *stubCreds) Invalidate(string) {}

func TestBuildUnknownProvider(t *testing.T) {
	f := New(registry.New(), &stubCreds{})

	_, err := f.Build(context.Background(), "no-such", "m", "")

	var notFound *llmerr.ProviderNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *llmerr.ProviderNotFoundError", err)
	}
}

func TestBuildValidatesCredentials(t *testing.T) {
	creds := &stubCreds{failFor: "openai"}
	f := New(registry.New(), creds)

	_, err := f.Build(context.Background(), "openai", "gpt-4o", "")

	var missing *llmerr.MissingCredentialError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want *llmerr.MissingCredentialError", err)
	}
	// A failed build must not be cached.
	_, err = f.Build(context.Background(), "openai", "gpt-4o", "")
	if err == nil {
		t.Fatal("second build after credential failure succeeded")
	}
	if creds.calls != 2 {
		t.Errorf("credential checks = %d, want 2", creds.calls)
	}
}

func TestBuildCachesPerKey(t *testing.T) {
	f := New(registry.New(), &stubCreds{})
	ctx := context.Background()

	a, err := f.Build(ctx, "local", "qwen-coder", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Build(ctx, "local", "qwen-coder", "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same provider/model/endpoint built two clients")
	}

	other, err := f.Build(ctx, "local", "deepseek", "")
	if err != nil {
		t.Fatal(err)
	}
	if other == a {
		t.Error("different model reused the cached client")
	}

	overridden, err := f.Build(ctx, "local", "qwen-coder", "http://example.test/v1")
	if err != nil {
		t.Fatal(err)
	}
	if overridden == a {
		t.Error("endpoint override reused the cached client")
	}
}

func TestInvalidateDropsCache(t *testing.T) {
	f := New(registry.New(), &stubCreds{})
	ctx := context.Background()

	a, err := f.Build(ctx, "local", "qwen-coder", "")
	if err != nil {
		t.Fatal(err)
	}
	f.Invalidate()
	b, err := f.Build(ctx, "local", "qwen-coder", "")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("Invalidate did not drop the cached client")
	}
}

func TestBuildNativeFamily(t *testing.T) {
	f := New(registry.New(), &stubCreds{})

	client, err := f.Build(context.Background(), "anthropic", "sonnet", "")
	if err != nil {
		t.Fatal(err)
	}
	if client == nil {
		t.Fatal("nil client for native family")
	}
}
