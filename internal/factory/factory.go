// Package factory instantiates backend clients: descriptor lookup, auth
// resolution, credential validation, and converter wiring in one place.
package factory

import (
	"context"
	"net/http"
	"sync"

	"github.com/marcus/pilot/internal/backend"
	"github.com/marcus/pilot/internal/convert"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/registry"
)

// Factory builds backend clients. Built clients are cached per
// (provider, model) pair; the cache is dropped whenever the runtime
// override changes so a switch always takes effect.
type Factory struct {
	reg   *registry.Registry
	creds backend.CredentialSource

	// HTTPClient overrides the transport for HTTP backends (tests).
	HTTPClient *http.Client

	mu    sync.Mutex
	cache map[string]backend.Client
}

// New creates a factory.
func New(reg *registry.Registry, creds backend.CredentialSource) *Factory {
	return &Factory{
		reg:   reg,
		creds: creds,
		cache: make(map[string]backend.Client),
	}
}

// Build returns a client for the provider/model pair, wired to the
// provider's wire-family converter. endpointOverride, when non-empty,
// replaces the descriptor's base endpoint (profile- or config-level
// override).
func (f *Factory) Build(ctx context.Context, providerName, modelID, endpointOverride string) (backend.Client, error) {
	desc, err := f.reg.Lookup(providerName)
	if err != nil {
		return nil, err
	}
	model := desc.ResolveModel(modelID)
	endpoint := desc.BaseEndpoint
	if endpointOverride != "" {
		endpoint = endpointOverride
	}
	key := providerName + "\x00" + model + "\x00" + endpoint

	f.mu.Lock()
	if client, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return client, nil
	}
	f.mu.Unlock()

	// Validate credentials up front so a bad switch fails here, not on
	// the first request.
	if _, err := f.creds.GetValidCredential(ctx, providerName); err != nil {
		return nil, err
	}

	conv, err := convert.ForFamily(desc.Family)
	if err != nil {
		return nil, err
	}

	var client backend.Client
	switch desc.Family {
	case registry.FamilyOpenAI:
		client = backend.NewOpenAI(providerName, endpoint, conv, f.creds, f.HTTPClient)
	case registry.FamilyNative:
		client = backend.NewNative(providerName, endpoint, conv, f.creds, f.HTTPClient)
	case registry.FamilyAgentCLI:
		cli := backend.NewCLI(providerName, desc.Binary, conv)
		if err := cli.Preflight(ctx); err != nil {
			return nil, err
		}
		client = cli
	}

	f.mu.Lock()
	f.cache[key] = client
	f.mu.Unlock()

	logging.Component("factory").Debug().
		Str("provider", providerName).Str("model", model).
		Str("family", string(desc.Family)).Msg("backend client built")
	return client, nil
}

// Invalidate drops all cached clients. Called when the runtime override
// changes or credentials are replaced.
func (f *Factory) Invalidate() {
	f.mu.Lock()
	f.cache = make(map[string]backend.Client)
	f.mu.Unlock()
}
