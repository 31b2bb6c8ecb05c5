package auth

import (
	"fmt"

	"github.com/marcus/pilot/internal/registry"
)

// Resolver maps a provider name to its authentication method.
//
// Resolution is keyed by provider name first and auth scheme second.
// The scheme tag alone is ambiguous: multiple cloud providers carry
// oauth-device-flow, and returning a generic method here once routed one
// provider's login through another's token endpoint. A fresh resolution
// always wins over any cached method the caller still holds.
type Resolver struct {
	reg *registry.Registry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve returns the authentication method for a provider. The fallback
// hint is consulted only for providers whose descriptor declares no auth
// scheme, and only when the hint names the same provider; a stale hint
// for a different provider is never honored.
func (r *Resolver) Resolve(providerName string, fallback *Method) (Method, error) {
	desc, err := r.reg.Lookup(providerName)
	if err != nil {
		return Method{}, err
	}

	switch desc.Scheme {
	case registry.AuthNone:
		if fallback != nil && fallback.Provider == providerName {
			return *fallback, nil
		}
		return Method{Provider: providerName, Scheme: registry.AuthNone}, nil

	case registry.AuthStaticKey:
		return Method{
			Provider: providerName,
			Scheme:   registry.AuthStaticKey,
			EnvSlot:  desc.KeyEnvVar,
		}, nil

	case registry.AuthDeviceFlow:
		cfg, ok := oauthConfigs[providerName]
		if !ok {
			// Deliberately an error: falling through to some other
			// provider's device flow is exactly the failure this
			// resolver exists to prevent.
			return Method{}, fmt.Errorf("provider %q declares oauth-device-flow but has no registered flow", providerName)
		}
		return Method{
			Provider: providerName,
			Scheme:   registry.AuthDeviceFlow,
			OAuth:    cfg,
		}, nil

	default:
		return Method{}, fmt.Errorf("provider %q has unknown auth scheme %q", providerName, desc.Scheme)
	}
}
