// Package session exposes the typed operations the UI layer consumes:
// switching, listing, and adding model profiles. It ties together the
// profile store, the provider registry, the generator factory, and the
// preservation manager so a switch is atomic: either the backend builds,
// the profile persists, and the override applies, or nothing changes.
package session

import (
	"context"
	"fmt"
	"os"

	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/factory"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/preserve"
	"github.com/marcus/pilot/internal/profiles"
	"github.com/marcus/pilot/internal/registry"
)

// SwitchResult is returned to the UI after a successful switch.
type SwitchResult struct {
	Success     bool
	DisplayName string
	Provider    string
}

// Service implements the CLI surface over the routing layer.
type Service struct {
	cfg     *config.Config
	store   *profiles.Store
	reg     *registry.Registry
	factory *factory.Factory
}

// New creates the session service and registers the factory's cache
// invalidation with the preservation manager.
func New(cfg *config.Config, store *profiles.Store, reg *registry.Registry, f *factory.Factory) *Service {
	preserve.Get().OnRestore(func(preserve.Override) {
		f.Invalidate()
	})
	return &Service{cfg: cfg, store: store, reg: reg, factory: f}
}

// Switch activates the named profile. The backend is built (credentials
// validated, external tooling preflighted) before any state changes; a
// failed switch leaves the current profile untouched.
func (s *Service) Switch(ctx context.Context, nickname string) (SwitchResult, error) {
	profile, ok := s.store.Get(nickname)
	if !ok {
		return SwitchResult{}, fmt.Errorf("no profile named %q", nickname)
	}
	desc, err := s.reg.Lookup(profile.Provider)
	if err != nil {
		return SwitchResult{}, err
	}

	// Same endpoint resolution as request time: profile first, then the
	// config-level per-provider override.
	endpoint := profile.Endpoint
	if endpoint == "" {
		endpoint = s.cfg.EndpointOverride(profile.Provider)
	}

	if _, err := s.factory.Build(ctx, profile.Provider, profile.ModelID, endpoint); err != nil {
		return SwitchResult{}, err
	}

	if _, err := s.store.Switch(nickname); err != nil {
		return SwitchResult{}, err
	}

	preserve.Get().SetOverride(s.cfg, preserve.Override{
		Provider: profile.Provider,
		Model:    desc.ResolveModel(profile.ModelID),
	})
	s.factory.Invalidate()
	publishEnv(desc, profile, endpoint)

	logging.Component("session").Info().
		Str("nickname", nickname).Str("provider", profile.Provider).
		Str("model", profile.ModelID).Msg("switched model")

	return SwitchResult{
		Success:     true,
		DisplayName: profile.DisplayName,
		Provider:    profile.Provider,
	}, nil
}

// List returns all profiles.
func (s *Service) List() []profiles.Profile {
	return s.store.List()
}

// Current returns the active profile, if any.
func (s *Service) Current() (profiles.Profile, bool) {
	return s.store.Current()
}

// Add creates a new profile after validating the provider exists.
func (s *Service) Add(nickname, modelID, providerName, endpointOverride string) error {
	if _, err := s.reg.Lookup(providerName); err != nil {
		return err
	}
	return s.store.Add(profiles.Profile{
		Nickname: nickname,
		ModelID:  modelID,
		Provider: providerName,
		Endpoint: endpointOverride,
	})
}

// publishEnv exposes the selection through the conventional environment
// names so external tooling expecting the OpenAI-compatible protocol's
// configuration keeps working unmodified.
func publishEnv(desc registry.Descriptor, p profiles.Profile, endpoint string) {
	if desc.Family != registry.FamilyOpenAI {
		return
	}
	if endpoint == "" {
		endpoint = desc.BaseEndpoint
	}
	os.Setenv("OPENAI_MODEL", desc.ResolveModel(p.ModelID))
	os.Setenv("OPENAI_BASE_URL", endpoint)
}
