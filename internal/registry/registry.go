// Package registry holds the static catalogue of backend descriptors.
// The catalogue is built once at process start and read-only afterwards,
// so lookups are safe from any number of goroutines.
package registry

import (
	"sort"

	"github.com/marcus/pilot/internal/llmerr"
)

// ProtocolFamily identifies which wire protocol a backend speaks. The set
// is closed: adding a family is a deliberate code change, not a runtime
// registration, because each family carries bespoke conversion logic.
type ProtocolFamily string

const (
	FamilyOpenAI   ProtocolFamily = "openai-compatible"
	FamilyNative   ProtocolFamily = "native-oauth"
	FamilyAgentCLI ProtocolFamily = "subprocess-cli"
)

// AuthScheme identifies how a backend authenticates.
type AuthScheme string

const (
	AuthNone       AuthScheme = "none"
	AuthStaticKey  AuthScheme = "static-key"
	AuthDeviceFlow AuthScheme = "oauth-device-flow"
)

// RateLimitHints is informational only; nothing in the routing layer
// enforces it.
type RateLimitHints struct {
	RequestsPerMinute int
	TokensPerMinute   int
}

// Descriptor is an immutable catalogue entry for one backend.
type Descriptor struct {
	Name         string
	Family       ProtocolFamily
	BaseEndpoint string // empty for the subprocess family
	Scheme       AuthScheme
	KeyEnvVar    string // env slot for static-key providers
	Binary       string // external tool for the subprocess family
	ModelAliases map[string]string
	RateLimits   *RateLimitHints
}

// ResolveModel maps a public model name through the alias table. Unknown
// names pass through unchanged.
func (d Descriptor) ResolveModel(name string) string {
	if alias, ok := d.ModelAliases[name]; ok {
		return alias
	}
	return name
}

// Registry is the read-only descriptor catalogue.
type Registry struct {
	byName map[string]Descriptor
}

// builtin is the fixed provider table. Endpoints here are defaults; a
// profile's endpoint override takes precedence at build time.
var builtin = []Descriptor{
	{
		Name:         "local",
		Family:       FamilyOpenAI,
		BaseEndpoint: "http://localhost:11434/v1",
		Scheme:       AuthNone,
		ModelAliases: map[string]string{
			"qwen-coder": "qwen2.5-coder:32b",
			"deepseek":   "deepseek-coder-v2:16b",
		},
	},
	{
		Name:         "openai",
		Family:       FamilyOpenAI,
		BaseEndpoint: "https://api.openai.com/v1",
		Scheme:       AuthStaticKey,
		KeyEnvVar:    "OPENAI_API_KEY",
		RateLimits:   &RateLimitHints{RequestsPerMinute: 500},
	},
	{
		Name:         "anthropic",
		Family:       FamilyNative,
		BaseEndpoint: "https://api.anthropic.com",
		Scheme:       AuthDeviceFlow,
		ModelAliases: map[string]string{
			"sonnet": "claude-sonnet-4-20250514",
			"opus":   "claude-opus-4-20250514",
		},
		RateLimits: &RateLimitHints{RequestsPerMinute: 50},
	},
	{
		// Shares the oauth-device-flow scheme tag with anthropic; the auth
		// resolver must key on the provider name, never the scheme alone.
		Name:         "gemini",
		Family:       FamilyNative,
		BaseEndpoint: "https://cloudcode-pa.googleapis.com",
		Scheme:       AuthDeviceFlow,
		ModelAliases: map[string]string{
			"flash": "gemini-2.5-flash",
			"pro":   "gemini-2.5-pro",
		},
	},
	{
		Name:   "claude-cli",
		Family: FamilyAgentCLI,
		Scheme: AuthNone, // the external tool manages its own auth
		Binary: "claude",
	},
}

// New builds the registry from the builtin table.
func New() *Registry {
	r := &Registry{byName: make(map[string]Descriptor, len(builtin))}
	for _, d := range builtin {
		r.byName[d.Name] = d
	}
	return r
}

// Lookup returns the descriptor for a provider name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, &llmerr.ProviderNotFoundError{Name: name}
	}
	return d, nil
}

// Names returns all provider names, sorted, for listings and
// diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
