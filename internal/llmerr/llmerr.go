// Package llmerr defines the typed error taxonomy shared by the routing
// layer. Callers branch on these with errors.As; none of them is ever
// swallowed by silently substituting a different backend.
package llmerr

import "fmt"

// ProviderNotFoundError reports an unknown provider name. User error
// (bad nickname or config), never retried.
type ProviderNotFoundError struct {
	Name string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.Name)
}

// MissingCredentialError reports that no credential is available for a
// provider. The user must supply or obtain one; never retried.
type MissingCredentialError struct {
	Provider string
	Slot     string // env slot or credential file that was checked
	Remedy   string
}

func (e *MissingCredentialError) Error() string {
	msg := fmt.Sprintf("no credential for provider %q", e.Provider)
	if e.Slot != "" {
		msg += fmt.Sprintf(" (checked %s)", e.Slot)
	}
	if e.Remedy != "" {
		msg += ": " + e.Remedy
	}
	return msg
}

// AuthExpiredError reports an expired or revoked credential. Triggers one
// forced refresh and a single retry before surfacing.
type AuthExpiredError struct {
	Provider string
	Err      error
}

func (e *AuthExpiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential for provider %q expired: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("credential for provider %q expired", e.Provider)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// BackendUnavailableError reports missing tooling or an unreachable
// backend. Surfaced with remediation text, not retried automatically.
type BackendUnavailableError struct {
	Backend string
	Remedy  string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	msg := fmt.Sprintf("backend %q unavailable", e.Backend)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Remedy != "" {
		msg += " (" + e.Remedy + ")"
	}
	return msg
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// WireProtocolError reports a malformed or unexpected response shape.
// The raw payload is kept for diagnosis and logged by the caller.
type WireProtocolError struct {
	Family  string
	Payload []byte
	Err     error
}

func (e *WireProtocolError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Family, e.Err)
}

func (e *WireProtocolError) Unwrap() error { return e.Err }
