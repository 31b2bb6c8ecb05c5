// Package backend implements the per-protocol clients that carry
// canonical requests to a concrete backend: an HTTP client for
// OpenAI-compatible servers, an OAuth-authenticated HTTP client for the
// cloud-native protocol, and a subprocess manager for the external agent
// CLI. Failures always name the backend that failed; a request is never
// silently rerouted to a different backend than the one selected.
package backend

import (
	"context"

	"github.com/marcus/pilot/internal/canon"
)

// Client sends canonical requests to one backend.
type Client interface {
	// Provider returns the provider name this client is bound to.
	Provider() string

	// Send performs one blocking request.
	Send(ctx context.Context, req canon.Request) (canon.Response, error)

	// Stream performs one streaming request. The returned stream is
	// lazy, single-consumption, and non-restartable; Close releases the
	// underlying connection or process and is safe to call early.
	Stream(ctx context.Context, req canon.Request) (Stream, error)
}

// Stream is a scanner-style canonical chunk sequence. Exactly one chunk
// carries Terminal=true, after all content chunks.
type Stream interface {
	// Next returns the next chunk. ok=false means the stream is done;
	// check Err for whether it ended cleanly.
	Next() (chunk canon.Chunk, ok bool)

	// Err returns the first error encountered, if any.
	Err() error

	// Close releases underlying resources. Safe to call at any point,
	// including before the stream is drained.
	Close() error
}
