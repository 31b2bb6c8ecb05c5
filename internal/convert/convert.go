// Package convert translates between the canonical message shape and each
// backend's wire shape. One converter per protocol family; the set is
// closed on purpose so the per-family quirks (system hoisting, terminal
// signals, usage accounting) stay compiler-checked.
package convert

import (
	"fmt"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/registry"
)

// Converter translates requests and responses for one wire family.
type Converter interface {
	Family() registry.ProtocolFamily

	// ToWire renders a canonical request as the family's wire request.
	ToWire(req canon.Request) ([]byte, error)

	// FromWireRequest parses a wire request back into canonical shape.
	FromWireRequest(body []byte) (canon.Request, error)

	// FromWire parses a complete (non-streaming) wire response.
	FromWire(req canon.Request, body []byte) (canon.Response, error)

	// FromWireChunk parses one streaming event. A nil chunk means the
	// event carried nothing emittable (framing or lifecycle noise).
	FromWireChunk(data []byte) (*canon.Chunk, error)
}

// ForFamily returns the converter for a protocol family.
func ForFamily(f registry.ProtocolFamily) (Converter, error) {
	switch f {
	case registry.FamilyOpenAI:
		return &OpenAIConverter{}, nil
	case registry.FamilyNative:
		return &NativeConverter{}, nil
	case registry.FamilyAgentCLI:
		return &AgentCLIConverter{}, nil
	default:
		return nil, fmt.Errorf("no converter for protocol family %q", f)
	}
}

func wireErr(family registry.ProtocolFamily, payload []byte, err error) error {
	return &llmerr.WireProtocolError{Family: string(family), Payload: payload, Err: err}
}
