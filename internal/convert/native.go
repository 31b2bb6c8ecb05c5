package convert

import (
	"encoding/json"
	"fmt"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/registry"
)

// DefaultMaxTokens is substituted when a canonical request omits a
// max-output-tokens value, because the native family rejects requests
// without one.
const DefaultMaxTokens = 4000

// NativeConverter handles the cloud-native message protocol. System
// content lives in a dedicated top-level field, never in the message
// list, and every request must carry an explicit max_tokens.
type NativeConverter struct{}

type nativeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type nativeRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []nativeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type nativeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type nativeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type nativeResponse struct {
	Content    []nativeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      *nativeUsage    `json:"usage"`
}

// nativeEvent is one SSE event payload from the streaming endpoint.
type nativeEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *nativeUsage `json:"usage"`
}

func (c *NativeConverter) Family() registry.ProtocolFamily { return registry.FamilyNative }

// ToWire hoists any system turn into the top-level field and strips it
// from the message list.
func (c *NativeConverter) ToWire(req canon.Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	wire := nativeRequest{
		Model:       req.Model,
		System:      req.System(),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	for _, m := range req.NonSystem() {
		wire.Messages = append(wire.Messages, nativeMessage{Role: string(m.Role), Content: m.Content})
	}
	return json.Marshal(wire)
}

// FromWireRequest lowers the top-level system field back into a leading
// system turn.
func (c *NativeConverter) FromWireRequest(body []byte) (canon.Request, error) {
	var wire nativeRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return canon.Request{}, wireErr(c.Family(), body, err)
	}
	req := canon.Request{
		Model:       wire.Model,
		MaxTokens:   wire.MaxTokens,
		Temperature: wire.Temperature,
		Stream:      wire.Stream,
	}
	if wire.System != "" {
		req.Messages = append(req.Messages, canon.Message{Role: canon.RoleSystem, Content: wire.System})
	}
	for _, m := range wire.Messages {
		req.Messages = append(req.Messages, canon.Message{Role: canon.Role(m.Role), Content: m.Content})
	}
	return req, nil
}

func (c *NativeConverter) FromWire(req canon.Request, body []byte) (canon.Response, error) {
	var wire nativeResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return canon.Response{}, wireErr(c.Family(), body, err)
	}
	if len(wire.Content) == 0 {
		return canon.Response{}, wireErr(c.Family(), body, fmt.Errorf("response has no content blocks"))
	}
	var text string
	for _, block := range wire.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	resp := canon.Response{
		Message:    canon.Message{Role: canon.RoleAssistant, Content: text},
		StopReason: wire.StopReason,
	}
	if wire.Usage != nil {
		resp.Usage = canon.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		}
	} else {
		resp.Usage = canon.EstimateUsage(req, text)
	}
	return resp, nil
}

// FromWireChunk maps the event-typed stream onto canonical chunks:
// content_block_delta events carry text, message_stop is the terminal
// marker, everything else is lifecycle noise.
func (c *NativeConverter) FromWireChunk(data []byte) (*canon.Chunk, error) {
	var ev nativeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, wireErr(c.Family(), data, err)
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Text == "" {
			return nil, nil
		}
		return &canon.Chunk{Delta: ev.Delta.Text}, nil
	case "message_delta":
		// Carries running usage but no emittable content.
		return nil, nil
	case "message_stop":
		chunk := &canon.Chunk{Terminal: true}
		if ev.Usage != nil {
			chunk.Usage = &canon.Usage{
				InputTokens:  ev.Usage.InputTokens,
				OutputTokens: ev.Usage.OutputTokens,
			}
		}
		return chunk, nil
	default:
		return nil, nil
	}
}
