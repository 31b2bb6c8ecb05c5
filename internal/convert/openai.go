package convert

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/registry"
)

// OpenAIConverter handles the OpenAI-compatible JSON family. System turns
// stay inline in the message list; streaming completion is signalled by a
// non-empty finish_reason on the final delta.
type OpenAIConverter struct{}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	Delta        oaiMessage `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   *oaiUsage   `json:"usage"`
}

func (c *OpenAIConverter) Family() registry.ProtocolFamily { return registry.FamilyOpenAI }

func (c *OpenAIConverter) ToWire(req canon.Request) ([]byte, error) {
	wire := oaiRequest{
		Model:       req.Model,
		Messages:    make([]oaiMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, oaiMessage{Role: string(m.Role), Content: m.Content})
	}
	return json.Marshal(wire)
}

func (c *OpenAIConverter) FromWireRequest(body []byte) (canon.Request, error) {
	var wire oaiRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return canon.Request{}, wireErr(c.Family(), body, err)
	}
	req := canon.Request{
		Model:       wire.Model,
		Messages:    make([]canon.Message, 0, len(wire.Messages)),
		MaxTokens:   wire.MaxTokens,
		Temperature: wire.Temperature,
		Stream:      wire.Stream,
	}
	for _, m := range wire.Messages {
		req.Messages = append(req.Messages, canon.Message{Role: canon.Role(m.Role), Content: m.Content})
	}
	return req, nil
}

func (c *OpenAIConverter) FromWire(req canon.Request, body []byte) (canon.Response, error) {
	var wire oaiResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return canon.Response{}, wireErr(c.Family(), body, err)
	}
	if len(wire.Choices) == 0 {
		return canon.Response{}, wireErr(c.Family(), body, fmt.Errorf("response has no choices"))
	}
	choice := wire.Choices[0]
	resp := canon.Response{
		Message:    canon.Message{Role: canon.RoleAssistant, Content: choice.Message.Content},
		StopReason: choice.FinishReason,
	}
	if wire.Usage != nil {
		resp.Usage = canon.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		}
	} else {
		// Some OpenAI-compatible servers omit usage entirely. Estimate so
		// downstream cost display always has a value to show.
		resp.Usage = canon.EstimateUsage(req, choice.Message.Content)
	}
	return resp, nil
}

// FromWireChunk parses one SSE data payload. The "[DONE]" sentinel and
// empty keep-alive deltas yield nil; a delta carrying finish_reason
// becomes the canonical terminal chunk.
func (c *OpenAIConverter) FromWireChunk(data []byte) (*canon.Chunk, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if bytes.Equal(data, []byte("[DONE]")) {
		// End-of-stream framing; the terminal chunk was already emitted
		// by the delta that carried finish_reason.
		return nil, nil
	}
	var wire oaiResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, wireErr(c.Family(), data, err)
	}
	if len(wire.Choices) == 0 {
		return nil, nil
	}
	choice := wire.Choices[0]
	if choice.FinishReason != "" {
		chunk := &canon.Chunk{Delta: choice.Delta.Content, Terminal: true}
		if wire.Usage != nil {
			chunk.Usage = &canon.Usage{
				InputTokens:  wire.Usage.PromptTokens,
				OutputTokens: wire.Usage.CompletionTokens,
			}
		}
		return chunk, nil
	}
	if choice.Delta.Content == "" {
		return nil, nil
	}
	return &canon.Chunk{Delta: choice.Delta.Content}, nil
}
