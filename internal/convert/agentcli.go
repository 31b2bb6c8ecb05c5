package convert

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/registry"
)

// AgentCLIConverter handles the line-delimited streaming JSON dialect
// emitted by the external agent CLI. The wire request is the JSON
// document written to the tool's stdin; responses arrive as NDJSON
// events on stdout.
//
// Event routing: "assistant" events carry partial content, a "result"
// event is the terminal chunk with usage, and everything else (init,
// tool activity) is lifecycle noise. Some tool versions end the stream
// with no result event at all; the backend client synthesizes the
// terminal chunk in that case.
type AgentCLIConverter struct{}

type agentWireRequest struct {
	System      string          `json:"system,omitempty"`
	Messages    []canon.Message `json:"messages"`
	Model       string          `json:"model,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

func (c *AgentCLIConverter) Family() registry.ProtocolFamily { return registry.FamilyAgentCLI }

func (c *AgentCLIConverter) ToWire(req canon.Request) ([]byte, error) {
	wire := agentWireRequest{
		System:      req.System(),
		Messages:    req.NonSystem(),
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	return json.Marshal(wire)
}

func (c *AgentCLIConverter) FromWireRequest(body []byte) (canon.Request, error) {
	var wire agentWireRequest
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
	req.Messages = append(req.Messages, wire.Messages...)
	return req, nil
}

// FromWire parses the single JSON document the tool prints in
// non-streaming output mode.
func (c *AgentCLIConverter) FromWire(req canon.Request, body []byte) (canon.Response, error) {
	body = bytes.TrimSpace(body)
	if !gjson.ValidBytes(body) {
		return canon.Response{}, wireErr(c.Family(), body, errNotJSON)
	}
	doc := gjson.ParseBytes(body)
	text := doc.Get("result").String()
	if text == "" {
		text = doc.Get("content").String()
	}
	resp := canon.Response{
		Message:    canon.Message{Role: canon.RoleAssistant, Content: text},
		StopReason: doc.Get("subtype").String(),
	}
	resp.Usage = agentUsage(doc, req, text)
	return resp, nil
}

// FromWireChunk routes one NDJSON event.
func (c *AgentCLIConverter) FromWireChunk(data []byte) (*canon.Chunk, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, wireErr(c.Family(), data, errNotJSON)
	}
	ev := gjson.ParseBytes(data)
	switch ev.Get("type").String() {
	case "assistant":
		var text string
		ev.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				text += block.Get("text").String()
			}
			return true
		})
		if text == "" {
			return nil, nil
		}
		return &canon.Chunk{Delta: text}, nil
	case "result":
		chunk := &canon.Chunk{Terminal: true}
		if usage := ev.Get("usage"); usage.Exists() {
			chunk.Usage = &canon.Usage{
				InputTokens:  int(usage.Get("input_tokens").Int()),
				OutputTokens: int(usage.Get("output_tokens").Int()),
			}
		}
		return chunk, nil
	default:
		// init, tool use, permission prompts: nothing emittable.
		return nil, nil
	}
}

// agentUsage reads usage from a result document, falling back to a
// character-based estimate when the tool reported none.
func agentUsage(doc gjson.Result, req canon.Request, text string) canon.Usage {
	if usage := doc.Get("usage"); usage.Exists() {
		return canon.Usage{
			InputTokens:  int(usage.Get("input_tokens").Int()),
			OutputTokens: int(usage.Get("output_tokens").Int()),
		}
	}
	return canon.EstimateUsage(req, text)
}

var errNotJSON = jsonError("payload is not valid JSON")

type jsonError string

func (e jsonError) Error() string { return string(e) }
