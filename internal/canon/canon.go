// Package canon defines the protocol-neutral request/response shapes that
// every wire family translates into and out of. Nothing in this package is
// ever sent over the wire directly.
package canon

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged content turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the canonical generation request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"` // 0 = backend default
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// System returns the system turn content, or "" if the request has none.
func (r Request) System() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// NonSystem returns the messages with any system turns removed.
func (r Request) NonSystem() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Usage holds token accounting for one exchange. Estimated is set when the
// backend reported no usage and the counts were derived from text length.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// Response is the canonical non-streaming result.
type Response struct {
	Message    Message `json:"message"`
	StopReason string  `json:"stop_reason,omitempty"`
	Usage      Usage   `json:"usage"`
}

// Chunk is one element of a canonical stream. Exactly one chunk per stream
// carries Terminal=true, after all content chunks, regardless of how the
// wire family signals completion.
type Chunk struct {
	Delta    string `json:"delta,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
	Usage    *Usage `json:"usage,omitempty"` // set on the terminal chunk when known
}

// CharsPerToken is the character-based token approximation used when a
// backend reports no usage metadata. Tunable, not a contract.
const CharsPerToken = 4

// EstimateTokens approximates a token count from text length.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// EstimateUsage builds an estimated Usage from request and response text.
func EstimateUsage(req Request, outputText string) Usage {
	var in int
	for _, m := range req.Messages {
		in += EstimateTokens(m.Content)
	}
	return Usage{
		InputTokens:  in,
		OutputTokens: EstimateTokens(outputText),
		Estimated:    true,
	}
}
