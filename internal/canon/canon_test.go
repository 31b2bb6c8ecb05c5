package canon

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestEstimateUsage(t *testing.T) {
	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},     // 8 chars -> 2
			{Role: RoleUser, Content: "hello there ai"}, // 14 chars -> 4
		},
	}
	u := EstimateUsage(req, "okay then") // 9 chars -> 3

	if !u.Estimated {
		t.Error("EstimateUsage should set Estimated")
	}
	if u.InputTokens != 6 {
		t.Errorf("InputTokens = %d, want 6", u.InputTokens)
	}
	if u.OutputTokens != 3 {
		t.Errorf("OutputTokens = %d, want 3", u.OutputTokens)
	}
}

func TestSystemSplit(t *testing.T) {
	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "rules"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}

	if got := req.System(); got != "rules" {
		t.Errorf("System() = %q, want %q", got, "rules")
	}
	rest := req.NonSystem()
	if len(rest) != 2 {
		t.Fatalf("NonSystem() returned %d messages, want 2", len(rest))
	}
	for _, m := range rest {
		if m.Role == RoleSystem {
			t.Error("NonSystem() kept a system turn")
		}
	}

	empty := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	if got := empty.System(); got != "" {
		t.Errorf("System() = %q for request without system turn, want empty", got)
	}
}
