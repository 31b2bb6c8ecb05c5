package commands

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
)

func TestLoginViewStates(t *testing.T) {
	m := &loginModel{provider: "anthropic", spinner: spinner.New()}

	if v := m.View(); !strings.Contains(v, "anthropic") {
		t.Errorf("initial view missing provider: %q", v)
	}

	m.url = "https://example.com/device"
	m.code = "ABCD-EFGH"
	v := m.View()
	if !strings.Contains(v, m.url) || !strings.Contains(v, m.code) {
		t.Errorf("verification view missing url or code: %q", v)
	}

	m.done = true
	if v := m.View(); !strings.Contains(v, "Authorized") {
		t.Errorf("success view = %q", v)
	}

	m.err = errors.New("device flow expired")
	v = m.View()
	if !strings.Contains(v, "Authorization failed") || !strings.Contains(v, "device flow expired") {
		t.Errorf("failure view = %q", v)
	}
}
