package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/pilot/internal/convert"
	"github.com/marcus/pilot/internal/llmerr"
)

// writeStubCLI creates a shell script standing in for the external agent
// CLI: answers --version, consumes stdin, and emits canned output.
func writeStubCLI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-stub")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then echo \"stub 1.0\"; exit 0; fi\n" +
		"cat > /dev/null\n" +
		body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

const stubOutput = `case "$*" in
  *stream-json*)
    echo '{"type":"system","subtype":"init"}'
    echo '{"type":"assistant","message":{"content":[{"type":"text","text":"hel"}]}}'
    echo '{"type":"assistant","message":{"content":[{"type":"text","text":"lo"}]}}'
    echo '{"type":"result","result":"hello","usage":{"input_tokens":3,"output_tokens":2}}'
    ;;
  *)
    echo '{"type":"result","subtype":"success","result":"hello","usage":{"input_tokens":3,"output_tokens":2}}'
    ;;
esac
`

func TestPreflightMissingBinary(t *testing.T) {
	c := NewCLI("claude-cli", "definitely-not-installed-anywhere", &convert.AgentCLIConverter{})
	err := c.Preflight(context.Background())

	var unavailable *llmerr.BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want *llmerr.BackendUnavailableError", err)
	}
	if unavailable.Backend != "claude-cli" {
		t.Errorf("error names backend %q", unavailable.Backend)
	}
	if unavailable.Remedy == "" {
		t.Error("unavailable error should carry remediation text")
	}
}

func TestPreflightCachesResult(t *testing.T) {
	calls := 0
	c := NewCLI("claude-cli", "whatever", &convert.AgentCLIConverter{})
	c.lookPath = func(string) (string, error) {
		calls++
		return "", os.ErrNotExist
	}

	_ = c.Preflight(context.Background())
	_ = c.Preflight(context.Background())
	if calls != 1 {
		t.Errorf("lookPath called %d times, want 1", calls)
	}
}

func TestCLISend(t *testing.T) {
	bin := writeStubCLI(t, stubOutput)
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	resp, err := c.Send(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.StopReason != "success" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestCLIStream(t *testing.T) {
	bin := writeStubCLI(t, stubOutput)
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	stream, err := c.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}

	var text string
	terminals := 0
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		text += chunk.Delta
		if chunk.Terminal {
			terminals++
			if chunk.Usage == nil || chunk.Usage.InputTokens != 3 {
				t.Errorf("terminal usage = %+v", chunk.Usage)
			}
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatal(err)
	}
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}

	if text != "hello" {
		t.Errorf("streamed text = %q", text)
	}
	if terminals != 1 {
		t.Errorf("terminal chunks = %d, want 1", terminals)
	}
}

// A tool that exits without a result event still yields exactly one
// terminal chunk.
func TestCLIStreamWithoutResultEvent(t *testing.T) {
	bin := writeStubCLI(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}'`+"\n")
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	stream, err := c.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	terminals := 0
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		if chunk.Terminal {
			terminals++
			if chunk.Usage == nil || !chunk.Usage.Estimated {
				t.Errorf("synthesized terminal usage = %+v", chunk.Usage)
			}
		}
	}
	if terminals != 1 {
		t.Errorf("terminal chunks = %d, want exactly 1", terminals)
	}
}

func TestCLISendToolFailure(t *testing.T) {
	bin := writeStubCLI(t, "echo 'boom' >&2\nexit 3\n")
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	_, err := c.Send(context.Background(), userRequest("hi"))
	if err == nil {
		t.Fatal("expected error for failing tool")
	}
}

// Close must work even while another goroutine is blocked in Next on a
// silent child: it signals the subprocess, which unblocks the read.
func TestCLICloseInterruptsBlockedRead(t *testing.T) {
	bin := writeStubCLI(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"x"}]}}'`+"\nsleep 60\n")
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	stream, err := c.Stream(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stream.Next(); !ok {
		t.Fatal("first chunk not delivered")
	}

	nextDone := make(chan struct{})
	go func() {
		stream.Next() // blocks: the child emits nothing more
		close(nextDone)
	}()
	time.Sleep(100 * time.Millisecond)

	closeDone := make(chan error, 1)
	go func() { closeDone <- stream.Close() }()

	select {
	case err := <-closeDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close blocked behind a pending Next; subprocess never signalled")
	}
	select {
	case <-nextDone:
	case <-time.After(10 * time.Second):
		t.Fatal("pending Next never returned after Close")
	}
	if err := stream.Err(); err != nil {
		t.Errorf("aborted stream reported error: %v", err)
	}
}

// Cancelling mid-stream shuts the subprocess down; Close must return
// promptly rather than waiting on a stuck child.
func TestCLIStreamCancellation(t *testing.T) {
	// The stub emits one event then sleeps far longer than the test
	// allows; shutdown must not wait it out.
	bin := writeStubCLI(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"x"}]}}'`+"\nsleep 60\n")
	c := NewCLI("claude-cli", bin, &convert.AgentCLIConverter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := c.Stream(ctx, userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stream.Next(); !ok {
		t.Fatal("first chunk not delivered")
	}

	done := make(chan error, 1)
	go func() { done <- stream.Close() }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close() did not return; subprocess shutdown hung")
	}
}
