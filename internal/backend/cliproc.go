package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tidwall/sjson"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/convert"
	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/logging"
)

// shutdownGrace is how long a signalled subprocess gets to exit before
// it is forcibly killed.
const shutdownGrace = 5 * time.Second

// baseCLIArgs puts the tool in non-interactive mode reading a JSON
// request from stdin.
var baseCLIArgs = []string{"-p", "--input-format", "json"}

// streamCLIArgs selects streaming output. The tool rejects stream-json
// without --verbose, so the two flags are welded together here and never
// passed independently.
var streamCLIArgs = []string{"--output-format", "stream-json", "--verbose"}

// sendCLIArgs selects single-document output.
var sendCLIArgs = []string{"--output-format", "json"}

// CLIClient runs requests by spawning the external agent CLI and parsing
// its NDJSON event stream. Every exit path (success, error, caller
// cancellation) goes through the same two-stage shutdown: SIGTERM, a
// bounded grace period, then SIGKILL.
type CLIClient struct {
	provider string
	binary   string
	conv     convert.Converter

	preflightOnce sync.Once
	preflightErr  error

	lookPath func(string) (string, error) // test seam
}

// NewCLI creates a subprocess client for the given external tool.
func NewCLI(provider, binary string, conv convert.Converter) *CLIClient {
	return &CLIClient{
		provider: provider,
		binary:   binary,
		conv:     conv,
		lookPath: exec.LookPath,
	}
}

func (c *CLIClient) Provider() string { return c.provider }

// Preflight verifies the external tool is installed and reports itself
// ready. Distinct from auth/network failures on purpose.
func (c *CLIClient) Preflight(ctx context.Context) error {
	c.preflightOnce.Do(func() {
		if _, err := c.lookPath(c.binary); err != nil {
			c.preflightErr = &llmerr.BackendUnavailableError{
				Backend: c.provider,
				Remedy:  fmt.Sprintf("install the %s CLI and ensure it is on PATH", c.binary),
				Err:     err,
			}
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := exec.CommandContext(ctx, c.binary, "--version").Run(); err != nil {
			c.preflightErr = &llmerr.BackendUnavailableError{
				Backend: c.provider,
				Remedy:  fmt.Sprintf("%s --version failed; reinstall or update the tool", c.binary),
				Err:     err,
			}
		}
	})
	return c.preflightErr
}

func (c *CLIClient) Send(ctx context.Context, req canon.Request) (canon.Response, error) {
	if err := c.Preflight(ctx); err != nil {
		return canon.Response{}, err
	}

	wire, err := c.conv.ToWire(req)
	if err != nil {
		return canon.Response{}, err
	}
	// The output mode is chosen by argv; the stdin doc must agree with it
	// no matter what the caller set.
	if wire, err = sjson.DeleteBytes(wire, "stream"); err != nil {
		return canon.Response{}, err
	}

	cmd := c.command(ctx, wire, sendCLIArgs)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return canon.Response{}, ctx.Err()
		}
		return canon.Response{}, fmt.Errorf("backend %s: %s exited abnormally: %w (stderr: %s)",
			c.provider, c.binary, err, bytes.TrimSpace(stderr.Bytes()))
	}

	resp, err := c.conv.FromWire(req, stdout.Bytes())
	if err != nil {
		logging.Component("backend").Error().Err(err).
			Str("provider", c.provider).Bytes("payload", stdout.Bytes()).
			Msg("unparseable CLI output")
		return canon.Response{}, err
	}
	return resp, nil
}

func (c *CLIClient) Stream(ctx context.Context, req canon.Request) (Stream, error) {
	if err := c.Preflight(ctx); err != nil {
		return nil, err
	}

	wire, err := c.conv.ToWire(req)
	if err != nil {
		return nil, err
	}
	if wire, err = sjson.SetBytes(wire, "stream", true); err != nil {
		return nil, err
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := c.command(procCtx, wire, streamCLIArgs)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &llmerr.BackendUnavailableError{
			Backend: c.provider,
			Remedy:  fmt.Sprintf("could not start %s", c.binary),
			Err:     err,
		}
	}

	cleanup := func() error {
		// Cancelling the context sends SIGTERM via cmd.Cancel; WaitDelay
		// escalates to SIGKILL if the process lingers.
		cancel()
		err := cmd.Wait()
		if err != nil && procCtx.Err() == nil && ctx.Err() == nil {
			return fmt.Errorf("backend %s: %s exited abnormally: %w (stderr: %s)",
				c.provider, c.binary, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil
	}
	return newChunkStream(stdout, req, c.conv.FromWireChunk, cleanup), nil
}

// command builds the exec.Cmd with the two-stage shutdown wired in.
func (c *CLIClient) command(ctx context.Context, stdin []byte, modeArgs []string) *exec.Cmd {
	argv := make([]string, 0, len(baseCLIArgs)+len(modeArgs))
	argv = append(argv, baseCLIArgs...)
	argv = append(argv, modeArgs...)

	cmd := exec.CommandContext(ctx, c.binary, argv...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = shutdownGrace
	return cmd
}
