package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/convert"
	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/logging"
)

// CredentialSource supplies valid credentials per provider and supports
// forced invalidation. *auth.Manager is the production implementation.
type CredentialSource interface {
	GetValidCredential(ctx context.Context, provider string) (auth.Credential, error)
	Invalidate(provider string)
}

// nativeAPIVersion pins the cloud-native protocol revision.
const nativeAPIVersion = "2023-06-01"

// httpBackend is the HTTP client shared by the OpenAI-compatible and
// cloud-native families; the two differ only in path and headers.
type httpBackend struct {
	provider  string
	endpoint  string
	path      string
	conv      convert.Converter
	creds     CredentialSource
	hc        *http.Client
	decorate  func(r *http.Request, token string)
	streaming bool
}

// NewOpenAI creates a client for an OpenAI-compatible server.
func NewOpenAI(provider, endpoint string, conv convert.Converter, creds CredentialSource, hc *http.Client) Client {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &httpBackend{
		provider: provider,
		endpoint: endpoint,
		path:     "/chat/completions",
		conv:     conv,
		creds:    creds,
		hc:       hc,
		decorate: func(r *http.Request, token string) {
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		},
	}
}

// NewNative creates a client for the cloud-native message protocol.
func NewNative(provider, endpoint string, conv convert.Converter, creds CredentialSource, hc *http.Client) Client {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &httpBackend{
		provider: provider,
		endpoint: endpoint,
		path:     "/v1/messages",
		conv:     conv,
		creds:    creds,
		hc:       hc,
		decorate: func(r *http.Request, token string) {
			r.Header.Set("Authorization", "Bearer "+token)
			r.Header.Set("anthropic-version", nativeAPIVersion)
		},
	}
}

func (b *httpBackend) Provider() string { return b.provider }

func (b *httpBackend) Send(ctx context.Context, req canon.Request) (canon.Response, error) {
	req.Stream = false
	resp, err := b.roundTrip(ctx, req)
	if err != nil {
		return canon.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return canon.Response{}, fmt.Errorf("reading %s response: %w", b.provider, err)
	}
	out, err := b.conv.FromWire(req, body)
	if err != nil {
		logging.Component("backend").Error().Err(err).
			Str("provider", b.provider).Bytes("payload", body).
			Msg("unparseable response")
		return canon.Response{}, err
	}
	return out, nil
}

func (b *httpBackend) Stream(ctx context.Context, req canon.Request) (Stream, error) {
	req.Stream = true
	resp, err := b.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	body := resp.Body
	return newChunkStream(body, req, b.parseSSELine, body.Close), nil
}

// parseSSELine strips server-sent-event framing and hands the payload to
// the converter. Non-data lines are framing noise.
func (b *httpBackend) parseSSELine(line []byte) (*canon.Chunk, error) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, nil
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	return b.conv.FromWireChunk(payload)
}

// roundTrip performs the HTTP exchange. Authentication failures trigger
// one forced credential refresh and a single retry before surfacing.
func (b *httpBackend) roundTrip(ctx context.Context, req canon.Request) (*http.Response, error) {
	wire, err := b.conv.ToWire(req)
	if err != nil {
		return nil, err
	}

	resp, err := b.attempt(ctx, wire)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		b.creds.Invalidate(b.provider)
		resp, err = b.attempt(ctx, wire)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return nil, &llmerr.AuthExpiredError{Provider: b.provider}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("backend %s returned status %d: %s", b.provider, resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp, nil
}

func (b *httpBackend) attempt(ctx context.Context, wire []byte) (*http.Response, error) {
	cred, err := b.creds.GetValidCredential(ctx, b.provider)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+b.path, bytes.NewReader(wire))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	b.decorate(httpReq, cred.AccessToken)

	resp, err := b.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llmerr.BackendUnavailableError{
			Backend: b.provider,
			Remedy:  fmt.Sprintf("check that %s is reachable", b.endpoint),
			Err:     err,
		}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
