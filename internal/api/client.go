// Package api is the request layer: thin HTTP wrappers that attach the bearer
// token and translate failures into typed errors. It never retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the current bearer token; "" means no session.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string {
	return f()
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token() string {
	return string(t)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// NewClient creates a client for the backend rooted at baseURL (no /api suffix).
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type request struct {
	method string
	path   string
	body   interface{}
	// token is the bearer credential; "" with public=false short-circuits.
	token  string
	public bool
}

func (c *Client) authed(method, path string, body interface{}) request {
	return request{method: method, path: path, body: body, token: c.tokens.Token()}
}

func (c *Client) public(method, path string, body interface{}) request {
	return request{method: method, path: path, body: body, public: true}
}

// do performs req and decodes a 2xx JSON body into out (which may be nil).
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	if !req.public && req.token == "" {
		return apierrors.Unauthenticated("")
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return apierrors.Validation(fmt.Errorf("failed to encode request body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return apierrors.Network(0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.public {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apierrors.Network(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return translateFailure(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.Network(resp.StatusCode, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierrors.Network(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// translateFailure maps a non-2xx response: a body message becomes a
// ServerError carrying it verbatim, anything else a generic NetworkError.
func translateFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body dto.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := strings.TrimSpace(body.Text()); msg != "" {
			return apierrors.Server(resp.StatusCode, msg)
		}
	}
	return apierrors.Network(resp.StatusCode, nil)
}
