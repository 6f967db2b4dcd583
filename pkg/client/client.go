// Package client is the remote proxy for a Riddler server. Client
// implements types.Registry, so code written against a local registry works
// unchanged against a remote one. Failed operations return *types.Fault,
// which unwraps to the sentinel error for its code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// DefaultTimeout bounds each request unless WithTimeout or WithHTTPClient
// says otherwise.
const DefaultTimeout = 30 * time.Second

// ErrBadResponse reports a response the client could not interpret.
var ErrBadResponse = errors.New("bad response from server")

// Client talks to one Riddler server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userAgent  string
	timeout    time.Duration // applied to a copy of httpClient when >= 0
}

var _ types.Registry = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout. A client passed to
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = max(d, 0) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the server at baseURL, e.g.
// "http://127.0.0.1:8420".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("client: base URL %q must use http or https", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "riddler-client",
		timeout:    -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout >= 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Status fetches the server's status resource.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var status api.Status
	err := c.do(ctx, http.MethodGet, api.PathStatus, nil, &status)
	return status, err
}

// do sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become faults.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFault(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", ErrBadResponse, method, path, err)
	}
	return nil
}

// decodeFault turns an error response into a fault. Bodies without a fault,
// such as those from a proxy in front of the server, get a code derived
// from the status.
func decodeFault(status int, data []byte) error {
	var fr api.FaultResponse
	if err := json.Unmarshal(data, &fr); err == nil && fr.Fault.Code != "" {
		f := fr.Fault
		return &f
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &types.Fault{Code: codeForStatus(status), Message: msg}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return types.CodeNotFound
	case http.StatusConflict:
		return types.CodeAlreadyExists
	case http.StatusBadRequest:
		return types.CodeInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.CodeUnauthorized
	case http.StatusTooManyRequests:
		return types.CodeRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return types.CodeUnavailable
	}
	return types.CodeInternal
}
