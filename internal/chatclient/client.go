// Package chatclient implements the Chat Stream Client (spec §4.6/§6.3):
// the two wire transports the Agentic Loop Controller streams model
// output from. Neither transport transforms the request payload or
// performs authentication token acquisition — those are the named
// out-of-scope collaborators (request transformer, SSO auth); this
// package only frames, sends, and decodes bytes on an already-built
// payload and an already-acquired credential.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AuthMode selects which header and URL family a request uses.
type AuthMode string

const (
	AuthSSO    AuthMode = "sso"
	AuthAPIKey AuthMode = "apikey"
)

// Default timing constants (spec §5, §6.3).
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultRetryDelay     = 3 * time.Second
	DefaultMaxRetries     = 3
)

// backendErrorMarkers are substrings the spec (§6.3) says signal a
// transient backend failure embedded *inside* an otherwise-200 SSE text
// payload, rather than surfaced as an HTTP error.
var backendErrorMarkers = []string{
	"failed to parse stringified json",
	"Unexpected token",
	"Internal Server Error",
}

// ContainsBackendError reports whether text carries one of the known
// transient-failure markers.
func ContainsBackendError(text string) bool {
	for _, m := range backendErrorMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Client is a single-tenant, single-auth-mode chat transport. No
// multi-tenant concurrency: one Client serves one logged-in identity at
// a time (spec §4.6).
type Client struct {
	httpClient *http.Client
	baseURL    string

	authMode    AuthMode
	bearerToken string
	apiKey      string

	RequestTimeout time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
}

// New builds a Client against baseURL with spec-default timeouts.
func New(baseURL string) *Client {
	return &Client{
		httpClient:     &http.Client{},
		baseURL:        baseURL,
		authMode:       AuthAPIKey,
		RequestTimeout: DefaultRequestTimeout,
		RetryDelay:     DefaultRetryDelay,
		MaxRetries:     DefaultMaxRetries,
	}
}

// BaseURL returns the server root Client was constructed with.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthMode switches which header and URL family subsequent requests
// use (spec §4.6: a client-level setter, sso vs apikey).
func (c *Client) SetAuthMode(mode AuthMode) { c.authMode = mode }

// SetBearerToken sets the SSO bearer credential.
func (c *Client) SetBearerToken(token string) { c.bearerToken = token }

// SetAPIKey sets the API-key credential.
func (c *Client) SetAPIKey(key string) { c.apiKey = key }

func (c *Client) applyAuthHeaders(req *http.Request) {
	switch c.authMode {
	case AuthSSO:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case AuthAPIKey:
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

// Event is one incremental piece of model output surfaced to the loop
// controller, normalized across both transports.
type Event struct {
	Text      string // incremental (long-form) or cumulative-so-far (short-form)
	Cumulative bool
	ThreadID  string // non-empty when the server assigned/echoed one this event
}

// postJSON issues a POST with a JSON body and the configured auth
// headers, honoring RequestTimeout via ctx. The returned cancel func
// bounds the request's deadline and must be deferred by the caller
// alongside resp.Body.Close(), once the body has been fully streamed.
func (c *Client) postJSON(ctx context.Context, url string, body interface{}, extraHeaders map[string]string) (*http.Response, context.CancelFunc, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	c.applyAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil, fmt.Errorf("request timed out after %s", c.RequestTimeout)
		}
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	return resp, cancel, nil
}

// newLineScanner builds a bufio.Scanner over an SSE body with a large
// buffer, UTF-8-safe because bufio.Scanner's default ScanLines split
// function operates on raw bytes and never splits a line mid multi-byte
// rune — only `\n` terminates a token, and any trailing partial line is
// flushed by Scanner on EOF.
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return scanner
}
