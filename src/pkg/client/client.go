// Package client is the HTTP gateway to the land registry API. Every request
// of a front end goes through a Client: it attaches the stored bearer token,
// maps failures onto a small error taxonomy, and drops the token when the
// server answers 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 10 * time.Second

// Client issues requests against the registry API
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	store      TokenStore
	userAgent  string

	mu             sync.RWMutex
	onUnauthorized func()
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client requests are sent with. The client
// keeps its own copy, so hc is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout, overriding the timeout of a
// client given with WithHTTPClient
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTokenStore sets where the bearer token is persisted
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithUnauthorizedHandler sets the hook run after a 401 cleared the token
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		store:      NewMemoryTokenStore(),
		userAgent:  "landregistry-client",
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	switch {
	case c.timeout > 0:
		hc.Timeout = c.timeout
	case hc.Timeout == 0:
		hc.Timeout = DefaultTimeout
	}
	c.httpClient = &hc
	return c
}

// SetUnauthorizedHandler replaces the 401 hook. It exists for callers that
// build the client before the component that reacts to 401s.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// TokenStore returns the store holding the bearer token
func (c *Client) TokenStore() TokenStore {
	return c.store
}

// Do sends one request. body, when not nil, is encoded as JSON; a 2xx
// response is decoded into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Message: "malformed response from server",
			Err:     err,
		}
	}
	return nil
}

// Download fetches a file and returns its bytes and the server-suggested name
func (c *Client) Download(ctx context.Context, path string, query url.Values) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &APIError{Kind: KindServer, Status: resp.StatusCode, Message: "failed to read download", Err: err}
	}

	filename := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return data, filename, nil
}

// send performs the request and returns the response only when it is 2xx
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	creds, err := c.store.Load()
	if err != nil && !errors.Is(err, ErrNoToken) {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if creds != nil && creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindServer, Message: genericServerMessage, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := decodeError(resp)
	if apiErr.Kind == KindUnauthorized {
		c.unauthorized()
	}
	return nil, apiErr
}

// unauthorized drops the stored token and notifies the hook
func (c *Client) unauthorized() {
	_ = c.store.Clear()

	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
