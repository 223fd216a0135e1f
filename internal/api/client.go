// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Configuration constants for the Nexus API client.
const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// DefaultRefreshBuffer is how long before expiry a token is refreshed
	// proactively.
	DefaultRefreshBuffer = 5 * time.Minute

	// MaxResponseSize caps response bodies read into memory.
	MaxResponseSize = 1 << 20
)

// TokenSource supplies the current access token ("" when signed out).
type TokenSource interface {
	Token() string
}

// HeaderSource supplies per-request security headers.
type HeaderSource interface {
	SecurityHeaders() http.Header
}

// Refresher mints a new access token. Implementations must collapse
// concurrent calls into one request.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
	IsAccessTokenExpired(buffer time.Duration) bool
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Body   any

	// SkipAuthRefresh tells the client not to refresh proactively and not to
	// intercept a 401 on this call. The refresh request itself, and calls whose
	// 401 the caller handles, set it.
	SkipAuthRefresh bool
}

// Client talks to the Nexus REST API. It attaches the bearer token and
// security headers, refreshes expiring tokens before a call, and retries a
// call once after a 401 if a refresh succeeds.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger

	refreshBuffer time.Duration
	userAgent     string

	mu             sync.RWMutex
	tokens         TokenSource
	headers        HeaderSource
	refresher      Refresher
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCookieJar sets the jar used for credentialed requests.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.http.Jar = jar
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRefreshBuffer sets how early tokens are refreshed before expiry.
func WithRefreshBuffer(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshBuffer = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:       u,
		http:          &http.Client{Timeout: DefaultTimeout},
		logger:        log.Default(),
		refreshBuffer: DefaultRefreshBuffer,
		userAgent:     "nexus-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns a copy of the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// SetTokenSource sets where bearer tokens come from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// SetHeaderSource sets where security headers come from.
func (c *Client) SetHeaderSource(hs HeaderSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = hs
}

// SetRefresher enables proactive refresh and 401 interception.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// SetUnauthorizedHandler registers fn to run when a 401 cannot be recovered
// because the refresh token itself was rejected.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Get issues a GET and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Do performs req and decodes a successful JSON response into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	c.mu.RLock()
	tokens, refresher, onUnauthorized := c.tokens, c.refresher, c.onUnauthorized
	c.mu.RUnlock()

	intercept := !req.SkipAuthRefresh && refresher != nil

	if intercept && tokens != nil && tokens.Token() != "" && refresher.IsAccessTokenExpired(c.refreshBuffer) {
		if _, err := refresher.RefreshAccessToken(ctx); err != nil {
			c.logger.Printf("API_PROACTIVE_REFRESH_FAILED | path=%s error=%v", req.Path, err)
		}
	}

	err := c.send(ctx, req, out)
	if !intercept || !errors.Is(err, ErrAuthInvalid) {
		return err
	}

	if _, rerr := refresher.RefreshAccessToken(ctx); rerr != nil {
		c.logger.Printf("API_REFRESH_AFTER_401_FAILED | path=%s error=%v", req.Path, rerr)
		if !KindOf(rerr).IsTransient() && onUnauthorized != nil {
			onUnauthorized()
		}
		return err
	}
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", req.Path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.resolve(req.Path), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", req.Path, err)
	}
	c.decorate(httpReq, req.Body != nil)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindNetwork, Method: method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return &Error{Kind: KindNetwork, Method: method, Path: req.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(method, req.Path, resp, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Path, err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

func (c *Client) decorate(r *http.Request, hasBody bool) {
	c.mu.RLock()
	tokens, headers := c.tokens, c.headers
	c.mu.RUnlock()

	r.Header.Set("Accept", "application/json")
	if hasBody {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		r.Header.Set("User-Agent", c.userAgent)
	}
	if headers != nil {
		for k, vs := range headers.SecurityHeaders() {
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
	}
	if tokens != nil {
		if tok := tokens.Token(); tok != "" {
			r.Header.Set("Authorization", "Bearer "+tok)
		}
	}
}
