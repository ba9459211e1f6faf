// Package gateway is the single outbound HTTP entry point to the HR backend.
//
// Every request carries the current session credential as a bearer token.
// When a request fails with 401 the gateway asks its refresher for a new
// credential and replays the request exactly once. Concurrent 401s share a
// single refresh.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/hrclient/internal/uuid"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "hrclient"
	maxBodyBytes     = 8 << 20
	refreshKey       = "refresh"
)

// RefreshFunc renews the session credential. It returns nil once a new
// credential has been installed with SetCredential.
type RefreshFunc func(ctx context.Context) error

// Client is safe for concurrent use by every caller in the process.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
	logger    *slog.Logger

	mu         sync.RWMutex
	credential string
	generation uint64
	refresh    RefreshFunc

	flight singleflight.Group

	requests  atomic.Int64
	refreshes atomic.Int64
	retries   atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every call, including the shared refresh.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the structured logger. Tokens are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxBodySize bounds the size of a response body. Larger bodies fail
// with ErrMalformedResponse.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a gateway for the backend rooted at baseURL
// (e.g. http://localhost:5007/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:   u,
		http:      &http.Client{},
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		maxBody:   maxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.logger = c.logger.With("component", "gateway")
	return c, nil
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// SetCredential installs the access token attached to subsequent requests.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	c.credential = token
	c.generation++
	c.mu.Unlock()
}

// ClearCredential removes the default credential; requests go out anonymous.
func (c *Client) ClearCredential() {
	c.SetCredential("")
}

// Credential returns the access token currently attached to requests.
func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// SetRefresher registers the function invoked on 401. Without one, 401s
// are returned to the caller unchanged.
func (c *Client) SetRefresher(fn RefreshFunc) {
	c.mu.Lock()
	c.refresh = fn
	c.mu.Unlock()
}

func (c *Client) current() (string, uint64, RefreshFunc) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential, c.generation, c.refresh
}

// Get issues a GET for path with the optional query.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST for path with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Do sends req. A 401 on a request that has not been replayed triggers one
// refresh-and-retry cycle; every other failure is returned unchanged.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, sentGen, err := c.send(ctx, req)
	if err == nil || !errors.Is(err, ErrUnauthorized) || !req.recoverable() {
		return resp, err
	}

	retry := req.replay()
	if !c.renew(ctx, sentGen) {
		return nil, err
	}
	c.retries.Add(1)
	c.logger.DebugContext(ctx, "replaying request after refresh", "method", req.Method, "path", req.Path)
	resp, _, err = c.send(ctx, retry)
	return resp, err
}

// renew makes sure the credential that produced a 401 has been replaced.
// If a sibling request already refreshed since sentGen, it reports success
// without refreshing again; otherwise it joins or starts the shared refresh.
func (c *Client) renew(ctx context.Context, sentGen uint64) bool {
	cred, gen, refresh := c.current()
	if gen != sentGen {
		return cred != ""
	}
	if refresh == nil {
		return false
	}

	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		// A refresh that finished between the check above and this call
		// has already replaced the credential.
		if _, g, _ := c.current(); g != sentGen {
			return nil, nil
		}
		c.refreshes.Add(1)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, refresh(rctx)
	})
	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		if res.Err != nil {
			c.logger.InfoContext(ctx, "credential refresh failed", "error", res.Err)
			return false
		}
		return c.Credential() != ""
	}
}

// send performs a single HTTP exchange and reports the credential
// generation the request was sent with.
func (c *Client) send(ctx context.Context, req *Request) (*Response, uint64, error) {
	cred, gen, _ := c.current()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(ctx, req, cred)
	if err != nil {
		return nil, gen, err
	}

	c.requests.Add(1)
	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, gen, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, gen, &TransportError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > c.maxBody {
		return nil, gen, fmt.Errorf("%s %s: %w: body exceeds %d bytes", req.Method, req.Path, ErrMalformedResponse, c.maxBody)
	}

	c.logger.DebugContext(ctx, "request completed",
		"method", req.Method,
		"path", req.Path,
		"status", httpResp.StatusCode,
		"retried", req.retried,
		"request_id", httpReq.Header.Get("X-Request-ID"),
		"duration", time.Since(start),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, gen, newStatusError(req.Method, req.Path, httpResp.StatusCode, body)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, gen, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request, cred string) (*http.Request, error) {
	path, rawQuery, _ := strings.Cut(req.Path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing query in path %q: %w", req.Path, err)
	}
	for k, vs := range req.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.New())
	}

	switch {
	case req.Bearer != "":
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	case cred != "":
		httpReq.Header.Set("Authorization", "Bearer "+cred)
	}
	return httpReq, nil
}

// Stats is a snapshot of the gateway counters.
type Stats struct {
	Requests  int64
	Refreshes int64
	Retries   int64
}

// Stats returns the number of HTTP exchanges, shared refreshes and replays
// performed so far.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		Refreshes: c.refreshes.Load(),
		Retries:   c.retries.Load(),
	}
}
