// Package courtapi talks to the supported court API dialects: it builds the
// vendor request for a query, authenticates, and normalizes the replies.
package courtapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/court-sync/internal/cache"
	"github.com/JustJay7/court-sync/internal/cnj"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultAuthTimeout = 15 * time.Second
	DefaultTokenTTL    = 55 * time.Minute

	// tokens are dropped this long before the server says they expire
	expirySafetyMargin = 5 * time.Minute
	maxErrorBody       = 4096
)

// Observer receives one call per HTTP round trip to a court.
type Observer interface {
	ObserveCourtRequest(apiType database.APIType, operation string, status int, elapsed time.Duration)
}

// Client executes queries against court APIs.
type Client struct {
	http        *http.Client
	tokens      cache.TokenCache
	timeout     time.Duration
	authTimeout time.Duration
	tokenTTL    time.Duration
	now         func() time.Time
	logger      *logger.Logger
	observer    Observer
	flights     singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts sets the per-request timeout for data and auth calls.
func WithTimeouts(request, auth time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.timeout = request
		}
		if auth > 0 {
			c.authTimeout = auth
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.tokenTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client caching tokens in tokens.
func NewClient(tokens cache.TokenCache, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{},
		tokens:      tokens,
		timeout:     DefaultTimeout,
		authTimeout: DefaultAuthTimeout,
		tokenTTL:    DefaultTokenTTL,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a decoded court reply.
type Response struct {
	// Raw is the body exactly as received.
	Raw []byte
	// Payload is the decoded body with any vendor envelope removed.
	Payload interface{}
}

// Execute runs queryType for processNumber against court. The number is
// normalized to the unified format when it has twenty digits.
func (c *Client) Execute(ctx context.Context, court *database.Court, processNumber string, queryType database.QueryType) (*Response, error) {
	const op = "execute query"

	d, ok := dialectFor(court.APIType)
	if !ok {
		return nil, configError(op, "unsupported API type %q", court.APIType)
	}
	if court.BaseURL == "" {
		return nil, configError(op, "court %q has no base URL", court.Name)
	}

	ep, ok := d.endpoint(queryType, cnj.Normalize(processNumber))
	if !ok {
		return nil, configError(op, "unsupported query type %q for API type %q", queryType, court.APIType)
	}

	token, err := c.Token(ctx, court, false)
	if err != nil {
		return nil, err
	}

	// GET endpoints carry no body
	var body interface{}
	if len(ep.Body) > 0 {
		body = ep.Body
	}

	raw, err := c.send(ctx, court, string(queryType), ep.Method, ep.Path, body, token, c.timeout)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			c.tokens.Delete(ctx, court.ID)
			apiErr.Kind = KindAuthentication
		}
		return nil, err
	}

	payload, err := decode(raw)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}

	return &Response{Raw: raw, Payload: d.unwrap(payload)}, nil
}

// Token returns a bearer token for court, reusing the cached one unless
// forceRefresh is set. Courts without credentials yield an empty token.
func (c *Client) Token(ctx context.Context, court *database.Court, forceRefresh bool) (string, error) {
	if !court.HasCredentials() {
		return "", nil
	}

	if !forceRefresh {
		if tok, ok := c.tokens.Get(ctx, court.ID); ok {
			return tok.Value, nil
		}
	}

	flight := strconv.FormatUint(uint64(court.ID), 10)
	if forceRefresh {
		flight += ":force"
	}
	v, err, _ := c.flights.Do(flight, func() (interface{}, error) {
		if !forceRefresh {
			if tok, ok := c.tokens.Get(ctx, court.ID); ok {
				return tok.Value, nil
			}
		}
		return c.authenticate(ctx, court)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	Token       string      `json:"token"`
	AccessAlt   string      `json:"accessToken"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (c *Client) authenticate(ctx context.Context, court *database.Court) (string, error) {
	const op = "authenticate"

	d, ok := dialectFor(court.APIType)
	if !ok {
		return "", configError(op, "unsupported API type %q", court.APIType)
	}

	body := map[string]interface{}{}
	if court.Username != "" && court.Password != "" {
		body["username"] = court.Username
		body["password"] = court.Password
	} else {
		body["api_key"] = court.APIKey
	}

	raw, err := c.send(ctx, court, "auth", http.MethodPost, d.authPath(), body, "", c.authTimeout)
	if err != nil {
		if apiErr, ok := err.(*Error); ok {
			apiErr.Kind = KindAuthentication
			apiErr.Op = op
		}
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Kind: KindAuthentication, Op: op, Err: fmt.Errorf("invalid token response: %w", err)}
	}
	token := firstNonEmpty(resp.AccessToken, resp.Token, resp.AccessAlt)
	if token == "" {
		return "", &Error{Kind: KindAuthentication, Op: op, Err: fmt.Errorf("token missing from response")}
	}

	ttl := c.tokenTTL
	if secs, err := resp.ExpiresIn.Int64(); err == nil && secs > 0 {
		if reported := time.Duration(secs)*time.Second - expirySafetyMargin; reported > 0 && reported < ttl {
			ttl = reported
		}
	}

	if err := c.tokens.Set(ctx, court.ID, cache.Token{Value: token, ExpiresAt: c.now().Add(ttl)}); err != nil {
		c.logger.Warn("Failed to cache court token", "court_id", court.ID, "error", err)
	}

	c.logger.Debug("Court token refreshed", "court_id", court.ID, "ttl", ttl.String())
	return token, nil
}

// ConnectionStatus is the outcome of TestConnection.
type ConnectionStatus struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Version string        `json:"version,omitempty"`
	Latency time.Duration `json:"latency"`
}

// TestConnection forces a token refresh and calls the dialect's status
// endpoint.
func (c *Client) TestConnection(ctx context.Context, court *database.Court) (*ConnectionStatus, error) {
	d, ok := dialectFor(court.APIType)
	if !ok {
		return nil, configError("test connection", "unsupported API type %q", court.APIType)
	}
	if court.BaseURL == "" {
		return nil, configError("test connection", "court %q has no base URL", court.Name)
	}

	start := c.now()
	token, err := c.Token(ctx, court, true)
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, court, "test", http.MethodGet, d.testPath(), nil, token, c.timeout)
	if err != nil {
		return nil, err
	}

	status := &ConnectionStatus{
		Success: true,
		Message: "Connection established",
		Latency: c.now().Sub(start),
	}
	if payload, err := decode(raw); err == nil {
		if m, ok := payload.(map[string]interface{}); ok {
			status.Version = stringField(m, versionKeys)
		}
	}
	return status, nil
}

var versionKeys = []string{"version", "versao", "apiVersion", "api_version"}

// send is the single request helper every court call goes through.
func (c *Client) send(ctx context.Context, court *database.Court, operation, method, path string, body interface{}, token string, timeout time.Duration) ([]byte, error) {
	op := fmt.Sprintf("%s %s", method, path)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, configError(op, "encode request: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	url := strings.TrimRight(court.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, configError(op, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if court.APIKey != "" {
		req.Header.Set("X-API-Key", court.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(started)
	if err != nil {
		c.observe(court.APIType, operation, 0, elapsed)
		return nil, &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observe(court.APIType, operation, resp.StatusCode, elapsed)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindTransient, Op: op, Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	return raw, nil
}

func (c *Client) observe(apiType database.APIType, operation string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveCourtRequest(apiType, operation, status, elapsed)
	}
}

func decode(raw []byte) (interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
