// Package metabase is a small client for the Metabase REST API. A Client holds
// transport settings; Login exchanges credentials for a Session, and every
// resource call goes through that session.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mbmigrate/internal/mbql"
)

// SessionHeader carries the session token on authenticated requests.
const SessionHeader = "X-Metabase-Session"

// DefaultTimeout is the HTTP client timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// Client talks to one Metabase instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithRateLimit spaces requests to at most rps per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the instance at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges a username and password for a session. Any failure of the
// session endpoint is reported as ErrAuth.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{"username": username, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/api/session", nil, body, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	if err := CheckError(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode session: %w", ErrAuth, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrAuth)
	}
	c.logger.Info("authenticated", "user", username)
	return &Session{client: c, token: out.ID}, nil
}

// Session is an authenticated view of a Client. The token never changes after
// a successful Login.
type Session struct {
	client *Client
	token  string
}

// NewSession wraps an existing session token.
func NewSession(c *Client, token string) *Session {
	return &Session{client: c, token: token}
}

// Token returns the session token.
func (s *Session) Token() string { return s.token }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := encodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug("metabase request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return resp, nil
}

// encodeBody keeps key order for documents fetched from the API.
func encodeBody(body any) ([]byte, error) {
	if n, ok := body.(mbql.Node); ok {
		return mbql.Marshal(n)
	}
	return json.Marshal(body)
}

// Do performs an authenticated request. The caller closes the body.
func (s *Session) Do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	return s.client.do(ctx, method, path, query, body, s.token)
}

func (s *Session) getNode(ctx context.Context, path string, query url.Values) (mbql.Node, error) {
	resp, err := s.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := CheckError(resp); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	n, err := mbql.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return n, nil
}

func (s *Session) getMapping(ctx context.Context, path string) (*mbql.Mapping, error) {
	n, err := s.getNode(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	m, ok := n.(*mbql.Mapping)
	if !ok {
		return nil, fmt.Errorf("decode %s: expected object, got %s", path, n.Kind())
	}
	return m, nil
}

func (s *Session) getJSON(ctx context.Context, path string, out any) error {
	resp, err := s.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := CheckError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Session) put(ctx context.Context, path string, doc *mbql.Mapping) error {
	resp, err := s.Do(ctx, http.MethodPut, path, nil, doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := CheckError(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	// Only 200 counts as a successful update.
	if resp.StatusCode != http.StatusOK {
		return &APIError{HTTPStatus: resp.StatusCode, Method: http.MethodPut, Path: path}
	}
	return nil
}

// post creates a document and returns it as the server stored it.
func (s *Session) post(ctx context.Context, path string, doc *mbql.Mapping) (*mbql.Mapping, error) {
	resp, err := s.Do(ctx, http.MethodPost, path, nil, doc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := CheckError(resp); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m, err := mbql.DecodeMapping(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}
