// Package jira provides a Jira Cloud REST client whose every call goes through
// a rate-limit-aware dispatcher, so all callers in the process share one
// serialized view of the API quota.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/robby/stevenson/internal/dispatch"
	"github.com/robby/stevenson/internal/domain"
	"golang.org/x/time/rate"
)

const apiPrefix = "/rest/api/3"

// Config holds connection settings.
type Config struct {
	BaseURL string // e.g. "https://acme.atlassian.net"
	Email   string // account used for basic auth
	Token   string // API token
}

// Client is a Jira REST API client.
type Client struct {
	baseURL    string
	email      string
	token      string
	httpClient *http.Client
	dispatcher *dispatch.Dispatcher[*http.Request, *http.Response]
	log        logr.Logger
}

type settings struct {
	httpClient  *http.Client
	policy      RateLimitPolicy
	maxAttempts int
	limiter     *rate.Limiter
	stats       dispatch.StatsStore
	logger      logr.Logger
}

// Option customizes client construction.
type Option func(*settings)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithFallbackDelay sets the wait used when a throttled response carries no
// usable retry hint.
func WithFallbackDelay(d time.Duration) Option {
	return func(s *settings) { s.policy.Fallback = d }
}

// WithClock lets tests control rate-limit arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.policy.Now = now }
}

// WithMaxAttempts caps how often a throttled request is re-queued.
func WithMaxAttempts(n int) Option {
	return func(s *settings) { s.maxAttempts = n }
}

// WithLimiter paces requests on the client side.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *settings) { s.limiter = l }
}

// WithStats records dispatcher outcomes.
func WithStats(store dispatch.StatsStore) Option {
	return func(s *settings) { s.stats = store }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New creates a client and its dispatcher. Call Close to stop the dispatcher.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, domain.MissingParameter("jira base URL")
	}
	if cfg.Email == "" {
		return nil, domain.MissingParameter("jira email")
	}
	if cfg.Token == "" {
		return nil, domain.MissingParameter("jira API token")
	}

	s := settings{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Client{
		baseURL:    baseURL,
		email:      cfg.Email,
		token:      cfg.Token,
		httpClient: s.httpClient,
		log:        s.logger.WithName("jira"),
	}
	c.dispatcher = dispatch.New(dispatch.Options[*http.Request, *http.Response]{
		Name:        "jira",
		Do:          c.send,
		Verify:      s.policy.Verify,
		Discard:     drain,
		MaxAttempts: s.maxAttempts,
		Limiter:     s.limiter,
		Stats:       s.stats,
		Logger:      c.log,
	})
	return c, nil
}

// BrowseURL returns the human URL of an issue key.
func (c *Client) BrowseURL(key string) string {
	return c.BrowseBase() + "/" + key
}

// BrowseBase is the prefix used for ticket links.
func (c *Client) BrowseBase() string {
	return c.baseURL + "/browse"
}

// Snapshot exposes the dispatcher state.
func (c *Client) Snapshot() dispatch.Snapshot {
	return c.dispatcher.Snapshot()
}

// Close stops the dispatcher, failing requests still queued.
func (c *Client) Close() {
	c.dispatcher.Close()
}

// send performs one attempt. The request is cloned so it can be replayed
// after a throttled response.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "rewind request body")
		}
		r.Body = body
	}
	resp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// makeRequest executes a JSON request through the dispatcher.
// A nil out discards the response body.
func (c *Client) makeRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.dispatcher.Do(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
