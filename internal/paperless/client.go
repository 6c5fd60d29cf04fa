// Package paperless implements a client for the paperless-ngx HTTP
// API, plus the two pieces of coordination logic the migration leans
// on: a reference-entity cache and a publication waiter.
package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/receipt-flow/internal/common"

	"golang.org/x/time/rate"
)

// Client talks to a paperless-ngx server with static token auth. All
// non-2xx responses are returned as *common.HTTPError; callers treat
// them as fatal, so there is no retry machinery here.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit paces requests at the given number per second. Zero or
// negative disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectionURL returns the listing/creation URL for a named
// collection, e.g. "tags" or "correspondents".
func (c *Client) CollectionURL(collection string) string {
	return fmt.Sprintf("%s/api/%s/", c.baseURL, collection)
}

// normalizeLink rewrites server-provided links to https when the
// client itself talks https. Some deployments behind TLS-terminating
// proxies hand back plain-http pagination links.
func (c *Client) normalizeLink(link string) string {
	if strings.HasPrefix(c.baseURL, "https:") {
		return strings.Replace(link, "http:", "https:", 1)
	}
	return link
}

// do issues a request with auth attached and returns the response body
// for any 2xx status. Anything else becomes an *common.HTTPError
// carrying the body.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &common.HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

// getJSON issues a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// postJSON issues a POST with a JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", url, err)
		}
	}
	return nil
}
