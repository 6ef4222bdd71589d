// Package hgbrasil fetches quotes from the HG Brasil finance API.
package hgbrasil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quoteexport/internal/provider"
)

// DefaultEndpoint is the stock price resource of the HG Brasil finance API.
const DefaultEndpoint = "https://api.hgbrasil.com/finance/stock_price"

// bodies larger than this are not quotes
const maxBody = 4 << 20

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// Client fetches one asset code per request.
type Client struct {
	endpoint   string
	key        string
	httpClient HTTPClient
	header     http.Header
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "hgbrasil").Logger()
	}
}

// New creates a client authenticating with key.
func New(key string, options ...Option) (*Client, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("hgbrasil: api key is required")
	}
	c := &Client{
		endpoint:   DefaultEndpoint,
		key:        key,
		httpClient: http.DefaultClient,
		header:     http.Header{"Accept": []string{"application/json"}},
		log:        zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "hgbrasil" }

// Fetch returns the API body for code as a record. Transport failures,
// non-2xx statuses and bodies that are not a JSON object wrap provider.ErrUpstream.
func (c *Client) Fetch(ctx context.Context, code string) (provider.Record, error) {
	query := url.Values{}
	query.Set("key", c.key)
	query.Set("symbol", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return provider.Record{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Record{}, fmt.Errorf("%w: %s: %w", provider.ErrUpstream, code, redact(err, c.key))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return provider.Record{}, fmt.Errorf("%w: %s: reading body: %w", provider.ErrUpstream, code, err)
	}

	c.log.Debug().
		Str("symbol", code).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream quote")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return provider.Record{}, fmt.Errorf("%w: %s: %w", provider.ErrUpstream, code, &StatusError{Code: res.StatusCode, Body: truncate(body, 256)})
	}

	rec, err := provider.ParseRecord(body)
	if err != nil {
		return provider.Record{}, fmt.Errorf("%w: %s: %w", provider.ErrUpstream, code, err)
	}
	return rec, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// *url.Error carries the full URL, api key included.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "***"), err: err}
}
