package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/proxy"
)

// Fetcher turns a prefix into the suggestions the API returns for it.
// Implementations must be safe for concurrent use: the crawler calls Fetch
// from every goroutine of a batch.
type Fetcher interface {
	Fetch(ctx context.Context, prefix string) ([]string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, prefix string) ([]string, error)

// Fetch calls f(ctx, prefix).
func (f FetcherFunc) Fetch(ctx context.Context, prefix string) ([]string, error) {
	return f(ctx, prefix)
}

// Client fetches suggestions from an HTTP autocomplete endpoint.
type Client struct {
	// baseURL is the endpoint; the escaped prefix is appended to it.
	baseURL string

	// resultsPath is the gjson path of the suggestion array.
	resultsPath string

	// userAgent is the User-Agent header to use.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// timeout is the per-request deadline of the default HTTP client.
	timeout time.Duration

	// proxyAddress is an optional SOCKS5 proxy in "host:port" format.
	proxyAddress string

	// httpClient performs the requests.
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithResultsPath sets the gjson path of the suggestion array.
func WithResultsPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.resultsPath = path
		}
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithProxy routes requests through a SOCKS5 proxy.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithHTTPClient replaces the HTTP client. Timeout and proxy options are
// ignored when a client is supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client for the given endpoint.
//
// The baseURL is used as a prefix, not parsed into a query: the escaped
// prefix is appended verbatim, so it normally ends with "query=".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:     baseURL,
		resultsPath: "results",
		userAgent:   "prefixscan",
		maxBodySize: 1 * 1024 * 1024, // 1MB
		timeout:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := c.newHTTPClient()
		if err != nil {
			return nil, err
		}
		c.httpClient = hc
	}

	return c, nil
}

// newHTTPClient builds the default HTTP client, routed through the SOCKS5
// proxy when one is configured.
func (c *Client) newHTTPClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}

		// We use nil for auth because local SOCKS proxies typically don't require it
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}

		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Fetch performs one GET for the prefix and returns the suggestion list.
// A missing or null result field is an empty list; non-string elements
// are skipped.
func (c *Client) Fetch(ctx context.Context, prefix string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+EscapePrefix(prefix), nil)
	if err != nil {
		return nil, &TransportError{Prefix: prefix, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Prefix: prefix, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Drain so the connection can be reused for the retry
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodySize)) //nolint:errcheck // Best effort drain
		return nil, &RateLimitError{
			Prefix:     prefix,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &TransportError{Prefix: prefix, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Prefix:     prefix,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	words, err := ParseSuggestions(body, c.resultsPath)
	if err != nil {
		return nil, &TransportError{Prefix: prefix, StatusCode: resp.StatusCode, Err: err}
	}
	return words, nil
}

// ParseSuggestions extracts the string array at path from a JSON body.
func ParseSuggestions(body []byte, path string) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() || result.Type == gjson.Null {
		return []string{}, nil
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("response field %q is not an array", path)
	}

	items := result.Array()
	words := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == gjson.String {
			words = append(words, item.String())
		}
	}
	return words, nil
}

// EscapePrefix escapes a prefix for use as a query value, encoding spaces
// as %20 rather than '+'.
func EscapePrefix(prefix string) string {
	return strings.ReplaceAll(url.QueryEscape(prefix), "+", "%20")
}
