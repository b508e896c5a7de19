// ABOUTME: Shared HTTP client whose requests go through the backoff controller
// ABOUTME: Retries transport errors and 408/429/5xx; proxies resolved via x/net/http/httpproxy

package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"

	cslog "github.com/mauromedda/chatstream/internal/log"
)

const maxErrorBody = 4096

// StatusError is a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPolicy sets the retry policy used by Do.
func WithPolicy(p Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Client wraps an http.Client with retry logic and default headers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	policy     Policy
}

// NewClient creates a new HTTP client with the given base URL and default headers.
// Proxy settings come from HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func NewClient(baseURL string, headers map[string]string, opts ...ClientOption) *Client {
	if headers == nil {
		headers = make(map[string]string)
	}
	c := &Client{
		httpClient: &http.Client{
			// No overall Timeout: it would cut off long streamed bodies.
			Transport: &http.Transport{
				Proxy: proxyFromEnvironment(),
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		baseURL: baseURL,
		headers: headers,
		policy:  DefaultPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func proxyFromEnvironment() func(*http.Request) (*url.URL, error) {
	proxy := httpproxy.FromEnvironment().ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
}

// BaseURL returns the base URL configured on this client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Policy returns the retry policy used by Do.
func (c *Client) Policy() Policy {
	return c.policy
}

// CloseIdleConnections drops pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Do sends an HTTP request through Execute. Transport errors and 408, 429
// and 5xx responses are retried; any other response is returned as is.
// The body is buffered (or rewound, if it is an io.Seeker) for each attempt.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.DoWithObserver(ctx, method, path, body, nil)
}

// DoWithObserver is Do with a per-call retry observer that runs after the
// policy's own observer.
func (c *Client) DoWithObserver(ctx context.Context, method, path string, body io.Reader, observer RetryObserver) (*http.Response, error) {
	seeker, err := seekableBody(body)
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	policy := c.policy
	if observer != nil {
		base := policy.Observer
		policy.Observer = func(attempt, maxAttempts int, delay time.Duration, lastErr error) {
			if base != nil {
				base(attempt, maxAttempts, delay, lastErr)
			}
			observer(attempt, maxAttempts, delay, lastErr)
		}
	}

	attempt := 0
	return ExecuteWithRelease(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		if err := rewindBody(seeker, attempt); err != nil {
			return nil, Permanent(fmt.Errorf("failed to rewind request body: %w", err))
		}
		attempt++

		var reqBody io.Reader
		if seeker != nil {
			reqBody = seeker
		}
		req, err := c.buildRequest(ctx, method, path, reqBody)
		if err != nil {
			return nil, Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// POST is not retried by the transport on stale pooled connections.
			c.httpClient.CloseIdleConnections()
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		if !isRetryable(resp.StatusCode) {
			return resp, nil
		}

		// Close the body of the retryable response before retrying.
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cslog.Debug("http: %s %s → %d (retryable)", method, path, resp.StatusCode)
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}, closeResponse)
}

// closeResponse releases a response whose attempt timed out after it arrived.
func closeResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

// buildRequest creates an http.Request with default headers applied.
func (c *Client) buildRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint := ResolveEndpoint(c.baseURL, path)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s %s: %w", method, path, err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// seekableBody returns body as an io.ReadSeeker, buffering it when needed.
func seekableBody(body io.Reader) (io.ReadSeeker, error) {
	if body == nil {
		return nil, nil
	}
	if rs, ok := body.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// rewindBody resets a seekable body to the beginning for retry attempts.
// It is a no-op on the first attempt (attempt == 0) or if seeker is nil.
func rewindBody(seeker io.Seeker, attempt int) error {
	if seeker == nil || attempt == 0 {
		return nil
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err
}

// isRetryable returns true for status codes that warrant a retry.
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= 500
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
