// ABOUTME: Tests for the shared HTTP client: basic requests, retries on 408/429/5xx, body rewind
// ABOUTME: Uses httptest.NewServer for deterministic, isolated test scenarios

package httputil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Jitter: noJitter}
}

func TestClientDoBasicRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if r.Header.Get("X-Custom") != "test-value" {
			t.Errorf("got header %q, want %q", r.Header.Get("X-Custom"), "test-value")
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, map[string]string{"X-Custom": "test-value"})

	resp, err := client.Do(context.Background(), http.MethodPost, "/test", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "hello" {
		t.Errorf("got body %q, want %q", string(got), "hello")
	}
}

func TestClientDoRetryableStatuses(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if attempts.Add(1) <= 2 {
					w.WriteHeader(status)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("success"))
			}))
			t.Cleanup(srv.Close)

			client := NewClient(srv.URL, nil, WithPolicy(fastPolicy(3)))
			resp, err := client.Do(context.Background(), http.MethodGet, "/retry", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if got := attempts.Load(); got != 3 {
				t.Errorf("got %d attempts, want 3", got)
			}
		})
	}
}

func TestClientDoNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, nil, WithPolicy(fastPolicy(3)))
	resp, err := client.Do(context.Background(), http.MethodGet, "/auth", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized || attempts.Load() != 1 {
		t.Errorf("status %d after %d attempts, want 401 after 1", resp.StatusCode, attempts.Load())
	}
}

func TestClientDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	t.Cleanup(srv.Close)

	var observed atomic.Int32
	client := NewClient(srv.URL, nil, WithPolicy(fastPolicy(3)))
	_, err := client.DoWithObserver(context.Background(), http.MethodGet, "/always-429", nil,
		func(int, int, time.Duration, error) { observed.Add(1) })

	var retryErr *RetryError
	if !errors.As(err, &retryErr) || retryErr.Attempts != 3 {
		t.Fatalf("err = %v, want *RetryError after 3 attempts", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests || statusErr.Body != "slow down" {
		t.Errorf("status error = %+v", statusErr)
	}
	if got := observed.Load(); got != 2 {
		t.Errorf("observer called %d times, want 2", got)
	}
}

func TestClientDoRetryWithBody(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	wantBody := `{"prompt":"hello"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)

		body, _ := io.ReadAll(r.Body)
		if string(body) != wantBody {
			t.Errorf("attempt %d: got body %q, want %q", n, string(body), wantBody)
		}

		if n <= 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, nil, WithPolicy(fastPolicy(3)))

	for name, body := range map[string]io.Reader{
		"seeker":     bytes.NewReader([]byte(wantBody)),
		"non-seeker": io.MultiReader(strings.NewReader(wantBody)),
	} {
		attempts.Store(0)
		resp, err := client.Do(context.Background(), http.MethodPost, "/retry-body", body)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		resp.Body.Close()

		if got := attempts.Load(); got != 2 {
			t.Errorf("%s: got %d attempts, want 2", name, got)
		}
	}
}

func TestNewClientHasTransportTimeouts(t *testing.T) {
	t.Parallel()

	client := NewClient("http://example.com", nil)

	if client.httpClient.Timeout != 0 {
		t.Error("httpClient.Timeout is set; it would cut off streamed bodies")
	}

	transport, ok := client.httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatal("httpClient.Transport is not *http.Transport")
	}

	if transport.TLSHandshakeTimeout == 0 {
		t.Error("TLSHandshakeTimeout is zero; want a non-zero timeout")
	}
	if transport.ResponseHeaderTimeout == 0 {
		t.Error("ResponseHeaderTimeout is zero; want a non-zero timeout")
	}
	if transport.Proxy == nil {
		t.Error("Proxy func is nil")
	}
}

func TestClientDoRespectsContext(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	client := NewClient(srv.URL, nil)
	_, err := client.Do(ctx, http.MethodGet, "/cancelled", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("server saw %d requests, want 0", attempts.Load())
	}
}

type closeCounter struct {
	io.Reader
	closed atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closed.Add(1)
	return nil
}

func TestCloseResponseReleasesBody(t *testing.T) {
	t.Parallel()

	body := &closeCounter{Reader: strings.NewReader("late")}
	closeResponse(&http.Response{Body: body})
	if got := body.closed.Load(); got != 1 {
		t.Errorf("body closed %d times, want 1", got)
	}

	closeResponse(nil)
	closeResponse(&http.Response{})
}
