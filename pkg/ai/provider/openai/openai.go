// ABOUTME: OpenAI Chat Completions streaming provider (also supports Ollama, vLLM)
// ABOUTME: Sends the request through the retrying client, then hands the body to the read loop

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	cslog "github.com/mauromedda/chatstream/internal/log"
	"github.com/mauromedda/chatstream/pkg/ai"
	"github.com/mauromedda/chatstream/pkg/ai/internal/httputil"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	chatCompletionPath = "/v1/chat/completions"
	maxErrorBody       = 4096
)

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the registry name (default "openai").
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithRetry sets the pre-stream retry policy. Zero values keep the defaults.
func WithRetry(maxAttempts int, baseDelay, attemptTimeout time.Duration) Option {
	return func(p *Provider) {
		p.policy.MaxAttempts = maxAttempts
		p.policy.BaseDelay = baseDelay
		p.policy.AttemptTimeout = attemptTimeout
	}
}

// WithRetryJitter bounds the random delay added to each retry wait;
// a negative value disables jitter.
func WithRetryJitter(max time.Duration) Option {
	return func(p *Provider) { p.policy.MaxJitter = max }
}

// WithHeaders adds headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(p *Provider) {
		for k, v := range headers {
			p.headers[k] = v
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithStreamOptions sets the options applied to every consumed stream.
func WithStreamOptions(opts ...ConsumeOption) Option {
	return func(p *Provider) { p.consumeOpts = append(p.consumeOpts, opts...) }
}

// Provider implements the OpenAI Chat Completions API.
type Provider struct {
	name        string
	baseURL     string
	compat      CompatMode
	headers     map[string]string
	policy      httputil.Policy
	httpClient  *http.Client
	consumeOpts []ConsumeOption
	client      *httputil.Client
}

// New creates an OpenAI provider. An empty apiKey falls back to
// OPENAI_API_KEY; an empty baseURL uses the public endpoint.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = httputil.NormalizeBaseURL(baseURL)

	p := &Provider{
		name:    "openai",
		baseURL: baseURL,
		compat:  DetectCompat(baseURL),
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "text/event-stream",
		},
		policy: httputil.DefaultPolicy(),
	}
	if apiKey != "" {
		p.headers["Authorization"] = "Bearer " + apiKey
	}
	for _, o := range opts {
		o(p)
	}

	clientOpts := []httputil.ClientOption{httputil.WithPolicy(p.policy)}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, httputil.WithHTTPClient(p.httpClient))
	}
	p.client = httputil.NewClient(baseURL, p.headers, clientOpts...)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Init validates the configured endpoint.
func (p *Provider) Init(_ context.Context) error {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q: unsupported scheme %q", p.baseURL, u.Scheme)
	}
	if _, ok := p.headers["Authorization"]; !ok && p.compat == CompatStandard && strings.Contains(u.Host, "openai.com") {
		return errors.New("no API key configured for api.openai.com")
	}
	return nil
}

// Close releases pooled connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Stream initiates a streaming chat completion. Retries happen only before
// the first byte of the body is read; each one is reported as EventRetry.
func (p *Provider) Stream(ctx context.Context, req *ai.Request) *ai.EventStream {
	cfg := defaultConsumeConfig()
	for _, o := range p.consumeOpts {
		o(&cfg)
	}
	stream := ai.NewEventStream(cfg.bufferSize)
	go p.doStream(ctx, req, cfg, stream)
	return stream
}

func (p *Provider) doStream(ctx context.Context, req *ai.Request, cfg consumeConfig, stream *ai.EventStream) {
	bodyBytes, err := json.Marshal(buildRequestBody(req, p.compat))
	if err != nil {
		stream.FinishWithError(ctx, nil, fmt.Errorf("marshaling request: %w", err))
		return
	}

	onRetry := func(attempt, maxAttempts int, delay time.Duration, lastErr error) {
		cslog.Info("http: attempt %d/%d failed: %v; retrying in %s", attempt, maxAttempts, lastErr, delay.Round(time.Millisecond))
		stream.Send(ctx, ai.Event{
			Type:  ai.EventRetry,
			Retry: &ai.RetryInfo{Attempt: attempt, MaxAttempts: maxAttempts, Delay: delay, Err: lastErr},
		})
	}

	cslog.Debug("http: POST %s%s model=%s", p.client.BaseURL(), chatCompletionPath, req.Model)
	resp, err := p.client.DoWithObserver(ctx, http.MethodPost, chatCompletionPath, bytes.NewReader(bodyBytes), onRetry)
	if err != nil {
		if ctx.Err() != nil {
			stream.Cancel(nil)
			return
		}
		stream.FinishWithError(ctx, nil, fmt.Errorf("sending request: %w", err))
		return
	}
	cslog.Debug("http: POST %s%s → %d", p.client.BaseURL(), chatCompletionPath, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		stream.FinishWithError(ctx, nil, fmt.Errorf("openai API error: %w", &httputil.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}))
		return
	}

	newReadLoop(cfg, stream).run(ctx, resp.Body)
}
