// Package llm talks to an OpenAI-compatible chat completion API.
//
// Client is the resilient transport layer (per-attempt timeout, bounded retry
// with exponential backoff and jitter, circuit breaker). Gateway sits on top of
// it and owns the wire contract: request validation, prompt sanitization,
// response parsing and usage accounting.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// Config captures the runtime settings of a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Negative
	// values disable retries.
	MaxRetries int

	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterMax   time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// RawResult is the successful outcome of Send.
type RawResult struct {
	StatusCode int
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// Client performs one logical HTTP call against the LLM API, retrying
// transient failures. It has no knowledge of the payloads it carries.
type Client struct {
	cfg       Config
	transport Transport
	breaker   *Breaker
	usage     *Usage
	logger    zerolog.Logger

	jitter  func(max time.Duration) time.Duration
	now     func() time.Time
	onRetry func(kind apperr.Kind, delay time.Duration)
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport overrides the default net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithRetryHook is called with the failure kind and the chosen wait before
// every retry.
func WithRetryHook(fn func(kind apperr.Kind, delay time.Duration)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// WithJitter overrides the jitter source (tests).
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(c *Client) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

// WithClock overrides the clock driving the circuit breaker cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithUsage shares a usage accumulator; per-attempt latencies are fed into it.
func WithUsage(u *Usage) Option {
	return func(c *Client) {
		c.usage = u
	}
}

// WithLogger sets the logger used for per-attempt lines.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient constructs a Client. Zero-valued settings fall back to defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.JitterMax < 0 {
		cfg.JitterMax = 0
	} else if cfg.JitterMax == 0 {
		cfg.JitterMax = defaultJitterMax
	}

	c := &Client{
		cfg:       cfg,
		transport: NewHTTPTransport(),
		logger:    log.Logger,
		jitter:    uniformJitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = NewBreaker(BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, c.now)
	c.breaker.onChange = func(from, to State) {
		llmCircuit.Set(float64(to))
		c.logger.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("llm circuit state change")
	}
	return c
}

// Circuit returns the current breaker state.
func (c *Client) Circuit() CircuitState {
	return c.breaker.Snapshot()
}

// Send issues method path with body (JSON) and returns the first 2xx response.
//
// Retryable failures (RateLimited, Unavailable, Timeout) are retried up to
// MaxRetries times; everything else is returned on first occurrence. While the
// circuit is open Send fails immediately with an Unavailable error and makes no
// network call.
func (c *Client) Send(ctx context.Context, method, path string, body []byte) (RawResult, error) {
	tr := otel.Tracer("llm/Client")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("llm.path", path),
		),
	)
	defer span.End()

	res, err := c.send(ctx, method, path, body)
	span.SetAttributes(attribute.Int("llm.attempts", res.Attempts))
	if err != nil {
		kind := apperr.KindOf(err)
		llmCalls.WithLabelValues(string(kind)).Inc()
		span.SetStatus(codes.Error, string(kind))
		span.RecordError(err)
		return res, err
	}
	llmCalls.WithLabelValues("ok").Inc()
	return res, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (RawResult, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Str("outcome", "circuit_open").
			Msg("llm attempt skipped")
		return RawResult{}, err
	}

	req := Request{
		Method: method,
		URL:    c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/"),
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body: body,
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	var (
		attempts int
		last     *apperr.Error
		lastResp Response
	)
	op := func() (Response, error) {
		attempts++
		resp, classified := c.attempt(ctx, req, attempts)
		if classified == nil {
			return resp, nil
		}
		last, lastResp = classified, resp
		switch {
		case ctx.Err() != nil:
			return resp, backoff.Permanent(ctx.Err())
		case !classified.Retryable():
			return resp, backoff.Permanent(classified)
		}
		if hint := retryAfterHint(resp.Header, c.cfg.BackoffCap); hint != nil {
			return resp, hint
		}
		return resp, classified
	}
	notify := func(_ error, delay time.Duration) {
		c.logger.Debug().
			Str("kind", string(last.Kind)).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("llm retry scheduled")
		llmRetries.Inc()
		if c.onRetry != nil {
			c.onRetry(last.Kind, delay)
		}
	}

	started := time.Now()
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&expBackOff{
			base:      c.cfg.BackoffBase,
			cap:       c.cfg.BackoffCap,
			jitterMax: c.cfg.JitterMax,
			jitter:    c.jitter,
		}),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		c.breaker.Success()
		return RawResult{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Attempts:   attempts,
			Duration:   time.Since(started),
		}, nil
	}

	partial := RawResult{StatusCode: lastResp.StatusCode, Attempts: attempts, Duration: time.Since(started)}
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.breaker.Release()
		return partial, canceled(ctxErr)
	}
	if last == nil {
		c.breaker.Release()
		return partial, apperr.Wrap(apperr.KindUnavailable, "llm call failed", err).WithRetryable(false)
	}
	c.recordFailure(last)
	return partial, last
}

// attempt performs one round trip under its own timeout. A nil error means a
// 2xx response.
func (c *Client) attempt(ctx context.Context, req Request, n int) (Response, *apperr.Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Do(attemptCtx, req)
	elapsed := resp.Duration
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}

	var classified *apperr.Error
	switch {
	case err != nil:
		classified = ClassifyTransportError(ctx, attemptCtx, err)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		classified = ClassifyStatus(resp.StatusCode, resp.Body)
	}

	c.usage.ObserveLatency(elapsed)
	llmAttemptLat.Observe(elapsed.Seconds())

	ev := c.logger.Info()
	outcome := "ok"
	if classified != nil {
		ev = c.logger.Warn()
		outcome = string(classified.Kind)
	}
	ev.Str("method", req.Method).
		Str("path", strings.TrimPrefix(req.URL, c.cfg.BaseURL)).
		Int("attempt", n).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Str("outcome", outcome).
		Msg("llm attempt")

	return resp, classified
}

// recordFailure updates the breaker for a terminal failure. A request the API
// rejected as malformed says nothing about upstream health, so it only frees
// a half-open trial call slot.
func (c *Client) recordFailure(err *apperr.Error) {
	if err.Kind == apperr.KindInvalidRequest {
		c.breaker.Release()
		return
	}
	c.breaker.Failure()
}

func canceled(cause error) error {
	return apperr.Wrap(apperr.KindTimeout, "request canceled by caller", cause).WithRetryable(false)
}
