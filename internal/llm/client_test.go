package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
)

// scriptedTransport replays a fixed list of outcomes and counts calls.
type scriptedTransport struct {
	mu    sync.Mutex
	steps []step
	calls int
	last  Request
}

type step struct {
	status int
	body   string
	header http.Header
	err    error
}

func (s *scriptedTransport) Do(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	if st.err != nil {
		return Response{Duration: time.Millisecond}, st.err
	}
	return Response{
		StatusCode: st.status,
		Header:     st.header,
		Body:       []byte(st.body),
		Duration:   10 * time.Millisecond,
	}, nil
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// retryRecorder captures the waits the client schedules between attempts.
type retryRecorder struct {
	mu     sync.Mutex
	kinds  []apperr.Kind
	delays []time.Duration
}

func (r *retryRecorder) hook(kind apperr.Kind, d time.Duration) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.delays = append(r.delays, d)
	r.mu.Unlock()
}

func (r *retryRecorder) waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func (r *retryRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.waits() {
		sum += d
	}
	return sum
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(tr Transport, cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://llm.test/v1"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	// Millisecond schedule so retries really wait without slowing the suite.
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase, cfg.BackoffCap, cfg.JitterMax = time.Millisecond, 32*time.Millisecond, time.Millisecond
	}
	base := []Option{WithTransport(tr), WithLogger(zerolog.Nop())}
	return NewClient(cfg, append(base, opts...)...)
}

func TestSend_RetriesTransientThenSucceeds(t *testing.T) {
	tr := &scriptedTransport{steps: []step{
		{status: 503, body: `{"error":{"message":"overloaded"}}`},
		{status: 503},
		{status: 200, body: `{"ok":true}`},
	}}
	rec := &retryRecorder{}
	c := newTestClient(tr, Config{}, WithRetryHook(rec.hook))

	res, err := c.Send(context.Background(), http.MethodPost, "/chat/completions", []byte(`{}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tr.Calls() != 3 || res.Attempts != 3 {
		t.Fatalf("want 3 attempts, got calls=%d attempts=%d", tr.Calls(), res.Attempts)
	}
	if got := rec.waits(); len(got) != 2 || rec.kinds[0] != apperr.KindUnavailable {
		t.Fatalf("want 2 waits after Unavailable, got %v %v", got, rec.kinds)
	}
	base, jitterMax := time.Millisecond, time.Millisecond
	total := rec.total()
	if total < base || total > base*4+2*jitterMax {
		t.Fatalf("total sleep %v outside [%v, %v]", total, base, base*4+2*jitterMax)
	}
	if got := tr.last.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("authorization header not injected: %q", got)
	}
	if tr.last.URL != "https://llm.test/v1/chat/completions" {
		t.Fatalf("unexpected url %q", tr.last.URL)
	}
}

func TestSend_NonRetryableStopsAfterOneAttempt(t *testing.T) {
	cases := []struct {
		status int
		kind   apperr.Kind
	}{
		{401, apperr.KindAuthInvalid},
		{402, apperr.KindQuotaExceeded},
		{404, apperr.KindModelNotFound},
		{400, apperr.KindInvalidRequest},
	}
	for _, tc := range cases {
		tr := &scriptedTransport{steps: []step{{status: tc.status}}}
		rec := &retryRecorder{}
		c := newTestClient(tr, Config{}, WithRetryHook(rec.hook))

		_, err := c.Send(context.Background(), http.MethodPost, "/chat/completions", nil)
		if apperr.KindOf(err) != tc.kind {
			t.Fatalf("status %d: want kind %s, got %v", tc.status, tc.kind, err)
		}
		if tr.Calls() != 1 {
			t.Fatalf("status %d: want exactly 1 attempt, got %d", tc.status, tr.Calls())
		}
		if w := rec.waits(); len(w) != 0 {
			t.Fatalf("status %d: unexpected waits %v", tc.status, w)
		}
	}
}

func TestSend_ExhaustsRetryBudget(t *testing.T) {
	tr := &scriptedTransport{steps: []step{{status: 429}}}
	rec := &retryRecorder{}
	c := newTestClient(tr, Config{MaxRetries: 2, BackoffBase: 10 * time.Millisecond, BackoffCap: time.Second},
		WithRetryHook(rec.hook), WithJitter(func(time.Duration) time.Duration { return 0 }))

	_, err := c.Send(context.Background(), http.MethodGet, "/models", nil)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("want RateLimited, got %v", err)
	}
	if tr.Calls() != 3 {
		t.Fatalf("want 3 attempts, got %d", tr.Calls())
	}
	if w := rec.waits(); len(w) != 2 || w[0] != 10*time.Millisecond || w[1] != 20*time.Millisecond {
		t.Fatalf("unexpected waits %v", w)
	}
}

func TestSend_HonoursRetryAfter(t *testing.T) {
	tr := &scriptedTransport{steps: []step{
		{status: 429, header: http.Header{"Retry-After": []string{"7"}}},
		{status: 200},
	}}
	rec := &retryRecorder{}
	c := newTestClient(tr, Config{}, WithRetryHook(rec.hook), WithJitter(func(time.Duration) time.Duration { return 0 }))

	if _, err := c.Send(context.Background(), http.MethodPost, "/x", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// 7s from the server, capped at the 32ms BackoffCap.
	if w := rec.waits(); len(w) != 1 || w[0] != 32*time.Millisecond {
		t.Fatalf("want one capped Retry-After wait, got %v", w)
	}
}

func TestSend_TimeoutIsRetried(t *testing.T) {
	tr := &scriptedTransport{steps: []step{
		{err: context.DeadlineExceeded},
		{status: 200},
	}}
	c := newTestClient(tr, Config{})

	res, err := c.Send(context.Background(), http.MethodPost, "/x", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("want 2 attempts, got %d", res.Attempts)
	}
}

func TestSend_ConnectionRefusedIsRetried(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tr := &scriptedTransport{steps: []step{{err: refused}, {status: 200}}}
	c := newTestClient(tr, Config{})

	if _, err := c.Send(context.Background(), http.MethodPost, "/x", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tr.Calls() != 2 {
		t.Fatalf("want 2 attempts, got %d", tr.Calls())
	}
}

func TestSend_UnknownTransportErrorNotRetried(t *testing.T) {
	tr := &scriptedTransport{steps: []step{{err: errors.New("weird")}}}
	c := newTestClient(tr, Config{})

	_, err := c.Send(context.Background(), http.MethodPost, "/x", nil)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindUnavailable || e.Retryable() {
		t.Fatalf("want non-retryable Unavailable, got %v", err)
	}
	if tr.Calls() != 1 {
		t.Fatalf("want 1 attempt, got %d", tr.Calls())
	}
}

func TestSend_CallerCancelStopsRetries(t *testing.T) {
	tr := &scriptedTransport{steps: []step{{status: 503}}}
	ctx, cancel := context.WithCancel(context.Background())
	// The caller gives up while the client waits an hour before retrying.
	cancelOnRetry := func(apperr.Kind, time.Duration) { cancel() }
	c := newTestClient(tr, Config{BreakerThreshold: 1, BackoffBase: time.Hour, BackoffCap: time.Hour}, WithRetryHook(cancelOnRetry))

	start := time.Now()
	_, err := c.Send(ctx, http.MethodPost, "/x", nil)
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait ignored cancellation")
	}
	if apperr.KindOf(err) != apperr.KindTimeout {
		t.Fatalf("want Timeout, got %v", err)
	}
	if tr.Calls() != 1 {
		t.Fatalf("want 1 attempt, got %d", tr.Calls())
	}
	// cancellation is not a health signal
	if st := c.Circuit(); st.State != "closed" || st.ConsecutiveFailures != 0 {
		t.Fatalf("breaker should be untouched, got %+v", st)
	}
}

func TestSend_CircuitOpensHalfOpensAndCloses(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := &scriptedTransport{steps: []step{{status: 500}}}
	c := newTestClient(tr, Config{MaxRetries: -1}, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.Send(ctx, http.MethodPost, "/x", nil); apperr.KindOf(err) != apperr.KindUnavailable {
			t.Fatalf("call %d: want Unavailable, got %v", i, err)
		}
	}
	if st := c.Circuit(); st.State != "open" {
		t.Fatalf("want open after 5 failures, got %+v", st)
	}

	// Open: fails fast, no network call.
	before := tr.Calls()
	_, err := c.Send(ctx, http.MethodPost, "/x", nil)
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Fatalf("want Unavailable while open, got %v", err)
	}
	if tr.Calls() != before {
		t.Fatalf("open circuit made a network call")
	}

	// Half-open trial call fails -> open again.
	clock.Advance(61 * time.Second)
	if _, err := c.Send(ctx, http.MethodPost, "/x", nil); err == nil {
		t.Fatalf("trial call should fail")
	}
	if tr.Calls() != before+1 {
		t.Fatalf("half-open should admit exactly one trial call")
	}
	if st := c.Circuit(); st.State != "open" {
		t.Fatalf("failed trial call should reopen, got %+v", st)
	}

	// Next trial call succeeds -> closed.
	clock.Advance(61 * time.Second)
	tr.mu.Lock()
	tr.steps = []step{{status: 200}}
	tr.calls = 0
	tr.mu.Unlock()
	if _, err := c.Send(ctx, http.MethodPost, "/x", nil); err != nil {
		t.Fatalf("trial call should succeed: %v", err)
	}
	if st := c.Circuit(); st.State != "closed" || st.ConsecutiveFailures != 0 {
		t.Fatalf("want closed after successful trial call, got %+v", st)
	}
}

func TestSend_FeedsLatencyIntoUsage(t *testing.T) {
	tr := &scriptedTransport{steps: []step{{status: 503}, {status: 200}}}
	u := NewUsage(0)
	c := newTestClient(tr, Config{}, WithUsage(u))

	if _, err := c.Send(context.Background(), http.MethodPost, "/x", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	st := u.Snapshot()
	if st.LatencySamples != 2 || st.AvgLatencyMs != 10 {
		t.Fatalf("want 2 samples averaging 10ms, got %+v", st)
	}
}
