package llm

import (
	"net/http"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base, maxDelay := time.Second, 32*time.Second
	cases := []struct {
		attempt int
		jitter  time.Duration
		want    time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{3, 500 * time.Millisecond, 8500 * time.Millisecond},
		{5, 999 * time.Millisecond, 32 * time.Second},
		{40, 0, 32 * time.Second},
		{-1, 0, time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, base, maxDelay, tc.jitter); got != tc.want {
			t.Fatalf("attempt=%d jitter=%v: got %v want %v", tc.attempt, tc.jitter, got, tc.want)
		}
	}
}

func TestExpBackOff_ScheduleAndReset(t *testing.T) {
	b := &expBackOff{
		base:      time.Second,
		cap:       4 * time.Second,
		jitterMax: time.Second,
		jitter:    func(max time.Duration) time.Duration { return max / 2 },
	}
	want := []time.Duration{1500 * time.Millisecond, 2500 * time.Millisecond, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("wait %d: got %v want %v", i, got, w)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 1500*time.Millisecond {
		t.Fatalf("after reset: got %v", got)
	}
}

func TestUniformJitterBounds(t *testing.T) {
	if uniformJitter(0) != 0 {
		t.Fatalf("zero max must yield zero")
	}
	for i := 0; i < 1000; i++ {
		if j := uniformJitter(time.Second); j < 0 || j >= time.Second {
			t.Fatalf("jitter %v out of [0,1s)", j)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter(http.Header{"Retry-After": []string{"3"}}); d != 3*time.Second {
		t.Fatalf("got %v", d)
	}
	if d := parseRetryAfter(http.Header{"Retry-After": []string{"-1"}}); d != 0 {
		t.Fatalf("negative should be 0, got %v", d)
	}
	if d := parseRetryAfter(nil); d != 0 {
		t.Fatalf("nil header should be 0, got %v", d)
	}
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(http.Header{"Retry-After": []string{future}}); d <= 0 || d > 91*time.Second {
		t.Fatalf("http-date form: got %v", d)
	}
}

func TestRetryAfterHint(t *testing.T) {
	if h := retryAfterHint(http.Header{}, time.Minute); h != nil {
		t.Fatalf("no header must give no hint, got %v", h)
	}
	if h := retryAfterHint(http.Header{"Retry-After": []string{"7"}}, time.Minute); h == nil || h.Duration != 7*time.Second {
		t.Fatalf("want 7s hint, got %v", h)
	}
	if h := retryAfterHint(http.Header{"Retry-After": []string{"3600"}}, 32*time.Second); h == nil || h.Duration != 32*time.Second {
		t.Fatalf("hint must be capped, got %v", h)
	}
}
