package llm

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 32 * time.Second
	defaultJitterMax   = 1 * time.Second
)

// expBackOff is the retry schedule handed to backoff.Retry: the n-th wait
// (0-based) is min(base*2^n + jitter, cap).
type expBackOff struct {
	base, cap, jitterMax time.Duration
	jitter               func(max time.Duration) time.Duration
	n                    int
}

var _ backoff.BackOff = (*expBackOff)(nil)

func (b *expBackOff) NextBackOff() time.Duration {
	d := backoffDelay(b.n, b.base, b.cap, b.jitter(b.jitterMax))
	b.n++
	return d
}

func (b *expBackOff) Reset() { b.n = 0 }

// backoffDelay returns min(base*2^attempt + jitter, cap) for a 0-based retry
// index.
func backoffDelay(attempt int, base, maxDelay, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	delay += jitter
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// uniformJitter returns a uniformly distributed duration in [0, max).
func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// retryAfterHint converts a Retry-After header into the error backoff.Retry
// honours instead of its own schedule. The wait never exceeds maxDelay. Nil
// means the server gave no usable hint.
func retryAfterHint(h http.Header, maxDelay time.Duration) *backoff.RetryAfterError {
	d := parseRetryAfter(h)
	if d <= 0 {
		return nil
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return &backoff.RetryAfterError{Duration: d}
}

// parseRetryAfter understands both the delta-seconds and HTTP-date forms.
func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
