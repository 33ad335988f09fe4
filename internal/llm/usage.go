package llm

import (
	"sync"
	"time"
)

// latencyWindow is the number of most recent samples the rolling average
// covers.
const latencyWindow = 100

// TokenUsage is the token accounting reported by the API for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageStats is a snapshot of Usage.
type UsageStats struct {
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	LatencySamples   int       `json:"latency_samples"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	LastResetAt      time.Time `json:"last_reset_at"`
}

// Usage accumulates call statistics for one gateway. Counters are only reset
// through Reset. Safe for concurrent use.
type Usage struct {
	costPer1K float64

	mu               sync.Mutex
	requests         int64
	errors           int64
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
	latencies        [latencyWindow]time.Duration
	next             int
	filled           int
	lastReset        time.Time
}

// NewUsage returns an empty accumulator. costPer1K is the estimated USD price
// per 1000 tokens used for the linear cost estimate.
func NewUsage(costPer1K float64) *Usage {
	if costPer1K < 0 {
		costPer1K = 0
	}
	return &Usage{costPer1K: costPer1K, lastReset: time.Now().UTC()}
}

// ObserveLatency adds one response-time sample to the rolling window.
func (u *Usage) ObserveLatency(d time.Duration) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.latencies[u.next] = d
	u.next = (u.next + 1) % latencyWindow
	if u.filled < latencyWindow {
		u.filled++
	}
	u.mu.Unlock()
}

// Record counts one completed or failed call. tokens may be zero when the
// upstream never answered.
func (u *Usage) Record(tokens TokenUsage, failed bool) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.requests++
	if failed {
		u.errors++
	}
	u.promptTokens += int64(tokens.PromptTokens)
	u.completionTokens += int64(tokens.CompletionTokens)
	total := tokens.TotalTokens
	if total == 0 {
		total = tokens.PromptTokens + tokens.CompletionTokens
	}
	u.totalTokens += int64(total)
	u.mu.Unlock()
}

// Snapshot returns the current statistics.
func (u *Usage) Snapshot() UsageStats {
	if u == nil {
		return UsageStats{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	var sum time.Duration
	for i := 0; i < u.filled; i++ {
		sum += u.latencies[i]
	}
	avg := 0.0
	if u.filled > 0 {
		avg = float64(sum) / float64(u.filled) / float64(time.Millisecond)
	}
	return UsageStats{
		RequestCount:     u.requests,
		ErrorCount:       u.errors,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
		TotalTokens:      u.totalTokens,
		AvgLatencyMs:     avg,
		LatencySamples:   u.filled,
		EstimatedCostUSD: float64(u.totalTokens) / 1000.0 * u.costPer1K,
		LastResetAt:      u.lastReset,
	}
}

// Reset zeroes all counters. Operator action only.
func (u *Usage) Reset() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.requests, u.errors = 0, 0
	u.promptTokens, u.completionTokens, u.totalTokens = 0, 0, 0
	u.latencies = [latencyWindow]time.Duration{}
	u.next, u.filled = 0, 0
	u.lastReset = time.Now().UTC()
	u.mu.Unlock()
}
