package conclave

import (
	"context"
	"sync"
	"time"
)

// rateLimitGateway wraps a Gateway with proactive rate limiting shared by
// every participant. Requests block until the budget allows them through,
// which keeps a wide panel from tripping provider limits in parallel rounds.
type rateLimitGateway struct {
	inner Gateway
	mu    sync.Mutex

	// Sliding window of request timestamps.
	rpm       int
	rpmWindow []time.Time

	// Sliding window of (timestamp, tokenCount) pairs.
	tpm       int
	tpmWindow []tpmEntry
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rateLimitGateway.
type RateLimitOption func(*rateLimitGateway)

// RPM sets the maximum requests per minute across the whole panel.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitGateway) { r.rpm = n }
}

// TPM sets the maximum tokens per minute (input + output combined). This is
// a soft limit: the request that exceeds the budget completes, subsequent
// requests block until the window slides.
func TPM(n int) RateLimitOption {
	return func(r *rateLimitGateway) { r.tpm = n }
}

// WithRateLimit wraps gw with proactive rate limiting. Compose with WithRetry:
//
//	gw = conclave.WithRateLimit(conclave.WithRetry(gw), conclave.RPM(60))
func WithRateLimit(gw Gateway, opts ...RateLimitOption) Gateway {
	r := &rateLimitGateway{inner: gw}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitGateway) Name() string { return r.inner.Name() }

func (r *rateLimitGateway) Chat(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Chat(ctx, model, req)
	if err == nil {
		r.recordUsage(resp.Usage)
	}
	return resp, err
}

func (r *rateLimitGateway) ChatStream(ctx context.Context, model string, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	if err := r.waitForBudget(ctx); err != nil {
		close(ch)
		return ChatResponse{}, err
	}
	resp, err := r.inner.ChatStream(ctx, model, req, ch)
	if err == nil {
		r.recordUsage(resp.Usage)
	}
	return resp, err
}

// waitForBudget blocks until both windows have room, or ctx is cancelled.
func (r *rateLimitGateway) waitForBudget(ctx context.Context) error {
	for {
		wait := r.nextWait(time.Now())
		if wait <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// nextWait slides both windows forward and returns how long the caller must
// wait before a request fits, or 0 if it fits now (in which case the request
// is recorded).
func (r *rateLimitGateway) nextWait(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	for len(r.rpmWindow) > 0 && r.rpmWindow[0].Before(cutoff) {
		r.rpmWindow = r.rpmWindow[1:]
	}
	for len(r.tpmWindow) > 0 && r.tpmWindow[0].at.Before(cutoff) {
		r.tpmWindow = r.tpmWindow[1:]
	}

	if r.rpm > 0 && len(r.rpmWindow) >= r.rpm {
		return r.rpmWindow[0].Add(time.Minute).Sub(now)
	}
	if r.tpm > 0 {
		total := 0
		for _, e := range r.tpmWindow {
			total += e.tokens
		}
		if total >= r.tpm && len(r.tpmWindow) > 0 {
			return r.tpmWindow[0].at.Add(time.Minute).Sub(now)
		}
	}

	r.rpmWindow = append(r.rpmWindow, now)
	return 0
}

// recordUsage adds a completed request's tokens to the TPM window.
func (r *rateLimitGateway) recordUsage(u Usage) {
	if r.tpm <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tpmWindow = append(r.tpmWindow, tpmEntry{at: time.Now(), tokens: u.InputTokens + u.OutputTokens})
}

// compile-time check
var _ Gateway = (*rateLimitGateway)(nil)
