package conclave

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryGateway wraps a Gateway and retries transient HTTP errors (429 Too
// Many Requests, 503 Service Unavailable) with exponential backoff.
type retryGateway struct {
	inner       Gateway
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retryGateway.
type RetryOption func(*retryGateway)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryGateway) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryGateway) { r.baseDelay = d }
}

// RetryLogger sets the logger for retry notices.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryGateway) { r.logger = l }
}

// WithRetry wraps gw with automatic retry on transient HTTP errors. Retries
// use exponential backoff with jitter, respecting a server Retry-After as the
// floor. Compose with any Gateway:
//
//	gw = conclave.WithRetry(openaicompat.New(baseURL, apiKey))
//	gw = conclave.WithRetry(gw, conclave.RetryMaxAttempts(5))
func WithRetry(gw Gateway, opts ...RetryOption) Gateway {
	r := &retryGateway{
		inner:       gw,
		maxAttempts: 3,
		baseDelay:   time.Second,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryGateway) Name() string { return r.inner.Name() }

func (r *retryGateway) Chat(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		resp, err := r.inner.Chat(ctx, model, req)
		if err == nil || !isTransient(err) {
			return resp, err
		}
		last = err
		r.logger.Warn("transient gateway error, retrying", "gateway", r.inner.Name(), "model", model, "status", statusOf(err), "attempt", i+1, "max", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepCtx(ctx, retryDelay(r.baseDelay, i, err)); err != nil {
				return ChatResponse{}, err
			}
		}
	}
	return ChatResponse{}, last
}

// ChatStream retries only while no events have reached the caller's channel;
// once streaming has started, errors pass through so consumers never see
// duplicate content. ch is closed exactly once before returning.
func (r *retryGateway) ChatStream(ctx context.Context, model string, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	defer close(ch)
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan StreamEvent, 64)
		var (
			resp      ChatResponse
			streamErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			resp, streamErr = r.inner.ChatStream(ctx, model, req, mid)
		}()

		var sent bool
		for ev := range mid {
			sent = true
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		<-done

		if streamErr == nil || !isTransient(streamErr) || sent {
			return resp, streamErr
		}
		last = streamErr
		r.logger.Warn("transient gateway error, retrying stream", "gateway", r.inner.Name(), "model", model, "status", statusOf(streamErr), "attempt", i+1, "max", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepCtx(ctx, retryDelay(r.baseDelay, i, streamErr)); err != nil {
				return ChatResponse{}, err
			}
		}
	}
	return ChatResponse{}, last
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryDelay computes the delay before retry attempt i: exponential backoff
// with jitter as a floor, lifted to the server's Retry-After when larger.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := base * (1 << i)
	backoff += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	var e *ErrHTTP
	if errors.As(err, &e) && e.RetryAfter > backoff {
		return e.RetryAfter
	}
	return backoff
}

// compile-time check
var _ Gateway = (*retryGateway)(nil)
