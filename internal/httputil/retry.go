// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP and retry helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 10 * time.Second

const defaultMaxRetries = 5

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) with exponential backoff. The delay starts at RetryBaseDelay
// and doubles each attempt.
//
// When maxRetries is 0 the default (5) is used. On each 429 the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		if err := Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// BackoffFunc returns the pause before the given retry. attempt is 1 for
// the pause after the first failure.
type BackoffFunc func(attempt int) time.Duration

// FixedBackoff waits d between every attempt.
func FixedBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff waits base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt-1))) * base
	}
}

// RetryPolicy bounds how often an operation is attempted and how long to
// wait in between. The zero value makes a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// PolicyFromConfig builds a fixed-delay policy from its serialized form.
func PolicyFromConfig(cfg types.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: FixedBackoff(cfg.Backoff)}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds or the policy is exhausted. onFailure, if
// non-nil, is told about every failed attempt before the backoff wait. The
// returned error wraps the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onFailure func(attempt, total int, err error)) error {
	total := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, total, err)
		}
		if attempt == total {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", total, lastErr)
}

// Sleep pauses for d or until ctx is done. A non-positive d returns at once.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
