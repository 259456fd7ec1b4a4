package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type retryPolicy struct {
	maxRetries int
	delay      time.Duration
}

// do calls fn until it succeeds, fails with an error retryable rejects, or
// the retry budget runs out. Waiting between attempts honours ctx.
func (p retryPolicy) do(ctx context.Context, log *slog.Logger, retryable func(error) bool, fn func(context.Context) (string, error)) (string, error) {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		var text string
		text, err = fn(ctx)
		if err == nil {
			return text, nil
		}

		log.WarnContext(ctx, "Completion call failed, checking for retry", "attempt", attempt+1, "max_retries", p.maxRetries, "error", err)
		if !retryable(err) {
			return "", err
		}
		if attempt == p.maxRetries {
			break
		}

		log.InfoContext(ctx, "Retrying completion call", "delay", p.delay)
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", fmt.Errorf("completion failed after %d retries: %w", p.maxRetries, err)
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every Complete call of c to d, retries included.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: d}
}

func (c *timeoutClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Complete(ctx, turns)
}
