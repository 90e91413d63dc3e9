package provider

import (
	"context"
	"log"
	"time"
)

// MaxAttempts is the total tries for retryable provider failures.
const MaxAttempts = 4

// WithRetry runs fn with exponential backoff for retryable failures.
// Classified terminal errors surface immediately; retryable ones surface
// only after the final attempt.
func WithRetry(ctx context.Context, what string, fn func() error) error {
	backoff := 2 * time.Second
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) {
			return err
		}
		if attempt == MaxAttempts {
			break
		}
		log.Printf("Provider: %s attempt %d/%d failed, retrying in %s: %v",
			what, attempt, MaxAttempts, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
