package audit

import (
	"context"
	"errors"
	"time"

	"github.com/base/tips/internal/metrics"
	"github.com/base/tips/internal/objectstore"
)

// Exponential backoff around every object-store call, grounded on the
// teacher's fmt.Errorf-wrap-and-log-then-continue loop style rather
// than a dedicated backoff library — none of the pack's dependencies
// bring one.
const (
	retryMaxAttempts = 5
	retryBaseDelay   = 100 * time.Millisecond
)

func getWithRetry(ctx context.Context, store objectstore.Client, key string) ([]byte, error) {
	backoff := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		data, err := store.Get(ctx, key)
		if err == nil || errors.Is(err, objectstore.ErrNotFound) {
			return data, err
		}
		lastErr = err
		metrics.AuditObjectStoreRetries.Inc()
		if attempt == retryMaxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func putWithRetry(ctx context.Context, store objectstore.Client, key string, body []byte) error {
	backoff := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if err := store.Put(ctx, key, body); err == nil {
			return nil
		} else {
			lastErr = err
		}
		metrics.AuditObjectStoreRetries.Inc()
		if attempt == retryMaxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}
