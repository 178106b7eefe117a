package gcloud

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff is swapped in tests.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = time.Minute
	return backoff.WithMaxRetries(b, 4)
}

// Describe runs a read-only gcloud command, retrying transient failures.
// Mutating commands must use Runner.Run directly so they are never
// repeated.
func Describe(ctx context.Context, r Runner, args ...string) ([]byte, error) {
	var out []byte
	op := func() error {
		var err error
		out, err = r.Run(ctx, args...)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("transient gcloud failure, retrying", "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}
