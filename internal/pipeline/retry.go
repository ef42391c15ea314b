// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// RetryConfig bounds the retry loop: up to MaxAttempts calls with a
// fixed delay between them. The per-attempt timeout lives in the HTTP
// client, so the cumulative upper bound is
// MaxAttempts * (timeout + delay).
type RetryConfig struct {
	MaxAttempts uint64
	Delay       time.Duration
}

// DefaultRetryConfig is 1 initial call + 2 retries, 500 ms apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// withRetry runs op until it succeeds, fails permanently, or the
// attempt budget is spent. Only errors whose SendError classification
// is retryable are retried.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := uint64(0)
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var sendErr *SendError
		if errors.As(err, &sendErr) && sendErr.Retryable() && attempt < attempts {
			log.WithFields(log.Fields{"attempt": attempt, "max": attempts}).
				Debug("retrying after transient error")
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Delay), attempts-1), ctx)
	return backoff.Retry(wrapped, policy)
}
