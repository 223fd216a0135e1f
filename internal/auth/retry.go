// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/nexusblog/nexus-client/internal/api"
)

// Rate-limit retry defaults.
const (
	DefaultRateLimitRetries = 2
	DefaultRateLimitStep    = time.Second
)

// RetryPolicy retries calls the backend rate-limited (429), waiting Step,
// then 2*Step, and so on. Retries of 0 disables retrying.
type RetryPolicy struct {
	Retries int
	Step    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: DefaultRateLimitRetries, Step: DefaultRateLimitStep}
}

// Do runs fn, retrying while it fails with a rate-limit error. The last error
// is returned when retries run out or ctx ends.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt := 1; attempt <= p.Retries && errors.Is(err, api.ErrRateLimited); attempt++ {
		wait := time.Duration(attempt) * p.Step
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = fn()
	}
	return err
}
