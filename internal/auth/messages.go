// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexusblog/nexus-client/internal/api"
)

// Errors produced by the controller before any request is sent.
var (
	ErrLockedOut         = errors.New("account is locked")
	ErrMissingCredential = errors.New("email and password are required")
	ErrInvalidCode       = errors.New("verification code must be 6 digits")
	ErrMissingTempToken  = errors.New("two-factor login has no pending challenge")
	ErrSamePassword      = errors.New("new password must differ from the current password")
	ErrMalformedResponse = errors.New("unexpected response from server")
)

// LockoutError reports a lockout in force, from the backend or a persisted
// earlier one.
type LockoutError struct {
	Info LockoutInfo
	now  time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked until %s: %s", e.Info.UntilTime().Format(time.RFC3339), e.Info.Reason)
}

// Unwrap makes errors.Is(err, ErrLockedOut) hold.
func (e *LockoutError) Unwrap() error { return ErrLockedOut }

// UserMessage turns any error from this package or the api package into a
// short sentence fit to show the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var lockErr *LockoutError
	if errors.As(err, &lockErr) {
		msg := "Your account is temporarily locked"
		if lockErr.Info.Reason != "" {
			msg += " (" + lockErr.Info.Reason + ")"
		}
		now := lockErr.now
		if now.IsZero() {
			now = time.Now()
		}
		return msg + ". Try again in " + humanDuration(lockErr.Info.Remaining(now)) + "."
	}

	for _, local := range []error{ErrMissingCredential, ErrInvalidCode, ErrMissingTempToken, ErrSamePassword} {
		if errors.Is(err, local) {
			return capitalize(local.Error()) + "."
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "The request was cancelled."
	}

	apiErr, ok := api.AsError(err)
	if !ok {
		return "Something went wrong. Please try again."
	}

	switch apiErr.Kind {
	case api.KindRateLimited:
		if apiErr.RetryAfter > 0 {
			return "Too many attempts. Please try again in " + humanDuration(apiErr.RetryAfter) + "."
		}
		return "Too many attempts. Please try again later."
	case api.KindAccountLocked:
		var d time.Duration
		msg := "Your account is temporarily locked"
		if apiErr.Lockout != nil {
			d = apiErr.Lockout.Duration
			if apiErr.Lockout.Reason != "" {
				msg += " (" + apiErr.Lockout.Reason + ")"
			}
		}
		if d <= 0 {
			d = DefaultLockoutDuration
		}
		return msg + ". Try again in " + humanDuration(d) + "."
	case api.KindNetwork:
		return "Cannot reach the server. Check your connection and try again."
	case api.KindServer:
		return "The server had a problem. Please try again shortly."
	case api.KindNotFound:
		return "This feature is not available yet."
	case api.KindForbidden:
		return withServerMessage(apiErr, "You do not have permission to do that.")
	case api.KindAuthInvalid:
		return withServerMessage(apiErr, "Invalid credentials.")
	default:
		return withServerMessage(apiErr, "The request was rejected.")
	}
}

func withServerMessage(e *api.Error, fallback string) string {
	if e.Message != "" {
		return capitalize(e.Message)
	}
	return fallback
}

// humanDuration renders d rounded up to whole seconds or minutes.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int((d + time.Second - 1) / time.Second)
		if secs <= 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
