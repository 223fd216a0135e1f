// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failed API call.
type Kind int

const (
	// KindNetwork means no response was received.
	KindNetwork Kind = iota
	// KindAuthInvalid is a 401.
	KindAuthInvalid
	// KindForbidden is a 403.
	KindForbidden
	// KindRateLimited is a 429; RetryAfter may be set.
	KindRateLimited
	// KindAccountLocked is a 423; Lockout is set.
	KindAccountLocked
	// KindServer is any 5xx.
	KindServer
	// KindNotFound is a 404, usually an endpoint that is not deployed yet.
	KindNotFound
	// KindValidation is any other 4xx.
	KindValidation
)

// String returns a string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NETWORK"
	case KindAuthInvalid:
		return "AUTH_INVALID"
	case KindForbidden:
		return "FORBIDDEN"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindAccountLocked:
		return "ACCOUNT_LOCKED"
	case KindServer:
		return "SERVER_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// IsTransient reports whether a failure of this kind says nothing about the
// validity of the session.
func (k Kind) IsTransient() bool {
	switch k {
	case KindAuthInvalid, KindForbidden, KindAccountLocked:
		return false
	default:
		return true
	}
}

// Sentinel errors matched with errors.Is against any *Error of that kind.
var (
	ErrNetwork       = errors.New("network error")
	ErrAuthInvalid   = errors.New("authentication invalid")
	ErrForbidden     = errors.New("forbidden")
	ErrRateLimited   = errors.New("rate limited")
	ErrAccountLocked = errors.New("account locked")
	ErrServer        = errors.New("server error")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("request rejected")
)

var kindSentinels = map[Kind]error{
	KindNetwork:       ErrNetwork,
	KindAuthInvalid:   ErrAuthInvalid,
	KindForbidden:     ErrForbidden,
	KindRateLimited:   ErrRateLimited,
	KindAccountLocked: ErrAccountLocked,
	KindServer:        ErrServer,
	KindNotFound:      ErrNotFound,
	KindValidation:    ErrValidation,
}

// LockoutDetails is the backend's description of an account lockout.
type LockoutDetails struct {
	Reason   string
	Duration time.Duration
}

// Error is returned for every failed API call.
type Error struct {
	Kind   Kind
	Status int // 0 for KindNetwork
	Method string
	Path   string

	// Message is the server-provided message, if any.
	Message string

	RetryAfter time.Duration
	Lockout    *LockoutDetails

	// Err is the transport error for KindNetwork.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d (%s): %s", e.Method, e.Path, e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d (%s)", e.Method, e.Path, e.Status, e.Kind)
}

// Unwrap exposes the kind sentinel and the transport error.
func (e *Error) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors that did not come from the API are
// treated as KindNetwork.
func KindOf(err error) Kind {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Kind
	}
	return KindNetwork
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status
	}
	return 0
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthInvalid
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusLocked:
		return KindAccountLocked
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// =============================================================================
// ERROR BODY PARSING
// =============================================================================

// errorBody is the union of error payload shapes the backend emits.
type errorBody struct {
	Error      json.RawMessage `json:"error"`
	Message    string          `json:"message"`
	RetryAfter *float64        `json:"retryAfter"`
	Lockout    *struct {
		Reason   string   `json:"reason"`
		Duration *float64 `json:"duration"` // seconds
	} `json:"lockout"`
}

func newStatusError(method, path string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Kind:   KindForStatus(resp.StatusCode),
		Status: resp.StatusCode,
		Method: method,
		Path:   path,
	}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		e.Message = eb.Message
		if e.Message == "" && len(eb.Error) > 0 {
			var s string
			if json.Unmarshal(eb.Error, &s) == nil {
				e.Message = s
			}
		}
		if eb.RetryAfter != nil && *eb.RetryAfter > 0 {
			e.RetryAfter = serverSeconds(*eb.RetryAfter)
		}
		if eb.Lockout != nil {
			details := &LockoutDetails{Reason: eb.Lockout.Reason}
			if eb.Lockout.Duration != nil {
				details.Duration = serverSeconds(*eb.Lockout.Duration)
			}
			e.Lockout = details
		}
	}

	if e.RetryAfter == 0 {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	if e.Kind == KindAccountLocked && e.Lockout == nil {
		e.Lockout = &LockoutDetails{Reason: e.Message, Duration: e.RetryAfter}
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return serverSeconds(float64(secs))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return min(d, maxServerWait)
		}
	}
	return 0
}

// maxServerWait caps waits announced by the server.
const maxServerWait = 24 * time.Hour

// serverSeconds converts a server-supplied number of seconds, clamped to
// [0, maxServerWait]. NaN yields 0.
func serverSeconds(secs float64) time.Duration {
	if !(secs > 0) {
		return 0
	}
	if secs >= maxServerWait.Seconds() {
		return maxServerWait
	}
	return time.Duration(secs * float64(time.Second))
}
