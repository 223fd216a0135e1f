// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type staticToken struct {
	mu  sync.Mutex
	tok string
}

func (s *staticToken) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok
}

func (s *staticToken) set(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
}

type fakeRefresher struct {
	tokens  *staticToken
	next    string
	err     error
	expired bool
	calls   atomic.Int32
}

func (f *fakeRefresher) RefreshAccessToken(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	f.tokens.set(f.next)
	f.expired = false
	return f.next, nil
}

func (f *fakeRefresher) IsAccessTokenExpired(time.Duration) bool {
	return f.expired
}

type headerFunc func() http.Header

func (h headerFunc) SecurityHeaders() http.Header { return h() }

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api", WithLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "http://", "::"} {
		_, err := NewClient(raw)
		require.Error(t, err, raw)
	}
}

func TestClient_AttachesHeaders(t *testing.T) {
	var got http.Header
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	c.SetTokenSource(&staticToken{tok: "abc"})
	c.SetHeaderSource(headerFunc(func() http.Header {
		h := http.Header{}
		h.Set("X-Request-ID", "req-1")
		return h
	}))

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Post(context.Background(), "/auth/me", map[string]string{"a": "b"}, &out))
	require.True(t, out.OK)
	require.Equal(t, "/api/auth/me", path)
	require.Equal(t, "Bearer abc", got.Get("Authorization"))
	require.Equal(t, "req-1", got.Get("X-Request-ID"))
	require.Equal(t, "application/json", got.Get("Content-Type"))
}

func TestClient_NoAuthorizationWhenSignedOut(t *testing.T) {
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	c.SetTokenSource(&staticToken{})
	require.NoError(t, c.Get(context.Background(), "/auth/csrf-token", nil))
	require.Empty(t, auth)
}

func TestClient_ClassifiesStatuses(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		sentinel error
		kind     Kind
	}{
		{http.StatusUnauthorized, `{"error":"expired"}`, ErrAuthInvalid, KindAuthInvalid},
		{http.StatusForbidden, ``, ErrForbidden, KindForbidden},
		{http.StatusNotFound, ``, ErrNotFound, KindNotFound},
		{http.StatusTooManyRequests, `{"retryAfter":30}`, ErrRateLimited, KindRateLimited},
		{http.StatusLocked, `{"lockout":{"reason":"too many attempts","duration":900}}`, ErrAccountLocked, KindAccountLocked},
		{http.StatusBadGateway, ``, ErrServer, KindServer},
		{http.StatusBadRequest, `{"message":"email taken"}`, ErrValidation, KindValidation},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			err := c.Get(context.Background(), "/x", nil)
			require.ErrorIs(t, err, tt.sentinel)
			require.Equal(t, tt.kind, KindOf(err))
			require.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestClient_ErrorDetails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/limited":
			w.Header().Set("Retry-After", "12")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/api/locked":
			w.WriteHeader(http.StatusLocked)
			w.Write([]byte(`{"error":"locked","lockout":{"reason":"too many attempts","duration":900}}`))
		}
	}))

	err := c.Get(context.Background(), "/limited", nil)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, 12*time.Second, apiErr.RetryAfter)

	err = c.Get(context.Background(), "/locked", nil)
	apiErr, ok = AsError(err)
	require.True(t, ok)
	require.NotNil(t, apiErr.Lockout)
	require.Equal(t, "too many attempts", apiErr.Lockout.Reason)
	require.Equal(t, 15*time.Minute, apiErr.Lockout.Duration)
	require.Equal(t, "locked", apiErr.Message)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(base, WithLogger(quietLogger()), WithTimeout(time.Second))
	require.NoError(t, err)
	err = c.Get(context.Background(), "/auth/me", nil)
	require.ErrorIs(t, err, ErrNetwork)
	require.True(t, KindOf(err).IsTransient())
}

func TestClient_RetriesOnceAfter401(t *testing.T) {
	tokens := &staticToken{tok: "old"}
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	ref := &fakeRefresher{tokens: tokens, next: "new"}
	c.SetTokenSource(tokens)
	c.SetRefresher(ref)

	require.NoError(t, c.Get(context.Background(), "/posts", nil))
	require.Equal(t, int32(1), ref.calls.Load())
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_SkipAuthRefreshIsNotIntercepted(t *testing.T) {
	tokens := &staticToken{tok: "old"}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ref := &fakeRefresher{tokens: tokens, next: "new", expired: true}
	c.SetTokenSource(tokens)
	c.SetRefresher(ref)

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/refresh", SkipAuthRefresh: true}, nil)
	require.ErrorIs(t, err, ErrAuthInvalid)
	require.Zero(t, ref.calls.Load(), "marked requests never trigger a refresh")
}

func TestClient_ProactiveRefresh(t *testing.T) {
	tokens := &staticToken{tok: "old"}
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	ref := &fakeRefresher{tokens: tokens, next: "fresh", expired: true}
	c.SetTokenSource(tokens)
	c.SetRefresher(ref)

	require.NoError(t, c.Get(context.Background(), "/posts", nil))
	require.Equal(t, "Bearer fresh", auth)
	require.Equal(t, int32(1), ref.calls.Load())
}

func TestClient_UnauthorizedHandler(t *testing.T) {
	tests := []struct {
		name       string
		refreshErr error
		wantCalled bool
	}{
		{"rejected refresh token", &Error{Kind: KindAuthInvalid, Status: 401}, true},
		{"forbidden refresh", &Error{Kind: KindForbidden, Status: 403}, true},
		{"refresh endpoint down", &Error{Kind: KindServer, Status: 503}, false},
		{"offline", &Error{Kind: KindNetwork, Err: errors.New("dial")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &staticToken{tok: "old"}
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			c.SetTokenSource(tokens)
			c.SetRefresher(&fakeRefresher{tokens: tokens, err: tt.refreshErr})

			var called bool
			c.SetUnauthorizedHandler(func() { called = true })

			err := c.Get(context.Background(), "/posts", nil)
			require.ErrorIs(t, err, ErrAuthInvalid)
			require.Equal(t, tt.wantCalled, called)
		})
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	require.Zero(t, parseRetryAfter("", now))
	require.Zero(t, parseRetryAfter("-3", now))
	require.Zero(t, parseRetryAfter("soon", now))
	require.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	require.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestKindOf_NonAPIError(t *testing.T) {
	require.Equal(t, KindNetwork, KindOf(errors.New("boom")))
	require.Zero(t, StatusOf(errors.New("boom")))
	require.Equal(t, "RATE_LIMITED", KindRateLimited.String())
	require.False(t, KindAuthInvalid.IsTransient())
	require.True(t, KindNotFound.IsTransient())
}

func TestLockedWithoutBodyFallsBackToRetryAfter(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusLocked)
	}))
	err := c.Get(context.Background(), "/auth/login", nil)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	require.NotNil(t, apiErr.Lockout)
	require.Equal(t, time.Minute, apiErr.Lockout.Duration)
}

func TestClient_ClampsServerWaits(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"slow down","retryAfter":1e300}`))
		case "/api/locked":
			w.WriteHeader(http.StatusLocked)
			w.Write([]byte(`{"error":"locked","lockout":{"reason":"attempts","duration":9.3e18}}`))
		}
	}))

	err := c.Get(context.Background(), "/limited", nil)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, maxServerWait, apiErr.RetryAfter)

	err = c.Get(context.Background(), "/locked", nil)
	apiErr, ok = AsError(err)
	require.True(t, ok)
	require.Equal(t, maxServerWait, apiErr.Lockout.Duration)
}

func TestServerSeconds(t *testing.T) {
	require.Equal(t, 1500*time.Millisecond, serverSeconds(1.5))
	require.Zero(t, serverSeconds(-1))
	require.Zero(t, serverSeconds(math.NaN()))
	require.Equal(t, maxServerWait, serverSeconds(math.Inf(1)))
	require.Equal(t, maxServerWait, parseRetryAfter("9000000000000", time.Now()))
}
