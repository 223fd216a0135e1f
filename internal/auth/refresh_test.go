// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/mockapi"
	"github.com/nexusblog/nexus-client/internal/storage"
)

func TestIsAccessTokenExpired(t *testing.T) {
	h := newHarness(t, nil, Options{})
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h.refresh.now = func() time.Time { return base }

	require.True(t, h.refresh.IsAccessTokenExpired(0), "no recorded expiry counts as expired")

	exp := h.refresh.RecordTokenExpiry(time.Hour)
	require.Equal(t, base.Add(time.Hour).UnixMilli(), exp.UnixMilli())

	tests := []struct {
		name    string
		at      time.Time
		buffer  time.Duration
		expired bool
	}{
		{"fresh", base, DefaultExpiryBuffer, false},
		{"outside buffer", exp.Add(-6 * time.Minute), DefaultExpiryBuffer, false},
		{"inside buffer", exp.Add(-4 * time.Minute), DefaultExpiryBuffer, true},
		{"at buffer edge", exp.Add(-DefaultExpiryBuffer), DefaultExpiryBuffer, true},
		{"past expiry", exp.Add(time.Second), 0, true},
		{"just before expiry without buffer", exp.Add(-time.Second), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			h.refresh.now = func() time.Time { return at }
			require.Equal(t, tt.expired, h.refresh.IsAccessTokenExpired(tt.buffer))
		})
	}
}

func TestRecordTokenExpiryDefaultsLifetime(t *testing.T) {
	h := newHarness(t, nil, Options{})
	base := time.Now()
	h.refresh.now = func() time.Time { return base }

	exp := h.refresh.RecordTokenExpiry(0)
	require.Equal(t, base.Add(DefaultTokenLifetime).UnixMilli(), exp.UnixMilli())

	h.refresh.RecordRefreshTokenExpiry(0)
	_, ok := h.refresh.RefreshTokenExpiry()
	require.False(t, ok, "a missing refresh lifetime records nothing")

	h.refresh.RecordRefreshTokenExpiry(48 * time.Hour)
	rexp, ok := h.refresh.RefreshTokenExpiry()
	require.True(t, ok)
	require.Equal(t, base.Add(48*time.Hour).UnixMilli(), rexp.UnixMilli())

	h.refresh.ClearExpiry()
	_, ok = h.refresh.TokenExpiry()
	require.False(t, ok)
	_, ok = h.refresh.RefreshTokenExpiry()
	require.False(t, ok)
}

func TestSecondsToDurationClamps(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	require.Zero(t, secondsToDuration(nil))
	require.Zero(t, secondsToDuration(f(-5)))
	require.Zero(t, secondsToDuration(f(math.NaN())))
	require.Equal(t, 900*time.Second, secondsToDuration(f(900)))
	require.Equal(t, maxTokenLifetime, secondsToDuration(f(1e300)))
}

func TestRefreshIsSingleFlight(t *testing.T) {
	h := newHarness(t, []mockapi.Option{mockapi.WithRefreshDelay(150 * time.Millisecond)}, Options{})
	h.login(t)
	before := h.tokens.Get()

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = h.refresh.RefreshAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, h.backend.Calls("/auth/refresh"))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, tokens[0], tokens[i])
	}
	require.NotEqual(t, before, tokens[0])
	require.Equal(t, tokens[0], h.tokens.Get())
}

func TestRefreshSequentialCallsEachHitBackend(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)

	_, err := h.refresh.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	_, err = h.refresh.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, h.backend.Calls("/auth/refresh"))
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t, []mockapi.Option{mockapi.WithRefreshDelay(200 * time.Millisecond)}, Options{})
	h.login(t)
	before := h.tokens.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.refresh.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	eventually(t, func() bool {
		tok := h.tokens.Get()
		return tok != "" && tok != before
	}, "the shared refresh completes for the callers still waiting")
}

func TestRefreshRejectedClearsCredentials(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)
	require.NotEmpty(t, h.security.CsrfToken())

	h.backend.RevokeAllSessions()
	_, err := h.refresh.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, api.ErrAuthInvalid)

	require.Empty(t, h.tokens.Get())
	require.Empty(t, h.security.CsrfToken())
	_, ok := h.refresh.TokenExpiry()
	require.False(t, ok)
	_, ok = h.session.Get(storage.KeyAuthToken)
	require.False(t, ok)
}

func TestRefreshTransientFailureKeepsToken(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)
	tok := h.tokens.Get()

	h.backend.Fail("/auth/refresh", http.StatusServiceUnavailable, 1)
	_, err := h.refresh.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, api.ErrServer)
	require.Equal(t, tok, h.tokens.Get())
}

func TestRefreshEmptyToken(t *testing.T) {
	srv := jsonServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/refresh": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"expiresIn":3600}`))
		},
	})
	h := &harness{}
	h.wire(t, srv.URL, storage.NewMemoryStore(), storage.NewMemoryStore(), Options{})

	_, err := h.refresh.RefreshAccessToken(context.Background())
	require.True(t, errors.Is(err, ErrEmptyToken))
}

func TestClientRefreshesProactively(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)

	exp, ok := h.refresh.TokenExpiry()
	require.True(t, ok)
	h.refresh.now = func() time.Time { return exp.Add(-time.Minute) }

	enabled, err := h.ctrl.TwoFactorStatus(context.Background())
	require.NoError(t, err)
	require.False(t, enabled)
	require.Equal(t, 1, h.backend.Calls("/auth/refresh"))
}

func TestClientRetriesOnceAfter401(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)

	h.backend.Fail("/auth/2fa/status", http.StatusUnauthorized, 1)
	_, err := h.ctrl.TwoFactorStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, h.backend.Calls("/auth/refresh"))
	require.Equal(t, 2, h.backend.Calls("/auth/2fa/status"))
	require.True(t, h.ctrl.IsAuthenticated())
}

func TestUnrecoverable401SignsOut(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.login(t)

	h.backend.RevokeAllSessions()
	h.backend.Fail("/auth/2fa/status", http.StatusUnauthorized, 0)
	_, err := h.ctrl.TwoFactorStatus(context.Background())
	require.ErrorIs(t, err, api.ErrAuthInvalid)

	require.Equal(t, StateAnonymous, h.ctrl.State())
	require.Nil(t, h.ctrl.User())
	require.Empty(t, h.tokens.Get())
	_, ok := h.local.Get(storage.KeyUser)
	require.False(t, ok)
}
