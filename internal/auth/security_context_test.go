// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nexusblog/nexus-client/internal/storage"
)

func TestSecurityHeaders(t *testing.T) {
	h := newHarness(t, nil, Options{})
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h.security.now = func() time.Time { return fixed }

	first := h.security.SecurityHeaders()
	second := h.security.SecurityHeaders()

	_, err := uuid.Parse(first.Get(HeaderRequestID))
	require.NoError(t, err)
	require.NotEqual(t, first.Get(HeaderRequestID), second.Get(HeaderRequestID), "every request gets its own id")
	require.Equal(t, strconv.FormatInt(fixed.UnixMilli(), 10), first.Get(HeaderRequestTimestamp))
	require.Equal(t, "nexus-test", first.Get(HeaderUserAgent))
	require.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, first.Get(HeaderPlatform))
	require.Empty(t, first.Get(HeaderCsrfToken), "no token fetched yet")
}

func TestCsrfTokenLifecycle(t *testing.T) {
	h := newHarness(t, nil, Options{})
	base := time.Now()
	h.security.now = func() time.Time { return base }

	tok := h.security.FetchCsrfToken(context.Background())
	require.NotEmpty(t, tok)
	require.Equal(t, tok, h.security.CsrfToken())
	require.Equal(t, tok, h.security.SecurityHeaders().Get(HeaderCsrfToken))

	// Hydrated by a new context over the same local storage.
	other := NewSecurityContext(h.client, h.local, "", quietLogger())
	other.now = h.security.now
	require.Equal(t, tok, other.CsrfToken())

	h.security.now = func() time.Time { return base.Add(CsrfTokenTTL) }
	require.Empty(t, h.security.CsrfToken(), "expired tokens are not sent")

	h.security.ClearCsrf()
	_, ok := h.local.Get(storage.KeyCsrfToken)
	require.False(t, ok)
	_, ok = h.local.Get(storage.KeyCsrfTokenExpiry)
	require.False(t, ok)
}

func TestFetchCsrfTokenFailure(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.backend.Fail("/auth/csrf-token", http.StatusInternalServerError, 1)

	require.Empty(t, h.security.FetchCsrfToken(context.Background()))
	require.Empty(t, h.security.CsrfToken())
}

func TestFetchCsrfTokenAcceptsAlternateField(t *testing.T) {
	srv := jsonServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /auth/csrf-token": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"token":"csrf-alt"}`))
		},
	})
	h := &harness{}
	h.wire(t, srv.URL, storage.NewMemoryStore(), storage.NewMemoryStore(), Options{})

	require.Equal(t, "csrf-alt", h.security.FetchCsrfToken(context.Background()))
}
