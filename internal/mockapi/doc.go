// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockapi is an in-memory Nexus authentication backend for tests and
// local development.
//
// It serves every /auth endpoint the client uses: password login with
// bcrypt hashes, HS256 JWT access tokens, an opaque refresh token in an
// HttpOnly cookie, CSRF tokens, TOTP two-factor authentication, failed-login
// lockout (423) and per-client rate limiting (429).
//
// Tests can inject failures and count calls:
//
//	srv := mockapi.New()
//	srv.AddUser("ada@example.com", "ada", "correct horse")
//	srv.Fail("/auth/me", http.StatusTooManyRequests, 1)
//	ts := httptest.NewServer(srv.Handler())
//	...
//	srv.Calls("/auth/refresh")
package mockapi
