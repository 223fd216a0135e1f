// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Storage keys shared with the web front end so that profiles stay readable by
// both clients.
const (
	// KeyAuthToken names the access-token cookie and its session-storage mirror.
	KeyAuthToken = "nexus_auth_token"

	KeyUser          = "user"
	KeyLastAuthCheck = "lastAuthCheck"

	// KeyRefreshTokenExpiry holds only the refresh token's expiry (epoch ms).
	// The refresh token itself lives in an HttpOnly cookie.
	KeyRefreshTokenExpiry = "nexus_refresh_token"
	KeyTokenExpiry        = "nexus_token_expiry"

	KeyCsrfToken       = "nexus_csrf_token"
	KeyCsrfTokenExpiry = "nexus_csrf_token_expiry"

	KeySessionTimeout = "nexus_session_timeout"
	KeySessionWarning = "nexus_session_warning"
	KeyLastActivity   = "nexus_last_activity"

	KeyAccountLockout = "account_lockout"

	// KeyPendingBookmarks holds bookmark ids saved locally but not yet
	// acknowledged by the server.
	KeyPendingBookmarks = "pendingBookmarks"

	KeyCookieJar = "nexus_cookie_jar"
)
