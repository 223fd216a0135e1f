// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth is the client-side authentication and session lifecycle
// manager for the Nexus client.
//
// # Components
//
//   - TokenStore: the access token, mirrored in memory, session storage and
//     a cookie
//   - SecurityContext: CSRF token cache and per-request security headers
//   - RefreshCoordinator: token expiry bookkeeping and single-flight refresh
//   - SessionTimer: inactivity warning and expiry
//   - Controller: login, logout, re-verification and the authenticated state
//
// # Events
//
// The controller and timer publish on an events.Bus: session-warning,
// session-expired, account-lockout and auth-state-changed. Front ends
// subscribe to these rather than polling.
//
// # Failure policy
//
// Only a 401 that survives a token refresh ends a session. Rate limiting,
// missing endpoints, server errors and network failures keep the cached
// session, so a flaky connection never signs the user out.
package auth
