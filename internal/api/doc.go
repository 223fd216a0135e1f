// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP layer between the Nexus client and its REST backend.
//
// Every call carries the current bearer token and the security headers built
// by the auth package. The client refreshes an access token that is about to
// expire before sending, and retries a call once when the backend answers 401
// and a refresh succeeds. Requests marked SkipAuthRefresh bypass both, which
// is how the refresh call itself avoids recursing.
//
// # Errors
//
// Failed calls return *Error, classified by Kind:
//
//   - KindNetwork: no response
//   - KindAuthInvalid: 401
//   - KindRateLimited: 429, with RetryAfter
//   - KindAccountLocked: 423, with Lockout
//   - KindNotFound: 404, an endpoint that is not deployed
//
// Each kind also matches a sentinel with errors.Is:
//
//	if errors.Is(err, api.ErrRateLimited) {
//	    ...
//	}
package api
