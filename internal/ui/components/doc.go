// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable pieces of the nexus terminal UI.
//
//   - SessionTimeoutOverlay: full-screen notice for an expiring or expired
//     session. Any key dismisses it.
//   - LockoutBanner: one-line banner with a countdown while the account is
//     locked.
//
// Components are value types with pointer setters, updated by the owning
// model.
package components
