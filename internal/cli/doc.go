// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the nexus command line.
//
// Each command opens its own client (see openSession), restores the stored
// session from the durable store, runs and closes it again. Running nexus
// without a command starts the terminal UI.
//
// # Usage
//
//	cmd, args := cli.Parse()
//	os.Exit(cli.Run(cmd, args))
//
// # Commands
//
//   - login, register, logout: sign in and out
//   - whoami, status: inspect the session, tokens and lockout
//   - password, 2fa: account security
//   - config: show or edit ~/.nexus/config.toml
//   - tui: the terminal UI (default)
//
// Every command accepts --json and then prints one JSONResponse. Exit codes
// are listed in errors.go.
package cli
