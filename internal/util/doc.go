// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the nexus client.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file replacement (temp file + fsync + rename)
//   - MaskSecret, MaskEmail: redaction for audit log lines
//
// # Usage
//
//	// Persist the shared local-storage file without torn writes
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Never log raw tokens
//	log.Printf("token=%s", util.MaskSecret(token))
package util
