// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the nexus client configuration.
//
// Load starts from Default, overlays the first file found of
// ~/.nexus/config.toml and ~/.nexus/config.json, then applies NEXUS_*
// environment variables.
//
// NEXUS_HOME replaces ~/.nexus. The result is validated before use; a
// configuration that fails Validate is never returned.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	idle := cfg.SessionTimeout()
package config
