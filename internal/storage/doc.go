// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side storage tiers used by the session
// manager.
//
// The tiers mirror what a browser front end has available:
//
//   - MemoryStore: per-process scratch storage (session storage)
//   - FileStore: JSON file shared by every client process of one profile
//     (local storage), reloaded on external change via fsnotify
//   - SQLiteStore: the same shared tier backed by modernc.org/sqlite
//   - CookieJar: an http.CookieJar persisted into a durable Store. HttpOnly
//     cookies are sent on requests but can never be read by application code.
//
// # Usage
//
//	durable, err := storage.OpenFileStore(filepath.Join(dir, "local.json"))
//	if err != nil {
//	    return err
//	}
//	defer durable.Close()
//
//	jar := storage.NewCookieJar(durable)
//	httpClient := &http.Client{Jar: jar}
package storage
