// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"log"
	"time"
)

// logAuthEvent writes one audit line: "<UTC time> | EVENT_TYPE | details".
// Callers must mask tokens before passing them in details.
func logAuthEvent(logger *log.Logger, eventType, details string) {
	if logger == nil {
		logger = log.Default()
	}
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	logger.Printf("%s | %s | %s", timestamp, eventType, details)
}
