// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// MaskSecret renders a credential for log lines: the first four runes followed
// by "****". Values of eight runes or fewer are fully masked.
func MaskSecret(s string) string {
	if s == "" {
		return "<empty>"
	}
	runes := []rune(s)
	if len(runes) <= 8 {
		return "****"
	}
	return string(runes[:4]) + "****"
}

// MaskEmail keeps the first rune of the local part and the full domain.
//
//	MaskEmail("alice@example.com") // "a****@example.com"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskSecret(email)
	}
	local := []rune(email[:at])
	return string(local[:1]) + "****" + email[at:]
}
