// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nexusblog/nexus-client/internal/ui/styles"
)

// LockoutBanner is a one-line banner shown while the account is locked.
type LockoutBanner struct {
	until  time.Time
	reason string
	width  int
	now    func() time.Time
}

// NewLockoutBanner creates an inactive banner.
func NewLockoutBanner() LockoutBanner {
	return LockoutBanner{now: time.Now}
}

// Set activates the banner until the given time.
func (b *LockoutBanner) Set(until time.Time, reason string) {
	b.until = until
	b.reason = reason
}

// Clear deactivates the banner.
func (b *LockoutBanner) Clear() {
	b.until = time.Time{}
	b.reason = ""
}

// SetWidth sets the banner width.
func (b *LockoutBanner) SetWidth(width int) {
	b.width = width
}

// Active reports whether the lockout is still in force.
func (b LockoutBanner) Active() bool {
	return !b.until.IsZero() && b.now().Before(b.until)
}

// Remaining returns the time left, or zero.
func (b LockoutBanner) Remaining() time.Duration {
	if !b.Active() {
		return 0
	}
	return b.until.Sub(b.now())
}

// Height returns the number of lines View occupies.
func (b LockoutBanner) Height() int {
	if b.Active() {
		return 1
	}
	return 0
}

// View renders the banner, or "" once the lockout has passed.
func (b LockoutBanner) View() string {
	if !b.Active() {
		return ""
	}
	text := styles.StatusIndicators.Error + " Account locked"
	if b.reason != "" {
		text += ": " + b.reason
	}
	text += " (try again in " + formatTimeRemaining(b.Remaining()+time.Second-1) + ")"

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.RoseDeep).
		Bold(true).
		Padding(0, 1)
	if b.width > 0 {
		style = style.Width(b.width)
	}
	return style.Render(text)
}
