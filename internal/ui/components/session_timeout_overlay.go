// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nexusblog/nexus-client/internal/ui/styles"
)

// =============================================================================
// SESSION TIMEOUT OVERLAY
// =============================================================================

type overlayMode int

const (
	overlayHidden overlayMode = iota
	overlayWarning
	overlayExpired
)

// SessionTimeoutOverlay covers the screen while the inactivity timeout is
// close, and after it has fired.
type SessionTimeoutOverlay struct {
	mode      overlayMode
	remaining time.Duration

	width  int
	height int
}

// SessionExtendedMsg is sent when the user dismisses the warning.
type SessionExtendedMsg struct{}

// ExpiredDismissedMsg is sent when the user acknowledges an expired session.
type ExpiredDismissedMsg struct{}

// NewSessionTimeoutOverlay creates a hidden overlay.
func NewSessionTimeoutOverlay() SessionTimeoutOverlay {
	return SessionTimeoutOverlay{}
}

func (o *SessionTimeoutOverlay) SetSize(width, height int) {
	o.width, o.height = width, height
}

// Show displays the warning. A non-positive remaining shows the expired notice.
func (o *SessionTimeoutOverlay) Show(remaining time.Duration) {
	if remaining <= 0 {
		o.ShowExpired()
		return
	}
	o.mode = overlayWarning
	o.remaining = remaining
}

func (o *SessionTimeoutOverlay) ShowExpired() {
	o.mode = overlayExpired
	o.remaining = 0
}

func (o *SessionTimeoutOverlay) Hide() {
	o.mode = overlayHidden
}

// UpdateTime refreshes the countdown. Reaching zero does not switch to the
// expired notice; only the session-expired event does.
func (o *SessionTimeoutOverlay) UpdateTime(remaining time.Duration) {
	o.remaining = max(remaining, 0)
}

func (o *SessionTimeoutOverlay) IsVisible() bool { return o.mode != overlayHidden }

func (o *SessionTimeoutOverlay) IsExpired() bool { return o.mode == overlayExpired }

func (o *SessionTimeoutOverlay) TimeRemaining() time.Duration { return o.remaining }

// Update hides the overlay on any key and reports which notice was dismissed.
func (o SessionTimeoutOverlay) Update(msg tea.Msg) (SessionTimeoutOverlay, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		dismissed := o.mode
		o.Hide()
		switch dismissed {
		case overlayWarning:
			return o, func() tea.Msg { return SessionExtendedMsg{} }
		case overlayExpired:
			return o, func() tea.Msg { return ExpiredDismissedMsg{} }
		}
	}
	return o, nil
}

// View renders the overlay, or "" when hidden.
func (o SessionTimeoutOverlay) View() string {
	switch o.mode {
	case overlayWarning:
		countdown := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true).
			Render(formatTimeRemaining(o.remaining))
		return o.frame(styles.Amber,
			styles.StatusIndicators.Warning+" Session Timeout Warning",
			"You will be signed out in "+countdown,
			"Press any key to stay signed in")
	case overlayExpired:
		return o.frame(styles.Rose,
			styles.StatusIndicators.Error+" Session Expired",
			"You were signed out after a period of inactivity.",
			"Press any key to sign in again")
	}
	return ""
}

// frame centers a bordered dialog on a dimmed screen.
func (o SessionTimeoutOverlay) frame(accent lipgloss.AdaptiveColor, title, message, hint string) string {
	screenW, screenH := o.width, o.height
	if screenW == 0 {
		screenW = 60
	}
	if screenH == 0 {
		screenH = 24
	}
	boxW := min(max(screenW-8, 40), 60)

	body := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(accent).Bold(true).Render(title),
		"",
		lipgloss.NewStyle().Foreground(styles.TextPrimary).Width(boxW-8).Align(lipgloss.Center).Render(message),
		"",
		lipgloss.NewStyle().Foreground(styles.TextSecondary).Italic(true).Render(hint),
	)
	dialog := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(1, 3).
		Width(boxW).
		Align(lipgloss.Center).
		Render(body)

	return lipgloss.Place(screenW, screenH, lipgloss.Center, lipgloss.Center, dialog,
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim))
}

// formatTimeRemaining formats d as M:SS.
func formatTimeRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
