// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Output styles for nexus commands.
//
// Commands use the terminal UI palette, so a session looks the same in
// "nexus status" and in the UI. Piped output is plain; see terminal.go.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nexusblog/nexus-client/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

// labelWidth is the label column used by RenderLabel.
const labelWidth = 18

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan).MarginBottom(1)
	SectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.TextPrimary).MarginTop(1)
	ValueStyle     = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	HighlightStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	DimStyle       = lipgloss.NewStyle().Foreground(styles.TextMuted)
	InfoStyle      = lipgloss.NewStyle().Foreground(styles.Cyan)

	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)

	labelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary)
	ruleStyle  = lipgloss.NewStyle().Foreground(styles.Overlay)
)

// RenderLabel pads label to the label column, or to width if given.
func RenderLabel(label string, width ...int) string {
	w := labelWidth
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return labelStyle.Width(w).Render(label)
}

// RenderRule renders a horizontal rule no wider than the terminal.
func RenderRule(width int) string {
	if limit := terminalWidth() - 2; width > limit {
		width = limit
	}
	if width < 1 {
		width = 1
	}
	return ruleStyle.Render(strings.Repeat("-", width))
}

// RenderStatus renders a state as a bracketed tag colored by severity.
func RenderStatus(status string) string {
	tag := "[" + strings.ToUpper(status) + "]"
	switch strings.ToLower(status) {
	case "ok", "verified", "enabled":
		return SuccessStyle.Render(tag)
	case "unverified", "warning":
		return WarningStyle.Render(tag)
	case "locked", "expired", "error":
		return ErrorStyle.Render(tag)
	default:
		return DimStyle.Render(tag)
	}
}
