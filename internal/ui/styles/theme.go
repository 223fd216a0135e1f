// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeDark  = "dark"
	ModeLight = "light"
	ModeAuto  = "auto"
)

// Theme holds the styled components of the UI.
type Theme struct {
	Mode         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// FRAME
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderUser  lipgloss.Style
	Footer      lipgloss.Style
	FooterKey   lipgloss.Style
	FooterDesc  lipgloss.Style

	// ==========================================================================
	// FORMS
	// ==========================================================================

	FormBox      lipgloss.Style
	FormTitle    lipgloss.Style
	FieldLabel   lipgloss.Style
	FieldFocused lipgloss.Style
	FieldBlurred lipgloss.Style
	Prompt       lipgloss.Style
	Placeholder  lipgloss.Style
	Button       lipgloss.Style
	ButtonActive lipgloss.Style

	// ==========================================================================
	// STATUS VIEW
	// ==========================================================================

	Section lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style

	// ==========================================================================
	// FEEDBACK
	// ==========================================================================

	Error   lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
	Banner  lipgloss.Style
}

// NewTheme creates a theme for mode ("dark", "light" or "auto"). Unknown
// modes behave like "auto".
func NewTheme(mode string) *Theme {
	mode = strings.ToLower(strings.TrimSpace(mode))

	var isDark bool
	switch mode {
	case ModeDark:
		isDark = true
	case ModeLight:
		isDark = false
	default:
		mode = ModeAuto
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Mode:         mode,
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HeaderUser = lipgloss.NewStyle().
		Foreground(Emerald)
	t.Footer = lipgloss.NewStyle().
		Foreground(TextMuted).
		Padding(0, 1)
	t.FooterKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.FooterDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.FormBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 3)
	t.FormTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		MarginBottom(1)
	t.FieldLabel = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.FieldFocused = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.FieldBlurred = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.Prompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.Placeholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)
	t.Button = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 2)
	t.ButtonActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		Bold(true).
		Padding(0, 2)

	t.Section = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		MarginTop(1)
	t.Label = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(18)
	t.Value = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Error = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)
	t.Warning = lipgloss.NewStyle().
		Foreground(Amber)
	t.Success = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)
	t.Info = lipgloss.NewStyle().
		Foreground(Cyan)
	t.Banner = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(RoseDeep).
		Bold(true).
		Padding(0, 1)
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// FormWidth returns the width of the sign-in form for the current size.
func (t *Theme) FormWidth() int {
	w := t.Width - 8
	if w > 56 {
		w = 56
	}
	if w < 32 {
		w = 32
	}
	return w
}
