// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nexusblog/nexus-client/internal/ui/styles"
)

// View renders the model.
func (m *Model) View() string {
	if m.overlay.IsVisible() {
		return m.overlay.View()
	}

	var body string
	switch m.screen {
	case ScreenLoading:
		body = m.viewLoading()
	case ScreenLogin:
		body = m.viewLogin()
	case ScreenTwoFactor:
		body = m.viewTwoFactor()
	default:
		body = m.viewHome()
	}

	parts := []string{m.viewHeader()}
	if banner := m.banner.View(); banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, "", body, "", m.viewFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) viewHeader() string {
	t := m.theme
	left := t.HeaderBrand.Render("nexus")
	right := t.Muted.Render("signed out")
	if u := m.ctrl.User(); u != nil && m.ctrl.IsAuthenticated() {
		right = t.HeaderUser.Render(styles.StatusIndicators.Active + " " + u.DisplayName())
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return t.Header.Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) viewFooter() string {
	t := m.theme
	var keys [][2]string
	switch m.screen {
	case ScreenLogin:
		keys = [][2]string{{"tab", "next field"}, {"enter", "sign in"}, {"esc", "quit"}}
	case ScreenTwoFactor:
		keys = [][2]string{{"enter", "verify"}, {"esc", "back"}}
	case ScreenHome:
		keys = [][2]string{{"e", "extend"}, {"r", "re-verify"}, {"l", "sign out"}, {"q", "quit"}}
	default:
		keys = [][2]string{{"ctrl+c", "quit"}}
	}
	items := make([]string, 0, len(keys))
	for _, k := range keys {
		items = append(items, t.FooterKey.Render(k[0])+" "+t.FooterDesc.Render(k[1]))
	}
	return t.Footer.Render(strings.Join(items, "  "))
}

func (m *Model) viewLoading() string {
	return m.center(m.spinner.View() + " " + m.theme.Info.Render("Restoring your session..."))
}

func (m *Model) viewLogin() string {
	t := m.theme
	field := func(label string, input string, focused bool) string {
		box := t.FieldBlurred
		if focused {
			box = t.FieldFocused
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			t.FieldLabel.Render(label),
			box.Width(t.FormWidth()-8).Render(input),
		)
	}

	button := t.Button.Render("Sign in")
	if m.focus == focusSubmit {
		button = t.ButtonActive.Render("Sign in")
	}
	if m.busy {
		button = m.spinner.View() + " " + t.Muted.Render("Signing in...")
	}

	rows := []string{
		t.FormTitle.Render("Sign in to Nexus"),
		field("Email", m.email.View(), m.focus == focusEmail),
		field("Password", m.pass.View(), m.focus == focusPassword),
		"",
		button,
	}
	rows = append(rows, m.feedback()...)
	return m.center(t.FormBox.Width(t.FormWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func (m *Model) viewTwoFactor() string {
	t := m.theme
	rows := []string{
		t.FormTitle.Render("Two-factor authentication"),
		t.Muted.Render("Enter the code from your authenticator app."),
		"",
		t.FieldFocused.Width(t.FormWidth() - 8).Render(m.code.View()),
	}
	if m.busy {
		rows = append(rows, "", m.spinner.View()+" "+t.Muted.Render("Verifying..."))
	}
	rows = append(rows, m.feedback()...)
	return m.center(t.FormBox.Width(t.FormWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func (m *Model) viewHome() string {
	t := m.theme
	row := func(label, value string) string {
		return t.Label.Render(label) + t.Value.Render(value)
	}

	rows := []string{t.FormTitle.Render("Session")}
	if u := m.ctrl.User(); u != nil {
		rows = append(rows,
			row("Username", u.Username),
			row("Email", u.Email),
		)
		if u.Role != "" {
			rows = append(rows, row("Role", u.Role))
		}
		rows = append(rows, row("Bookmarks", fmt.Sprint(len(u.BookmarkedPosts))))
	}

	rows = append(rows, t.Section.Render("Timers"))
	rows = append(rows, row("Idle timeout", formatCountdown(m.ctrl.SessionRemaining())))
	if exp, ok := m.app.Refresh.TokenExpiry(); ok {
		rows = append(rows, row("Access token", formatCountdown(time.Until(exp))))
	}
	if exp, ok := m.app.Refresh.RefreshTokenExpiry(); ok {
		rows = append(rows, row("Refresh token", formatCountdown(time.Until(exp))))
	}

	if m.busy {
		rows = append(rows, "", m.spinner.View()+" "+t.Muted.Render("Working..."))
	}
	rows = append(rows, m.feedback()...)
	return m.center(t.FormBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func (m *Model) feedback() []string {
	var rows []string
	if m.errMsg != "" {
		rows = append(rows, "", styles.RenderError(m.errMsg))
	}
	if m.notice != "" {
		rows = append(rows, "", styles.RenderInfo(m.notice))
	}
	return rows
}

func (m *Model) center(s string) string {
	if m.width == 0 {
		return s
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, s)
}

func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
