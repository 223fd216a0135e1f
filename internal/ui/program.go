// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexusblog/nexus-client/internal/app"
)

// Run shows the UI for a until the user quits. Session events reach the
// model through Bridge; terminal focus reporting is enabled so switching
// away from and back to the terminal counts as a visibility change.
func Run(a *app.App, opts ...tea.ProgramOption) error {
	m := New(a)

	opts = append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	}, opts...)
	p := tea.NewProgram(m, opts...)

	unsubscribe := Bridge(a.Bus, p.Send)
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
