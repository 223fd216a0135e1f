// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides colors and lipgloss styles for the nexus terminal UI.

Colors are lipgloss.AdaptiveColor values, so one palette serves light and dark
terminals. NewTheme picks the background from the [ui] theme setting:

	"dark"  - force the dark variants
	"light" - force the light variants
	"auto"  - ask the terminal (termenv)

Status messages always carry an ASCII indicator ([OK], [X], [!], [i]) in
addition to color.
*/
package styles
